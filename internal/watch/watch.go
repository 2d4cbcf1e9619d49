// Package watch reports file changes under a directory tree.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the watcher waits for a burst of events to settle.
const DefaultDebounce = 100 * time.Millisecond

var defaultExcludedDirs = []string{
	"node_modules",
	"vendor",
	"venv",
	".venv",
	".git",
	".hg",
	".svn",
	".idea",
	".vscode",
	"__pycache__",
}

// Options configures a Watcher.
type Options struct {
	// OnChange receives the slash-separated paths, relative to the root, that changed
	// during one debounce window. It runs on the watcher goroutine.
	OnChange    func(paths []string)
	ExcludeDirs []string
	// ExcludeFiles lists files whose changes are never reported, such as logs the
	// server itself writes below the root. Relative entries are resolved against the
	// working directory.
	ExcludeFiles  []string
	Debounce      time.Duration
	IncludeHidden bool
}

// Watcher watches a directory tree recursively.
type Watcher struct {
	watcher  *fsnotify.Watcher
	logger   *slog.Logger
	onChange func([]string)
	exclude  map[string]struct{}
	files    map[string]struct{}
	root     string
	debounce time.Duration
	hidden   bool
}

// New starts watching root and every directory below it.
func New(root string, logger *slog.Logger, opts Options) (*Watcher, error) {
	if root == "" {
		return nil, errors.New("root directory must be provided")
	}
	if opts.OnChange == nil {
		return nil, errors.New("change callback must be provided")
	}
	if logger == nil {
		logger = slog.Default()
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}

	exclude := make(map[string]struct{})
	for _, name := range append(append([]string(nil), defaultExcludedDirs...), opts.ExcludeDirs...) {
		if name = strings.TrimSpace(name); name != "" {
			exclude[strings.ToLower(name)] = struct{}{}
		}
	}

	files := make(map[string]struct{})
	for _, name := range opts.ExcludeFiles {
		if strings.TrimSpace(name) == "" {
			continue
		}
		abs, err := filepath.Abs(name)
		if err != nil {
			return nil, fmt.Errorf("resolve excluded file %s: %w", name, err)
		}
		files[abs] = struct{}{}
	}

	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	w := &Watcher{
		watcher:  fw,
		logger:   logger.With("component", "watcher"),
		onChange: opts.OnChange,
		exclude:  exclude,
		files:    files,
		root:     absRoot,
		debounce: debounce,
		hidden:   opts.IncludeHidden,
	}
	if err := w.watchRecursive(absRoot); err != nil {
		_ = fw.Close()
		return nil, err
	}
	return w, nil
}

// Run dispatches change batches until ctx is done, then closes the watcher.
// It returns ctx.Err() on cancellation.
func (w *Watcher) Run(ctx context.Context) error {
	defer func() {
		if err := w.watcher.Close(); err != nil {
			w.logger.Warn("close watcher", slog.Any("err", err))
		}
	}()

	pending := make(map[string]struct{})
	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return ctx.Err()
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			rel, relevant := w.handleEvent(event)
			if !relevant {
				continue
			}
			pending[rel] = struct{}{}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher error", slog.Any("err", err))
		case <-fire:
			fire = nil
			paths := make([]string, 0, len(pending))
			for p := range pending {
				paths = append(paths, p)
			}
			sort.Strings(paths)
			clear(pending)
			w.onChange(paths)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) (string, bool) {
	if event.Name == "" || event.Op == fsnotify.Chmod {
		return "", false
	}
	if _, ok := w.files[filepath.Clean(event.Name)]; ok {
		return "", false
	}
	rel := w.relativePath(event.Name)
	if w.skipped(rel) {
		return "", false
	}

	w.logger.Debug("fsnotify event", slog.String("path", rel), slog.String("op", event.Op.String()))

	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.watchRecursive(event.Name); err != nil {
				w.logger.Warn("watch new directory", slog.String("path", rel), slog.Any("err", err))
			}
		}
	}
	return rel, true
}

// skipped reports whether any segment of rel is hidden or excluded.
func (w *Watcher) skipped(rel string) bool {
	for _, segment := range strings.Split(rel, "/") {
		if w.excludedName(segment) {
			return true
		}
	}
	return false
}

func (w *Watcher) excludedName(name string) bool {
	if !w.hidden && strings.HasPrefix(name, ".") && name != "." && name != ".." {
		return true
	}
	_, ok := w.exclude[strings.ToLower(name)]
	return ok
}

func (w *Watcher) watchRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.root && w.excludedName(d.Name()) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			w.logger.Warn("failed to watch directory", slog.String("path", path), slog.Any("err", err))
		}
		return nil
	})
}

func (w *Watcher) relativePath(abs string) string {
	rel, err := filepath.Rel(w.root, abs)
	if err != nil {
		return filepath.ToSlash(abs)
	}
	return filepath.ToSlash(rel)
}
