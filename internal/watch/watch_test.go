package watch_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/euforicio/devserver/internal/watch"
)

func startWatcher(t *testing.T, root string, excludeFiles ...string) <-chan []string {
	t.Helper()
	changes := make(chan []string, 16)
	w, err := watch.New(root, slog.New(slog.NewTextHandler(io.Discard, nil)), watch.Options{
		Debounce:     20 * time.Millisecond,
		ExcludeFiles: excludeFiles,
		OnChange:     func(paths []string) { changes <- paths },
	})
	if err != nil {
		t.Fatalf("watch.New returned error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-done; !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled from Run, got %v", err)
		}
	})
	return changes
}

func waitFor(t *testing.T, changes <-chan []string, want string) {
	t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case paths := <-changes:
			if slices.Contains(paths, want) {
				return
			}
		case <-timeout:
			t.Fatalf("did not observe change to %s", want)
		}
	}
}

func TestWatcherReportsWrites(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "css"), 0o755); err != nil {
		t.Fatal(err)
	}
	changes := startWatcher(t, root)

	if err := os.WriteFile(filepath.Join(root, "css", "site.css"), []byte("body{}"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	waitFor(t, changes, "css/site.css")
}

func TestWatcherFollowsNewDirectories(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	changes := startWatcher(t, root)

	dir := filepath.Join(root, "posts")
	if err := os.Mkdir(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	waitFor(t, changes, "posts")

	// Give the watcher a moment to attach to the new directory.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(filepath.Join(dir, "first.html"), []byte("hi"), 0o644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, changes, "posts/first.html")
}

func TestWatcherIgnoresExcludedDirectories(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "node_modules"), 0o755); err != nil {
		t.Fatal(err)
	}
	changes := startWatcher(t, root)

	if err := os.WriteFile(filepath.Join(root, "node_modules", "dep.js"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, ".hidden"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "index.html"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	timeout := time.After(3 * time.Second)
	for {
		select {
		case paths := <-changes:
			for _, p := range paths {
				if p == "node_modules/dep.js" || p == ".hidden" {
					t.Fatalf("excluded path reported: %s", p)
				}
			}
			if slices.Contains(paths, "index.html") {
				return
			}
		case <-timeout:
			t.Fatalf("did not observe change to index.html")
		}
	}
}

func TestWatcherIgnoresExcludedFiles(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	accessLog := filepath.Join(root, "access.json")
	changes := startWatcher(t, root, accessLog)

	if err := os.WriteFile(accessLog, []byte("{}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "index.html"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	timeout := time.After(3 * time.Second)
	for {
		select {
		case paths := <-changes:
			if slices.Contains(paths, "access.json") {
				t.Fatalf("excluded file reported: %v", paths)
			}
			if slices.Contains(paths, "index.html") {
				return
			}
		case <-timeout:
			t.Fatalf("did not observe change to index.html")
		}
	}
}

func TestNewRequiresCallback(t *testing.T) {
	t.Parallel()
	if _, err := watch.New(t.TempDir(), nil, watch.Options{}); err == nil {
		t.Fatalf("expected error without OnChange")
	}
}
