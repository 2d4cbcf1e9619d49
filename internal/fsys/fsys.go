// Package fsys defines the filesystem capabilities the request handler relies on.
package fsys

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FS is the minimal filesystem surface used to resolve requests.
// All names are absolute, slash-separated paths.
type FS interface {
	Stat(name string) (fs.FileInfo, error)
	Open(name string) (fs.File, error)
	ReadDir(name string) ([]fs.DirEntry, error)
}

// OS returns an FS backed by the host filesystem.
func OS() FS {
	return osFS{}
}

type osFS struct{}

func (osFS) Stat(name string) (fs.FileInfo, error) {
	return os.Stat(filepath.FromSlash(name))
}

func (osFS) Open(name string) (fs.File, error) {
	return os.Open(filepath.FromSlash(name)) //nolint:gosec // callers resolve name inside the served root
}

func (osFS) ReadDir(name string) ([]fs.DirEntry, error) {
	return os.ReadDir(filepath.FromSlash(name))
}

// FromFS adapts an io/fs filesystem so that "/" maps to its root.
// It is mainly used with testing/fstest.MapFS.
func FromFS(fsys fs.FS) FS {
	return adapter{fsys: fsys}
}

type adapter struct {
	fsys fs.FS
}

func (a adapter) name(name string) (string, error) {
	rel := strings.TrimPrefix(name, "/")
	if rel == "" {
		rel = "."
	}
	rel = strings.TrimSuffix(rel, "/")
	if !fs.ValidPath(rel) {
		return "", &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}
	return rel, nil
}

func (a adapter) Stat(name string) (fs.FileInfo, error) {
	rel, err := a.name(name)
	if err != nil {
		return nil, err
	}
	return fs.Stat(a.fsys, rel)
}

func (a adapter) Open(name string) (fs.File, error) {
	rel, err := a.name(name)
	if err != nil {
		return nil, err
	}
	return a.fsys.Open(rel)
}

func (a adapter) ReadDir(name string) ([]fs.DirEntry, error) {
	rel, err := a.name(name)
	if err != nil {
		return nil, err
	}
	return fs.ReadDir(a.fsys, rel)
}

// IsNotExist reports whether err means the path is absent.
// A path component that is a regular file counts as absent too.
func IsNotExist(err error) bool {
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrInvalid) {
		return true
	}
	return isNotDir(err)
}
