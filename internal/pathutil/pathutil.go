// Package pathutil maps request paths onto a served root without escaping it.
package pathutil

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"
)

// ErrDenied is returned when a request path cannot be mapped inside the root.
var ErrDenied = errors.New("path outside served root")

// NormalizeSeparators rewrites Windows separators to forward slashes.
func NormalizeSeparators(p string) string {
	return strings.ReplaceAll(p, `\`, "/")
}

// NormalizeRoot turns dir into the absolute, slash-separated form used for containment checks.
func NormalizeRoot(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve root: %w", err)
	}
	return cleanSlash(filepath.ToSlash(abs)), nil
}

// Resolve decodes requestPath and joins it with root.
// root must already be normalized with NormalizeRoot.
func Resolve(root, requestPath string) (string, error) {
	decoded, err := url.PathUnescape(requestPath)
	if err != nil {
		return "", ErrDenied
	}
	if strings.ContainsRune(decoded, 0) {
		return "", ErrDenied
	}
	decoded = NormalizeSeparators(decoded)
	decoded = strings.TrimPrefix(decoded, "/")

	resolved := cleanSlash(path.Join(root, decoded))
	if !Contains(root, resolved) {
		return "", ErrDenied
	}
	return resolved, nil
}

// Contains reports whether target is root or lies below it, comparing whole segments.
func Contains(root, target string) bool {
	if target == root {
		return true
	}
	prefix := root
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return strings.HasPrefix(target, prefix)
}

// Rel returns target relative to root as a slash path with a leading slash.
func Rel(root, target string) string {
	rel := strings.TrimPrefix(target, root)
	if !strings.HasPrefix(rel, "/") {
		rel = "/" + rel
	}
	return rel
}

func cleanSlash(p string) string {
	p = path.Clean(p)
	// Keep drive roots like "C:/" intact; path.Clean would leave "C:" otherwise.
	if len(p) == 2 && p[1] == ':' {
		p += "/"
	}
	return p
}
