// Package listing renders HTML indexes of served directories.
package listing

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"path"

	"github.com/euforicio/devserver/internal/fsys"
	"github.com/euforicio/devserver/internal/pathutil"
)

//go:embed templates/*.gohtml
var templateFS embed.FS

var tmpl = template.Must(template.ParseFS(templateFS, "templates/*.gohtml"))

// Entry is a single link in a listing.
type Entry struct {
	// Href is the entry's path relative to the served root, with a leading slash.
	Href string
	// Name is the last path segment.
	Name string
}

// Entries enumerates the immediate children of dir in the order the filesystem returns them.
func Entries(fs fsys.FS, root, dir string) ([]Entry, error) {
	dirEntries, err := fs.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read directory %s: %w", dir, err)
	}
	entries := make([]Entry, 0, len(dirEntries))
	for _, d := range dirEntries {
		full := path.Join(dir, d.Name())
		entries = append(entries, Entry{
			Href: pathutil.Rel(root, full),
			Name: path.Base(full),
		})
	}
	return entries, nil
}

// Render writes the listing page for entries.
func Render(entries []Entry) ([]byte, error) {
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "listing", entries); err != nil {
		return nil, fmt.Errorf("render listing: %w", err)
	}
	return buf.Bytes(), nil
}

// Generate enumerates dir and renders it in one step.
func Generate(fs fsys.FS, root, dir string) ([]byte, error) {
	entries, err := Entries(fs, root, dir)
	if err != nil {
		return nil, err
	}
	return Render(entries)
}
