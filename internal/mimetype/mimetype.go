// Package mimetype maps file extensions to content types.
package mimetype

import (
	"fmt"
	"mime"
	"strings"
)

// Default is returned for extensions nothing else recognizes.
const Default = "application/octet-stream"

// builtin covers the types a front-end workflow meets most often. Values carry no
// parameters; the transport adds the charset.
var builtin = map[string]string{
	".avif":        "image/avif",
	".bmp":         "image/bmp",
	".css":         "text/css",
	".csv":         "text/csv",
	".gif":         "image/gif",
	".gz":          "application/gzip",
	".htm":         "text/html",
	".html":        "text/html",
	".ico":         "image/x-icon",
	".jpeg":        "image/jpeg",
	".jpg":         "image/jpeg",
	".js":          "text/javascript",
	".json":        "application/json",
	".jsonld":      "application/ld+json",
	".map":         "application/json",
	".markdown":    "text/markdown",
	".md":          "text/markdown",
	".mjs":         "text/javascript",
	".mp3":         "audio/mpeg",
	".mp4":         "video/mp4",
	".ogg":         "audio/ogg",
	".otf":         "font/otf",
	".pdf":         "application/pdf",
	".png":         "image/png",
	".svg":         "image/svg+xml",
	".ttf":         "font/ttf",
	".txt":         "text/plain",
	".wasm":        "application/wasm",
	".wav":         "audio/wav",
	".webm":        "video/webm",
	".webmanifest": "application/manifest+json",
	".webp":        "image/webp",
	".woff":        "font/woff",
	".woff2":       "font/woff2",
	".xml":         "application/xml",
	".zip":         "application/zip",
}

// Resolver looks up content types, consulting user overrides first.
type Resolver struct {
	custom map[string]string
}

// NewResolver validates overrides and returns a Resolver.
// Override keys must start with '.'; values must be non-empty.
func NewResolver(overrides map[string]string) (*Resolver, error) {
	custom := make(map[string]string, len(overrides))
	for ext, typ := range overrides {
		if !strings.HasPrefix(ext, ".") {
			return nil, fmt.Errorf("invalid extension %q: must start with '.'", ext)
		}
		typ = strings.TrimSpace(typ)
		if typ == "" {
			return nil, fmt.Errorf("empty content type for extension %q", ext)
		}
		custom[strings.ToLower(ext)] = typ
	}
	return &Resolver{custom: custom}, nil
}

// Lookup returns the content type for ext (".html", ".JPG", ...).
func (r *Resolver) Lookup(ext string) string {
	if ext == "" {
		return Default
	}
	ext = strings.ToLower(ext)

	if r != nil {
		if typ, ok := r.custom[ext]; ok {
			return typ
		}
	}
	if typ, ok := builtin[ext]; ok {
		return typ
	}
	if typ := mime.TypeByExtension(ext); typ != "" {
		if media, _, err := mime.ParseMediaType(typ); err == nil {
			return media
		}
		return typ
	}
	return Default
}
