// Package renderer turns markdown files into standalone HTML preview pages.
package renderer

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"html/template"
	"log/slog"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	goldmarkmeta "github.com/yuin/goldmark-meta"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	htmlrenderer "github.com/yuin/goldmark/renderer/html"
	"go.abhg.dev/goldmark/anchor"
)

const highlightStyle = "github"

// Document is a rendered markdown file.
type Document struct {
	Modified time.Time
	Title    string
	Body     string
}

type cacheEntry struct {
	modTime time.Time
	doc     Document
	sum     [sha256.Size]byte
}

// Service renders markdown with GitHub-flavored extensions and caches results
// by path, modification time and content digest.
type Service struct {
	md     goldmark.Markdown
	logger *slog.Logger
	page   *template.Template
	css    template.CSS
	cache  sync.Map // map[string]cacheEntry
}

// IsMarkdown reports whether name has a markdown extension.
func IsMarkdown(name string) bool {
	switch strings.ToLower(path.Ext(name)) {
	case ".md", ".markdown":
		return true
	default:
		return false
	}
}

// NewService constructs a renderer. If logger is nil, the default slog logger is used.
func NewService(logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}

	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			goldmarkmeta.Meta,
			highlighting.NewHighlighting(
				highlighting.WithStyle(highlightStyle),
				highlighting.WithFormatOptions(
					html.WithLineNumbers(false),
					html.WithClasses(true),
				),
			),
			&anchor.Extender{Position: anchor.After},
		),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
		goldmark.WithRendererOptions(
			// Raw HTML is allowed; every document comes from the developer's own tree.
			htmlrenderer.WithUnsafe(),
		),
	)

	css, err := highlightCSS()
	if err != nil {
		return nil, err
	}

	page, err := template.New("page").Parse(pageTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse page template: %w", err)
	}

	return &Service{
		md:     md,
		logger: logger.With("component", "renderer"),
		page:   page,
		css:    template.CSS(css),
	}, nil
}

func highlightCSS() (string, error) {
	style := styles.Get(highlightStyle)
	var buf bytes.Buffer
	if err := html.New(html.WithClasses(true)).WriteCSS(&buf, style); err != nil {
		return "", fmt.Errorf("generate highlight css: %w", err)
	}
	return buf.String(), nil
}

// Render converts markdown content to an HTML fragment.
// A cached result is returned only when name, modTime and content all match a previous
// call; modification times carried in HTTP headers are truncated to the second.
func (s *Service) Render(ctx context.Context, name string, modTime time.Time, content []byte) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}

	sum := sha256.Sum256(content)
	if entry, ok := s.cache.Load(name); ok {
		if cached, ok := entry.(cacheEntry); ok && cached.sum == sum && modTime.Equal(cached.modTime) {
			return cached.doc, nil
		}
	}

	parserCtx := parser.NewContext()
	var buf bytes.Buffer
	if err := s.md.Convert(content, &buf, parser.WithContext(parserCtx)); err != nil {
		return Document{}, fmt.Errorf("render markdown: %w", err)
	}

	doc := Document{
		Body:     buf.String(),
		Title:    titleFor(name, goldmarkmeta.Get(parserCtx)),
		Modified: modTime,
	}
	s.cache.Store(name, cacheEntry{modTime: modTime, doc: doc, sum: sum})
	s.logger.Debug("rendered markdown", slog.String("path", name))
	return doc, nil
}

// Page renders doc as a complete HTML page.
func (s *Service) Page(doc Document) ([]byte, error) {
	var buf bytes.Buffer
	data := struct {
		Title string
		CSS   template.CSS
		Body  template.HTML
	}{
		Title: doc.Title,
		CSS:   s.css,
		Body:  template.HTML(doc.Body), //nolint:gosec // markdown output from the served tree
	}
	if err := s.page.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("render page: %w", err)
	}
	return buf.Bytes(), nil
}

// Invalidate drops the cached render for name.
func (s *Service) Invalidate(name string) {
	s.cache.Delete(name)
}

// Cached reports whether a render of name is held in the cache.
func (s *Service) Cached(name string) bool {
	_, ok := s.cache.Load(name)
	return ok
}

func titleFor(name string, meta map[string]any) string {
	if v, ok := meta["title"]; ok {
		if str, ok := v.(string); ok && strings.TrimSpace(str) != "" {
			return str
		}
	}
	base := path.Base(name)
	return strings.TrimSuffix(base, path.Ext(base))
}

const pageTemplate = `<!doctype html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: sans-serif; max-width: 860px; margin: 2em auto; padding: 0 1em; line-height: 1.5; }
pre { padding: 1em; overflow-x: auto; }
{{.CSS}}
</style>
</head>
<body>
{{.Body}}
</body>
</html>
`
