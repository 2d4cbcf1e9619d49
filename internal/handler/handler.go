// Package handler turns request paths into response descriptors.
package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"

	"github.com/euforicio/devserver/internal/fsys"
	"github.com/euforicio/devserver/internal/listing"
	"github.com/euforicio/devserver/internal/mimetype"
	"github.com/euforicio/devserver/internal/pathutil"
	"github.com/euforicio/devserver/internal/renderer"
	"github.com/euforicio/devserver/internal/response"
)

// IndexFile is served in place of a directory listing when present.
const IndexFile = "index.html"

// Handler resolves request paths against a fixed root.
type Handler struct {
	fs       fsys.FS
	mimes    *mimetype.Resolver
	markdown *renderer.Service
	logger   *slog.Logger
	root     string
}

// Options configures optional behavior.
type Options struct {
	// Mimes overrides the default content type table.
	Mimes *mimetype.Resolver
	// Markdown, when set, renders markdown files to HTML instead of serving them raw.
	Markdown *renderer.Service
	Logger   *slog.Logger
}

// New returns a Handler serving root through fs. root is normalized to an absolute slash path
// unless it already is one, which lets in-memory filesystems use roots like "/site".
func New(root string, fs fsys.FS, opts Options) (*Handler, error) {
	if root == "" {
		return nil, errors.New("root directory must be provided")
	}
	if fs == nil {
		return nil, errors.New("filesystem must be provided")
	}

	normalized := pathutil.NormalizeSeparators(root)
	if !path.IsAbs(normalized) {
		abs, err := pathutil.NormalizeRoot(root)
		if err != nil {
			return nil, err
		}
		normalized = abs
	}
	normalized = path.Clean(normalized)
	if len(normalized) == 2 && normalized[1] == ':' {
		normalized += "/"
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{
		fs:       fs,
		mimes:    opts.Mimes,
		markdown: opts.Markdown,
		logger:   logger.With("component", "handler"),
		root:     normalized,
	}, nil
}

// Root returns the normalized root directory.
func (h *Handler) Root() string {
	return h.root
}

// GenerateResponse resolves requestPath. Missing and out-of-root paths produce 404;
// any other filesystem failure is returned as an error.
func (h *Handler) GenerateResponse(ctx context.Context, requestPath string) (response.Response, error) {
	target, err := pathutil.Resolve(h.root, requestPath)
	if err != nil {
		h.logger.DebugContext(ctx, "request path denied", slog.String("path", requestPath))
		return response.NotFound(), nil
	}

	info, err := h.fs.Stat(target)
	if err != nil {
		if fsys.IsNotExist(err) {
			return response.NotFound(), nil
		}
		return response.Response{}, fmt.Errorf("stat %s: %w", target, err)
	}

	if info.Mode().IsRegular() {
		return h.fileResponse(ctx, target)
	}
	if !info.IsDir() {
		return response.NotFound(), nil
	}

	index := path.Join(target, IndexFile)
	indexInfo, err := h.fs.Stat(index)
	switch {
	case err == nil && indexInfo.Mode().IsRegular():
		return h.fileResponse(ctx, index)
	case err != nil && !fsys.IsNotExist(err):
		return response.Response{}, fmt.Errorf("stat %s: %w", index, err)
	}

	page, err := listing.Generate(h.fs, h.root, target)
	if err != nil {
		return response.Response{}, err
	}
	return response.Bytes(page, response.ContentTypeHTML, http.StatusOK), nil
}

func (h *Handler) fileResponse(ctx context.Context, name string) (response.Response, error) {
	if h.markdown != nil && renderer.IsMarkdown(name) {
		return h.markdownResponse(ctx, name)
	}
	return response.File(h.fs, name, h.mimes.Lookup(path.Ext(name)))
}

func (h *Handler) markdownResponse(ctx context.Context, name string) (response.Response, error) {
	raw, err := response.File(h.fs, name, response.ContentTypeHTML)
	if err != nil {
		return response.Response{}, err
	}
	defer raw.Body.Close()

	content, err := io.ReadAll(raw.Body)
	if err != nil {
		return response.Response{}, fmt.Errorf("read %s: %w", name, err)
	}
	modified, err := http.ParseTime(raw.Header.Get("Last-Modified"))
	if err != nil {
		return response.Response{}, fmt.Errorf("parse modification time: %w", err)
	}

	doc, err := h.markdown.Render(ctx, name, modified, content)
	if err != nil {
		return response.Response{}, err
	}
	page, err := h.markdown.Page(doc)
	if err != nil {
		return response.Response{}, err
	}

	resp := response.Bytes(page, response.ContentTypeHTML, http.StatusOK)
	resp.Header.Set("Last-Modified", raw.Header.Get("Last-Modified"))
	return resp, nil
}
