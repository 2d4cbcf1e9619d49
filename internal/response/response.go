// Package response describes what the transport should send back for a request.
package response

import (
	"bytes"
	"fmt"
	"io"
	"net/http"

	"github.com/euforicio/devserver/internal/fsys"
)

// Content types produced by the server itself.
const (
	ContentTypeHTML        = "text/html"
	ContentTypeEventStream = "text/event-stream"
)

// Response is an immutable response descriptor. Body is read once by the
// transport, which also closes it.
type Response struct {
	Header      http.Header
	Body        io.ReadCloser
	ContentType string
	StatusCode  int
}

// File opens name read-only and describes it with its modification time.
func File(fs fsys.FS, name, contentType string) (Response, error) {
	f, err := fs.Open(name)
	if err != nil {
		return Response{}, fmt.Errorf("open %s: %w", name, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return Response{}, fmt.Errorf("stat %s: %w", name, err)
	}

	header := make(http.Header)
	header.Set("Last-Modified", info.ModTime().UTC().Format(http.TimeFormat))

	return Response{
		StatusCode:  http.StatusOK,
		Header:      header,
		ContentType: contentType,
		Body:        f,
	}, nil
}

// HTML returns an HTML response with the given status.
func HTML(html string, status int) Response {
	return String(html, ContentTypeHTML, status)
}

// String returns a response whose body is s.
func String(s, contentType string, status int) Response {
	return Bytes([]byte(s), contentType, status)
}

// Bytes returns a response whose body is b.
func Bytes(b []byte, contentType string, status int) Response {
	return Response{
		StatusCode:  status,
		Header:      make(http.Header),
		ContentType: contentType,
		Body:        io.NopCloser(bytes.NewReader(b)),
	}
}

// NotFound is the response for missing and denied paths alike.
func NotFound() Response {
	return HTML("Not Found", http.StatusNotFound)
}

// Error describes an unexpected fault.
func Error(err error) Response {
	return HTML("ERROR: "+err.Error(), http.StatusInternalServerError)
}
