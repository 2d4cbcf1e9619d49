// Package accesslog records served requests on the console and, optionally, as JSON lines.
package accesslog

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
)

// Entry describes one served request.
type Entry struct {
	Time       time.Time
	Method     string
	Path       string
	RemoteAddr string
	Proto      string
	Status     int
	Bytes      int64
	Duration   time.Duration
}

// Options configures a Logger. Nil writers disable the corresponding output.
type Options struct {
	Console io.Writer
	JSON    io.Writer
	// NoColor forces plain console output; otherwise color follows the terminal.
	NoColor bool
}

// Logger writes request records. Safe for concurrent use.
type Logger struct {
	console io.Writer
	json    *zerolog.Logger
	ok      *color.Color
	redir   *color.Color
	client  *color.Color
	server  *color.Color
	mu      sync.Mutex
}

// New returns a Logger for opts.
func New(opts Options) *Logger {
	l := &Logger{
		console: opts.Console,
		ok:      color.New(color.FgGreen),
		redir:   color.New(color.FgCyan),
		client:  color.New(color.FgYellow),
		server:  color.New(color.FgRed, color.Bold),
	}
	if opts.NoColor {
		for _, c := range []*color.Color{l.ok, l.redir, l.client, l.server} {
			c.DisableColor()
		}
	}
	if opts.JSON != nil {
		zl := zerolog.New(opts.JSON).With().Timestamp().Logger()
		l.json = &zl
	}
	return l
}

// OpenFile opens path for appending access records.
func OpenFile(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644) //nolint:gosec // path comes from the operator
	if err != nil {
		return nil, fmt.Errorf("open access log %s: %w", path, err)
	}
	return f, nil
}

// Log records e.
func (l *Logger) Log(e Entry) {
	if l == nil {
		return
	}
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	if l.console != nil {
		l.mu.Lock()
		_, _ = fmt.Fprintf(l.console, "%s - HTTP %s %s %s\n",
			e.Time.Format("15:04:05"), e.Method, e.Path, l.statusColor(e.Status).Sprint(e.Status))
		l.mu.Unlock()
	}

	if l.json != nil {
		l.json.Info().
			Str("method", e.Method).
			Str("path", e.Path).
			Int("status", e.Status).
			Int64("bytes", e.Bytes).
			Dur("duration", e.Duration).
			Str("remote_addr", e.RemoteAddr).
			Str("proto", e.Proto).
			Msg("request")
	}
}

func (l *Logger) statusColor(status int) *color.Color {
	switch {
	case status >= 500:
		return l.server
	case status >= 400:
		return l.client
	case status >= 300:
		return l.redir
	default:
		return l.ok
	}
}
