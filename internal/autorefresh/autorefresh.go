// Package autorefresh tells connected browsers to reload, using the Server-Sent Events format.
//
// Browsers poll Endpoint with an EventSource. Each poll drains every event queued since the
// previous poll, so an event reaches exactly one poll response.
package autorefresh

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/euforicio/devserver/internal/response"
	"github.com/euforicio/devserver/static"
)

// Endpoint is the reserved path browsers poll for events.
const Endpoint = "/dev-server-auto-refresh"

// DefaultKeepAliveInterval is how often a keep-alive comment is queued.
const DefaultKeepAliveInterval = time.Minute

const (
	refreshEvent   = "data: refresh\r\n\r\n"
	keepAliveEvent = ":stayin' alive\r\n\r\n" // ':' starts an SSE comment
)

// Options configures a Notifier.
type Options struct {
	Logger            *slog.Logger
	KeepAliveInterval time.Duration
}

// Notifier queues refresh events and injects the client script into HTML pages.
type Notifier struct {
	logger   *slog.Logger
	payload  []byte
	interval time.Duration

	mu     sync.Mutex
	events strings.Builder
}

// New constructs a Notifier.
func New(opts Options) *Notifier {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	interval := opts.KeepAliveInterval
	if interval <= 0 {
		interval = DefaultKeepAliveInterval
	}
	return &Notifier{
		logger:   logger.With("component", "autorefresh"),
		payload:  []byte(fmt.Sprintf("\n<script>\n%s</script>\n", static.AutoRefreshScript())),
		interval: interval,
	}
}

// SendClientRefresh queues a refresh event. Safe for concurrent use.
func (n *Notifier) SendClientRefresh() {
	n.append(refreshEvent)
	n.logger.Debug("refresh queued")
}

func (n *Notifier) sendKeepAlive() {
	n.append(keepAliveEvent)
}

func (n *Notifier) append(event string) {
	n.mu.Lock()
	n.events.WriteString(event)
	n.mu.Unlock()
}

// drain returns and clears everything queued so far.
func (n *Notifier) drain() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := n.events.String()
	n.events.Reset()
	return out
}

// Pending reports how many bytes are waiting for the next poll.
func (n *Notifier) Pending() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.events.Len()
}

// SendPollResponse drains the queue into an event-stream response.
// An empty queue yields an empty body.
func (n *Notifier) SendPollResponse() response.Response {
	return response.String(n.drain(), response.ContentTypeEventStream, http.StatusOK)
}

// KeepAliveLoop queues a keep-alive comment every interval until ctx is done.
// It always returns ctx.Err().
func (n *Notifier) KeepAliveLoop(ctx context.Context) error {
	ticker := time.NewTicker(n.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			n.sendKeepAlive()
		}
	}
}

// Payload returns a copy of the bytes appended to HTML responses.
func (n *Notifier) Payload() []byte {
	return append([]byte(nil), n.payload...)
}

// AppendAutoRefreshJavaScript writes the client script to w when resp is exactly text/html.
func (n *Notifier) AppendAutoRefreshJavaScript(ctx context.Context, resp response.Response, w io.Writer) error {
	if resp.ContentType != response.ContentTypeHTML {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := w.Write(n.payload); err != nil {
		return fmt.Errorf("write auto-refresh script: %w", err)
	}
	return nil
}
