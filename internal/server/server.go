// Package server exposes the request handler and the refresh notifier over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/euforicio/devserver/internal/accesslog"
	"github.com/euforicio/devserver/internal/autorefresh"
	"github.com/euforicio/devserver/internal/config"
	"github.com/euforicio/devserver/internal/handler"
	"github.com/euforicio/devserver/internal/response"
	"github.com/euforicio/devserver/internal/watch"
)

const (
	healthPath      = "/healthz"
	shutdownTimeout = 5 * time.Second
)

var errServerClosed = errors.New("server closed")

// Options wires the optional collaborators of a Server.
type Options struct {
	// Notifier enables auto-refresh when set.
	Notifier *autorefresh.Notifier
	// Watcher runs alongside the server when set.
	Watcher *watch.Watcher
	Access  *accesslog.Logger
}

// Server serves files from a Handler and, when auto-refresh is enabled, the refresh endpoint.
type Server struct { //nolint:govet // field order favors logical grouping over padding optimizations
	mux        *http.ServeMux
	mu         sync.Mutex // guards httpServer
	httpServer *http.Server
	listener   net.Listener
	logger     *slog.Logger
	handler    *handler.Handler
	notifier   *autorefresh.Notifier
	watcher    *watch.Watcher
	access     *accesslog.Logger
	cfg        config.Config
}

// New constructs a Server. Nothing is bound until Listen or Start is called.
func New(cfg config.Config, logger *slog.Logger, h *handler.Handler, opts Options) (*Server, error) {
	if h == nil {
		return nil, errors.New("request handler must be provided")
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:      cfg,
		mux:      http.NewServeMux(),
		logger:   logger.With("component", "http"),
		handler:  h,
		notifier: opts.Notifier,
		watcher:  opts.Watcher,
		access:   opts.Access,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET "+healthPath, s.handleHealth)
	if s.notifier != nil {
		s.mux.HandleFunc("GET "+autorefresh.Endpoint, s.handlePoll)
		s.mux.HandleFunc("POST "+autorefresh.Endpoint, s.handleTrigger)
	}
}

// Handler returns the full HTTP handler including middleware.
func (s *Server) Handler() http.Handler {
	return chain(http.HandlerFunc(s.route),
		recoveryMiddleware(s.logger),
		accessLogMiddleware(s.access),
		csrfMiddleware,
		gzipMiddleware,
	)
}

// route sends reserved paths to the mux and everything else to the file handler.
// The mux never sees file paths, so it cannot rewrite "/a/../b" before containment runs.
func (s *Server) route(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == healthPath,
		r.URL.Path == autorefresh.Endpoint && s.notifier != nil:
		s.mux.ServeHTTP(w, r)
	default:
		s.handleFile(w, r)
	}
}

// Listen binds the configured address. Port 0 picks a free port.
func (s *Server) Listen() error {
	if s.listener != nil {
		return nil
	}
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	s.listener = ln
	return nil
}

// URL is the browsable address of the server. The port is only known after Listen.
func (s *Server) URL() string {
	host := s.cfg.Host
	switch host {
	case "", "0.0.0.0", "::":
		host = "localhost"
	}
	port := s.cfg.Port
	if s.listener != nil {
		if tcp, ok := s.listener.Addr().(*net.TCPAddr); ok {
			port = tcp.Port
		}
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(port))
}

// Start serves until ctx is canceled, Shutdown is called or a background task fails.
// Bind failures are returned before anything is served. The keep-alive loop
// and the watcher share the server's lifetime. On cancellation Start shuts the
// server down gracefully and returns ctx.Err().
func (s *Server) Start(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	httpServer := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return gctx },
	}
	s.mu.Lock()
	s.httpServer = httpServer
	s.mu.Unlock()

	serverURL := s.URL()
	if _, err := fmt.Fprintf(os.Stdout, "Serving %s at %s\n", s.cfg.RootDir, serverURL); err != nil {
		s.logger.Warn("failed to announce server address", slog.String("url", serverURL), slog.Any("err", err))
	}

	g.Go(func() error {
		err := httpServer.Serve(s.listener)
		if errors.Is(err, http.ErrServerClosed) {
			// Stops the background tasks when Shutdown was called directly.
			return errServerClosed
		}
		return fmt.Errorf("serve: %w", err)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := s.Shutdown(shutdownCtx); err != nil && !errors.Is(err, net.ErrClosed) {
			return fmt.Errorf("graceful shutdown: %w", err)
		}
		return nil
	})
	if s.notifier != nil {
		g.Go(func() error { return ignoreCanceled(s.notifier.KeepAliveLoop(gctx)) })
	}
	if s.watcher != nil {
		g.Go(func() error { return ignoreCanceled(s.watcher.Run(gctx)) })
	}

	if s.cfg.AutoOpen {
		go s.openBrowserWhenReady(gctx, serverURL)
	}

	if err := g.Wait(); err != nil && !errors.Is(err, errServerClosed) {
		return err
	}
	return ctx.Err()
}

// Shutdown gracefully stops a started server. A Start blocked on the same server
// returns nil once its background tasks have stopped. Safe to call from any goroutine.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	httpServer := s.httpServer
	s.mu.Unlock()
	if httpServer == nil {
		return nil
	}
	return httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-cache")
	s.writeResponse(w, r, s.notifier.SendPollResponse())
}

func (s *Server) handleTrigger(w http.ResponseWriter, _ *http.Request) {
	s.notifier.SendClientRefresh()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	// The handler decodes the path itself, so hand it the still-encoded form.
	resp, err := s.handler.GenerateResponse(ctx, r.URL.EscapedPath())
	if err != nil {
		if isCanceled(err) {
			return
		}
		s.logger.ErrorContext(ctx, "generate response failed", slog.String("path", r.URL.Path), slog.Any("err", err))
		resp = response.Error(err)
	}
	s.writeResponse(w, r, resp)
}

// writeResponse sends resp: headers, body, the auto-refresh script for HTML, then a flush.
func (s *Server) writeResponse(w http.ResponseWriter, r *http.Request, resp response.Response) {
	ctx := r.Context()
	if resp.Body != nil {
		defer func() {
			if err := resp.Body.Close(); err != nil {
				s.logger.WarnContext(ctx, "close response body failed", slog.String("path", r.URL.Path), slog.Any("err", err))
			}
		}()
	}

	header := w.Header()
	for key, values := range resp.Header {
		for _, v := range values {
			header.Add(key, v)
		}
	}
	if resp.ContentType != "" {
		header.Set("Content-Type", resp.ContentType+"; charset=utf-8")
	}
	header.Set("Date", time.Now().UTC().Format(http.TimeFormat))

	status := resp.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if r.Method == http.MethodHead {
		return
	}

	if resp.Body != nil {
		if _, err := io.Copy(w, contextReader{ctx: ctx, r: resp.Body}); err != nil {
			if !isCanceled(err) {
				s.logger.WarnContext(ctx, "write response body failed", slog.String("path", r.URL.Path), slog.Any("err", err))
			}
			return
		}
	}
	if s.notifier != nil {
		if err := s.notifier.AppendAutoRefreshJavaScript(ctx, resp, w); err != nil {
			if !isCanceled(err) {
				s.logger.WarnContext(ctx, "inject auto-refresh script failed", slog.String("path", r.URL.Path), slog.Any("err", err))
			}
			return
		}
	}
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

// contextReader stops a copy once ctx is done.
type contextReader struct {
	ctx context.Context //nolint:containedctx // scoped to a single copy
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

func isCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func ignoreCanceled(err error) error {
	if isCanceled(err) {
		return nil
	}
	return err
}

func (s *Server) openBrowserWhenReady(ctx context.Context, url string) {
	timer := time.NewTimer(300 * time.Millisecond)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return
	case <-timer.C:
		if err := openBrowser(ctx, url); err != nil {
			s.logger.WarnContext(ctx, "auto-open failed", slog.String("url", url), slog.Any("err", err))
		}
	}
}

func openBrowser(ctx context.Context, url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.CommandContext(ctx, "open", url)
	case "windows":
		cmd = exec.CommandContext(ctx, "rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.CommandContext(ctx, "xdg-open", url)
	}
	return cmd.Start()
}
