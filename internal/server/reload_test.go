package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/euforicio/devserver/internal/autorefresh"
	"github.com/euforicio/devserver/internal/renderer"
	"github.com/euforicio/devserver/internal/watch"
)

func TestFileChangeReachesPoll(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, testOptions{autoRefresh: true})
	root := srv.handler.Root()

	md, err := renderer.NewService(quietLogger())
	if err != nil {
		t.Fatalf("renderer init failed: %v", err)
	}
	doc := root + "/notes.md"
	writeTestFile(t, filepath.FromSlash(doc), "# Notes")
	if _, err := md.Render(context.Background(), doc, time.Unix(1, 0), []byte("# Notes")); err != nil {
		t.Fatalf("render: %v", err)
	}

	w, err := watch.New(filepath.FromSlash(root), quietLogger(), watch.Options{
		Debounce: 20 * time.Millisecond,
		OnChange: RefreshOnChange(root, srv.notifier, md, quietLogger()),
	})
	if err != nil {
		t.Fatalf("watcher init failed: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-done; !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled from Run, got %v", err)
		}
	})

	if body := serve(srv, http.MethodGet, autorefresh.Endpoint).Body.String(); body != "" {
		t.Fatalf("expected empty queue before any change, got %q", body)
	}

	writeTestFile(t, filepath.FromSlash(doc), "# Notes, revised")

	deadline := time.Now().Add(3 * time.Second)
	for {
		body := serve(srv, http.MethodGet, autorefresh.Endpoint).Body.String()
		if strings.Contains(body, "data: refresh\r\n\r\n") {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("file change never produced a refresh event")
		}
		time.Sleep(20 * time.Millisecond)
	}
	if md.Cached(doc) {
		t.Fatalf("expected changed markdown file to be evicted from the preview cache")
	}
}

func TestRefreshOnChangeWithoutMarkdown(t *testing.T) {
	t.Parallel()
	notifier := autorefresh.New(autorefresh.Options{Logger: quietLogger()})

	RefreshOnChange("/site", notifier, nil, quietLogger())([]string{"index.html"})

	resp := notifier.SendPollResponse()
	defer resp.Body.Close()
	buf := new(strings.Builder)
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		t.Fatalf("read poll body: %v", err)
	}
	if buf.String() != "data: refresh\r\n\r\n" {
		t.Fatalf("expected one refresh event, got %q", buf.String())
	}
}

func TestWatchIgnoresAccessLogInsideRoot(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, testOptions{autoRefresh: true})
	root := filepath.FromSlash(srv.handler.Root())
	accessLog := filepath.Join(root, "access.json")

	w, err := watch.New(root, quietLogger(), watch.Options{
		Debounce:     20 * time.Millisecond,
		ExcludeFiles: []string{accessLog},
		OnChange:     RefreshOnChange(srv.handler.Root(), srv.notifier, nil, quietLogger()),
	})
	if err != nil {
		t.Fatalf("watcher init failed: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	for i := range 3 {
		if err := os.WriteFile(accessLog, []byte(strings.Repeat("{}\n", i+1)), 0o644); err != nil {
			t.Fatal(err)
		}
		time.Sleep(30 * time.Millisecond)
	}
	time.Sleep(100 * time.Millisecond)

	if n := srv.notifier.Pending(); n != 0 {
		t.Fatalf("access log writes must not queue refreshes, %d bytes pending", n)
	}
}
