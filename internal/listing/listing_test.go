package listing_test

import (
	"bytes"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/PuerkitoBio/goquery"

	"github.com/euforicio/devserver/internal/fsys"
	"github.com/euforicio/devserver/internal/listing"
)

func TestGenerateListsImmediateEntries(t *testing.T) {
	t.Parallel()
	mem := fsys.FromFS(fstest.MapFS{
		"myserver/puppies/fido.jpg":       {},
		"myserver/puppies/boxer.jpg":      {},
		"myserver/puppies/pogo.jpg":       {},
		"myserver/puppies/litter/one.jpg": {},
		"myserver/index.html":             {Data: []byte("home")},
	})

	html, err := listing.Generate(mem, "/myserver", "/myserver/puppies")
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if !bytes.Contains(html, []byte("Directory Listing")) {
		t.Fatalf("expected heading in listing, got %s", html)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		t.Fatalf("parse listing: %v", err)
	}
	got := map[string]string{}
	doc.Find("ul li a").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		got[href] = strings.TrimSpace(a.Text())
	})

	want := map[string]string{
		"/puppies/fido.jpg":  "fido.jpg",
		"/puppies/boxer.jpg": "boxer.jpg",
		"/puppies/pogo.jpg":  "pogo.jpg",
		"/puppies/litter":    "litter",
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d entries, got %v", len(want), got)
	}
	for href, name := range want {
		if got[href] != name {
			t.Errorf("expected entry %q -> %q, got %q", href, name, got[href])
		}
	}
}

func TestRenderUsesSingleQuotedAnchors(t *testing.T) {
	t.Parallel()
	html, err := listing.Render([]listing.Entry{{Href: "/notes.txt", Name: "notes.txt"}})
	if err != nil {
		t.Fatalf("Render returned error: %v", err)
	}
	if !strings.Contains(string(html), "<li><a href='/notes.txt'>notes.txt</a></li>") {
		t.Fatalf("unexpected anchor markup: %s", html)
	}
}

func TestRenderEscapesNames(t *testing.T) {
	t.Parallel()
	html, err := listing.Render([]listing.Entry{{Href: "/<b>.txt", Name: "<b>.txt"}})
	if err != nil {
		t.Fatalf("Render returned error: %v", err)
	}
	if strings.Contains(string(html), "<b>.txt") {
		t.Fatalf("expected entry name to be escaped: %s", html)
	}
}

func TestEntriesMissingDirectory(t *testing.T) {
	t.Parallel()
	if _, err := listing.Entries(fsys.FromFS(fstest.MapFS{}), "/", "/missing"); err == nil {
		t.Fatalf("expected error for missing directory")
	}
}
