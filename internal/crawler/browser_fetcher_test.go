package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"testing"
	"time"

	"github.com/nao1215/harvester/internal/browser"
)

// newChromeFetcher returns a BrowserFetcher over a real headless Chrome, or
// skips the test when none is installed.
func newChromeFetcher(t *testing.T, serverURL string) *BrowserFetcher {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping browser test in short mode")
	}
	var execPath string
	for _, name := range []string{"headless-shell", "chromium", "chromium-browser", "google-chrome", "google-chrome-stable", "chrome"} {
		if path, err := exec.LookPath(name); err == nil {
			execPath = path
			break
		}
	}
	if execPath == "" {
		t.Skip("no Chrome or Chromium found")
	}

	session := browser.NewSession(browser.Options{Headless: true, ExecPath: execPath})
	t.Cleanup(session.Shutdown)

	site := testSite(serverURL)
	site.ListURL = serverURL + "/list/{page}"
	f := NewBrowserFetcher(session, site, BrowserOptions{
		WaitUntil:         browser.WaitLoad,
		NavigationTimeout: 10 * time.Second,
		SelectorTimeout:   time.Second,
	}, nil)
	t.Cleanup(f.Close)
	return f
}

func TestBrowserFetcher(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/list/1", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, listingPage(7, 8))
	})
	mux.HandleFunc("/i/1.html", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<html><body><h1>Trip to Lhasa</h1>
<div class="_j_content_box"><p>Day 1</p><img data-src="/img/a.jpg"></div>
</body></html>`)
	})
	mux.HandleFunc("/i/2.html", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<html><body><h1>Removed</h1></body></html>`)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	f := newChromeFetcher(t, server.URL)
	ctx := context.Background()

	t.Run("list page", func(t *testing.T) {
		entries, err := f.FetchListPage(ctx, 1)
		if err != nil {
			t.Fatal(err)
		}
		if len(entries) != 2 || entries[0].URL != server.URL+"/i/7.html" || entries[1].Title != "Trip 8" {
			t.Errorf("entries = %+v", entries)
		}
	})

	t.Run("detail page", func(t *testing.T) {
		page, err := f.FetchDetailPage(ctx, server.URL+"/i/1.html")
		if err != nil {
			t.Fatal(err)
		}
		if page.Title != "Trip to Lhasa" || len(page.Assets) != 1 || page.Assets[0] != server.URL+"/img/a.jpg" {
			t.Errorf("page = %+v", page)
		}
	})

	t.Run("detail page without content", func(t *testing.T) {
		if _, err := f.FetchDetailPage(ctx, server.URL+"/i/2.html"); !errors.Is(err, browser.ErrSelectorNotFound) {
			t.Errorf("expected ErrSelectorNotFound, got %v", err)
		}
	})

	t.Run("missing detail page", func(t *testing.T) {
		_, err := f.FetchDetailPage(ctx, server.URL+"/i/3.html")
		var se *StatusError
		if !errors.As(err, &se) || se.Code != http.StatusNotFound {
			t.Errorf("expected 404 StatusError, got %v", err)
		}
	})
}
