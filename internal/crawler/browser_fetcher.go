package crawler

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nao1215/harvester/internal/browser"
	"github.com/nao1215/harvester/internal/config"
	"github.com/nao1215/harvester/internal/model"
)

// BrowserOptions configures navigations done by a BrowserFetcher.
type BrowserOptions struct {
	WaitUntil         string
	NavigationTimeout time.Duration
	SelectorTimeout   time.Duration
	WaitAfterLoad     time.Duration
}

// BrowserFetcher fetches pages through the shared browser session.
//
// Detail pages each get their own tab. A listing URL with a "{page}"
// placeholder is opened once per page; otherwise the listing is treated as
// an infinite scroll kept open in one tab, and each further page is one
// scroll returning only the entries that appeared.
type BrowserFetcher struct {
	session *browser.Session
	site    config.SiteConfig
	opts    BrowserOptions
	logger  *slog.Logger

	mu       sync.Mutex
	listTab  *browser.Page
	returned int
}

// NewBrowserFetcher creates a BrowserFetcher. A nil logger means slog.Default().
func NewBrowserFetcher(session *browser.Session, site config.SiteConfig, opts BrowserOptions, logger *slog.Logger) *BrowserFetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &BrowserFetcher{
		session: session,
		site:    site,
		opts:    opts,
		logger:  logger,
	}
}

// FetchDetailPage renders detailURL and extracts it once the required
// selector is present.
func (f *BrowserFetcher) FetchDetailPage(ctx context.Context, detailURL string) (*model.DetailPage, error) {
	if err := f.session.EnsureInitialized(ctx); err != nil {
		return nil, err
	}

	tab, err := f.session.NewPage(ctx)
	if err != nil {
		return nil, err
	}
	defer tab.Close()

	result, err := f.session.NavigateAndExtract(ctx, tab, f.navigateOptions(detailURL, f.site.WaitSelector()))
	if err != nil {
		return nil, err
	}
	if result.Status >= 400 {
		return nil, &StatusError{URL: detailURL, Code: result.Status}
	}
	return ExtractDetail(strings.NewReader(result.Content), detailURL, f.site)
}

// FetchListPage renders listing page n.
func (f *BrowserFetcher) FetchListPage(ctx context.Context, page int) ([]model.ListEntry, error) {
	if err := f.session.EnsureInitialized(ctx); err != nil {
		return nil, err
	}
	if strings.Contains(f.site.ListURL, pagePlaceholder) {
		return f.fetchNumberedPage(ctx, page)
	}
	return f.fetchScrolledPage(ctx, page)
}

// Close releases the listing tab kept open for infinite scrolling.
func (f *BrowserFetcher) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listTab != nil {
		f.listTab.Close()
		f.listTab = nil
	}
	f.returned = 0
}

func (f *BrowserFetcher) fetchNumberedPage(ctx context.Context, page int) ([]model.ListEntry, error) {
	tab, err := f.session.NewPage(ctx)
	if err != nil {
		return nil, err
	}
	defer tab.Close()

	target := strings.ReplaceAll(f.site.ListURL, pagePlaceholder, strconv.Itoa(page))
	result, err := f.session.NavigateAndExtract(ctx, tab, f.navigateOptions(target, ""))
	if err != nil {
		return nil, err
	}
	if result.Status >= 400 {
		return nil, &StatusError{URL: target, Code: result.Status}
	}
	return ParseListEntries(strings.NewReader(result.Content), f.site)
}

func (f *BrowserFetcher) fetchScrolledPage(ctx context.Context, page int) ([]model.ListEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var html string
	if page <= 1 || f.listTab == nil {
		if f.listTab != nil {
			f.listTab.Close()
		}
		f.listTab = nil
		f.returned = 0

		tab, err := f.session.NewPage(ctx)
		if err != nil {
			return nil, err
		}
		result, err := f.session.NavigateAndExtract(ctx, tab, f.navigateOptions(f.site.ListURL, ""))
		if err != nil {
			tab.Close()
			return nil, err
		}
		f.listTab = tab
		html = result.Content
	} else {
		if err := f.listTab.ScrollToBottom(ctx, f.opts.WaitAfterLoad); err != nil {
			return nil, err
		}
		var err error
		html, err = f.listTab.HTML(ctx, f.opts.SelectorTimeout)
		if err != nil {
			return nil, err
		}
	}

	entries, err := ParseListEntries(strings.NewReader(html), f.site)
	if err != nil {
		return nil, err
	}
	if len(entries) < f.returned {
		return nil, fmt.Errorf("listing shrank from %d to %d entries after scrolling", f.returned, len(entries))
	}

	fresh := entries[f.returned:]
	f.returned = len(entries)
	f.logger.Debug("listing scrolled", "page", page, "new_entries", len(fresh), "total_entries", len(entries))
	return fresh, nil
}

func (f *BrowserFetcher) navigateOptions(target, requiredSelector string) browser.NavigateOptions {
	return browser.NavigateOptions{
		URL:              target,
		WaitUntil:        f.opts.WaitUntil,
		Timeout:          f.opts.NavigationTimeout,
		WaitAfterLoad:    f.opts.WaitAfterLoad,
		RequiredSelector: requiredSelector,
		SelectorTimeout:  f.opts.SelectorTimeout,
	}
}
