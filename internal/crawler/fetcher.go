package crawler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/net/html/charset"
	"golang.org/x/time/rate"

	"github.com/nao1215/harvester/internal/config"
	"github.com/nao1215/harvester/internal/model"
)

// pagePlaceholder in a listing URL is replaced with the page number.
const pagePlaceholder = "{page}"

// ListFetcher fetches and parses one listing page. Pages are numbered from 1.
type ListFetcher interface {
	FetchListPage(ctx context.Context, page int) ([]model.ListEntry, error)
}

// DetailFetcher fetches and extracts one detail page.
type DetailFetcher interface {
	FetchDetailPage(ctx context.Context, detailURL string) (*model.DetailPage, error)
}

// StatusError is returned when a page answers with a non-2xx status.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.Code, e.URL)
}

// HTTPFetcher fetches pages with plain HTTP requests.
// Cookies and site headers are expected to be injected by the client
// (see proxy.NewHTTPClient).
type HTTPFetcher struct {
	client      *http.Client
	site        config.SiteConfig
	limiter     *rate.Limiter
	maxBodySize int64
}

// HTTPOption configures an HTTPFetcher.
type HTTPOption func(*HTTPFetcher)

// WithRateLimit limits requests per second. Zero or less disables the limit.
func WithRateLimit(rps float64) HTTPOption {
	return func(f *HTTPFetcher) {
		if rps <= 0 {
			f.limiter = nil
			return
		}
		f.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// WithMaxBodySize limits how much of a response body is read.
func WithMaxBodySize(n int64) HTTPOption {
	return func(f *HTTPFetcher) {
		f.maxBodySize = n
	}
}

// NewHTTPFetcher creates an HTTPFetcher for site.
func NewHTTPFetcher(client *http.Client, site config.SiteConfig, opts ...HTTPOption) *HTTPFetcher {
	f := &HTTPFetcher{
		client:      client,
		site:        site,
		maxBodySize: config.DefaultMaxBodySize,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FetchListPage requests listing page n the way the site's own XHR does.
func (f *HTTPFetcher) FetchListPage(ctx context.Context, page int) ([]model.ListEntry, error) {
	req, err := f.listRequest(ctx, page)
	if err != nil {
		return nil, err
	}

	body, err := f.do(req)
	if err != nil {
		return nil, err
	}
	return ParseListEntries(strings.NewReader(body), f.site)
}

// FetchDetailPage requests a detail page as a top level navigation.
func (f *HTTPFetcher) FetchDetailPage(ctx context.Context, detailURL string) (*model.DetailPage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, detailURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	req.Header.Set("Cache-Control", "max-age=0")
	req.Header.Set("Referer", detailURL)
	req.Header.Set("Sec-Fetch-Dest", "document")
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	req.Header.Set("Sec-Fetch-Site", "same-origin")
	req.Header.Set("Upgrade-Insecure-Requests", "1")

	body, err := f.do(req)
	if err != nil {
		return nil, err
	}
	return ExtractDetail(strings.NewReader(body), detailURL, f.site)
}

func (f *HTTPFetcher) listRequest(ctx context.Context, page int) (*http.Request, error) {
	site := f.site
	pageNum := strconv.Itoa(page)
	method := strings.ToUpper(site.ListMethod)
	if method == "" {
		method = http.MethodGet
	}

	target := site.ListURL
	var body io.Reader
	switch {
	case strings.Contains(target, pagePlaceholder):
		target = strings.ReplaceAll(target, pagePlaceholder, pageNum)
	case method == http.MethodPost:
		form := url.Values{}
		form.Set(f.pageParam(), pageNum)
		body = strings.NewReader(form.Encode())
	default:
		u, err := url.Parse(target)
		if err != nil {
			return nil, fmt.Errorf("invalid listing url %q: %w", target, err)
		}
		q := u.Query()
		q.Set(f.pageParam(), pageNum)
		u.RawQuery = q.Encode()
		target = u.String()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "*/*")
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
	}
	if origin := originOf(site.URL); origin != "" {
		req.Header.Set("Origin", origin)
	}
	req.Header.Set("Referer", site.ListURL)
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("Sec-Fetch-Dest", "empty")
	req.Header.Set("Sec-Fetch-Mode", "cors")
	req.Header.Set("Sec-Fetch-Site", "same-origin")
	return req, nil
}

func (f *HTTPFetcher) pageParam() string {
	if f.site.ListPageParam != "" {
		return f.site.ListPageParam
	}
	return "page"
}

// do sends req and returns the body decoded to UTF-8.
func (f *HTTPFetcher) do(req *http.Request) (string, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(req.Context()); err != nil {
			return "", err
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request to %s failed: %w", req.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024)) //nolint:errcheck // drain for connection reuse
		return "", &StatusError{URL: req.URL.String(), Code: resp.StatusCode}
	}

	var reader io.Reader = resp.Body
	if f.maxBodySize > 0 {
		reader = io.LimitReader(resp.Body, f.maxBodySize)
	}

	// Chinese sites still serve GBK pages; decode by header and meta tags.
	decoded, err := charset.NewReader(reader, resp.Header.Get("Content-Type"))
	if err != nil {
		return "", fmt.Errorf("failed to detect charset of %s: %w", req.URL, err)
	}
	data, err := io.ReadAll(decoded)
	if err != nil {
		return "", fmt.Errorf("failed to read body of %s: %w", req.URL, err)
	}
	return string(data), nil
}

// originOf returns scheme://host of rawURL.
func originOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}
