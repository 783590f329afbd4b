package browser

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// Lifecycle states a navigation can wait for.
const (
	WaitLoad        = "load"
	WaitNetworkIdle = "networkidle"
)

// Fallback timeouts for zero NavigateOptions fields.
const (
	defaultNavigationTimeout = 60 * time.Second
	defaultSelectorTimeout   = 30 * time.Second
)

// NavigateOptions controls one navigation.
type NavigateOptions struct {
	// URL is the page to open.
	URL string

	// WaitUntil is WaitLoad or WaitNetworkIdle. Empty means WaitLoad.
	WaitUntil string

	// Timeout bounds reaching WaitUntil.
	Timeout time.Duration

	// WaitAfterLoad is an extra settle time after WaitUntil was reached.
	WaitAfterLoad time.Duration

	// RequiredSelector must match an element before the HTML is taken.
	RequiredSelector string

	// SelectorTimeout bounds the wait for RequiredSelector.
	SelectorTimeout time.Duration
}

// PageResult is what a navigation produced.
type PageResult struct {
	// URL is the requested URL.
	URL string

	// Status is the HTTP status of the main document.
	Status int

	// MimeType is the main document's MIME type.
	MimeType string

	// Headers are the main document's response headers.
	Headers map[string]string

	// Content is the rendered DOM, or the raw response body for JSON and
	// plain text documents.
	Content string
}

// NavigateAndExtract opens opts.URL in p and returns the page content.
//
// The navigation fails with ErrNavigationTimeout when WaitUntil is not
// reached in time and with ErrSelectorNotFound when RequiredSelector does
// not show up. The browser is not retried here.
func (s *Session) NavigateAndExtract(ctx context.Context, p *Page, opts NavigateOptions) (*PageResult, error) {
	if s.current() == nil {
		return nil, ErrNotInitialized
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultNavigationTimeout
	}
	if opts.SelectorTimeout <= 0 {
		opts.SelectorTimeout = defaultSelectorTimeout
	}

	navCtx, done := p.scope(ctx, opts.Timeout)
	defer done()

	p.resetNavigationState()
	resp, err := chromedp.RunResponse(navCtx, chromedp.Navigate(opts.URL))
	if err != nil {
		return nil, timeoutError(ctx, navCtx, err, fmt.Errorf("%w: %s after %s", ErrNavigationTimeout, opts.URL, opts.Timeout))
	}
	if opts.WaitUntil == WaitNetworkIdle {
		if err := p.waitNetworkIdle(navCtx); err != nil {
			return nil, timeoutError(ctx, navCtx, err, fmt.Errorf("%w: %s did not reach network idle within %s", ErrNavigationTimeout, opts.URL, opts.Timeout))
		}
	}

	if opts.WaitAfterLoad > 0 {
		select {
		case <-time.After(opts.WaitAfterLoad):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	result := &PageResult{URL: opts.URL}
	if resp != nil {
		result.Status = int(resp.Status)
		result.MimeType = resp.MimeType
		result.Headers = headerMap(resp.Headers)
	}

	if isRawDocument(result.MimeType) {
		bodyCtx, bodyDone := p.scope(ctx, opts.SelectorTimeout)
		defer bodyDone()

		body, err := p.documentBody(bodyCtx)
		if err != nil {
			return nil, err
		}
		result.Content = string(body)
		return result, nil
	}

	selCtx, selDone := p.scope(ctx, opts.SelectorTimeout)
	defer selDone()

	// Error pages rarely carry the selector; the caller checks Status.
	if opts.RequiredSelector != "" && result.Status < 400 {
		if err := chromedp.Run(selCtx, chromedp.WaitReady(opts.RequiredSelector, chromedp.ByQuery)); err != nil {
			return nil, timeoutError(ctx, selCtx, err, fmt.Errorf("%w: %q on %s", ErrSelectorNotFound, opts.RequiredSelector, opts.URL))
		}
	}

	if err := chromedp.Run(selCtx, chromedp.OuterHTML("html", &result.Content, chromedp.ByQuery)); err != nil {
		return nil, fmt.Errorf("failed to read page html: %w", err)
	}
	return result, nil
}

// HTML returns the current DOM of p.
func (p *Page) HTML(ctx context.Context, timeout time.Duration) (string, error) {
	runCtx, done := p.scope(ctx, timeout)
	defer done()

	var html string
	if err := chromedp.Run(runCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("failed to read page html: %w", err)
	}
	return html, nil
}

// ScrollToBottom scrolls p to the end of the document and waits settle for
// lazily loaded content.
func (p *Page) ScrollToBottom(ctx context.Context, settle time.Duration) error {
	runCtx, done := p.scope(ctx, defaultSelectorTimeout)
	defer done()

	if err := chromedp.Run(runCtx, chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil)); err != nil {
		return fmt.Errorf("failed to scroll page: %w", err)
	}

	select {
	case <-time.After(settle):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// scope derives a context from the tab that expires after timeout or when
// ctx is done, whichever comes first.
func (p *Page) scope(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	runCtx, cancel := context.WithTimeout(p.ctx, timeout)
	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}

// timeoutError maps a failure of runCtx to the caller's cancellation, to
// onDeadline when runCtx expired, or to err otherwise.
func timeoutError(ctx, runCtx context.Context, err, onDeadline error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return onDeadline
	}
	return err
}

// isRawDocument reports whether a document of this MIME type is data
// rather than markup.
func isRawDocument(mimeType string) bool {
	mediaType, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(mimeType))
	}
	switch {
	case mediaType == "application/json", mediaType == "text/json", mediaType == "text/plain":
		return true
	case strings.HasSuffix(mediaType, "+json"):
		return true
	default:
		return false
	}
}

func headerMap(headers network.Headers) map[string]string {
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		out[k] = fmt.Sprint(v)
	}
	return out
}
