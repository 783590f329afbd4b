package proxy

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"time"

	"golang.org/x/net/publicsuffix"
)

// ClientOptions configures HTTP clients built by NewHTTPClient.
type ClientOptions struct {
	// Timeout bounds a whole request including reading the body.
	Timeout time.Duration

	// Cookie is a raw cookie header added to every request.
	Cookie string

	// Headers are added to every request, overriding existing values.
	Headers map[string]string

	// UserAgent is set on every request when non-empty.
	UserAgent string
}

// NewHTTPClient creates an HTTP client that routes through ep.
// A nil ep produces a direct client.
//
// Cookies and headers are injected by a RoundTripper, so redirects carry
// them too.
func NewHTTPClient(ep *Endpoint, opts ClientOptions) (*http.Client, error) {
	transport, err := ep.Transport()
	if err != nil {
		return nil, err
	}

	// The public suffix list keeps cookies scoped to their registrable domain.
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}

	extra := make(http.Header, len(opts.Headers)+1)
	for k, v := range opts.Headers {
		extra.Set(k, v)
	}
	if opts.UserAgent != "" {
		extra.Set("User-Agent", opts.UserAgent)
	}

	var rt http.RoundTripper = transport
	if opts.Cookie != "" || len(extra) > 0 {
		rt = &siteHeaders{next: transport, cookie: opts.Cookie, header: extra}
	}

	return &http.Client{
		Transport: rt,
		Timeout:   opts.Timeout,
		Jar:       jar,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}, nil
}

// siteHeaders sets the site's headers and appends its cookie on every request.
type siteHeaders struct {
	next   http.RoundTripper
	cookie string
	header http.Header
}

func (t *siteHeaders) RoundTrip(req *http.Request) (*http.Response, error) {
	out := req.Clone(req.Context())
	for key, values := range t.header {
		out.Header[key] = values
	}
	if t.cookie != "" {
		cookie := t.cookie
		if prev := out.Header.Get("Cookie"); prev != "" {
			cookie = prev + "; " + cookie
		}
		out.Header.Set("Cookie", cookie)
	}
	return t.next.RoundTrip(out)
}

// Check validates ep by fetching testURL through it. The proxy works iff
// the response is 200 within timeout.
func Check(ctx context.Context, ep *Endpoint, testURL string, timeout time.Duration) ProxyStatus {
	client, err := NewHTTPClient(ep, ClientOptions{Timeout: timeout})
	if err != nil {
		return ProxyStatusCannotConnect
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, testURL, nil)
	if err != nil {
		return ProxyStatusCannotConnect
	}

	resp, err := client.Do(req)
	if err != nil {
		if isTimeout(err) || ctx.Err() != nil {
			return ProxyStatusTimeout
		}
		return ProxyStatusCannotConnect
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024)) //nolint:errcheck // drain for connection reuse

	if resp.StatusCode != http.StatusOK {
		return ProxyStatusBadStatus
	}
	return ProxyStatusOK
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
