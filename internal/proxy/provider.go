package proxy

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nao1215/harvester/internal/model"
)

// Settings configures a Provider.
type Settings struct {
	// StaticAddress is a fixed proxy (host:port). When set, the allocation
	// service is never called and no lease is cached.
	StaticAddress string

	// Scheme, Username and Password apply to every endpoint handed out.
	Scheme   string
	Username string
	Password string

	// APIURL is the allocation service endpoint. It answers a GET with a
	// plaintext "host:port" body.
	APIURL string

	// SecretID and Signature are the allocation service API key.
	SecretID  string
	Signature string

	// TestURL is fetched through a proxy to validate it.
	TestURL string

	// ValidationTimeout bounds the validation request.
	ValidationTimeout time.Duration

	// LeaseTTL is how long an allocated endpoint is reused.
	LeaseTTL time.Duration

	// MaxAllocations bounds allocation requests per Acquire call.
	MaxAllocations int

	// LeaseFile is where the current lease is cached.
	LeaseFile string
}

// Provider hands out a validated proxy endpoint, reusing a cached lease
// while it is fresh.
type Provider struct {
	settings Settings
	leases   *LeaseStore
	client   *http.Client
	logger   *slog.Logger
	now      func() time.Time
	check    func(ctx context.Context, ep *Endpoint) ProxyStatus
}

// Option configures a Provider.
type Option func(*Provider)

// WithHTTPClient sets the client used to call the allocation service.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.client = c
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Provider) {
		p.logger = l
	}
}

// WithClock sets the time source used for lease freshness.
func WithClock(now func() time.Time) Option {
	return func(p *Provider) {
		p.now = now
	}
}

// WithChecker replaces proxy validation.
func WithChecker(check func(ctx context.Context, ep *Endpoint) ProxyStatus) Option {
	return func(p *Provider) {
		p.check = check
	}
}

// NewProvider creates a Provider. Zero settings fall back to the defaults
// of one hour lease, five second validation and two allocations.
func NewProvider(settings Settings, opts ...Option) *Provider {
	if settings.LeaseTTL <= 0 {
		settings.LeaseTTL = model.DefaultLeaseTTL
	}
	if settings.ValidationTimeout <= 0 {
		settings.ValidationTimeout = 5 * time.Second
	}
	if settings.MaxAllocations <= 0 {
		settings.MaxAllocations = 2
	}
	if settings.Scheme == "" {
		settings.Scheme = SchemeHTTP
	}

	p := &Provider{
		settings: settings,
		leases:   NewLeaseStore(settings.LeaseFile),
		client:   &http.Client{Timeout: 15 * time.Second},
		logger:   slog.Default(),
		now:      time.Now,
	}
	p.check = func(ctx context.Context, ep *Endpoint) ProxyStatus {
		return Check(ctx, ep, p.settings.TestURL, p.settings.ValidationTimeout)
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Configured reports whether Acquire can return an endpoint at all.
func (p *Provider) Configured() bool {
	return p.settings.StaticAddress != "" || p.settings.APIURL != ""
}

// Acquire returns a working proxy endpoint.
//
// A static proxy is returned as configured. Otherwise a cached lease younger
// than the TTL is validated and reused; a stale lease is never validated.
// When there is no usable lease, a new endpoint is allocated, validated and
// cached. Validation failures trigger re-allocation up to MaxAllocations,
// after which ErrProxyUnavailable is returned.
func (p *Provider) Acquire(ctx context.Context) (*Endpoint, error) {
	s := p.settings
	if s.StaticAddress != "" {
		return NewEndpoint(s.StaticAddress, s.Scheme, s.Username, s.Password)
	}
	if s.APIURL == "" {
		return nil, ErrNoProxyConfigured
	}

	if ep := p.cachedEndpoint(ctx); ep != nil {
		return ep, nil
	}

	var lastErr error
	for attempt := 1; attempt <= s.MaxAllocations; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		address, err := p.allocate(ctx)
		if err != nil {
			p.logger.Warn("proxy allocation failed", "attempt", attempt, "error", err)
			lastErr = err
			continue
		}

		ep, err := NewEndpoint(address, s.Scheme, s.Username, s.Password)
		if err != nil {
			lastErr = fmt.Errorf("%w: %w", ErrAllocationFailed, err)
			continue
		}

		if status := p.check(ctx, ep); status != ProxyStatusOK {
			p.logger.Warn("allocated proxy failed validation",
				"attempt", attempt,
				"endpoint", ep.Address,
				"status", status.String())
			lastErr = fmt.Errorf("%s: %w", ep.Address, status.Error())
			continue
		}

		lease := model.ProxyLease{Endpoint: ep.Address, AcquiredAt: p.now()}
		if err := p.leases.Save(lease); err != nil {
			// The endpoint works; losing the cache only costs a future allocation.
			p.logger.Warn("failed to cache proxy lease", "path", p.leases.Path(), "error", err)
		}
		p.logger.Info("proxy acquired", "endpoint", ep.Address, "attempt", attempt)
		return ep, nil
	}

	return nil, fmt.Errorf("%w after %d allocations: %w", ErrProxyUnavailable, s.MaxAllocations, lastErr)
}

// Invalidate drops the cached lease so the next Acquire allocates anew.
func (p *Provider) Invalidate() error {
	if p.settings.StaticAddress != "" || p.settings.APIURL == "" {
		return nil
	}
	return p.leases.Clear()
}

// cachedEndpoint returns the cached endpoint if it is fresh and validates.
func (p *Provider) cachedEndpoint(ctx context.Context) *Endpoint {
	lease, err := p.leases.Load()
	if err != nil {
		p.logger.Warn("ignoring unreadable proxy lease", "path", p.leases.Path(), "error", err)
		return nil
	}
	if lease.Expired(p.now(), p.settings.LeaseTTL) {
		if lease.Endpoint != "" {
			p.logger.Debug("proxy lease expired", "endpoint", lease.Endpoint, "acquired_at", lease.AcquiredAt)
		}
		return nil
	}

	ep, err := NewEndpoint(lease.Endpoint, p.settings.Scheme, p.settings.Username, p.settings.Password)
	if err != nil {
		p.logger.Warn("ignoring malformed proxy lease", "endpoint", lease.Endpoint, "error", err)
		return nil
	}
	if status := p.check(ctx, ep); status != ProxyStatusOK {
		p.logger.Info("cached proxy failed validation", "endpoint", ep.Address, "status", status.String())
		return nil
	}
	p.logger.Debug("reusing cached proxy", "endpoint", ep.Address)
	return ep
}

// allocate asks the allocation service for one endpoint.
func (p *Provider) allocate(ctx context.Context) (string, error) {
	u, err := url.Parse(p.settings.APIURL)
	if err != nil {
		return "", fmt.Errorf("%w: invalid api url: %w", ErrAllocationFailed, err)
	}
	q := u.Query()
	q.Set("secret_id", p.settings.SecretID)
	q.Set("signature", p.settings.Signature)
	q.Set("num", "1")
	q.Set("pt", "1")
	q.Set("format", "text")
	q.Set("sep", "1")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrAllocationFailed, err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrAllocationFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: allocation service returned %d", ErrAllocationFailed, resp.StatusCode)
	}

	// Several endpoints come back one per line; the first one is used.
	scanner := bufio.NewScanner(io.LimitReader(resp.Body, 4096))
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			return line, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrAllocationFailed, err)
	}
	return "", fmt.Errorf("%w: empty response", ErrAllocationFailed)
}
