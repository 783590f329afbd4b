package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "harvester"

	// DefaultDBFileName is the SQLite file holding the queue and the content store.
	DefaultDBFileName = "harvester.db"

	// DefaultFetcher selects the headless browser for detail pages.
	// Detail pages on the default site are rendered client side.
	DefaultFetcher = FetcherBrowser

	// DefaultNavigationTimeout bounds a single browser navigation.
	// Detail pages behind a residential proxy routinely take over a minute.
	DefaultNavigationTimeout = 120 * time.Second

	// DefaultSelectorTimeout bounds the wait for the required content selector.
	DefaultSelectorTimeout = 30 * time.Second

	// DefaultWaitAfterLoad is the settle time after the load event.
	DefaultWaitAfterLoad = 2 * time.Second

	// DefaultRequestTimeout applies to plain HTTP fetches.
	DefaultRequestTimeout = 30 * time.Second

	// DefaultRequestsPerSecond throttles the HTTP fetcher.
	DefaultRequestsPerSecond = 1.0

	// DefaultMaxBodySize limits the response body read by the HTTP fetcher.
	DefaultMaxBodySize = 10 * 1024 * 1024 // 10MB

	// DefaultListDelay is the courtesy pause between listing pages.
	DefaultListDelay = 1 * time.Second

	// DefaultBatchSize is the number of detail pages fetched at the same time.
	// It is kept small; the target site bans aggressive clients.
	DefaultBatchSize = 2

	// DefaultDetailCooldown is the pause after every detail page.
	DefaultDetailCooldown = 5 * time.Minute

	// DefaultFailureThreshold aborts a detail run once more than this many
	// items have failed.
	DefaultFailureThreshold = 10

	// DefaultConsecutiveFailedBatches aborts a detail run after this many
	// batches in a row in which every item failed.
	DefaultConsecutiveFailedBatches = 3

	// DefaultMaxAttempts is how often a listing page fetch is tried.
	DefaultMaxAttempts = 3

	// DefaultRetryDelay is the first backoff delay.
	DefaultRetryDelay = 2 * time.Second

	// DefaultRetryMaxDelay caps the backoff delay.
	DefaultRetryMaxDelay = 30 * time.Second

	// DefaultRetryMultiplier doubles the delay after each failed attempt.
	DefaultRetryMultiplier = 2.0

	// DefaultProxyLeaseTTL is how long an allocated proxy is reused.
	DefaultProxyLeaseTTL = time.Hour

	// DefaultProxyValidationTimeout bounds the proxy health check.
	DefaultProxyValidationTimeout = 5 * time.Second

	// DefaultProxyTestURL is fetched through a proxy to validate it.
	DefaultProxyTestURL = "https://www.baidu.com"

	// DefaultProxyMaxAllocations is the initial allocation plus one re-allocation.
	DefaultProxyMaxAllocations = 2

	// DefaultProxyScheme is the protocol spoken by allocated proxies.
	DefaultProxyScheme = "http"

	// DefaultProxyLeaseFileName is the lease cache file inside the XDG cache dir.
	DefaultProxyLeaseFileName = "proxy_lease.json"
)

// Fetcher names accepted by Config.Fetcher.
const (
	FetcherBrowser = "browser"
	FetcherHTTP    = "http"
)

// Config holds all configuration options for harvester.
// It is populated from defaults, the site file, the environment and CLI
// flags in that order, and then passed down explicitly.
//
// Site specific selectors live in SiteConfig.
type Config struct {
	// DBDir is the directory holding the SQLite database.
	// Defaults to the XDG data directory (~/.local/share/harvester on Linux).
	DBDir string

	// DBFileName is the database file name inside DBDir.
	DBFileName string

	// Fetcher selects the fetch strategy: "browser" or "http".
	Fetcher string

	// Headless runs the browser without a window.
	Headless bool

	// BlockMedia aborts image, audio and video requests in the browser.
	BlockMedia bool

	// BrowserPath overrides the Chrome executable. Empty means autodetect.
	BrowserPath string

	// NavigationTimeout bounds a single browser navigation.
	NavigationTimeout time.Duration

	// SelectorTimeout bounds the wait for the required content selector.
	SelectorTimeout time.Duration

	// WaitAfterLoad is the settle time after navigation completes.
	WaitAfterLoad time.Duration

	// WaitUntil is the navigation completion strategy: "load" or "networkidle".
	WaitUntil string

	// UserAgent pins the User-Agent header. Empty means a random desktop UA.
	UserAgent string

	// Cookie is sent with every HTTP fetch. The site file may override it.
	Cookie string

	// RequestTimeout bounds a single HTTP fetch.
	RequestTimeout time.Duration

	// RequestsPerSecond throttles the HTTP fetcher. Zero disables throttling.
	RequestsPerSecond float64

	// MaxBodySize is the maximum response body size in bytes to read.
	MaxBodySize int64

	// ListDelay is the courtesy pause between listing pages.
	ListDelay time.Duration

	// BatchSize is the number of detail pages fetched concurrently.
	BatchSize int

	// DetailCooldown is the pause after every detail page.
	DetailCooldown time.Duration

	// FailureThreshold aborts a detail run when failures exceed it. Zero disables it.
	FailureThreshold int

	// ConsecutiveFailedBatches aborts a detail run after this many fully failed
	// batches in a row. Zero disables it.
	ConsecutiveFailedBatches int

	// MaxAttempts, RetryDelay, RetryMaxDelay and RetryMultiplier configure the
	// shared retry policy.
	MaxAttempts     int
	RetryDelay      time.Duration
	RetryMaxDelay   time.Duration
	RetryMultiplier float64

	// ProxyServer is a static proxy (host:port). When set, the allocation
	// service is not used.
	ProxyServer string

	// ProxyUsername and ProxyPassword authenticate against the proxy.
	ProxyUsername string
	ProxyPassword string

	// ProxyScheme is "http" or "socks5".
	ProxyScheme string

	// ProxyAPIURL is the allocation service endpoint.
	ProxyAPIURL string

	// ProxySecretID and ProxySignature are the allocation service API key.
	ProxySecretID  string
	ProxySignature string

	// ProxyTestURL is fetched through a proxy to validate it.
	ProxyTestURL string

	// ProxyValidationTimeout bounds the proxy health check.
	ProxyValidationTimeout time.Duration

	// ProxyLeaseTTL is how long an allocated proxy is reused.
	ProxyLeaseTTL time.Duration

	// ProxyMaxAllocations bounds allocations per Acquire call.
	ProxyMaxAllocations int

	// ProxyLeaseFile is where the current lease is cached.
	ProxyLeaseFile string

	// ProxyRequired turns a proxy failure into a fatal error instead of
	// falling back to a direct connection.
	ProxyRequired bool

	// ProxyRotations is how many times an aborted detail run of the browser
	// fetcher switches to a freshly allocated proxy and continues.
	ProxyRotations int

	// Verbose enables debug logging.
	Verbose bool

	// ConfigFilePath is the site file path. If empty, FindConfigFile looks
	// for .harvester.yaml in the current directory, then site.yaml in
	// XDGConfigDir, then .harvester.yaml in the home directory.
	ConfigFilePath string

	// Site holds the target site definition.
	Site SiteConfig
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		DBDir:                    XDGDataDir(),
		DBFileName:               DefaultDBFileName,
		Fetcher:                  DefaultFetcher,
		Headless:                 true,
		NavigationTimeout:        DefaultNavigationTimeout,
		SelectorTimeout:          DefaultSelectorTimeout,
		WaitAfterLoad:            DefaultWaitAfterLoad,
		WaitUntil:                WaitUntilLoad,
		RequestTimeout:           DefaultRequestTimeout,
		RequestsPerSecond:        DefaultRequestsPerSecond,
		MaxBodySize:              DefaultMaxBodySize,
		ListDelay:                DefaultListDelay,
		BatchSize:                DefaultBatchSize,
		DetailCooldown:           DefaultDetailCooldown,
		FailureThreshold:         DefaultFailureThreshold,
		ConsecutiveFailedBatches: DefaultConsecutiveFailedBatches,
		MaxAttempts:              DefaultMaxAttempts,
		RetryDelay:               DefaultRetryDelay,
		RetryMaxDelay:            DefaultRetryMaxDelay,
		RetryMultiplier:          DefaultRetryMultiplier,
		ProxyScheme:              DefaultProxyScheme,
		ProxyTestURL:             DefaultProxyTestURL,
		ProxyValidationTimeout:   DefaultProxyValidationTimeout,
		ProxyLeaseTTL:            DefaultProxyLeaseTTL,
		ProxyMaxAllocations:      DefaultProxyMaxAllocations,
		ProxyLeaseFile:           filepath.Join(XDGCacheDir(), DefaultProxyLeaseFileName),
		Site:                     DefaultSite(),
	}
}

// Navigation completion strategies.
const (
	WaitUntilLoad        = "load"
	WaitUntilNetworkIdle = "networkidle"
)

// XDGDataDir returns the XDG data directory for harvester.
// On Linux: ~/.local/share/harvester
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for harvester.
// On Linux: ~/.config/harvester
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// XDGCacheDir returns the XDG cache directory for harvester.
// On Linux: ~/.cache/harvester
func XDGCacheDir() string {
	return filepath.Join(xdg.CacheHome, AppName)
}

// ProxyConfigured reports whether any proxy source is configured.
func (c *Config) ProxyConfigured() bool {
	return c.ProxyServer != "" || c.ProxyAPIURL != ""
}

// Validate checks if the configuration is valid.
// It returns the first problem found as a sentinel error.
func (c *Config) Validate() error {
	if c.Fetcher != FetcherBrowser && c.Fetcher != FetcherHTTP {
		return ErrInvalidFetcher
	}

	if c.WaitUntil != WaitUntilLoad && c.WaitUntil != WaitUntilNetworkIdle {
		return ErrInvalidWaitUntil
	}

	if c.NavigationTimeout <= 0 || c.SelectorTimeout <= 0 || c.RequestTimeout <= 0 {
		return ErrInvalidTimeout
	}

	if c.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}

	if c.ListDelay < 0 || c.DetailCooldown < 0 || c.WaitAfterLoad < 0 {
		return ErrInvalidDelay
	}

	if c.FailureThreshold < 0 || c.ConsecutiveFailedBatches < 0 {
		return ErrInvalidFailureThreshold
	}

	if c.MaxAttempts <= 0 {
		return ErrInvalidMaxAttempts
	}

	if c.MaxBodySize < 0 {
		return ErrInvalidMaxBodySize
	}

	if c.ProxyScheme != "http" && c.ProxyScheme != "socks5" {
		return ErrInvalidProxyScheme
	}

	if c.ProxyAPIURL != "" && (c.ProxySecretID == "" || c.ProxySignature == "") {
		return ErrMissingProxyCredentials
	}

	if c.ProxyRotations < 0 {
		return ErrInvalidProxyRotations
	}

	if c.ProxyRequired && !c.ProxyConfigured() {
		return ErrProxyRequired
	}

	return c.Site.Validate()
}
