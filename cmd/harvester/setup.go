package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/nao1215/harvester/internal/browser"
	"github.com/nao1215/harvester/internal/config"
	"github.com/nao1215/harvester/internal/crawler"
	"github.com/nao1215/harvester/internal/database"
	hlog "github.com/nao1215/harvester/internal/log"
	"github.com/nao1215/harvester/internal/proxy"
	"github.com/nao1215/harvester/internal/retry"
	"github.com/spf13/cobra"
)

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// getConfigFlag retrieves the site file path from the command or its parent.
func getConfigFlag(cmd *cobra.Command) string {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		path, err = cmd.Root().PersistentFlags().GetString("config")
		if err != nil {
			return ""
		}
	}
	return path
}

// loadConfig builds the configuration from defaults, the site file and the
// environment, in that order, and validates the result.
// If the user names a site file explicitly, it must exist.
func loadConfig(cmd *cobra.Command, lookup config.LookupFunc) (*config.Config, error) {
	cfg := config.NewConfig()
	cfg.Verbose = getVerboseFlag(cmd)
	cfg.ConfigFilePath = getConfigFlag(cmd)

	explicitConfigPath := cfg.ConfigFilePath != ""
	configPath := config.FindConfigFile(cfg.ConfigFilePath)
	switch {
	case configPath != "":
		cf, err := config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
		cfg.ApplyFile(cf)
	case explicitConfigPath:
		return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, cfg.ConfigFilePath)
	}

	if err := cfg.ApplyEnv(lookup); err != nil {
		return nil, err
	}
	if cfg.Site.Cookie == "" {
		cfg.Site.Cookie = cfg.Cookie
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	return cfg, nil
}

// retryPolicy converts the configured retry and abort settings.
func retryPolicy(cfg *config.Config) retry.Policy {
	p := retry.NewPolicy()
	p.MaxAttempts = cfg.MaxAttempts
	p.InitialDelay = cfg.RetryDelay
	p.MaxDelay = cfg.RetryMaxDelay
	p.Multiplier = cfg.RetryMultiplier
	p.FailureThreshold = cfg.FailureThreshold
	p.ConsecutiveFailedBatches = cfg.ConsecutiveFailedBatches
	return p
}

// proxySettings converts the configured proxy settings.
func proxySettings(cfg *config.Config) proxy.Settings {
	return proxy.Settings{
		StaticAddress:     cfg.ProxyServer,
		Scheme:            cfg.ProxyScheme,
		Username:          cfg.ProxyUsername,
		Password:          cfg.ProxyPassword,
		APIURL:            cfg.ProxyAPIURL,
		SecretID:          cfg.ProxySecretID,
		Signature:         cfg.ProxySignature,
		TestURL:           cfg.ProxyTestURL,
		ValidationTimeout: cfg.ProxyValidationTimeout,
		LeaseTTL:          cfg.ProxyLeaseTTL,
		MaxAllocations:    cfg.ProxyMaxAllocations,
		LeaseFile:         cfg.ProxyLeaseFile,
	}
}

// fetcher is what the list and detail commands need from a fetch strategy.
type fetcher interface {
	crawler.ListFetcher
	crawler.DetailFetcher
}

// app holds the resources shared by the crawl commands for one run.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	db      *database.CrawlDB
	closers []func()

	// provider and session are set by newFetcher.
	provider *proxy.Provider
	session  *browser.Session
}

// openApp loads .env and the configuration, creates the run logger and
// opens the database.
func openApp(cmd *cobra.Command) (*app, error) {
	if err := config.LoadDotEnv(); err != nil {
		return nil, err
	}
	cfg, err := loadConfig(cmd, os.LookupEnv)
	if err != nil {
		return nil, err
	}

	logger := hlog.NewSecureLogger(os.Stderr, cfg.Verbose).With(
		"run_id", uuid.NewString(),
		"command", cmd.Name(),
	)
	slog.SetDefault(logger)

	opts := database.DefaultOptions()
	opts.FileName = cfg.DBFileName
	opts.Logger = logger
	db, err := database.Open(cfg.DBDir, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	logger.Debug("database opened", "path", db.Path())

	a := &app{cfg: cfg, logger: logger, db: db}
	a.onClose(func() {
		if err := db.Close(); err != nil {
			logger.Warn("failed to close database", "error", err)
		}
	})
	return a, nil
}

// onClose registers fn to run when the app is closed. Functions run in
// reverse registration order.
func (a *app) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}

// Close releases every resource of the run.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// acquireProxy returns the proxy for this run, or nil to connect directly.
// A failing proxy is fatal only when ProxyRequired is set.
func (a *app) acquireProxy(ctx context.Context) (*proxy.Endpoint, error) {
	a.provider = proxy.NewProvider(proxySettings(a.cfg), proxy.WithLogger(a.logger))
	ep, err := a.provider.Acquire(ctx)
	switch {
	case err == nil:
		a.logger.Info("using proxy", "proxy", ep.ServerArg())
		return ep, nil
	case errors.Is(err, proxy.ErrNoProxyConfigured):
		a.logger.Debug("no proxy configured, connecting directly")
		return nil, nil
	case a.cfg.ProxyRequired:
		return nil, err
	default:
		a.logger.Warn("proxy unavailable, connecting directly", "error", err)
		return nil, nil
	}
}

// newFetcher builds the configured fetch strategy.
func (a *app) newFetcher(ctx context.Context) (fetcher, error) {
	ep, err := a.acquireProxy(ctx)
	if err != nil {
		return nil, err
	}

	userAgent := a.cfg.UserAgent
	if userAgent == "" {
		userAgent = browser.RandomUserAgent()
	}

	switch a.cfg.Fetcher {
	case config.FetcherHTTP:
		client, err := proxy.NewHTTPClient(ep, proxy.ClientOptions{
			Timeout:   a.cfg.RequestTimeout,
			Cookie:    a.cfg.Site.Cookie,
			Headers:   a.cfg.Site.Headers,
			UserAgent: userAgent,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create HTTP client: %w", err)
		}
		return crawler.NewHTTPFetcher(client, a.cfg.Site,
			crawler.WithRateLimit(a.cfg.RequestsPerSecond),
			crawler.WithMaxBodySize(a.cfg.MaxBodySize),
		), nil

	default:
		session := browser.NewSession(browser.Options{
			Headless:   a.cfg.Headless,
			BlockMedia: a.cfg.BlockMedia,
			ExecPath:   a.cfg.BrowserPath,
			UserAgent:  userAgent,
			Proxy:      ep,
		}, browser.WithLogger(a.logger))
		a.onClose(session.Shutdown)
		a.session = session

		f := crawler.NewBrowserFetcher(session, a.cfg.Site, crawler.BrowserOptions{
			WaitUntil:         a.cfg.WaitUntil,
			NavigationTimeout: a.cfg.NavigationTimeout,
			SelectorTimeout:   a.cfg.SelectorTimeout,
			WaitAfterLoad:     a.cfg.WaitAfterLoad,
		}, a.logger)
		a.onClose(f.Close)
		return f, nil
	}
}

// startBrowser launches the browser of a browser fetcher, so a broken
// Chrome fails the command before any item is touched.
func (a *app) startBrowser(ctx context.Context) error {
	if a.session == nil {
		return nil
	}
	if err := a.session.EnsureInitialized(ctx); err != nil {
		return err
	}
	a.logger.Debug("browser ready", "user_agent", a.session.UserAgent())
	return nil
}

// rotateProxy moves the browser to a freshly allocated proxy. It reports
// false when there is no allocation service or no browser to rotate.
func (a *app) rotateProxy(ctx context.Context) (bool, error) {
	if a.session == nil || a.provider == nil || a.cfg.ProxyServer != "" || a.cfg.ProxyAPIURL == "" {
		return false, nil
	}
	if err := a.provider.Invalidate(); err != nil {
		return false, fmt.Errorf("failed to drop proxy lease: %w", err)
	}
	ep, err := a.provider.Acquire(ctx)
	if err != nil {
		a.logger.Warn("no proxy to rotate to", "error", err)
		return false, nil
	}
	if err := a.session.Rotate(ctx, ep); err != nil {
		return false, err
	}
	a.logger.Info("browser rotated to a new proxy", "proxy", ep.ServerArg())
	return true, nil
}

// dropProxyLease discards the cached proxy lease after an aborted run, so
// the next run allocates a fresh address instead of a likely blocked one.
func (a *app) dropProxyLease() {
	if a.provider == nil {
		return
	}
	if err := a.provider.Invalidate(); err != nil {
		a.logger.Warn("failed to drop proxy lease", "error", err)
		return
	}
	a.logger.Info("proxy lease dropped")
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
