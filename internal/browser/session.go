package browser

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"golang.org/x/sync/singleflight"

	"github.com/nao1215/harvester/internal/proxy"
)

// Options configures the browser process.
type Options struct {
	// Headless hides the browser window.
	Headless bool

	// BlockMedia aborts image, audio and video requests on every page.
	BlockMedia bool

	// ExecPath is the Chrome binary. Empty means chromedp's lookup.
	ExecPath string

	// UserAgent overrides the random pick from the user agent pool.
	UserAgent string

	// Proxy routes all browser traffic. It is bound when the process starts.
	Proxy *proxy.Endpoint
}

// instance is a running browser process.
type instance struct {
	// ctx is the browser-level chromedp context; tabs derive from it.
	ctx       context.Context
	userAgent string

	closeBrowser   context.CancelFunc
	closeAllocator context.CancelFunc
}

// close closes the browser context first, then stops the process.
func (i *instance) close() {
	if i.closeBrowser != nil {
		i.closeBrowser()
	}
	if i.closeAllocator != nil {
		i.closeAllocator()
	}
}

// launchFunc starts a browser process.
type launchFunc func(ctx context.Context, opts Options) (*instance, error)

// Session is the single shared browser of a crawl run.
// All methods are safe for concurrent use.
type Session struct {
	logger *slog.Logger
	launch launchFunc
	group  singleflight.Group

	// pageSetupTimeout bounds opening and preparing one tab.
	pageSetupTimeout time.Duration

	mu   sync.Mutex
	opts Options
	inst *instance
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) SessionOption {
	return func(s *Session) {
		s.logger = l
	}
}

// withLauncher replaces the Chrome launcher. Used by tests.
func withLauncher(l launchFunc) SessionOption {
	return func(s *Session) {
		s.launch = l
	}
}

// NewSession creates a Session. The browser is not started until
// EnsureInitialized is called.
func NewSession(opts Options, sopts ...SessionOption) *Session {
	s := &Session{
		opts:             opts,
		logger:           slog.Default(),
		launch:           launchChrome,
		pageSetupTimeout: defaultSelectorTimeout,
	}
	for _, opt := range sopts {
		opt(s)
	}
	return s
}

// EnsureInitialized starts the browser if it is not running.
// Concurrent callers share one launch and all observe its result.
func (s *Session) EnsureInitialized(ctx context.Context) error {
	if s.current() != nil {
		return nil
	}

	_, err, _ := s.group.Do("launch", func() (any, error) {
		if s.current() != nil {
			return nil, nil
		}

		s.mu.Lock()
		opts := s.opts
		s.mu.Unlock()

		inst, err := s.launch(ctx, opts)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrBrowserInitFailed, err)
		}

		s.mu.Lock()
		s.inst = inst
		s.mu.Unlock()

		proxyAddr := ""
		if opts.Proxy != nil {
			proxyAddr = opts.Proxy.Address
		}
		s.logger.Info("browser started",
			"headless", opts.Headless,
			"block_media", opts.BlockMedia,
			"proxy", proxyAddr,
			"user_agent", inst.userAgent)
		return nil, nil
	})
	return err
}

// UserAgent returns the user agent of the running browser.
func (s *Session) UserAgent() string {
	if inst := s.current(); inst != nil {
		return inst.userAgent
	}
	return ""
}

// Shutdown closes the browser. It is safe to call on a session that was
// never initialized and to call more than once.
func (s *Session) Shutdown() {
	s.mu.Lock()
	inst := s.inst
	s.inst = nil
	s.mu.Unlock()

	if inst == nil {
		return
	}
	inst.close()
	s.logger.Debug("browser stopped")
}

// Rotate restarts the browser bound to a different proxy. A nil endpoint
// restarts it without a proxy.
func (s *Session) Rotate(ctx context.Context, ep *proxy.Endpoint) error {
	s.Shutdown()

	s.mu.Lock()
	s.opts.Proxy = ep
	s.mu.Unlock()

	return s.EnsureInitialized(ctx)
}

func (s *Session) current() *instance {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inst
}

func (s *Session) blockMedia() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opts.BlockMedia
}

func (s *Session) proxyCredentials() (string, string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.opts.Proxy == nil || !s.opts.Proxy.HasCredentials() {
		return "", "", false
	}
	return s.opts.Proxy.Username, s.opts.Proxy.Password, true
}

// allocatorOptions builds the Chrome command line.
func allocatorOptions(opts Options, userAgent string) []chromedp.ExecAllocatorOption {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.NoSandbox,
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-accelerated-2d-canvas", true),
		chromedp.NoFirstRun,
		chromedp.DisableGPU,
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-infobars", true),
		chromedp.Flag("lang", "zh-CN,zh"),
		chromedp.UserAgent(userAgent),
		chromedp.WindowSize(viewportWidth, viewportHeight),
	)
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}
	if opts.Proxy != nil {
		allocOpts = append(allocOpts, chromedp.ProxyServer(opts.Proxy.ServerArg()))
	}
	return allocOpts
}

// launchChrome starts Chrome. The process outlives ctx; it is stopped by
// instance.close.
func launchChrome(ctx context.Context, opts Options) (*instance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = RandomUserAgent()
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), allocatorOptions(opts, userAgent)...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// The first Run starts the process.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, err
	}

	return &instance{
		ctx:            browserCtx,
		userAgent:      userAgent,
		closeBrowser:   browserCancel,
		closeAllocator: allocCancel,
	}, nil
}
