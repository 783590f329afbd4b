package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// Page is one browser tab. A Page is owned by a single goroutine and must be
// closed by it, usually in a defer.
type Page struct {
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	// lifecycle receives a value whenever the main frame's lifecycle changes.
	lifecycle chan struct{}

	mu         sync.Mutex
	frameID    cdp.FrameID
	docRequest network.RequestID
	idle       bool
}

// NewPage opens a tab with interception, stealth script and viewport
// applied. It fails with ErrNotInitialized until EnsureInitialized succeeded,
// and with context.DeadlineExceeded when the browser does not set the tab up
// within the page setup timeout.
func (s *Session) NewPage(ctx context.Context) (*Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	inst := s.current()
	if inst == nil {
		return nil, ErrNotInitialized
	}

	tabCtx, cancel := chromedp.NewContext(inst.ctx)
	p := &Page{
		ctx:       tabCtx,
		cancel:    cancel,
		lifecycle: make(chan struct{}, 1),
	}

	username, password, withAuth := s.proxyCredentials()
	chromedp.ListenTarget(tabCtx, p.listener(s.blockMedia(), username, password))

	// chromedp binds the tab's event loop to the context of the first Run,
	// so the tab is attached on tabCtx itself and closed if that stalls.
	stall := time.AfterFunc(s.pageSetupTimeout, p.Close)
	stopWatch := context.AfterFunc(ctx, p.Close)
	err := chromedp.Run(tabCtx)
	stalled := !stall.Stop()
	stopWatch()
	switch {
	case ctx.Err() != nil:
		p.Close()
		return nil, ctx.Err()
	case stalled:
		p.Close()
		return nil, fmt.Errorf("failed to open page: no answer from the browser within %s: %w", s.pageSetupTimeout, context.DeadlineExceeded)
	case err != nil:
		p.Close()
		return nil, fmt.Errorf("failed to open page: %w", err)
	}

	setupCtx, done := p.scope(ctx, s.pageSetupTimeout)
	defer done()

	err = chromedp.Run(setupCtx,
		network.Enable(),
		page.SetLifecycleEventsEnabled(true),
		fetch.Enable().
			WithPatterns([]*fetch.RequestPattern{{URLPattern: "*"}}).
			WithHandleAuthRequests(withAuth),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(stealthScript).Do(ctx)
			return err
		}),
		chromedp.EmulateViewport(viewportWidth, viewportHeight),
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			p.mu.Lock()
			p.frameID = tree.Frame.ID
			p.mu.Unlock()
			return nil
		}),
	)
	if err != nil {
		p.Close()
		return nil, timeoutError(ctx, setupCtx, fmt.Errorf("failed to open page: %w", err),
			fmt.Errorf("failed to open page: tab setup did not finish within %s: %w", s.pageSetupTimeout, context.DeadlineExceeded))
	}
	return p, nil
}

// Close closes the tab. It is safe to call more than once.
func (p *Page) Close() {
	p.closeOnce.Do(p.cancel)
}

// listener handles events of the tab. It runs on chromedp's event loop, so
// anything that talks back to the browser is done in a goroutine.
func (p *Page) listener(blockMedia bool, username, password string) func(ev any) {
	return func(ev any) {
		switch e := ev.(type) {
		case *fetch.EventRequestPaused:
			go p.resolveRequest(e, blockMedia)
		case *fetch.EventAuthRequired:
			go func() {
				_ = chromedp.Run(p.ctx, fetch.ContinueWithAuth(e.RequestID, &fetch.AuthChallengeResponse{
					Response: fetch.AuthChallengeResponseResponseProvideCredentials,
					Username: username,
					Password: password,
				}))
			}()
		case *network.EventResponseReceived:
			if e.Type == network.ResourceTypeDocument {
				p.recordDocument(e.FrameID, e.RequestID)
			}
		case *page.EventLifecycleEvent:
			p.recordLifecycle(e.FrameID, e.Name)
		}
	}
}

func (p *Page) resolveRequest(e *fetch.EventRequestPaused, blockMedia bool) {
	if e.Request != nil && shouldBlock(e.Request.URL, blockMedia) {
		_ = chromedp.Run(p.ctx, fetch.FailRequest(e.RequestID, network.ErrorReasonBlockedByClient))
		return
	}
	_ = chromedp.Run(p.ctx, fetch.ContinueRequest(e.RequestID))
}

func (p *Page) recordDocument(frameID cdp.FrameID, requestID network.RequestID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.frameID == "" || frameID == p.frameID {
		p.docRequest = requestID
	}
}

func (p *Page) recordLifecycle(frameID cdp.FrameID, name string) {
	p.mu.Lock()
	if p.frameID != "" && frameID != p.frameID {
		p.mu.Unlock()
		return
	}
	switch name {
	case "init":
		p.idle = false
	case "networkIdle":
		p.idle = true
	}
	p.mu.Unlock()

	select {
	case p.lifecycle <- struct{}{}:
	default:
	}
}

func (p *Page) resetNavigationState() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.idle = false
	p.docRequest = ""
}

// waitNetworkIdle blocks until the main frame reports networkIdle.
func (p *Page) waitNetworkIdle(ctx context.Context) error {
	for {
		p.mu.Lock()
		idle := p.idle
		p.mu.Unlock()
		if idle {
			return nil
		}

		select {
		case <-p.lifecycle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// documentBody returns the raw body of the last main frame document.
func (p *Page) documentBody(ctx context.Context) ([]byte, error) {
	p.mu.Lock()
	requestID := p.docRequest
	p.mu.Unlock()
	if requestID == "" {
		return nil, fmt.Errorf("no document response recorded")
	}

	var body []byte
	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		body, err = network.GetResponseBody(requestID).Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return body, nil
}
