package browser

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/visusharma/Privacy-first-dockerised-News-browser/internal/domain/resolver"
	"github.com/visusharma/Privacy-first-dockerised-News-browser/internal/providers/browser/sandbox"
	"go.uber.org/zap"
)

// serializeDocumentJS returns the rendered document, doctype included.
// outerHTML alone drops it and the page falls into quirks mode.
const serializeDocumentJS = `(document.doctype ? new XMLSerializer().serializeToString(document.doctype) + "\n" : "") + document.documentElement.outerHTML`

// ChromeConfig configures the chromedp engine
type ChromeConfig struct {
	ExecPath  string
	Headless  bool
	ProxyAddr string
	Profile   StealthProfile
	Filter    *RequestFilter
}

// ChromeEngine launches headless Chrome over the DevTools protocol
type ChromeEngine struct {
	cfg    ChromeConfig
	script string
	logger *zap.Logger
}

// NewChromeEngine prepares the stealth script once for every launch
func NewChromeEngine(cfg ChromeConfig, logger *zap.Logger) (*ChromeEngine, error) {
	if cfg.Filter == nil {
		cfg.Filter = DefaultRequestFilter()
	}
	if cfg.Profile.UserAgent == "" {
		cfg.Profile = DefaultStealthProfile()
	}
	script, err := cfg.Profile.Script()
	if err != nil {
		return nil, fmt.Errorf("stealth script: %w", err)
	}
	if err := sandbox.Compile("stealth.js", script); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChromeEngine{cfg: cfg, script: script, logger: logger}, nil
}

// launchFlags returns the command-line switches for mode. Only Anonymized
// instances get a proxy; Direct instances never touch it.
func (e *ChromeEngine) launchFlags(mode resolver.Mode) map[string]interface{} {
	flags := map[string]interface{}{
		"headless":                            e.cfg.Headless,
		"no-sandbox":                          true,
		"disable-setuid-sandbox":              true,
		"disable-dev-shm-usage":               true,
		"disable-accelerated-2d-canvas":       true,
		"disable-gpu":                         true,
		"window-size":                         "1920,1080",
		"disable-extensions":                  true,
		"disable-background-networking":       true,
		"disable-default-apps":                true,
		"disable-sync":                        true,
		"disable-translate":                   true,
		"hide-scrollbars":                     true,
		"metrics-recording-only":              true,
		"mute-audio":                          true,
		"no-first-run":                        true,
		"no-default-browser-check":            true,
		"disable-features":                    "site-per-process",
		"disable-blink-features":              "AutomationControlled",
		"ignore-certificate-errors":           true,
		"user-agent":                          e.cfg.Profile.UserAgent,
		"disable-background-timer-throttling": true,
	}
	if mode == resolver.Anonymized && e.cfg.ProxyAddr != "" {
		flags["proxy-server"] = "socks5://" + e.cfg.ProxyAddr
	}
	return flags
}

// Launch starts a browser process and waits for its first target
func (e *ChromeEngine) Launch(ctx context.Context, mode resolver.Mode) (Browser, error) {
	opts := []chromedp.ExecAllocatorOption{}
	for name, value := range e.launchFlags(mode) {
		opts = append(opts, chromedp.Flag(name, value))
	}
	if e.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(e.cfg.ExecPath))
	}

	// The process outlives the request that triggered the launch
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(e.logger.Sugar().Debugf),
		chromedp.WithErrorf(e.logger.Sugar().Debugf),
	)

	started := make(chan error, 1)
	go func() { started <- chromedp.Run(browserCtx) }()

	select {
	case err := <-started:
		if err != nil {
			cancelBrowser()
			cancelAlloc()
			return nil, fmt.Errorf("launch chrome (%s): %w", mode, err)
		}
	case <-ctx.Done():
		cancelBrowser()
		cancelAlloc()
		return nil, ctx.Err()
	}

	return &chromeBrowser{
		engine: e,
		mode:   mode,
		ctx:    browserCtx,
		cancel: func() {
			cancelBrowser()
			cancelAlloc()
		},
	}, nil
}

type chromeBrowser struct {
	engine *ChromeEngine
	mode   resolver.Mode
	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

func (b *chromeBrowser) Version(ctx context.Context) (string, error) {
	type version struct {
		product string
		err     error
	}
	ch := make(chan version, 1)
	go func() {
		var v version
		v.err = chromedp.Run(b.ctx, chromedp.ActionFunc(func(c context.Context) error {
			var err error
			_, v.product, _, _, _, err = cdpbrowser.GetVersion().Do(c)
			return err
		}))
		ch <- v
	}()

	select {
	case v := <-ch:
		return v.product, v.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (b *chromeBrowser) Close() error {
	b.once.Do(b.cancel)
	return nil
}

// Render opens a fresh tab, loads url and serializes the DOM
func (b *chromeBrowser) Render(ctx context.Context, url string, opts RenderOptions) (*Page, error) {
	tabCtx, closeTab := chromedp.NewContext(b.ctx)
	defer closeTab()

	// Allocate the tab before applying the render deadline so an expired
	// deadline cancels actions rather than the target
	if err := chromedp.Run(tabCtx); err != nil {
		return nil, fmt.Errorf("open tab: %w", err)
	}

	runCtx, cancel := context.WithCancel(tabCtx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	if opts.Timeout > 0 {
		var cancelTimeout context.CancelFunc
		runCtx, cancelTimeout = context.WithTimeout(runCtx, opts.Timeout)
		defer cancelTimeout()
	}

	w := newPageWatcher()
	b.listen(tabCtx, w)

	if err := chromedp.Run(runCtx, b.prepare()); err != nil {
		return nil, b.classify(ctx, runCtx, url, err)
	}

	if err := chromedp.Run(runCtx, chromedp.ActionFunc(func(c context.Context) error {
		var res page.NavigateReturns
		if err := cdp.Execute(c, page.CommandNavigate, page.Navigate(url), &res); err != nil {
			return err
		}
		if res.ErrorText != "" {
			return &NavigationError{URL: url, Reason: res.ErrorText}
		}
		return nil
	})); err != nil {
		return nil, b.classify(ctx, runCtx, url, err)
	}

	select {
	case <-w.domReady:
	case <-runCtx.Done():
		return nil, b.classify(ctx, runCtx, url, runCtx.Err())
	}

	if status := w.documentStatus(); status >= 400 {
		return nil, &StatusError{URL: url, Status: status}
	}

	if err := chromedp.Run(runCtx, settle(opts.SettleMax)); err != nil {
		return nil, b.classify(ctx, runCtx, url, err)
	}

	result := &Page{Status: w.documentStatus()}
	if err := chromedp.Run(runCtx,
		chromedp.Location(&result.FinalURL),
		chromedp.Evaluate(serializeDocumentJS, &result.HTML),
	); err != nil {
		return nil, b.classify(ctx, runCtx, url, err)
	}
	if result.Status == 0 {
		result.Status = 200
	}
	return result, nil
}

// prepare installs the stealth profile, headers and request interception
func (b *chromeBrowser) prepare() chromedp.Tasks {
	profile := b.engine.cfg.Profile
	headers := network.Headers{}
	for k, v := range profile.Headers {
		headers[k] = v
	}

	return chromedp.Tasks{
		network.Enable(),
		network.SetExtraHTTPHeaders(headers),
		emulation.SetUserAgentOverride(profile.UserAgent).
			WithAcceptLanguage("en-US,en;q=0.9").
			WithPlatform(profile.Platform),
		emulation.SetDeviceMetricsOverride(profile.ViewportWidth, profile.ViewportHeight, 1, false),
		chromedp.ActionFunc(func(c context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(b.engine.script).Do(c)
			return err
		}),
		fetch.Enable().WithPatterns([]*fetch.RequestPattern{{URLPattern: "*"}}),
	}
}

// listen wires the event handlers; handlers must not block the event loop
func (b *chromeBrowser) listen(tabCtx context.Context, w *pageWatcher) {
	filter := b.engine.cfg.Filter
	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		switch ev := ev.(type) {
		case *fetch.EventRequestPaused:
			allow := filter.Allow(ev.Request.URL, string(ev.ResourceType))
			go func() {
				c := cdp.WithExecutor(tabCtx, chromedp.FromContext(tabCtx).Target)
				var err error
				if allow {
					err = fetch.ContinueRequest(ev.RequestID).Do(c)
				} else {
					err = fetch.FailRequest(ev.RequestID, network.ErrorReasonBlockedByClient).Do(c)
				}
				if err != nil && tabCtx.Err() == nil {
					b.engine.logger.Debug("Request interception failed", zap.Error(err))
				}
			}()
		case *network.EventResponseReceived:
			if ev.Type == network.ResourceTypeDocument && ev.Response != nil {
				w.recordStatus(int(ev.Response.Status))
			}
		case *page.EventDomContentEventFired:
			w.markReady()
		}
	})
}

// classify maps chromedp failures onto the package errors
func (b *chromeBrowser) classify(ctx, runCtx context.Context, url string, err error) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return fmt.Errorf("render %s: %w", url, context.Canceled)
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) ||
		errors.Is(ctx.Err(), context.DeadlineExceeded) ||
		errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s", ErrNavigationTimeout, url)
	}
	var nav *NavigationError
	if errors.As(err, &nav) {
		return nav
	}
	return fmt.Errorf("render %s: %w", url, err)
}

// settle scrolls a few times with random pauses so lazy content loads
func settle(max time.Duration) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if max <= 0 {
			return nil
		}
		steps := 2 + rand.IntN(3)
		budget := max
		for i := 0; i < steps && budget > 0; i++ {
			pause := time.Duration(rand.Int64N(int64(budget/time.Duration(steps-i)) + 1))
			budget -= pause
			distance := 200 + rand.IntN(600)
			if err := chromedp.Evaluate(fmt.Sprintf("window.scrollBy(0, %d)", distance), nil).Do(ctx); err != nil {
				return err
			}
			if err := chromedp.Sleep(pause).Do(ctx); err != nil {
				return err
			}
		}
		return chromedp.Evaluate("window.scrollTo(0, 0)", nil).Do(ctx)
	})
}

// pageWatcher collects navigation events for one tab
type pageWatcher struct {
	domReady chan struct{}
	once     sync.Once

	mu     sync.Mutex
	status int
}

func newPageWatcher() *pageWatcher {
	return &pageWatcher{domReady: make(chan struct{})}
}

func (w *pageWatcher) markReady() {
	w.once.Do(func() { close(w.domReady) })
}

// recordStatus keeps the first document response, the top-level navigation
func (w *pageWatcher) recordStatus(status int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.status == 0 {
		w.status = status
	}
}

func (w *pageWatcher) documentStatus() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}
