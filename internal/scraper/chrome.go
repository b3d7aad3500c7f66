package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/FranksOps/llmsearch/pkg/ratelimit"
	"github.com/FranksOps/llmsearch/pkg/useragent"
	"github.com/chromedp/chromedp"
)

// ChromeConfig configures the headless browser renderer.
type ChromeConfig struct {
	// ExecPath is the Chrome/Chromium binary. Empty lets chromedp search PATH.
	ExecPath string
	// RemoteURL connects to an already running browser's DevTools
	// WebSocket instead of launching one.
	RemoteURL string
	Timeout   time.Duration
	UAPool    *useragent.Pool
	Limiter   *ratelimit.Limiter
}

// ChromeRenderer fetches pages through headless Chrome so that
// client-rendered sites yield their final DOM. One browser is shared and
// each Fetch runs in its own tab.
type ChromeRenderer struct {
	cfg    ChromeConfig
	logger *slog.Logger

	mu            sync.Mutex
	browserCtx    context.Context
	allocCancel   context.CancelFunc
	browserCancel context.CancelFunc
}

var _ PageFetcher = (*ChromeRenderer)(nil)

// NewChromeRenderer returns a renderer. The browser starts on first use.
func NewChromeRenderer(cfg ChromeConfig, logger *slog.Logger) *ChromeRenderer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultPageTimeout
	}
	if cfg.UAPool == nil {
		cfg.UAPool = useragent.NewPool(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ChromeRenderer{cfg: cfg, logger: logger}
}

func (r *ChromeRenderer) browser() (context.Context, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.browserCtx != nil {
		return r.browserCtx, nil
	}

	var allocCtx context.Context
	if r.cfg.RemoteURL != "" {
		allocCtx, r.allocCancel = chromedp.NewRemoteAllocator(context.Background(), r.cfg.RemoteURL)
		r.logger.Info("chromedp connecting to remote browser", "url", r.cfg.RemoteURL)
	} else {
		opts := make([]chromedp.ExecAllocatorOption, len(chromedp.DefaultExecAllocatorOptions))
		copy(opts, chromedp.DefaultExecAllocatorOptions[:])
		opts = append(opts,
			chromedp.Flag("headless", true),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.Flag("disable-blink-features", "AutomationControlled"),
			chromedp.UserAgent(r.cfg.UAPool.Next()),
			chromedp.WindowSize(1280, 720),
		)
		if r.cfg.ExecPath != "" {
			opts = append(opts, chromedp.ExecPath(r.cfg.ExecPath))
		}
		allocCtx, r.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
		r.logger.Info("chromedp launching local browser")
	}

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	// An empty Run starts the browser process.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		r.allocCancel()
		r.allocCancel = nil
		return nil, fmt.Errorf("start browser: %w", err)
	}

	r.browserCtx, r.browserCancel = browserCtx, browserCancel
	return browserCtx, nil
}

// Fetch navigates a fresh tab to targetURL and returns the rendered DOM.
func (r *ChromeRenderer) Fetch(ctx context.Context, targetURL string) (*Page, error) {
	u, err := url.Parse(targetURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		if err == nil {
			err = errors.New("absolute http(s) URL required")
		}
		return nil, &FetchError{Kind: KindInvalidURL, URL: targetURL, Err: err}
	}

	if err := r.cfg.Limiter.Wait(ctx); err != nil {
		return nil, &FetchError{Kind: classify(err), URL: targetURL, Err: fmt.Errorf("rate limiter: %w", err)}
	}

	browserCtx, err := r.browser()
	if err != nil {
		return nil, &FetchError{Kind: KindNetwork, URL: targetURL, Err: err}
	}

	// The tab must derive from the browser context; the caller's ctx only
	// cancels it.
	tabCtx, tabCancel := chromedp.NewContext(browserCtx)
	defer tabCancel()
	stop := context.AfterFunc(ctx, tabCancel)
	defer stop()

	runCtx, cancel := context.WithTimeout(tabCtx, r.cfg.Timeout)
	defer cancel()

	start := time.Now()
	runErr := func(err error) error {
		kind := KindNetwork
		switch {
		case ctx.Err() != nil:
			kind = classify(ctx.Err())
		case errors.Is(runCtx.Err(), context.DeadlineExceeded):
			kind = KindTimeout
		}
		return &FetchError{Kind: kind, URL: targetURL, Err: err}
	}

	// RunResponse reports the main frame's document response.
	resp, err := chromedp.RunResponse(runCtx, chromedp.Navigate(targetURL))
	if err != nil {
		return nil, runErr(err)
	}
	status := int(resp.Status)
	if err := checkDocument(targetURL, status, resp.MimeType); err != nil {
		return nil, err
	}

	var html, location string
	err = chromedp.Run(runCtx,
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Location(&location),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return nil, runErr(err)
	}

	if location == "" {
		location = targetURL
	}
	return &Page{
		URL:         location,
		StatusCode:  status,
		ContentType: resp.MimeType,
		HTML:        html,
		Bytes:       int64(len(html)),
		Duration:    time.Since(start),
	}, nil
}

// Close shuts the browser down. Safe to call when it never started.
func (r *ChromeRenderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.browserCancel != nil {
		r.browserCancel()
		r.browserCancel = nil
	}
	if r.allocCancel != nil {
		r.allocCancel()
		r.allocCancel = nil
	}
	r.browserCtx = nil
	return nil
}
