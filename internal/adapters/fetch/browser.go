package fetch

import (
	"context"
	"time"

	"github.com/chromedp/chromedp"
)

// BrowserConfig tunes the headless browser fetcher
type BrowserConfig struct {
	// PageTimeout bounds each page load, default 30s
	PageTimeout time.Duration
}

func (c *BrowserConfig) defaults() {
	if c.PageTimeout <= 0 {
		c.PageTimeout = 30 * time.Second
	}
}

// Browser drives one headless browser session. Each session holds an OS
// process, so Close is a mandatory cleanup path. One instance per worker,
// never shared across goroutines
type Browser struct {
	allocStop context.CancelFunc
	tabCtx    context.Context
	tabStop   context.CancelFunc
	timeout   time.Duration
	fallback  Fetcher
}

// NewBrowser starts a headless browser session eagerly so launch failures
// surface at pool start, not mid-batch. fallback, when non-nil, handles
// pages after the browser dies
func NewBrowser(cfg BrowserConfig, fallback Fetcher) (*Browser, error) {
	cfg.defaults()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.WindowSize(1920, 1080),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.NoSandbox,
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-notifications", true),
		chromedp.Flag("blink-settings", "imagesEnabled=false"),
		chromedp.Flag("disable-background-networking", true),
		chromedp.Flag("disable-sync", true),
	)

	allocCtx, allocStop := chromedp.NewExecAllocator(context.Background(), opts...)
	tabCtx, tabStop := chromedp.NewContext(allocCtx)

	if err := chromedp.Run(tabCtx); err != nil {
		tabStop()
		allocStop()
		return nil, err
	}

	return &Browser{
		allocStop: allocStop,
		tabCtx:    tabCtx,
		tabStop:   tabStop,
		timeout:   cfg.PageTimeout,
		fallback:  fallback,
	}, nil
}

// Fetch implements Fetcher. Navigation waits for the body so client-side
// injected content (badge issuance dates) is present in the snapshot
func (b *Browser) Fetch(ctx context.Context, rawURL string) Outcome {
	if err := ctx.Err(); err != nil {
		return Transient("fetch canceled: " + err.Error())
	}

	runCtx, cancel := context.WithTimeout(b.tabCtx, b.timeout)
	defer cancel()

	var html, finalURL string
	err := chromedp.Run(runCtx,
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		if b.fallback != nil {
			return b.fallback.Fetch(ctx, rawURL)
		}
		return Transient("browser navigation failed: " + err.Error())
	}
	return Found(&Page{URL: finalURL, Body: html})
}

// Close tears the session and its browser process down
func (b *Browser) Close() {
	b.tabStop()
	b.allocStop()
	if b.fallback != nil {
		b.fallback.Close()
	}
}
