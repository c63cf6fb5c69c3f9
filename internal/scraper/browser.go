package scraper

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/rankwatch/internal/common"
	"github.com/ternarybob/rankwatch/internal/retry"
)

// BrowserFetcher renders pages in headless Chrome, for ranking tables that
// are filled in by scripts after load.
type BrowserFetcher struct {
	userAgent string
	timeout   time.Duration
	wait      time.Duration
	policy    retry.Policy
	sleep     retry.Sleeper
	logger    arbor.ILogger

	startBrowser func(ctx context.Context) (context.Context, context.CancelFunc, error)
	openTab      func(browserCtx context.Context) (context.Context, context.CancelFunc)
	render       func(ctx context.Context, url string) (string, error)
}

// NewBrowserFetcher creates a BrowserFetcher. Chrome is started per Fetch and
// every attempt runs in its own tab.
func NewBrowserFetcher(config common.FetchConfig, logger arbor.ILogger, opts ...FetcherOption) *BrowserFetcher {
	o := fetcherOptions{sleep: retry.Sleep}
	for _, opt := range opts {
		opt(&o)
	}
	b := &BrowserFetcher{
		userAgent: config.UserAgent,
		timeout:   config.Timeout(),
		wait:      config.Wait(),
		policy:    retry.Policy{Attempts: config.RetryCount, Delays: config.Delays()},
		sleep:     o.sleep,
		logger:    logger,
		openTab: func(browserCtx context.Context) (context.Context, context.CancelFunc) {
			return chromedp.NewContext(browserCtx)
		},
	}
	b.startBrowser = b.startChrome
	b.render = b.renderPage
	return b
}

// Fetch implements interfaces.PageFetcher.
func (b *BrowserFetcher) Fetch(ctx context.Context, url string) (string, error) {
	browserCtx, closeBrowser, err := b.startBrowser(ctx)
	if err != nil {
		return "", fmt.Errorf("browser start failed: %w", err)
	}
	defer closeBrowser()

	var rendered string
	_, err = retry.Do(ctx, b.policy, b.sleep, func(attempt int) error {
		b.logger.Info().
			Str("url", url).
			Int("attempt", attempt).
			Msg("Rendering ranking page in browser")

		// The deadline belongs to the tab; expiring it closes only that tab.
		tabCtx, closeTab := b.openTab(browserCtx)
		defer closeTab()
		runCtx, cancel := context.WithTimeout(tabCtx, b.timeout+b.wait)
		defer cancel()

		html, err := b.render(runCtx, url)
		if err != nil {
			return fmt.Errorf("browser render of %s failed: %w", url, err)
		}
		rendered = html
		return nil
	}, func(attempt int, delay time.Duration, err error) {
		b.logger.Warn().
			Err(err).
			Str("url", url).
			Int("attempt", attempt).
			Str("retry_in", delay.String()).
			Msg("Browser fetch failed, retrying")
	})
	if err != nil {
		return "", err
	}
	return rendered, nil
}

// startChrome launches the browser. The first Run is made without a deadline
// because a deadline on it stops the whole browser when it expires.
func (b *BrowserFetcher) startChrome(ctx context.Context) (context.Context, context.CancelFunc, error) {
	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(
		ctx,
		append(
			chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", true),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.UserAgent(b.userAgent),
		)...,
	)
	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx)
	cancel := func() {
		browserCancel()
		allocatorCancel()
	}

	if err := chromedp.Run(browserCtx); err != nil {
		cancel()
		return nil, nil, err
	}
	return browserCtx, cancel, nil
}

func (b *BrowserFetcher) renderPage(ctx context.Context, url string) (string, error) {
	var html string
	err := chromedp.Run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(b.wait),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	return html, err
}
