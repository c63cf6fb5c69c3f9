package scraper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/rankwatch/internal/common"
)

func newTestBrowserFetcher(delays *[]time.Duration) *BrowserFetcher {
	config := common.NewDefaultConfig().Fetch
	config.RequestTimeout = "20ms"
	config.RenderWait = "1ms"
	return NewBrowserFetcher(config, arbor.NewLogger(), WithSleeper(noSleep(delays)))
}

func TestBrowserFetcher_TimedOutAttemptLeavesBrowserRunning(t *testing.T) {
	var delays []time.Duration
	fetcher := newTestBrowserFetcher(&delays)

	browserCtx, stopBrowser := context.WithCancel(context.Background())
	starts := 0
	fetcher.startBrowser = func(context.Context) (context.Context, context.CancelFunc, error) {
		starts++
		return browserCtx, stopBrowser, nil
	}
	tabs := 0
	fetcher.openTab = func(parent context.Context) (context.Context, context.CancelFunc) {
		tabs++
		return context.WithCancel(parent)
	}

	attempts := 0
	var browserAlive, attemptAlive bool
	fetcher.render = func(ctx context.Context, _ string) (string, error) {
		attempts++
		if attempts == 1 {
			<-ctx.Done()
			return "", ctx.Err()
		}
		browserAlive = browserCtx.Err() == nil
		attemptAlive = ctx.Err() == nil
		return "<html><body>ok</body></html>", nil
	}

	html, err := fetcher.Fetch(context.Background(), "https://example.test/ranking")
	require.NoError(t, err)
	assert.Equal(t, "<html><body>ok</body></html>", html)

	assert.Equal(t, 1, starts)
	assert.Equal(t, 2, tabs)
	assert.Equal(t, 2, attempts)
	assert.True(t, browserAlive, "browser context must survive a timed out attempt")
	assert.True(t, attemptAlive)
	assert.Len(t, delays, 1)
	assert.Error(t, browserCtx.Err(), "browser is closed once Fetch returns")
}

func TestBrowserFetcher_StartFailure(t *testing.T) {
	var delays []time.Duration
	fetcher := newTestBrowserFetcher(&delays)

	fetcher.startBrowser = func(context.Context) (context.Context, context.CancelFunc, error) {
		return nil, nil, errors.New("chrome not found")
	}
	fetcher.render = func(context.Context, string) (string, error) {
		t.Fatal("render must not run without a browser")
		return "", nil
	}

	_, err := fetcher.Fetch(context.Background(), "https://example.test/ranking")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chrome not found")
	assert.Empty(t, delays)
}
