package scraper

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/ternarybob/arbor"
	"golang.org/x/net/html/charset"

	"github.com/ternarybob/rankwatch/internal/common"
	"github.com/ternarybob/rankwatch/internal/interfaces"
	"github.com/ternarybob/rankwatch/internal/retry"
)

// StatusError is a non-2xx response from a ranking page.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d from %s", e.StatusCode, e.URL)
}

// FetcherOption configures a fetcher.
type FetcherOption func(*fetcherOptions)

type fetcherOptions struct {
	sleep retry.Sleeper
}

// WithSleeper replaces the backoff sleeper (tests).
func WithSleeper(sleep retry.Sleeper) FetcherOption {
	return func(o *fetcherOptions) {
		o.sleep = sleep
	}
}

// HTTPFetcher downloads pages with a browser user agent, retrying every
// failure (transport or status) under the retry policy.
type HTTPFetcher struct {
	client    *resty.Client
	userAgent string
	policy    retry.Policy
	sleep     retry.Sleeper
	logger    arbor.ILogger
}

// NewHTTPFetcher creates an HTTPFetcher from the fetch configuration.
func NewHTTPFetcher(config common.FetchConfig, logger arbor.ILogger, opts ...FetcherOption) *HTTPFetcher {
	o := fetcherOptions{sleep: retry.Sleep}
	for _, opt := range opts {
		opt(&o)
	}

	client := resty.New().
		SetTimeout(config.Timeout()).
		SetRetryCount(0)

	return &HTTPFetcher{
		client:    client,
		userAgent: config.UserAgent,
		policy:    retry.Policy{Attempts: config.RetryCount, Delays: config.Delays()},
		sleep:     o.sleep,
		logger:    logger,
	}
}

// Fetch implements interfaces.PageFetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (string, error) {
	var body string

	_, err := retry.Do(ctx, f.policy, f.sleep, func(attempt int) error {
		f.logger.Info().
			Str("url", url).
			Int("attempt", attempt).
			Int("max_attempts", f.policy.Attempts).
			Msg("Fetching ranking page")

		resp, err := f.client.R().
			SetContext(ctx).
			SetHeader("User-Agent", f.userAgent).
			Get(url)
		if err != nil {
			return fmt.Errorf("request to %s failed: %w", url, err)
		}
		if resp.IsError() {
			return &StatusError{StatusCode: resp.StatusCode(), URL: url}
		}

		text, err := decodeBody(resp.Body(), resp.Header().Get("Content-Type"))
		if err != nil {
			return err
		}
		body = text

		f.logger.Debug().
			Str("url", url).
			Int("status", resp.StatusCode()).
			Int("bytes", len(body)).
			Msg("Ranking page fetched")
		return nil
	}, func(attempt int, delay time.Duration, err error) {
		f.logger.Warn().
			Err(err).
			Str("url", url).
			Int("attempt", attempt).
			Str("retry_in", delay.String()).
			Msg("Fetch failed, retrying")
	})
	if err != nil {
		return "", err
	}
	return body, nil
}

// decodeBody converts the page to UTF-8 using the declared or sniffed charset
// (Japanese pages are often Shift_JIS or EUC-JP).
func decodeBody(body []byte, contentType string) (string, error) {
	reader, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		return string(body), nil
	}
	decoded, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("failed to decode page body: %w", err)
	}
	return string(decoded), nil
}

// NewFetcher returns the fetcher selected by fetch.mode.
func NewFetcher(config common.FetchConfig, logger arbor.ILogger, opts ...FetcherOption) (interfaces.PageFetcher, error) {
	switch config.Mode {
	case "", "http":
		return NewHTTPFetcher(config, logger, opts...), nil
	case "browser":
		return NewBrowserFetcher(config, logger, opts...), nil
	default:
		return nil, fmt.Errorf("unknown fetch mode: %s", config.Mode)
	}
}
