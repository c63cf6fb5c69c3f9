package webhook

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/rankwatch/internal/common"
)

type recordingNotifier struct {
	ok       bool
	messages []string
}

func (r *recordingNotifier) Notify(_ context.Context, message string) bool {
	r.messages = append(r.messages, message)
	return r.ok
}

func newTestServer(secret string, notifier *recordingNotifier, rateLimit float64, burst int) *Server {
	cfg := common.WebhookConfig{Secret: secret, RateLimit: rateLimit, Burst: burst}
	s := NewServer(cfg, notifier, time.UTC, arbor.NewLogger())
	s.now = func() time.Time { return time.Date(2025, time.October, 20, 1, 2, 3, 0, time.UTC) }
	return s
}

func post(s *Server, secret, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhook/tradingview", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if secret != "" {
		req.Header.Set(SecretHeader, secret)
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestTradingView_Delivers(t *testing.T) {
	notifier := &recordingNotifier{ok: true}
	s := newTestServer("s3cret", notifier, 0, 0)

	w := post(s, "s3cret", `{"ticker":"7203","action":"BUY","close":2500.5,"strategy":"breakout"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())

	require.Len(t, notifier.messages, 1)
	assert.Equal(t, "🟢 TradingView Alert\nticker: 7203\nstrategy: breakout\naction: BUY\nprice: 2500.5\ntime: 2025-10-20 01:02:03", notifier.messages[0])
}

func TestTradingView_StatusCodes(t *testing.T) {
	tests := []struct {
		name       string
		configured string
		given      string
		body       string
		deliver    bool
		want       int
	}{
		{name: "secret not configured", given: "x", body: `{}`, deliver: true, want: http.StatusInternalServerError},
		{name: "missing secret", configured: "s3cret", body: `{}`, deliver: true, want: http.StatusForbidden},
		{name: "wrong secret", configured: "s3cret", given: "nope", body: `{}`, deliver: true, want: http.StatusForbidden},
		{name: "malformed body", configured: "s3cret", given: "s3cret", body: `{"ticker":`, deliver: true, want: http.StatusBadRequest},
		{name: "array body", configured: "s3cret", given: "s3cret", body: `[1,2]`, deliver: true, want: http.StatusBadRequest},
		{name: "null body", configured: "s3cret", given: "s3cret", body: `null`, deliver: true, want: http.StatusBadRequest},
		{name: "trailing garbage", configured: "s3cret", given: "s3cret", body: `{"ticker":"7203"} this is not json`, deliver: true, want: http.StatusBadRequest},
		{name: "two objects", configured: "s3cret", given: "s3cret", body: `{"ticker":"7203"} {"ticker":"6758"}`, deliver: true, want: http.StatusBadRequest},
		{name: "trailing whitespace", configured: "s3cret", given: "s3cret", body: "{\"ticker\":\"7203\"}\n", deliver: true, want: http.StatusOK},
		{name: "delivery failure", configured: "s3cret", given: "s3cret", body: `{"message":"hi"}`, deliver: false, want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			notifier := &recordingNotifier{ok: tt.deliver}
			s := newTestServer(tt.configured, notifier, 0, 0)

			w := post(s, tt.given, tt.body)
			assert.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusBadRequest {
				assert.Empty(t, notifier.messages)
			}
		})
	}
}

type blockingNotifier struct{}

func (blockingNotifier) Notify(ctx context.Context, _ string) bool {
	<-ctx.Done()
	return false
}

func TestTradingView_DeliveryBoundedBeforeWriteTimeout(t *testing.T) {
	assert.Less(t, deliveryTimeout, writeTimeout)

	s := NewServer(common.WebhookConfig{Secret: "s3cret"}, blockingNotifier{}, time.UTC, arbor.NewLogger())
	assert.Equal(t, writeTimeout, s.server.WriteTimeout)
	s.deliveryTimeout = 20 * time.Millisecond

	start := time.Now()
	w := post(s, "s3cret", `{"message":"hi"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Failed to send notification", w.Body.String())
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestTradingView_RateLimited(t *testing.T) {
	notifier := &recordingNotifier{ok: true}
	s := newTestServer("s3cret", notifier, 0.001, 2)

	assert.Equal(t, http.StatusOK, post(s, "s3cret", `{"message":"1"}`).Code)
	assert.Equal(t, http.StatusOK, post(s, "s3cret", `{"message":"2"}`).Code)
	assert.Equal(t, http.StatusTooManyRequests, post(s, "s3cret", `{"message":"3"}`).Code)
	assert.Len(t, notifier.messages, 2)
}

func TestHealth(t *testing.T) {
	s := newTestServer("", &recordingNotifier{}, 0, 0)

	for _, path := range []string{"/health", "/webhook/tradingview"} {
		w := httptest.NewRecorder()
		s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}
