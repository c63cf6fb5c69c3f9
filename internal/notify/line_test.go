package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/rankwatch/internal/common"
)

func TestLINESender_Push(t *testing.T) {
	var gotAuth, gotContentType string
	var got linePushRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))
		w.Write([]byte("{}"))
	}))
	defer server.Close()

	sender, err := NewLINESender(common.LINEConfig{
		Endpoint:    server.URL,
		AccessToken: "channel-token",
		UserID:      "U0123456789abcdef",
	}, 5*time.Second, arbor.NewLogger())
	require.NoError(t, err)

	require.NoError(t, sender.Send(context.Background(), "✅ [SUCCESS]"))

	assert.Equal(t, "Bearer channel-token", gotAuth)
	assert.Contains(t, gotContentType, "application/json")
	assert.Equal(t, "U0123456789abcdef", got.To)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "text", got.Messages[0].Type)
	assert.Equal(t, "✅ [SUCCESS]", got.Messages[0].Text)
}

func TestLINESender_StatusErrors(t *testing.T) {
	status := http.StatusUnauthorized
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		w.Write([]byte(`{"message":"Authentication failed"}`))
	}))
	defer server.Close()

	sender, err := NewLINESender(common.LINEConfig{Endpoint: server.URL, AccessToken: "t", UserID: "u"}, time.Second, arbor.NewLogger())
	require.NoError(t, err)

	err = sender.Send(context.Background(), "x")
	var delivery *DeliveryError
	require.True(t, errors.As(err, &delivery))
	assert.Equal(t, http.StatusUnauthorized, delivery.StatusCode)
	assert.False(t, delivery.Retryable())
	assert.Contains(t, delivery.Body, "Authentication failed")

	status = http.StatusBadGateway
	err = sender.Send(context.Background(), "x")
	require.True(t, errors.As(err, &delivery))
	assert.True(t, delivery.Retryable())
}

func TestLINESender_MissingCredentials(t *testing.T) {
	_, err := NewLINESender(common.LINEConfig{AccessToken: "t"}, time.Second, arbor.NewLogger())
	assert.ErrorIs(t, err, ErrMissingCredentials)

	_, err = NewLINESender(common.LINEConfig{UserID: "u"}, time.Second, arbor.NewLogger())
	assert.ErrorIs(t, err, ErrMissingCredentials)
}

func TestTruncateRunes(t *testing.T) {
	short := "ランキング"
	assert.Equal(t, short, truncateRunes(short, MaxLINETextRunes))

	long := strings.Repeat("株", MaxLINETextRunes+10)
	out := truncateRunes(long, MaxLINETextRunes)
	assert.Equal(t, MaxLINETextRunes, utf8.RuneCountInString(out))
	assert.True(t, strings.HasSuffix(out, truncationMarker))
}
