package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/rankwatch/internal/common"
)

const (
	// DefaultLINEEndpoint is the LINE Messaging API push endpoint.
	DefaultLINEEndpoint = "https://api.line.me/v2/bot/message/push"

	// MaxLINETextRunes is the LINE text message limit.
	MaxLINETextRunes = 5000

	truncationMarker = "\n…(truncated)"
)

type lineMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type linePushRequest struct {
	To       string        `json:"to"`
	Messages []lineMessage `json:"messages"`
}

// LINESender pushes text messages to one LINE user or group.
type LINESender struct {
	client   *resty.Client
	endpoint string
	token    string
	to       string
	logger   arbor.ILogger
}

// NewLINESender creates a LINESender. Token and destination are required.
func NewLINESender(config common.LINEConfig, timeout time.Duration, logger arbor.ILogger) (*LINESender, error) {
	if config.AccessToken == "" || config.UserID == "" {
		return nil, fmt.Errorf("%w: LINE access token and target user id are required", ErrMissingCredentials)
	}

	endpoint := config.Endpoint
	if endpoint == "" {
		endpoint = DefaultLINEEndpoint
	}

	return &LINESender{
		client:   resty.New().SetTimeout(timeout).SetRetryCount(0),
		endpoint: endpoint,
		token:    config.AccessToken,
		to:       config.UserID,
		logger:   logger,
	}, nil
}

// Send implements Sender.
func (l *LINESender) Send(ctx context.Context, text string) error {
	resp, err := l.client.R().
		SetContext(ctx).
		SetAuthToken(l.token).
		SetHeader("Content-Type", "application/json").
		SetBody(linePushRequest{
			To:       l.to,
			Messages: []lineMessage{{Type: "text", Text: truncateRunes(text, MaxLINETextRunes)}},
		}).
		Post(l.endpoint)
	if err != nil {
		return fmt.Errorf("LINE push failed: %w", err)
	}
	if !resp.IsSuccess() {
		return &DeliveryError{StatusCode: resp.StatusCode(), Body: resp.String()}
	}

	l.logger.Debug().
		Int("status", resp.StatusCode()).
		Str("to", maskID(l.to)).
		Msg("LINE push accepted")
	return nil
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	marker := []rune(truncationMarker)
	return string(runes[:max-len(marker)]) + truncationMarker
}

func maskID(id string) string {
	if len(id) <= 10 {
		return id
	}
	return id[:10] + "..."
}
