package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/rankwatch/internal/common"
	"github.com/ternarybob/rankwatch/internal/retry"
)

// Notifier wraps a Sender with the retry policy. Client errors (4xx) are not
// retried; server and transport errors are, up to the attempt budget.
type Notifier struct {
	sender Sender
	policy retry.Policy
	sleep  retry.Sleeper
	logger arbor.ILogger
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithSleeper replaces the backoff sleeper (tests).
func WithSleeper(sleep retry.Sleeper) Option {
	return func(n *Notifier) {
		n.sleep = sleep
	}
}

// NewNotifier creates a Notifier over sender.
func NewNotifier(sender Sender, policy retry.Policy, logger arbor.ILogger, opts ...Option) *Notifier {
	n := &Notifier{
		sender: sender,
		policy: policy,
		sleep:  retry.Sleep,
		logger: logger,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Notify delivers message and returns true only on confirmed success.
func (n *Notifier) Notify(ctx context.Context, message string) bool {
	attempts, err := retry.Do(ctx, n.policy, n.sleep, func(attempt int) error {
		err := n.sender.Send(ctx, message)
		if err == nil {
			return nil
		}
		var delivery *DeliveryError
		if errors.As(err, &delivery) && !delivery.Retryable() {
			return retry.Permanent(err)
		}
		return err
	}, func(attempt int, delay time.Duration, err error) {
		n.logger.Warn().
			Err(err).
			Int("attempt", attempt).
			Int("max_attempts", n.policy.Attempts).
			Str("retry_in", delay.String()).
			Msg("Notification failed, retrying")
	})

	if err != nil {
		n.logger.Error().
			Err(err).
			Int("attempts", attempts).
			Msg("Notification not delivered")
		return false
	}

	n.logger.Info().
		Int("attempts", attempts).
		Msg("Notification delivered")
	return true
}

// NewSender returns the sender selected by notify.provider.
func NewSender(config common.NotifyConfig, logger arbor.ILogger) (Sender, error) {
	switch config.Provider {
	case "", "line":
		return NewLINESender(config.LINE, config.Timeout(), logger)
	case "log":
		return NewLogSender(logger), nil
	default:
		return nil, fmt.Errorf("unknown notification provider: %s", config.Provider)
	}
}

// New builds the configured Notifier.
func New(config common.NotifyConfig, logger arbor.ILogger, opts ...Option) (*Notifier, error) {
	sender, err := NewSender(config, logger)
	if err != nil {
		return nil, err
	}
	policy := retry.Policy{Attempts: config.RetryCount, Delays: config.Delays()}
	return NewNotifier(sender, policy, logger, opts...), nil
}
