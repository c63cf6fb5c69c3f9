// Package notify delivers plain-text messages to a push messaging API with
// status-aware retry.
package notify

import (
	"context"
	"errors"
	"fmt"
)

// ErrMissingCredentials is returned at construction when the access token or
// destination is not configured.
var ErrMissingCredentials = errors.New("notification credentials not configured")

// Sender performs a single delivery attempt.
type Sender interface {
	Send(ctx context.Context, text string) error
}

// DeliveryError is a non-2xx answer from the messaging endpoint.
type DeliveryError struct {
	StatusCode int
	Body       string
}

func (e *DeliveryError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("delivery rejected with status %d", e.StatusCode)
	}
	return fmt.Sprintf("delivery rejected with status %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether the endpoint failed on its side (5xx).
func (e *DeliveryError) Retryable() bool {
	return e.StatusCode >= 500
}
