package retry

import (
	"context"
	"errors"
	"time"
)

// Policy is an attempt budget plus the delays slept between attempts.
// When there are more gaps than delays the last delay is reused.
type Policy struct {
	Attempts int
	Delays   []time.Duration
}

// DefaultPolicy is three attempts with 5s, 10s and 20s backoff.
func DefaultPolicy() Policy {
	return Policy{
		Attempts: 3,
		Delays:   []time.Duration{5 * time.Second, 10 * time.Second, 20 * time.Second},
	}
}

// Delay returns the pause after the given failed attempt (1-based).
func (p Policy) Delay(attempt int) time.Duration {
	if len(p.Delays) == 0 || attempt < 1 {
		return 0
	}
	if attempt > len(p.Delays) {
		return p.Delays[len(p.Delays)-1]
	}
	return p.Delays[attempt-1]
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the real Sleeper.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Do calls fn until it succeeds, returns a permanent error, the budget is
// spent, or ctx is cancelled. onRetry (optional) runs before each pause.
// It returns the number of attempts made and the last error, unwrapped from
// any Permanent marker.
func Do(ctx context.Context, p Policy, sleep Sleeper, fn func(attempt int) error, onRetry func(attempt int, delay time.Duration, err error)) (int, error) {
	if sleep == nil {
		sleep = Sleep
	}
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn(attempt)
		if err == nil {
			return attempt, nil
		}
		if IsPermanent(err) {
			return attempt, unwrapPermanent(err)
		}
		if attempt == attempts {
			return attempt, err
		}

		delay := p.Delay(attempt)
		if onRetry != nil {
			onRetry(attempt, delay, err)
		}
		if sleepErr := sleep(ctx, delay); sleepErr != nil {
			return attempt, errors.Join(err, sleepErr)
		}
	}
	return attempts, err
}

func unwrapPermanent(err error) error {
	var p *permanentError
	if errors.As(err, &p) {
		return p.err
	}
	return err
}
