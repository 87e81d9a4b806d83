// Package delivery sends rendered messages through an unreliable chat
// transport.
//
// Outbound calls are retried with exponential backoff, but only for
// errors classified as transient. Ledger state is committed before
// anything is delivered, so a dropped reply never affects the ledger.
package delivery

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/mmynk/groupledger/internal/metrics"
	"github.com/mmynk/groupledger/pkg/logging"
)

const (
	DefaultAttempts  = 3
	DefaultBaseDelay = time.Second
)

type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Transient marks err as safe to retry.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether err is worth retrying: network timeouts,
// deadline expiry and errors marked with Transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var te *transientError
	if errors.As(err, &te) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// Retrier retries transient failures with exponential backoff.
// Delays are BaseDelay, 2*BaseDelay, 4*BaseDelay, ... without jitter.
type Retrier struct {
	Attempts  int
	BaseDelay time.Duration
	Metrics   *metrics.Metrics
}

// NewRetrier returns a Retrier with the given limits; zero values fall
// back to the defaults.
func NewRetrier(attempts int, baseDelay time.Duration, m *metrics.Metrics) Retrier {
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	if baseDelay <= 0 {
		baseDelay = DefaultBaseDelay
	}
	return Retrier{Attempts: attempts, BaseDelay: baseDelay, Metrics: m}
}

// Do calls fn until it succeeds, fails with a non-transient error, or
// the attempts are used up. The last error is returned.
func (r Retrier) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	logger := logging.FromContext(ctx)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.BaseDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = r.BaseDelay << r.Attempts

	operation := func() (struct{}, error) {
		err := fn(ctx)
		switch {
		case err == nil:
			r.Metrics.ObserveDelivery(op, metrics.OutcomeOK)
			return struct{}{}, nil
		case IsTransient(err):
			r.Metrics.ObserveDelivery(op, metrics.OutcomeRetry)
			return struct{}{}, err
		default:
			r.Metrics.ObserveDelivery(op, metrics.OutcomeError)
			return struct{}{}, backoff.Permanent(err)
		}
	}
	notify := func(err error, next time.Duration) {
		logger.Warn("Transient delivery failure, retrying", "op", op, "error", err, "retry_in", next)
	}

	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(r.Attempts)),
		backoff.WithNotify(notify),
	)
	return err
}
