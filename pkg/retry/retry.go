// Package retry runs fallible operations with exponential backoff.
//
// Failures carrying a client-error status (4xx) are returned immediately
// unless the status is explicitly listed as retryable; everything else is
// retried until the attempt budget is spent.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	holonlog "github.com/holon-run/supportchat/pkg/log"
)

const (
	defaultMaxAttempts       = 3
	defaultInitialDelay      = 1 * time.Second
	defaultBackoffMultiplier = 2.0
)

// StatusCoder is implemented by errors that carry an HTTP-style status code.
type StatusCoder interface {
	HTTPStatus() int
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Options defines retry behavior. Zero fields take their defaults.
type Options struct {
	MaxAttempts       int           // Total attempts including the first one
	InitialDelay      time.Duration // Wait after the first failure
	BackoffMultiplier float64       // Growth factor between waits; values <= 1 take the default
	// MaxDelay caps a single wait; 0 means uncapped. Once the cap is reached
	// waits stop growing.
	MaxDelay time.Duration
	// RetryableStatus lists 4xx codes that are retried anyway (e.g. 429).
	RetryableStatus []int
	Sleep           SleepFunc
}

// DefaultOptions returns the default retry policy: 3 attempts, 1s initial
// delay, doubling each time.
func DefaultOptions() Options {
	return Options{
		MaxAttempts:       defaultMaxAttempts,
		InitialDelay:      defaultInitialDelay,
		BackoffMultiplier: defaultBackoffMultiplier,
	}
}

func (o Options) withDefaults() Options {
	if o.MaxAttempts < 1 {
		o.MaxAttempts = defaultMaxAttempts
	}
	if o.InitialDelay <= 0 {
		o.InitialDelay = defaultInitialDelay
	}
	if o.BackoffMultiplier <= 1 {
		o.BackoffMultiplier = defaultBackoffMultiplier
	}
	if o.Sleep == nil {
		o.Sleep = Sleep
	}
	return o
}

// Delay returns the wait that follows failed attempt number attempt (1-based):
// InitialDelay * BackoffMultiplier^(attempt-1), capped by MaxDelay.
func (o Options) Delay(attempt int) time.Duration {
	o = o.withDefaults()
	if attempt < 1 {
		attempt = 1
	}
	d := float64(o.InitialDelay) * math.Pow(o.BackoffMultiplier, float64(attempt-1))
	if d > math.MaxInt64 {
		d = math.MaxInt64
	}
	delay := time.Duration(d)
	if o.MaxDelay > 0 && delay > o.MaxDelay {
		delay = o.MaxDelay
	}
	return delay
}

// ShouldRetry reports whether a failure with the given status may be retried.
// A status of 0 means the error carried none.
func (o Options) ShouldRetry(status int) bool {
	if !IsClientError(status) {
		return true
	}
	for _, code := range o.RetryableStatus {
		if code == status {
			return true
		}
	}
	return false
}

// IsClientError reports whether status is in the [400, 500) range.
func IsClientError(status int) bool {
	return status >= 400 && status < 500
}

// StatusOf extracts the status code from err, or 0 if none is present.
func StatusOf(err error) int {
	var sc StatusCoder
	if errors.As(err, &sc) {
		return sc.HTTPStatus()
	}
	return 0
}

// Do runs op until it succeeds, fails with a non-retryable error, or the
// attempt budget is exhausted. The last error is returned unchanged.
func Do[T any](ctx context.Context, op func(ctx context.Context) (T, error), opts Options) (T, error) {
	opts = opts.withDefaults()

	var zero T
	for attempt := 1; ; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}

		status := StatusOf(err)
		if !opts.ShouldRetry(status) {
			return zero, err
		}
		if attempt >= opts.MaxAttempts {
			return zero, err
		}

		delay := opts.Delay(attempt)
		holonlog.Debug("retrying operation", "attempt", attempt, "status", status, "delay", delay, "error", err)
		if serr := opts.Sleep(ctx, delay); serr != nil {
			return zero, fmt.Errorf("retry aborted after attempt %d: %w", attempt, errors.Join(serr, err))
		}
	}
}

// Run is Do for operations without a result.
func Run(ctx context.Context, op func(ctx context.Context) error, opts Options) error {
	_, err := Do(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	}, opts)
	return err
}

// Sleep waits for d, returning early with ctx.Err() if ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
