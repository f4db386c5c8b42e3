// Package retry runs an operation again with exponential backoff until it
// succeeds, fails permanently, or runs out of attempts.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

// ErrExhausted is joined with the last error when every attempt failed.
var ErrExhausted = errors.New("retry attempts exhausted")

// Config controls the retry loop.
type Config struct {
	// Attempts is the total number of calls, including the first.
	Attempts int

	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64

	// Jitter spreads each delay by up to this fraction either way.
	Jitter float64

	// RetryIf decides whether err is worth another attempt. Nil retries
	// everything that is not Permanent.
	RetryIf func(err error) bool

	// OnRetry runs before sleeping ahead of attempt n (2-based).
	OnRetry func(n int, err error, delay time.Duration)
}

// DefaultConfig suits a quick upstream HTTP call.
func DefaultConfig() *Config {
	return &Config{
		Attempts:     3,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Multiplier:   2,
		Jitter:       0.1,
	}
}

// Do calls fn until it succeeds. It stops early on a Permanent error, an
// error RetryIf rejects, or ctx cancellation.
func Do(ctx context.Context, config *Config, fn func(ctx context.Context) error) error {
	_, err := DoValue(ctx, config, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoValue is Do for operations that return a value.
func DoValue[T any](ctx context.Context, config *Config, fn func(ctx context.Context) (T, error)) (T, error) {
	if config == nil {
		config = DefaultConfig()
	}
	attempts := max(config.Attempts, 1)

	var zero T
	var lastErr error

	for n := 1; n <= attempts; n++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return zero, fmt.Errorf("%w (last error: %v)", err, lastErr)
			}
			return zero, err
		}

		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err

		if IsPermanent(err) || (config.RetryIf != nil && !config.RetryIf(err)) {
			return zero, err
		}
		if n == attempts {
			break
		}

		delay := Backoff(n-1, config)
		if config.OnRetry != nil {
			config.OnRetry(n+1, err, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, fmt.Errorf("%w (last error: %v)", ctx.Err(), lastErr)
		case <-timer.C:
		}
	}

	return zero, errors.Join(ErrExhausted, lastErr)
}

// Backoff returns the delay after the given zero-based failure.
func Backoff(failure int, config *Config) time.Duration {
	delay := float64(config.InitialDelay) * math.Pow(config.Multiplier, float64(failure))
	if config.MaxDelay > 0 && delay > float64(config.MaxDelay) {
		delay = float64(config.MaxDelay)
	}
	if config.Jitter > 0 {
		spread := delay * config.Jitter
		delay = delay - spread + rand.Float64()*2*spread
	}
	return time.Duration(delay)
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. Errors.Is and As still see
// through it.
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
