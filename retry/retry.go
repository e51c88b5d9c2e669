// Package retry runs fallible operations with exponential backoff.
//
// A Retrier executes an operation once and, on failure, retries it up to
// Policy.MaxRetries times. The wait before retry n (0-based) is
// BaseDelay * Multiplier^n. There is no jitter. When every attempt fails the
// error of the last attempt is returned unchanged.
package retry

import (
	"context"
	"math"
	"time"

	"github.com/hairizuanbinnoorazman/rateloop/logger"
)

const (
	// DefaultMaxRetries is the number of retries after the first attempt.
	DefaultMaxRetries = 3

	// DefaultBaseDelay is the wait before the first retry.
	DefaultBaseDelay = time.Second

	// DefaultMultiplier is the backoff growth factor.
	DefaultMultiplier = 2
)

// Policy describes how often and how patiently an operation is retried.
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
	Multiplier float64
}

// DefaultPolicy returns 3 retries starting at one second and doubling.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: DefaultMaxRetries,
		BaseDelay:  DefaultBaseDelay,
		Multiplier: DefaultMultiplier,
	}
}

// Delay returns the wait before retry number attempt, counting from 0.
func (p Policy) Delay(attempt int) time.Duration {
	multiplier := p.Multiplier
	if multiplier <= 0 {
		multiplier = DefaultMultiplier
	}
	return time.Duration(float64(p.BaseDelay) * math.Pow(multiplier, float64(attempt)))
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// TimerSleep is the default Sleeper.
func TimerSleep(ctx context.Context, d time.Duration) error {
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

// Retrier applies a Policy to operations.
type Retrier struct {
	policy Policy
	sleep  Sleeper
	logger logger.Logger
}

// Option configures a Retrier.
type Option func(*Retrier)

// WithSleeper replaces the backoff wait, mostly for tests.
func WithSleeper(s Sleeper) Option {
	return func(r *Retrier) {
		r.sleep = s
	}
}

// New creates a Retrier for the given policy.
func New(policy Policy, log logger.Logger, opts ...Option) *Retrier {
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}
	r := &Retrier{
		policy: policy,
		sleep:  TimerSleep,
		logger: log,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Policy returns the policy the retrier was built with.
func (r *Retrier) Policy() Policy {
	return r.policy
}

// WithLogger returns a copy of the retrier that logs to log.
func (r *Retrier) WithLogger(log logger.Logger) *Retrier {
	clone := *r
	clone.logger = log
	return &clone
}

// Do runs op until it succeeds or the policy is exhausted.
// name only labels log lines.
func (r *Retrier) Do(ctx context.Context, name string, op func(ctx context.Context) error) error {
	_, err := Value(ctx, r, name, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// Value is Do for operations that produce a result.
func Value[T any](ctx context.Context, r *Retrier, name string, op func(ctx context.Context) (T, error)) (T, error) {
	var (
		zero    T
		lastErr error
	)

	maxRetries := r.policy.MaxRetries
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			r.logger.Info(ctx, "retry attempt", map[string]interface{}{
				"action":      name,
				"attempt":     attempt,
				"max_retries": maxRetries,
			})
		}

		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if attempt == maxRetries {
			r.logger.Error(ctx, "all retry attempts failed", map[string]interface{}{
				"action": name,
				"error":  err.Error(),
			})
			break
		}

		delay := r.policy.Delay(attempt)
		r.logger.Warn(ctx, "action failed, retrying", map[string]interface{}{
			"action":   name,
			"error":    err.Error(),
			"delay_ms": delay.Milliseconds(),
		})
		if err := r.sleep(ctx, delay); err != nil {
			return zero, err
		}
	}

	return zero, lastErr
}
