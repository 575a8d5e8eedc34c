// Package retry implements the backoff policy shared by queue-level retries
// (after a failed result) and execution-level retries (inside a worker's
// task handler).
package retry

import (
	"context"
	"math/rand"
	"time"

	"github.com/colonycore/colony/internal/errors"
)

// Default policy parameters.
const (
	DefaultMaxRetries = 3
	DefaultBaseDelay  = 1000 * time.Millisecond
	DefaultMultiplier = 2.0
	DefaultMaxDelay   = 30000 * time.Millisecond

	// jitterFraction is the upper bound of the uniform jitter applied to
	// each delay: delay *= 1 + U[0, jitterFraction).
	jitterFraction = 0.1
)

// Policy decides whether a failed attempt should be retried and how long
// to wait before the next attempt.
type Policy interface {
	// ShouldRetry reports whether a task that has now failed `attempt`
	// times should be retried. Fatal error classes are never retried
	// regardless of the attempt count.
	ShouldRetry(attempt int, err error) bool

	// Delay returns the backoff delay before the given attempt is retried.
	Delay(attempt int) time.Duration

	// MaxRetries returns the maximum number of retry attempts.
	MaxRetries() int
}

// ExponentialBackoff retries transient failures with exponentially growing,
// jittered delays capped at MaxDelay.
type ExponentialBackoff struct {
	Retries    int
	BaseDelay  time.Duration
	Multiplier float64
	MaxDelay   time.Duration

	// rand returns the jitter sample in [0, 1). Overridable for tests.
	rand func() float64
}

// Option configures an ExponentialBackoff.
type Option func(*ExponentialBackoff)

// WithMaxRetries sets the retry budget.
func WithMaxRetries(n int) Option {
	return func(p *ExponentialBackoff) { p.Retries = n }
}

// WithBaseDelay sets the first-attempt delay.
func WithBaseDelay(d time.Duration) Option {
	return func(p *ExponentialBackoff) { p.BaseDelay = d }
}

// WithMultiplier sets the per-attempt growth factor.
func WithMultiplier(m float64) Option {
	return func(p *ExponentialBackoff) { p.Multiplier = m }
}

// WithMaxDelay caps the computed delay.
func WithMaxDelay(d time.Duration) Option {
	return func(p *ExponentialBackoff) { p.MaxDelay = d }
}

// WithRand overrides the jitter source. Used in tests.
func WithRand(r func() float64) Option {
	return func(p *ExponentialBackoff) { p.rand = r }
}

// NewExponentialBackoff returns the default policy, 3 retries with a 1s base
// delay doubling per attempt and capped at 30s, modified by the given options.
func NewExponentialBackoff(opts ...Option) *ExponentialBackoff {
	p := &ExponentialBackoff{
		Retries:    DefaultMaxRetries,
		BaseDelay:  DefaultBaseDelay,
		Multiplier: DefaultMultiplier,
		MaxDelay:   DefaultMaxDelay,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ShouldRetry retries while attempts remain, unless the error is fatal.
func (p *ExponentialBackoff) ShouldRetry(attempt int, err error) bool {
	if errors.IsFatal(err) {
		return false
	}
	return attempt < p.Retries
}

// Delay computes min(BaseDelay * Multiplier^attempt * (1 + jitter), MaxDelay)
// with jitter drawn uniformly from [0, 0.1).
func (p *ExponentialBackoff) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	backoff := float64(p.BaseDelay)
	for i := 0; i < attempt; i++ {
		backoff *= p.Multiplier
		if backoff >= float64(p.MaxDelay) {
			return p.MaxDelay
		}
	}

	backoff *= 1 + jitterFraction*p.jitter()
	if backoff > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(backoff)
}

// MaxRetries returns the configured retry budget.
func (p *ExponentialBackoff) MaxRetries() int { return p.Retries }

func (p *ExponentialBackoff) jitter() float64 {
	if p.rand != nil {
		return p.rand()
	}
	return rand.Float64()
}

// NoRetry is a Policy that never retries.
type NoRetry struct{}

// NewNoRetry returns a Policy that never retries.
func NewNoRetry() NoRetry { return NoRetry{} }

// ShouldRetry always returns false.
func (NoRetry) ShouldRetry(int, error) bool { return false }

// Delay always returns zero.
func (NoRetry) Delay(int) time.Duration { return 0 }

// MaxRetries returns zero.
func (NoRetry) MaxRetries() int { return 0 }

// FixedDelay retries with a constant delay between attempts.
type FixedDelay struct {
	Retries int
	Wait    time.Duration
}

// NewFixedDelay returns a FixedDelay policy with the given budget and delay.
func NewFixedDelay(retries int, wait time.Duration) *FixedDelay {
	return &FixedDelay{Retries: retries, Wait: wait}
}

// ShouldRetry retries while attempts remain, unless the error is fatal.
func (p *FixedDelay) ShouldRetry(attempt int, err error) bool {
	if errors.IsFatal(err) {
		return false
	}
	return attempt < p.Retries
}

// Delay returns the constant configured delay.
func (p *FixedDelay) Delay(int) time.Duration { return p.Wait }

// MaxRetries returns the configured retry budget.
func (p *FixedDelay) MaxRetries() int { return p.Retries }

// Do runs fn, retrying per the policy. It sleeps the policy delay between
// attempts and aborts early when ctx is canceled. The last error is returned
// when the budget is exhausted or the error is fatal.
func Do(ctx context.Context, policy Policy, fn func() error) error {
	var lastErr error
	for failures := 1; ; failures++ {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(errors.ErrCanceled, "retry aborted")
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !policy.ShouldRetry(failures, lastErr) {
			return lastErr
		}

		select {
		case <-time.After(policy.Delay(failures)):
		case <-ctx.Done():
			return errors.Wrap(errors.ErrCanceled, "retry aborted")
		}
	}
}
