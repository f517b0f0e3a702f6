package llmprovider

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// RetryPolicy tunes the per-adapter retry of transient failures.
// Zero values are replaced with the defaults documented below.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first.
	// Default: 3.
	MaxAttempts int

	// BaseDelay is the wait before the second attempt.
	// Default: 500ms.
	BaseDelay time.Duration

	// MaxDelay caps the computed backoff.
	// Default: 20s.
	MaxDelay time.Duration

	// JitterFraction adds random noise in [0, JitterFraction*backoff].
	// Default: 0.2.
	JitterFraction float64

	// MaxRetryAfter is the longest vendor retry hint we wait for inside the
	// adapter. Longer hints end the retry loop so the Manager can fall back.
	// Default: 30s.
	MaxRetryAfter time.Duration
}

// DefaultRetryPolicy returns the policy used when adapters are not configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{}.withDefaults()
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 500 * time.Millisecond
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 20 * time.Second
	}
	if p.JitterFraction <= 0 {
		p.JitterFraction = 0.2
	}
	if p.MaxRetryAfter <= 0 {
		p.MaxRetryAfter = 30 * time.Second
	}
	return p
}

// Backoff returns the delay before retry number retry (0-indexed):
// min(BaseDelay * 2^retry, MaxDelay) plus jitter.
func (p RetryPolicy) Backoff(retry int) time.Duration {
	p = p.withDefaults()
	base := float64(p.BaseDelay) * math.Pow(2, float64(retry))
	if base > float64(p.MaxDelay) {
		base = float64(p.MaxDelay)
	}
	jitter := base * p.JitterFraction * rand.Float64() //nolint:gosec // non-cryptographic jitter
	return time.Duration(base + jitter)
}

// Retry calls op until it succeeds, fails with a non-transient error, or the
// policy's attempts are used up. It returns the last error unchanged so the
// classification made at the point of failure survives.
func Retry(ctx context.Context, policy RetryPolicy, logger *zap.Logger, provider ProviderID, op func(attempt int) error) error {
	policy = policy.withDefaults()
	logger = orNop(logger)

	for attempt := 1; ; attempt++ {
		err := op(attempt)
		if err == nil {
			return nil
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		if !IsRetryable(err) || attempt >= policy.MaxAttempts {
			return err
		}

		delay := policy.Backoff(attempt - 1)
		if hint, ok := RetryAfterOf(err); ok {
			if hint > policy.MaxRetryAfter {
				logger.Warn("retry-after hint exceeds limit, giving up on provider",
					zap.String("provider", provider.String()),
					zap.Int("attempt", attempt),
					zap.Duration("retry_after", hint),
					zap.Error(err),
				)
				return err
			}
			delay = hint
		}

		logger.Warn("retrying provider request",
			zap.String("provider", provider.String()),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)

		if err := sleep(ctx, delay); err != nil {
			return err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
