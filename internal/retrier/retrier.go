/**
 * Bounded retry around transient failures
 *
 * Exponential backoff, applied only when the failure classifies as
 * transient (connectivity, timeout). Validation and malformed-input
 * failures propagate immediately.
 */

package retrier

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/landreg/transcript-worker/internal/ocrerr"
)

// Policy bounds the retry loop.
type Policy struct {
	MaxAttempts int
	MinBackoff  time.Duration
	MaxBackoff  time.Duration
}

// DefaultPolicy matches the pipeline defaults: 3 attempts inside a 1-10s
// backoff window.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		MinBackoff:  1 * time.Second,
		MaxBackoff:  10 * time.Second,
	}
}

// Do runs op with the policy's backoff. Transient errors are retried up to
// MaxAttempts total attempts; everything else returns on the first failure.
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	backoff := retry.NewExponential(p.MinBackoff)
	backoff = retry.WithCappedDuration(p.MaxBackoff, backoff)
	backoff = retry.WithMaxRetries(uint64(attempts-1), backoff)

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := op(ctx); err != nil {
			if ocrerr.IsTransient(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		return nil
	})
}
