package solana

import (
	"context"
	"fmt"
	"time"

	"solana-launch-sniper/internal/observability"
)

// backoff bounds retries of a transiently failing call.
type backoff struct {
	maxRetries int // attempts after the first
	delay      time.Duration
	maxDelay   time.Duration
	mult       float64
}

func defaultBackoff() backoff {
	return backoff{
		maxRetries: DefaultMaxRetries,
		delay:      DefaultRetryDelay,
		maxDelay:   DefaultMaxDelay,
		mult:       DefaultBackoffMult,
	}
}

// withRetry runs fn with bounded exponential backoff while it fails
// transiently. Terminal errors and context cancellation return at once.
func withRetry(ctx context.Context, b backoff, op string, fn func() error) error {
	delay := b.delay
	var lastErr error

	for attempt := 0; attempt <= b.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * b.mult)
			if delay > b.maxDelay {
				delay = b.maxDelay
			}
		}

		start := time.Now()
		err := fn()
		observability.RecordRPCLatency(op, time.Since(start).Seconds())
		if err == nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if !IsRetryable(err) {
			observability.RecordRPCError(op, "terminal")
			return err
		}
		lastErr = err
	}

	observability.RecordRPCError(op, "transient")
	return fmt.Errorf("max retries exceeded: %w", lastErr)
}
