package reliability

import (
	"context"
	"errors"
	"time"
)

// IsRetryableHTTPStatus classifies token exchange responses worth retrying.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 408, 425, 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// IsRetryableGatewayCode classifies error codes sent on the character gateway.
func IsRetryableGatewayCode(code string) bool {
	switch code {
	case "rate_limited", "resource_exhausted", "unavailable", "deadline_exceeded", "internal":
		return true
	default:
		return false
	}
}

// ExponentialBackoff computes a deterministic capped backoff duration.
func ExponentialBackoff(attempt int, base, cap time.Duration) time.Duration {
	if attempt <= 0 {
		return base
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= cap {
			return cap
		}
	}
	return d
}

// ErrPermanent marks an error that Retry must not retry.
var ErrPermanent = errors.New("permanent failure")

// Retry calls fn up to attempts times, sleeping with ExponentialBackoff
// between calls. Errors wrapping ErrPermanent and context errors stop early.
func Retry(ctx context.Context, attempts int, base, cap time.Duration, fn func(attempt int) error) error {
	if attempts <= 0 {
		attempts = 1
	}
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if err = fn(attempt); err == nil {
			return nil
		}
		if errors.Is(err, ErrPermanent) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if attempt == attempts-1 {
			break
		}
		timer := time.NewTimer(ExponentialBackoff(attempt, base, cap))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}
