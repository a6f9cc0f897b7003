package faults

import (
	"math"
	"time"
)

const (
	// backoffBase is the delay before the first retry.
	backoffBase = 2 * time.Second
	// backoffMax caps the exponential schedule.
	backoffMax = 8 * time.Second
	// hintMax caps provider-supplied retry hints.
	hintMax = 60 * time.Second
)

// RetryDelay returns how long to wait before retry attempt (0-indexed).
// A positive rate-limit hint wins over the schedule, capped at hintMax;
// everything else follows exponential backoff: base * 2^attempt up to
// backoffMax.
func RetryDelay(kind Kind, attempt int, hint time.Duration) time.Duration {
	if kind == KindRateLimit && hint > 0 {
		return min(hint, hintMax)
	}

	delay := float64(backoffBase) * math.Pow(2, float64(attempt))
	if delay > float64(backoffMax) {
		return backoffMax
	}
	return time.Duration(delay)
}
