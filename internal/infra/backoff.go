package infra

import (
	"time"
)

// maxCooldownFactor caps the breaker cooldown at this multiple of the base.
const maxCooldownFactor = 8

// CalculateBackoff returns base * 2^retryCount, capped at maxDelay.
// A retryCount of zero or less returns base.
func CalculateBackoff(base, maxDelay time.Duration, retryCount int) time.Duration {
	if retryCount <= 0 {
		return base
	}

	// 2^30 seconds is far beyond any sane cap; avoid shifting into overflow.
	if retryCount > 30 {
		return maxDelay
	}

	backoff := base * time.Duration(1<<retryCount)
	if backoff > maxDelay || backoff <= 0 {
		return maxDelay
	}

	return backoff
}
