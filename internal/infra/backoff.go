package infra

import "time"

const (
	backoffBase = 1 * time.Second
	backoffMax  = 60 * time.Second
)

// CalculateBackoff returns the reconnect delay for the given attempt:
// 1s, 2s, 4s ... capped at 60s.
func CalculateBackoff(retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	// 2^6 = 64s already exceeds the cap
	if retryCount > 6 {
		return backoffMax
	}
	delay := backoffBase << uint(retryCount)
	if delay > backoffMax {
		delay = backoffMax
	}
	return delay
}
