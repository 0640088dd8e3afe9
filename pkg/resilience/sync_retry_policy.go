package resilience

import "time"

// MaxRetries is the number of automatic retries a record gets before it
// stays failed until the user intervenes.
const MaxRetries = 5

const maxRetryDelay = 30 * time.Second

// Delay returns the backoff before retry number attempt:
// min(2^attempt, 30) seconds, i.e. 1, 2, 4, 8, 16, 30, 30, ...
func Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt >= 5 {
		return maxRetryDelay
	}
	d := time.Duration(1<<attempt) * time.Second
	if d > maxRetryDelay {
		return maxRetryDelay
	}
	return d
}
