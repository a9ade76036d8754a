package idempotency

import "time"

// Policy controls whether a job that previously failed under a given
// idempotency key may be retried with a fresh job row, per spec.md §4.5:
// "failed → if retry policy permits (window < retry-window-seconds,
// attempts < max-retries), create new job linked via _retry_of metadata;
// otherwise return the failure."
type Policy struct {
	Window     time.Duration
	MaxRetries int
}

// Allow reports whether a retry is permitted for a prior failed attempt that
// finished at failedAt and has already been attempted attemptCount times.
func (p Policy) Allow(failedAt time.Time, attemptCount int, now time.Time) bool {
	if attemptCount >= p.MaxRetries {
		return false
	}
	return now.Sub(failedAt) < p.Window
}
