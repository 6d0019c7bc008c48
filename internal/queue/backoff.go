package queue

import "time"

const (
	// DefaultSyncDelay is how long a freshly scheduled or rescheduled job
	// waits before its next status query.
	DefaultSyncDelay = 15 * time.Minute

	// MaxAttempts is the number of failed sync attempts after which a job
	// is marked failed and left for manual intervention.
	MaxAttempts = 5
)

// RetryBackoff returns the delay before the next attempt, keyed by the
// attempt counter before it is incremented for the current failure.
func RetryBackoff(attempts int) time.Duration {
	switch {
	case attempts <= 1:
		return 15 * time.Minute
	case attempts == 2:
		return 30 * time.Minute
	case attempts == 3:
		return 60 * time.Minute
	default:
		return 180 * time.Minute
	}
}
