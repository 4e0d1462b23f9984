package lockmgr

import (
	"time"

	retry "github.com/sethvargo/go-retry"
)

const (
	InitialBackoff    = 50 * time.Millisecond
	BackoffMultiplier = 1.5
	MaxBackoff        = 1000 * time.Millisecond
)

// newExponentialBackoff returns the sleep sequence between two acquisition attempts:
// InitialBackoff, multiplied by BackoffMultiplier after every attempt and capped at MaxBackoff.
func newExponentialBackoff() retry.Backoff {
	next := InitialBackoff
	b := retry.BackoffFunc(func() (time.Duration, bool) {
		current := next
		next = time.Duration(float64(next) * BackoffMultiplier)
		if next > MaxBackoff {
			next = MaxBackoff
		}
		return current, false
	})
	return retry.WithCappedDuration(MaxBackoff, b)
}

// newAcquireBackoff returns the exponential backoff limited to a total of timeout.
// The timer starts when this function is called.
func newAcquireBackoff(timeout time.Duration) retry.Backoff {
	return retry.WithMaxDuration(timeout, newExponentialBackoff())
}
