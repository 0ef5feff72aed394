package provider

import (
	"math/rand"
	"time"
)

// Backoff is an explicit retry policy value object. Delay growth is
// exponential when Exponential is set, linear otherwise.
type Backoff struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      float64 // fraction of the delay randomized, 0..1
	Exponential bool
}

// Delay computes the wait before the given retry attempt (1-based).
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	var d time.Duration
	if b.Exponential {
		d = b.BaseDelay << uint(attempt-1)
		// Shift overflow folds to the cap.
		if d < b.BaseDelay {
			d = b.MaxDelay
		}
	} else {
		d = b.BaseDelay * time.Duration(attempt)
	}
	if b.MaxDelay > 0 && d > b.MaxDelay {
		d = b.MaxDelay
	}
	if b.Jitter > 0 {
		spread := float64(d) * b.Jitter
		d = time.Duration(float64(d) - spread/2 + rand.Float64()*spread) //nolint:gosec // jitter does not need crypto randomness
		if d < 0 {
			d = 0
		}
	}
	return d
}
