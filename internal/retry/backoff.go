package retry

import "time"

// Backoff computes the delay before a message's next retry attempt:
// min(Initial * Multiplier^attempts, Max).
type Backoff struct {
	Initial    time.Duration
	Multiplier int
	Max        time.Duration
}

func (b Backoff) Delay(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	d := b.Initial
	for i := 0; i < attempts; i++ {
		d *= time.Duration(b.Multiplier)
		if d >= b.Max || d <= 0 {
			return b.Max
		}
	}
	if d > b.Max {
		return b.Max
	}
	return d
}

// Due reports whether enough time has passed since the last attempt for a
// row with the given attempt count to be retried.
func (b Backoff) Due(attempts int, lastAttempt, now time.Time) bool {
	return now.Sub(lastAttempt) >= b.Delay(attempts)
}
