package processing

import "time"

// LinearBackoff grows the retry delay linearly with the retry count.
// Delay = min(Base * retryCount, Max); a zero Max leaves the delay uncapped.
type LinearBackoff struct {
	Base time.Duration
	Max  time.Duration
}

// Delay returns the wait before the given retry (1-indexed).
func (b LinearBackoff) Delay(retryCount int) time.Duration {
	if retryCount < 1 {
		return 0
	}
	d := b.Base * time.Duration(retryCount)
	if b.Max > 0 && d > b.Max {
		return b.Max
	}
	return d
}
