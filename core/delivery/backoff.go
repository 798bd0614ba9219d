package delivery

import (
	"math"
	"time"
)

// Jitter bounds applied to every computed delay: [JitterMin, JitterMin+JitterSpan).
const (
	JitterMin  = 0.8
	JitterSpan = 0.4
)

// BackoffPolicy bounds the retry loop.
type BackoffPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultBackoff matches the reference deployment: 5 attempts, 500ms base.
var DefaultBackoff = BackoffPolicy{MaxAttempts: 5, BaseDelay: 500 * time.Millisecond}

// Delay returns the sleep before attempt+1 after a retryable failure on the
// 1-indexed attempt: BaseDelay * 2^(attempt-1) * (0.8 + 0.4*r) with r in [0,1).
func (p BackoffPolicy) Delay(attempt int, r float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	exp := math.Pow(2, float64(attempt-1))
	factor := JitterMin + JitterSpan*r
	return time.Duration(float64(p.BaseDelay) * exp * factor)
}

// Bounds returns the inclusive window Delay can produce for attempt.
func (p BackoffPolicy) Bounds(attempt int) (lo, hi time.Duration) {
	return p.Delay(attempt, 0), p.Delay(attempt, 1)
}

// Exhausted reports whether no attempt remains after the given one.
func (p BackoffPolicy) Exhausted(attempt int) bool {
	return attempt >= p.MaxAttempts
}
