package resilience

import (
	"math/rand/v2"
	"time"
)

const maxBackoffShift = 16

// Backoff is base doubled per attempt (attempt 1 = base), spread by
// ±jitterPct (0.2 = 20%).
func Backoff(base time.Duration, attempt int, jitterPct float64) time.Duration {
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	shift := min(max(attempt, 1)-1, maxBackoffShift)
	d := base << shift
	if jitterPct <= 0 {
		return d
	}
	spread := float64(d) * min(jitterPct, 1)
	return d + time.Duration((rand.Float64()*2-1)*spread)
}
