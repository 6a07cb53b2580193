package gateway

import (
	"sync"
	"time"
)

// limiter is a token bucket: capacity burst, refilled at rate tokens per
// second. A nil limiter admits everything.
type limiter struct {
	mu     sync.Mutex
	rate   float64
	burst  float64
	tokens float64
	last   time.Time
	now    func() time.Time
}

func newLimiter(ratePerSecond float64, burst int) *limiter {
	if ratePerSecond <= 0 {
		return nil
	}
	b := float64(burst)
	if b <= 0 {
		b = ratePerSecond
	}
	return &limiter{
		rate:   ratePerSecond,
		burst:  b,
		tokens: b,
		now:    time.Now,
	}
}

// allow consumes one token if available. It never blocks: the gateway treats
// a denied token as a rate-limited provider and fails over instead of
// queueing.
func (l *limiter) allow() bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if !l.last.IsZero() {
		l.tokens += now.Sub(l.last).Seconds() * l.rate
		if l.tokens > l.burst {
			l.tokens = l.burst
		}
	}
	l.last = now

	if l.tokens < 1 {
		return false
	}
	l.tokens--
	return true
}
