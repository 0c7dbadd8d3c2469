package channel

import (
	"sync"
	"time"
)

// bucket is a token bucket refilled at rate tokens per second.
type bucket struct {
	tokens   float64
	lastTime time.Time
}

// senderLimiter throttles intents per remote sender so one chat cannot keep
// the machine busy.
type senderLimiter struct {
	mu      sync.Mutex
	max     float64
	rate    float64 // tokens per second
	buckets map[string]*bucket
	now     func() time.Time
}

func newSenderLimiter(maxBurst int, ratePerMinute float64) *senderLimiter {
	if maxBurst <= 0 {
		maxBurst = 5
	}
	if ratePerMinute <= 0 {
		ratePerMinute = 20
	}
	return &senderLimiter{
		max:     float64(maxBurst),
		rate:    ratePerMinute / 60.0,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// Allow takes one token from sender's bucket. It never blocks.
func (l *senderLimiter) Allow(sender string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[sender]
	if !ok {
		b = &bucket{tokens: l.max, lastTime: now}
		l.buckets[sender] = b
	}
	b.tokens += now.Sub(b.lastTime).Seconds() * l.rate
	if b.tokens > l.max {
		b.tokens = l.max
	}
	b.lastTime = now

	if b.tokens < 1.0 {
		return false
	}
	b.tokens--
	return true
}
