package gateway

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter enforces per-key request limits with a token bucket per key.
type RateLimiter struct {
	limiters sync.Map   // key → *limiterEntry
	r        rate.Limit // refill rate (requests per second)
	burst    int
}

type limiterEntry struct {
	limiter  *rate.Limiter
	mu       sync.Mutex
	lastSeen time.Time
}

// NewRateLimiter creates a rate limiter. rpm is requests per minute; rpm
// <= 0 disables limiting.
func NewRateLimiter(rpm, burst int) *RateLimiter {
	if burst <= 0 {
		burst = 5
	}
	r := rate.Limit(0)
	if rpm > 0 {
		r = rate.Limit(float64(rpm) / 60.0)
	}
	return &RateLimiter{r: r, burst: burst}
}

// Allow reports whether a request from key may proceed. When it may not,
// the returned duration is how long until a token is available.
func (rl *RateLimiter) Allow(key string) (bool, time.Duration) {
	if rl.r == 0 {
		return true, 0
	}
	entry := rl.getOrCreate(key)
	now := time.Now()
	entry.mu.Lock()
	entry.lastSeen = now
	entry.mu.Unlock()

	res := entry.limiter.ReserveN(now, 1)
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// Enabled returns true if the rate limiter is active.
func (rl *RateLimiter) Enabled() bool {
	return rl.r > 0
}

func (rl *RateLimiter) getOrCreate(key string) *limiterEntry {
	if v, ok := rl.limiters.Load(key); ok {
		return v.(*limiterEntry)
	}
	entry := &limiterEntry{
		limiter:  rate.NewLimiter(rl.r, rl.burst),
		lastSeen: time.Now(),
	}
	actual, _ := rl.limiters.LoadOrStore(key, entry)
	return actual.(*limiterEntry)
}

// Run drops idle keys every interval until ctx is done.
func (rl *RateLimiter) Run(ctx context.Context, interval, idle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			rl.cleanup(now.Add(-idle))
		}
	}
}

func (rl *RateLimiter) cleanup(cutoff time.Time) {
	rl.limiters.Range(func(key, value any) bool {
		entry := value.(*limiterEntry)
		entry.mu.Lock()
		stale := entry.lastSeen.Before(cutoff)
		entry.mu.Unlock()
		if stale {
			rl.limiters.Delete(key)
		}
		return true
	})
}
