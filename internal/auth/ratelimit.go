package auth

import (
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type client struct {
	lim  *rate.Limiter
	seen time.Time
}

// RateLimiter throttles sign-in attempts per email.
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*client
	r       rate.Limit
	burst   int
	swept   time.Time
}

const (
	sweepEvery = time.Minute
	maxIdle    = 3 * time.Minute
)

func NewRateLimiter(rps float64, burst int) *RateLimiter {
	return &RateLimiter{
		clients: make(map[string]*client),
		r:       rate.Limit(rps),
		burst:   burst,
	}
}

func (rl *RateLimiter) get(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if time.Since(rl.swept) > sweepEvery {
		rl.sweepLocked(maxIdle)
	}
	if c, ok := rl.clients[key]; ok {
		c.seen = time.Now()
		return c.lim
	}
	l := rate.NewLimiter(rl.r, rl.burst)
	rl.clients[key] = &client{lim: l, seen: time.Now()}
	return l
}

func (rl *RateLimiter) Allow(email string) bool {
	return rl.get(strings.ToLower(email)).Allow()
}

// Sweep drops entries idle for longer than idle. Allow also sweeps once a
// minute with a three minute idle limit.
func (rl *RateLimiter) Sweep(idle time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.sweepLocked(idle)
}

func (rl *RateLimiter) sweepLocked(idle time.Duration) {
	for k, c := range rl.clients {
		if time.Since(c.seen) > idle {
			delete(rl.clients, k)
		}
	}
	rl.swept = time.Now()
}

func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}
