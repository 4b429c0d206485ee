package server

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// maxTrackedClients bounds the limiter table; idle entries are pruned once
// it is reached.
const maxTrackedClients = 10000

// clientLimiter throttles redemption attempts per client, which keeps
// short numeric stamp codes from being brute-forced.
type clientLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

func newClientLimiter(every time.Duration, burst int) *clientLimiter {
	limit := rate.Inf
	if every > 0 {
		limit = rate.Every(every)
	}
	if burst < 1 {
		burst = 1
	}
	return &clientLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    limit,
		burst:    burst,
	}
}

// Allow reports whether clientID may make another attempt now.
func (l *clientLimiter) Allow(clientID string) bool {
	l.mu.Lock()
	lim, ok := l.limiters[clientID]
	if !ok {
		if len(l.limiters) >= maxTrackedClients {
			l.prune()
		}
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[clientID] = lim
	}
	l.mu.Unlock()

	return lim.Allow()
}

// prune drops limiters that have refilled completely. Must hold l.mu.
func (l *clientLimiter) prune() {
	for id, lim := range l.limiters {
		if lim.Tokens() >= float64(l.burst) {
			delete(l.limiters, id)
		}
	}
}
