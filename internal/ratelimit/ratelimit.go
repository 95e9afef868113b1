// Package ratelimit provides a per-client request limiter for the
// expensive generation endpoints.
package ratelimit

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter tracks one token bucket per client address.
type Limiter struct {
	mu      sync.Mutex
	clients map[string]*client
	limit   rate.Limit
	burst   int
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// New creates a limiter allowing perMinute requests per client. A
// non-positive rate disables limiting.
func New(perMinute int) *Limiter {
	l := &Limiter{clients: make(map[string]*client)}
	if perMinute > 0 {
		l.limit = rate.Every(time.Minute / time.Duration(perMinute))
		l.burst = perMinute
	}
	return l
}

// Allow reports whether the client may proceed.
func (l *Limiter) Allow(key string) bool {
	if l.burst == 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.clients[key]
	if !ok {
		c = &client{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[key] = c
	}
	c.lastSeen = time.Now()

	// Opportunistic cleanup of idle clients.
	if len(l.clients) > 1000 {
		cutoff := time.Now().Add(-10 * time.Minute)
		for k, v := range l.clients {
			if v.lastSeen.Before(cutoff) {
				delete(l.clients, k)
			}
		}
	}

	return c.limiter.Allow()
}

// Middleware rejects clients that exceed the limit with 429. Clients
// are keyed by remote address, so it should sit behind chi's RealIP
// middleware.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(r.RemoteAddr) {
			w.Header().Set("Retry-After", "60")
			http.Error(w, `{"error":"rate limit exceeded"}`, http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
