package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// ──────────────────────────────────────────────────────────────────────────────
// Per-IP rate limiting
// ──────────────────────────────────────────────────────────────────────────────

// client is one IP's refillable token balance.
type client struct {
	tokens   float64
	lastSeen time.Time
}

// ipLimiter meters requests per client IP with a token bucket.  A single
// mutex guards the whole map: the routes behind it see a handful of requests
// per second, so lock contention is a non-issue and the flat structure keeps
// eviction trivial.
type ipLimiter struct {
	mu        sync.Mutex
	clients   map[string]*client
	perSecond float64
	burst     float64
	nextSweep time.Time
}

const (
	limiterSweepEvery = 5 * time.Minute
	limiterIdleCutoff = 10 * time.Minute
	limiterMinBurst   = 10
)

func newIPLimiter(rps int) *ipLimiter {
	burst := float64(rps)
	if burst < limiterMinBurst {
		burst = limiterMinBurst
	}
	return &ipLimiter{
		clients:   make(map[string]*client),
		perSecond: float64(rps),
		burst:     burst,
		nextSweep: time.Now().Add(limiterSweepEvery),
	}
}

// allow refills the IP's bucket for the elapsed time and spends one token.
// Unknown IPs start with a full bucket, so bursts up to the burst size pass.
func (l *ipLimiter) allow(ip string) bool {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.After(l.nextSweep) {
		l.sweepLocked(now)
	}

	cl, ok := l.clients[ip]
	if !ok {
		cl = &client{tokens: l.burst, lastSeen: now}
		l.clients[ip] = cl
	}

	cl.tokens += now.Sub(cl.lastSeen).Seconds() * l.perSecond
	if cl.tokens > l.burst {
		cl.tokens = l.burst
	}
	cl.lastSeen = now

	if cl.tokens < 1 {
		return false
	}
	cl.tokens--
	return true
}

// sweepLocked drops IPs idle past the cutoff.  Runs inline on the request
// path instead of a background goroutine; an idle limiter holding a stale map
// costs nothing until the next request arrives anyway.
func (l *ipLimiter) sweepLocked(now time.Time) {
	cutoff := now.Add(-limiterIdleCutoff)
	for ip, cl := range l.clients {
		if cl.lastSeen.Before(cutoff) {
			delete(l.clients, ip)
		}
	}
	l.nextSweep = now.Add(limiterSweepEvery)
}

// RateLimitMiddleware enforces a per-IP budget of rps requests per second on
// the routes it wraps.  Clients over budget get 429.
func RateLimitMiddleware(rps int) gin.HandlerFunc {
	limiter := newIPLimiter(rps)
	return func(c *gin.Context) {
		if !limiter.allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded, retry shortly",
			})
			return
		}
		c.Next()
	}
}
