package api

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/star/wwtengine/internal/httputil"
	"github.com/star/wwtengine/internal/metrics"
)

// RateLimitConfig limits engine commands per client IP.
type RateLimitConfig struct {
	RPS        float64 // Sustained commands per second per IP (default: 5; negative disables).
	Burst      int     // Burst size (default: 10).
	TrustProxy bool    // Use X-Forwarded-For for the client IP.
}

const limiterIdle = 10 * time.Minute

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IPRateLimiter hands out one token bucket per client IP.
type IPRateLimiter struct {
	mu  sync.Mutex
	ips map[string]*ipLimiter
	r   rate.Limit
	b   int

	lastSweep time.Time
}

// NewIPRateLimiter creates a limiter allowing r events per second with burst b.
func NewIPRateLimiter(r rate.Limit, b int) *IPRateLimiter {
	return &IPRateLimiter{
		ips:       make(map[string]*ipLimiter),
		r:         r,
		b:         b,
		lastSweep: time.Now(),
	}
}

// GetLimiter returns the bucket for ip, creating it on first use. Buckets
// idle for longer than limiterIdle are discarded.
func (l *IPRateLimiter) GetLimiter(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if now.Sub(l.lastSweep) > limiterIdle {
		for k, v := range l.ips {
			if now.Sub(v.lastSeen) > limiterIdle {
				delete(l.ips, k)
			}
		}
		l.lastSweep = now
	}

	entry, exists := l.ips[ip]
	if !exists {
		entry = &ipLimiter{limiter: rate.NewLimiter(l.r, l.b)}
		l.ips[ip] = entry
	}
	entry.lastSeen = now
	return entry.limiter
}

// limit wraps a command handler with the per-IP limiter. A nil limiter
// passes everything through.
func limit(l *IPRateLimiter, trustProxy bool, next http.HandlerFunc) http.HandlerFunc {
	if l == nil {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ip := httputil.ClientIP(r, trustProxy)
		if !l.GetLimiter(ip).Allow() {
			metrics.IncRateLimited(r.URL.Path)
			w.Header().Set("Retry-After", "1")
			httputil.WriteError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next(w, r)
	}
}
