package middleware

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"coopvote/pkg/errors"
	"coopvote/pkg/logger"
)

// IPRateLimiter hands out one token bucket per client IP
type IPRateLimiter struct {
	limit       rate.Limit
	burst       int
	now         func() time.Time
	mu          sync.Mutex
	limiters    map[string]*rate.Limiter
	lastCleanup time.Time
}

// NewIPRateLimiter allows perSecond requests per IP with the given burst
func NewIPRateLimiter(perSecond float64, burst int) *IPRateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &IPRateLimiter{
		limit:       rate.Limit(perSecond),
		burst:       burst,
		now:         time.Now,
		limiters:    make(map[string]*rate.Limiter),
		lastCleanup: time.Now(),
	}
}

// Allow reports whether a request from ip may proceed now
func (l *IPRateLimiter) Allow(ip string) bool {
	return l.get(ip).AllowN(l.now(), 1)
}

func (l *IPRateLimiter) get(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	// Drop idle buckets hourly so the map does not grow without bound
	if l.now().Sub(l.lastCleanup) > time.Hour {
		l.limiters = make(map[string]*rate.Limiter)
		l.lastCleanup = l.now()
	}

	limiter, ok := l.limiters[ip]
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters[ip] = limiter
	}
	return limiter
}

// RateLimit rejects requests over the per-IP budget with 429
func RateLimit(limiter *IPRateLimiter, logger *logger.Logger) func(http.Handler) http.Handler {
	retryAfter := "1"
	if limiter.limit > 0 && limiter.limit < 1 {
		retryAfter = strconv.Itoa(int(1/float64(limiter.limit)) + 1)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ClientIP(r)
			if !limiter.Allow(ip) {
				logger.WithField("ip", ip).Warn("Rate limit exceeded")
				w.Header().Set("Retry-After", retryAfter)
				writeErrorResponse(w, r, errors.NewRateLimitError("Too many requests, slow down"), logger)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP keys the limiter on the connection address. chi's RealIP middleware
// rewrites RemoteAddr when the server sits behind a trusted proxy, so raw
// forwarding headers are ignored here.
func ClientIP(r *http.Request) string {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}

	if ip == "::1" {
		return "127.0.0.1"
	}
	return ip
}
