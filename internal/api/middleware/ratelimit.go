package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig tunes per-client throttling on the HTTP API.
type RateLimitConfig struct {
	// Rate is the sustained number of requests per second allowed per IP.
	Rate rate.Limit
	// Burst is how far a client may run ahead of the sustained rate.
	Burst int
	// CleanupInterval is how often idle clients are swept from memory.
	CleanupInterval time.Duration
	// MaxAge is the idle time after which a client's bucket is dropped.
	MaxAge time.Duration
}

// DefaultRateLimitConfig suits the read-mostly conference API: 20 requests
// per second sustained with a burst of 40.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Rate:            rate.Limit(20),
		Burst:           40,
		CleanupInterval: 5 * time.Minute,
		MaxAge:          10 * time.Minute,
	}
}

// visitor is one client's token bucket plus the last time it was used.
type visitor struct {
	bucket *rate.Limiter
	seen   time.Time
}

// IPRateLimiter hands out a token bucket per client IP and evicts buckets
// that have gone quiet.
type IPRateLimiter struct {
	cfg  RateLimitConfig
	done chan struct{}

	mu       sync.Mutex
	visitors map[string]*visitor
}

// NewIPRateLimiter starts a limiter and its background sweeper. Call Stop
// when the server shuts down.
func NewIPRateLimiter(cfg RateLimitConfig) *IPRateLimiter {
	rl := &IPRateLimiter{
		cfg:      cfg,
		done:     make(chan struct{}),
		visitors: make(map[string]*visitor),
	}
	go rl.janitor()
	return rl
}

// Allow reports whether a request from ip fits within its budget.
func (rl *IPRateLimiter) Allow(ip string) bool {
	return rl.bucketFor(ip).Allow()
}

func (rl *IPRateLimiter) bucketFor(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v := rl.visitors[ip]
	if v == nil {
		v = &visitor{bucket: rate.NewLimiter(rl.cfg.Rate, rl.cfg.Burst)}
		rl.visitors[ip] = v
	}
	v.seen = time.Now()
	return v.bucket
}

// Stop ends the background sweeper.
func (rl *IPRateLimiter) Stop() {
	close(rl.done)
}

func (rl *IPRateLimiter) janitor() {
	tick := time.NewTicker(rl.cfg.CleanupInterval)
	defer tick.Stop()

	for {
		select {
		case <-tick.C:
			rl.sweep()
		case <-rl.done:
			return
		}
	}
}

// sweep drops visitors that have been idle for longer than MaxAge.
func (rl *IPRateLimiter) sweep() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	horizon := time.Now().Add(-rl.cfg.MaxAge)
	dropped := 0
	for ip, v := range rl.visitors {
		if v.seen.Before(horizon) {
			delete(rl.visitors, ip)
			dropped++
		}
	}
	if dropped > 0 {
		slog.Debug("rate limiter sweep", "dropped", dropped, "tracked", len(rl.visitors))
	}
}

// RateLimit rejects requests over the per-IP budget with 429 and a one
// second Retry-After. Mount chi's RealIP middleware first so RemoteAddr
// reflects the real client when the server sits behind a proxy.
func RateLimit(rl *IPRateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			if rl.Allow(ip) {
				next.ServeHTTP(w, r)
				return
			}

			slog.Warn("rate limit exceeded", "ip", ip, "method", r.Method, "path", r.URL.Path)
			w.Header().Set("Retry-After", "1")
			failJSON(w, http.StatusTooManyRequests, "rate limit exceeded")
		})
	}
}

// clientIP strips the port from RemoteAddr. Addresses without a port come
// back unchanged.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
