package security

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

// RateLimiter throttles requests per client IP: rate requests per window,
// refilled when a full window has passed.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    int
	window  time.Duration
	sweepAt time.Time
}

type bucket struct {
	remaining int
	refilled  time.Time
}

// NewRateLimiter creates a limiter allowing rate requests per window per IP.
func NewRateLimiter(rate int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		buckets: make(map[string]*bucket),
		rate:    rate,
		window:  window,
		sweepAt: time.Now().Add(time.Hour),
	}
}

// Allow reports whether another request from ip fits in the current window.
func (rl *RateLimiter) Allow(ip string) bool {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if now.After(rl.sweepAt) {
		rl.sweep(now)
	}

	b, ok := rl.buckets[ip]
	if !ok || now.Sub(b.refilled) >= rl.window {
		b = &bucket{remaining: rl.rate, refilled: now}
		rl.buckets[ip] = b
	}
	if b.remaining == 0 {
		return false
	}
	b.remaining--
	return true
}

// sweep drops buckets idle past two windows. Runs under the lock on the next
// Allow after sweepAt, so an idle limiter costs no goroutine.
func (rl *RateLimiter) sweep(now time.Time) {
	for ip, b := range rl.buckets {
		if now.Sub(b.refilled) > rl.window*2 {
			delete(rl.buckets, ip)
		}
	}
	rl.sweepAt = now.Add(time.Hour)
}

// GetClientIP extracts the client IP from the request, honoring proxy
// headers. Only the first X-Forwarded-For hop counts; later entries are
// appended by downstream proxies.
func GetClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			fwd = fwd[:i]
		}
		return strings.TrimSpace(fwd)
	}

	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
