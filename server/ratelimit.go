package server

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"
)

// RateLimiter is a token bucket per client address
type RateLimiter struct {
	mu       sync.Mutex
	buckets  map[string]*tokenBucket
	rate     float64 // tokens per second
	capacity int

	// OnLimit is called for every rejected request when set
	OnLimit func(key string)

	now func() time.Time
}

type tokenBucket struct {
	tokens     float64
	lastUpdate time.Time
}

// NewRateLimiter allows rate requests per second per key with the given burst
func NewRateLimiter(rate float64, capacity int) *RateLimiter {
	return &RateLimiter{
		buckets:  make(map[string]*tokenBucket),
		rate:     rate,
		capacity: capacity,
		now:      time.Now,
	}
}

// Allow consumes a token for key if one is available
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	bucket, ok := r.buckets[key]
	if !ok {
		r.buckets[key] = &tokenBucket{tokens: float64(r.capacity) - 1, lastUpdate: now}
		return true
	}

	bucket.tokens += now.Sub(bucket.lastUpdate).Seconds() * r.rate
	bucket.lastUpdate = now
	if bucket.tokens > float64(r.capacity) {
		bucket.tokens = float64(r.capacity)
	}

	if bucket.tokens >= 1 {
		bucket.tokens--
		return true
	}
	return false
}

// Cleanup drops buckets idle for longer than maxAge
func (r *RateLimiter) Cleanup(maxAge time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-maxAge)
	for key, bucket := range r.buckets {
		if bucket.lastUpdate.Before(cutoff) {
			delete(r.buckets, key)
		}
	}
}

// RunCleanup calls Cleanup every interval until ctx is done
func (r *RateLimiter) RunCleanup(ctx context.Context, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Cleanup(maxAge)
		}
	}
}

// Middleware rejects requests over the limit with 429. A nil limiter
// passes everything through.
func (r *RateLimiter) Middleware(next http.Handler) http.Handler {
	if r == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		key := clientIP(req)
		if !r.Allow(key) {
			if r.OnLimit != nil {
				r.OnLimit(key)
			}
			w.Header().Set("Retry-After", "1")
			http.Error(w, "Too many activation requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, req)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
