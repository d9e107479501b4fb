package middleware

import (
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/harliandi/go-jpeginspect/pkg/metrics"
)

// RateLimiter is a per-client token bucket
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    float64       // tokens per second
	burst   float64       // bucket capacity
	ttl     time.Duration // idle time before a bucket is dropped
	done    chan struct{}
	once    sync.Once
}

type bucket struct {
	tokens float64
	seen   time.Time
}

// NewRateLimiter creates a limiter allowing rate requests per second per
// client with bursts of up to burst requests. Call Close to stop its
// cleanup goroutine.
func NewRateLimiter(rate, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	rl := &RateLimiter{
		buckets: make(map[string]*bucket),
		rate:    float64(rate),
		burst:   float64(burst),
		ttl:     5 * time.Minute,
		done:    make(chan struct{}),
	}
	go rl.cleanup(time.Minute)
	return rl
}

// Allow reports whether the client may make a request now, consuming a token
// if so
func (rl *RateLimiter) Allow(client string) bool {
	return rl.allowAt(client, time.Now())
}

func (rl *RateLimiter) allowAt(client string, now time.Time) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[client]
	if !ok {
		rl.buckets[client] = &bucket{tokens: rl.burst - 1, seen: now}
		return true
	}

	b.tokens = min(rl.burst, b.tokens+now.Sub(b.seen).Seconds()*rl.rate)
	b.seen = now
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// Len returns the number of tracked clients
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.buckets)
}

// Close stops the cleanup goroutine
func (rl *RateLimiter) Close() {
	rl.once.Do(func() { close(rl.done) })
}

func (rl *RateLimiter) cleanup(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-rl.done:
			return
		case now := <-ticker.C:
			rl.evict(now)
		}
	}
}

func (rl *RateLimiter) evict(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for client, b := range rl.buckets {
		if now.Sub(b.seen) > rl.ttl {
			delete(rl.buckets, client)
		}
	}
}

// clientIP returns the client address without its port. Proxy headers take
// precedence over the socket address.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// ipPrefix coarsens an address for metric labels: the first octet of IPv4,
// the first group of IPv6
func ipPrefix(ip string) string {
	parsed := net.ParseIP(ip)
	switch {
	case parsed == nil:
		return "unknown"
	case parsed.To4() != nil:
		return strings.SplitN(parsed.String(), ".", 2)[0] + ".0.0.0"
	default:
		return strings.SplitN(parsed.String(), ":", 2)[0] + "::"
	}
}

// RateLimit returns middleware answering 429 once a client exceeds its
// token bucket
func RateLimit(rate, burst int) func(http.Handler) http.Handler {
	rl := NewRateLimiter(rate, burst)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			if !rl.Allow(ip) {
				log.Printf("[%s] Rate limit exceeded for %s", RequestIDFrom(r.Context()), ip)
				metrics.RecordRateLimitExceeded(ipPrefix(ip))
				writeJSONError(w, http.StatusTooManyRequests, "Rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
