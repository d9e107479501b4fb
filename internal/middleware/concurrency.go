package middleware

import (
	"log"
	"net/http"
	"sync/atomic"

	"github.com/harliandi/go-jpeginspect/pkg/metrics"
)

// ConcurrencyLimiter bounds the number of requests in flight
type ConcurrencyLimiter struct {
	slots  chan struct{}
	active atomic.Int64
}

// NewConcurrencyLimiter creates a limiter admitting at most max requests
func NewConcurrencyLimiter(max int) *ConcurrencyLimiter {
	if max < 1 {
		max = 1
	}
	return &ConcurrencyLimiter{slots: make(chan struct{}, max)}
}

// Acquire tries to take a slot without blocking
func (cl *ConcurrencyLimiter) Acquire() bool {
	select {
	case cl.slots <- struct{}{}:
		metrics.UpdateConcurrency(int(cl.active.Add(1)))
		return true
	default:
		return false
	}
}

// Release returns a slot taken by Acquire
func (cl *ConcurrencyLimiter) Release() {
	<-cl.slots
	metrics.UpdateConcurrency(int(cl.active.Add(-1)))
}

// Active returns the number of requests holding a slot
func (cl *ConcurrencyLimiter) Active() int {
	return int(cl.active.Load())
}

// ConcurrencyLimit returns middleware that rejects requests with 503 once
// max requests are in flight
func ConcurrencyLimit(max int) func(http.Handler) http.Handler {
	cl := NewConcurrencyLimiter(max)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cl.Acquire() {
				log.Printf("[%s] Concurrency limit reached: %d", RequestIDFrom(r.Context()), cap(cl.slots))
				metrics.RecordConcurrencyLimitExceeded()
				writeJSONError(w, http.StatusServiceUnavailable, "Service busy, please try again")
				return
			}
			defer cl.Release()
			next.ServeHTTP(w, r)
		})
	}
}
