package middleware

import (
	"encoding/json"
	"log"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/harliandi/go-jpeginspect/pkg/metrics"
)

// Logger logs each request with its id and records request metrics
func Logger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWrapper{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		elapsed := time.Since(start)
		log.Printf("[%s] %s %s %d %dB %v",
			RequestIDFrom(r.Context()),
			r.Method,
			r.URL.Path,
			wrapped.status,
			wrapped.written,
			elapsed,
		)

		// /metrics scrapes would otherwise dominate the request counters
		if r.URL.Path != "/metrics" {
			metrics.RecordRequest(r.Method, r.URL.Path, strconv.Itoa(wrapped.status), elapsed.Seconds())
		}
	})
}

// Recovery turns a panic in a handler into a JSON 500
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				log.Printf("[%s] PANIC recovered: %v\n%s", RequestIDFrom(r.Context()), err, debug.Stack())
				writeJSONError(w, http.StatusInternalServerError, "Internal server error")
			}
		}()

		next.ServeHTTP(w, r)
	})
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	if status == http.StatusServiceUnavailable || status == http.StatusTooManyRequests {
		w.Header().Set("Retry-After", "1")
	}
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

type responseWrapper struct {
	http.ResponseWriter
	status  int
	written int
}

func (w *responseWrapper) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *responseWrapper) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.written += n
	return n, err
}

// Unwrap lets http.ResponseController reach the underlying writer
func (w *responseWrapper) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
