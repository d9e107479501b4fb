package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/harliandi/go-jpeginspect/internal/analyzer"
	"github.com/harliandi/go-jpeginspect/internal/config"
	"github.com/harliandi/go-jpeginspect/internal/handler"
	"github.com/harliandi/go-jpeginspect/internal/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg := config.Load()

	pool := analyzer.NewWorkerPool(analyzer.New(cfg.MaxAnalyzePixels), cfg.WorkerCount)
	pool.Start()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      newHandler(cfg, pool),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	log.Printf("Starting JPEG inspection API on %s", server.Addr)
	log.Printf("Target size: %dKB, Max upload: %dMB, Max concurrent: %d, Rate limit: %d/sec, Workers: %d, Analyze pixels: %d, Gzip: %t",
		cfg.TargetSizeKB, cfg.MaxUploadMB, cfg.MaxConcurrent, cfg.RateLimitPerSec, cfg.WorkerCount,
		cfg.MaxAnalyzePixels, cfg.EnableGzip)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() { errc <- server.ListenAndServe() }()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Printf("Server error: %v", err)
			pool.Stop()
			os.Exit(1)
		}
	case <-ctx.Done():
		log.Printf("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("Shutdown error: %v", err)
		}
	}
	pool.Stop()
}

// routes registers the API endpoints
func routes(h *handler.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/inspect", h.Inspect)
	mux.HandleFunc("/riskiness", h.Riskiness)
	mux.HandleFunc("/plan", h.Plan)
	mux.HandleFunc("/matrix", h.Matrix)
	mux.HandleFunc("/estimate", h.Estimate)
	mux.HandleFunc("/health", h.Health)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// newHandler wires the routes behind the middleware chain, outermost first:
// request id, security headers, gzip, rate limit (per IP), concurrency limit
// (global), recovery, logger.
func newHandler(cfg *config.Config, pool *analyzer.WorkerPool) http.Handler {
	mux := routes(handler.New(pool, cfg.TargetSizeKB, cfg.MaxUploadMB))

	var h http.Handler = middleware.RateLimit(cfg.RateLimitPerSec, cfg.RateLimitBurst)(
		middleware.ConcurrencyLimit(cfg.MaxConcurrent)(
			middleware.Recovery(
				middleware.Logger(mux),
			),
		),
	)
	if cfg.EnableGzip {
		h = middleware.Gzip()(h)
	}
	return middleware.RequestID(middleware.Security(h))
}
