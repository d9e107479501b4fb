package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP request metrics
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jpeginspect_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "jpeginspect_request_duration_seconds",
			Help:    "Request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	// Analysis metrics
	AnalysesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jpeginspect_analyses_total",
			Help: "Total number of analyses",
		},
		[]string{"kind", "status"}, // inspect, riskiness, plan / success, error
	)

	AnalysisDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "jpeginspect_analysis_duration_seconds",
			Help:    "Analysis duration in seconds",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"kind"},
	)

	UploadBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "jpeginspect_upload_bytes",
			Help:    "Size of analyzed uploads in bytes",
			Buckets: []float64{1024, 10240, 102400, 512000, 1048576, 5242880, 10485760},
		},
	)

	Recommendations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jpeginspect_recommendations_total",
			Help: "Chroma subsampling recommendations by mode",
		},
		[]string{"mode"}, // yuv420, sharp-yuv420, yuv444
	)

	EstimatedQuality = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "jpeginspect_estimated_quality",
			Help:    "Quality estimated from uploaded quantization tables",
			Buckets: prometheus.LinearBuckets(10, 10, 10),
		},
		[]string{"table"}, // luma, chroma
	)

	// Queue/Pool metrics
	WorkerPoolQueueSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "jpeginspect_worker_pool_queue_size",
			Help: "Current number of jobs in worker pool queue",
		},
	)

	WorkerPoolActiveJobs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "jpeginspect_worker_pool_active_jobs",
			Help: "Current number of running analysis jobs",
		},
	)

	// Rate limiting metrics
	RateLimitExceeded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jpeginspect_rate_limit_exceeded_total",
			Help: "Total number of requests rejected due to rate limiting",
		},
		[]string{"ip_prefix"}, // First octet for privacy
	)

	// Concurrency metrics
	ConcurrentRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "jpeginspect_concurrent_requests",
			Help: "Current number of concurrent requests being processed",
		},
	)

	ConcurrencyLimitExceeded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "jpeginspect_concurrency_limit_exceeded_total",
			Help: "Total number of requests rejected due to concurrency limit",
		},
	)

	// Memory metrics
	MemoryPoolHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jpeginspect_memory_pool_hits_total",
			Help: "Total number of buffer pool hits",
		},
		[]string{"size"}, // small, medium, large, xlarge
	)

	MemoryPoolMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jpeginspect_memory_pool_misses_total",
			Help: "Total number of buffer pool misses",
		},
		[]string{"size"},
	)
)

// RecordRequest records an HTTP request
func RecordRequest(method, endpoint, status string, duration float64) {
	RequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	RequestDuration.WithLabelValues(endpoint).Observe(duration)
}

// RecordAnalysis records one analysis of an upload
func RecordAnalysis(kind, status string, duration float64, inputBytes int) {
	AnalysesTotal.WithLabelValues(kind, status).Inc()
	AnalysisDuration.WithLabelValues(kind).Observe(duration)
	UploadBytes.Observe(float64(inputBytes))
}

// RecordRecommendation counts a subsampling recommendation
func RecordRecommendation(mode string) {
	Recommendations.WithLabelValues(mode).Inc()
}

// RecordEstimatedQuality records a quality estimated from a quantization table
func RecordEstimatedQuality(table string, quality int) {
	EstimatedQuality.WithLabelValues(table).Observe(float64(quality))
}

// UpdateWorkerPoolMetrics updates worker pool metrics
func UpdateWorkerPoolMetrics(queueSize, activeJobs int) {
	WorkerPoolQueueSize.Set(float64(queueSize))
	WorkerPoolActiveJobs.Set(float64(activeJobs))
}

// RecordRateLimitExceeded records a rate limit rejection
func RecordRateLimitExceeded(ipPrefix string) {
	RateLimitExceeded.WithLabelValues(ipPrefix).Inc()
}

// UpdateConcurrency updates concurrent request gauge
func UpdateConcurrency(count int) {
	ConcurrentRequests.Set(float64(count))
}

// RecordConcurrencyLimitExceeded records a concurrency limit rejection
func RecordConcurrencyLimitExceeded() {
	ConcurrencyLimitExceeded.Inc()
}

// RecordPoolHit records a buffer pool hit
func RecordPoolHit(size string) {
	MemoryPoolHits.WithLabelValues(size).Inc()
}

// RecordPoolMiss records a buffer pool miss
func RecordPoolMiss(size string) {
	MemoryPoolMisses.WithLabelValues(size).Inc()
}
