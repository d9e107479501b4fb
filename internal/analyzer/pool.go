package analyzer

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/harliandi/go-jpeginspect/pkg/metrics"
)

var (
	// ErrPoolBusy is returned when the worker pool is at capacity
	ErrPoolBusy = errors.New("worker pool is busy, please retry later")
	// ErrPoolStopped is returned when submitting to a stopped pool
	ErrPoolStopped = errors.New("worker pool is stopped")
)

// JobKind selects the analysis a job runs.
type JobKind int

const (
	JobInspect JobKind = iota
	JobRiskiness
	JobPlan
)

func (k JobKind) String() string {
	switch k {
	case JobInspect:
		return "inspect"
	case JobRiskiness:
		return "riskiness"
	case JobPlan:
		return "plan"
	}
	return "unknown"
}

// Job represents an analysis job. The pool owns Buf once the job is
// submitted and releases it after the job has run.
type Job struct {
	Kind     JobKind
	Buf      *PooledBuffer
	TargetKB int
	result   chan<- Result
}

// Result represents the outcome of an analysis job. Only the report matching
// the job kind is set.
type Result struct {
	Inspect InspectReport
	Risk    RiskReport
	Plan    PlanReport
	Err     error
}

// WorkerPool fans analysis jobs out to a fixed set of goroutines
type WorkerPool struct {
	analyzer *Analyzer
	jobs     chan Job
	workers  int
	active   atomic.Int64
	wg       sync.WaitGroup
	start    sync.Once
	stop     sync.Once
	mu       sync.RWMutex
	stopped  bool
}

// NewWorkerPool creates a new worker pool with the specified number of workers
func NewWorkerPool(a *Analyzer, workers int) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	return &WorkerPool{
		analyzer: a,
		jobs:     make(chan Job, workers*2),
		workers:  workers,
	}
}

// Start starts the worker pool goroutines
func (p *WorkerPool) Start() {
	p.start.Do(func() {
		log.Printf("Starting worker pool with %d workers", p.workers)
		for i := 0; i < p.workers; i++ {
			p.wg.Add(1)
			go p.worker(i)
		}
	})
}

// worker processes jobs from the job channel
func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()
	for job := range p.jobs {
		p.active.Add(1)
		p.updateMetrics()

		result := p.run(job)
		job.Buf.Release()

		p.active.Add(-1)
		p.updateMetrics()

		// The result channel is buffered; the receiver may be gone.
		select {
		case job.result <- result:
		default:
			log.Printf("Worker %d: result channel full or closed", id)
		}
	}
}

func (p *WorkerPool) run(job Job) Result {
	var r Result
	data := job.Buf.Bytes()
	switch job.Kind {
	case JobInspect:
		r.Inspect, r.Err = p.analyzer.Inspect(data)
	case JobRiskiness:
		r.Risk, r.Err = p.analyzer.Riskiness(data)
	case JobPlan:
		r.Plan, r.Err = p.analyzer.Plan(data, job.TargetKB)
	default:
		r.Err = errors.New("unknown job kind")
	}
	return r
}

// Submit queues a job and waits for its result. It takes ownership of
// job.Buf in every case. If the queue is full it returns ErrPoolBusy
// immediately.
func (p *WorkerPool) Submit(ctx context.Context, job Job) (Result, error) {
	if job.Buf == nil {
		return Result{}, ErrInvalidImage
	}
	p.Start()

	p.mu.RLock()
	if p.stopped {
		p.mu.RUnlock()
		job.Buf.Release()
		return Result{}, ErrPoolStopped
	}

	resultChan := make(chan Result, 1)
	job.result = resultChan

	select {
	case <-ctx.Done():
		p.mu.RUnlock()
		job.Buf.Release()
		return Result{}, ctx.Err()
	case p.jobs <- job:
		p.mu.RUnlock()
		p.updateMetrics()
	default:
		p.mu.RUnlock()
		job.Buf.Release()
		return Result{}, ErrPoolBusy
	}

	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case result := <-resultChan:
		return result, result.Err
	}
}

// SubmitWithRetry submits a job, retrying with a linear backoff while the
// pool is busy. The buffer is copied between attempts since a rejected
// submission releases it.
func (p *WorkerPool) SubmitWithRetry(ctx context.Context, job Job, maxRetries int) (Result, error) {
	data := job.Buf.ToBytes()
	lastErr := ErrPoolBusy
	for i := 0; i < maxRetries; i++ {
		attempt := job
		attempt.Buf = NewPooledBuffer(len(data))
		attempt.Buf.Append(data)

		result, err := p.Submit(ctx, attempt)
		if !errors.Is(err, ErrPoolBusy) {
			return result, err
		}
		lastErr = err

		waitTime := time.Duration(i+1) * 10 * time.Millisecond
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case <-time.After(waitTime):
		}
	}
	return Result{}, lastErr
}

// Stop gracefully shuts down the worker pool
func (p *WorkerPool) Stop() {
	p.stop.Do(func() {
		p.mu.Lock()
		p.stopped = true
		close(p.jobs)
		p.mu.Unlock()
		p.wg.Wait()
		log.Printf("Worker pool stopped")
	})
}

// Stats returns the number of running and queued jobs
func (p *WorkerPool) Stats() (active, queued int) {
	return int(p.active.Load()), len(p.jobs)
}

func (p *WorkerPool) updateMetrics() {
	active, queued := p.Stats()
	metrics.UpdateWorkerPoolMetrics(queued, active)
}
