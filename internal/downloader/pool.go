package downloader

import (
	"context"
	"fmt"
	"sync"
	"time"

	"pixivcrawl/pkg/errors"
	"pixivcrawl/pkg/logger"
	"pixivcrawl/pkg/models"
)

// JobFetcher runs a single download job
type JobFetcher interface {
	Fetch(ctx context.Context, job models.DownloadJob) FetchOutcome
}

// BatchReport summarises one Run
type BatchReport struct {
	Total       int
	Succeeded   int
	Failed      int
	WriteFailed int
	Skipped     int
	Outcomes    []FetchOutcome
	Duration    time.Duration
}

func (r *BatchReport) add(o FetchOutcome) {
	r.Outcomes = append(r.Outcomes, o)
	switch o.Status {
	case OutcomeSucceeded:
		r.Succeeded++
	case OutcomeWriteFailed:
		r.WriteFailed++
	case OutcomeSkipped:
		r.Skipped++
	default:
		r.Failed++
	}
}

type task struct {
	ctx     context.Context
	job     models.DownloadJob
	results chan<- FetchOutcome
}

// WorkerPool runs download jobs on a fixed number of goroutines. The same
// workers serve every batch of a crawl.
type WorkerPool struct {
	numWorkers int
	jobQueue   chan task
	wg         sync.WaitGroup
	fetcher    JobFetcher
	logger     logger.Logger

	mu      sync.Mutex
	started bool
	stopped bool
}

// NewWorkerPool creates a pool of numWorkers workers around fetcher
func NewWorkerPool(numWorkers int, fetcher JobFetcher, log logger.Logger) *WorkerPool {
	if log == nil {
		log = logger.GetLogger()
	}
	if numWorkers <= 0 {
		numWorkers = 1
	}

	return &WorkerPool{
		numWorkers: numWorkers,
		jobQueue:   make(chan task, numWorkers*2),
		fetcher:    fetcher,
		logger:     log.WithField("component", "worker_pool"),
	}
}

// Start launches the workers. Calling it again is a no-op.
func (wp *WorkerPool) Start() {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	if wp.started || wp.stopped {
		return
	}
	wp.started = true

	wp.logger.InfoWithFields("Starting worker pool", map[string]interface{}{
		"num_workers": wp.numWorkers,
	})

	for i := 0; i < wp.numWorkers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

// Stop waits for queued jobs to finish and shuts the workers down
func (wp *WorkerPool) Stop() {
	wp.mu.Lock()
	if wp.stopped {
		wp.mu.Unlock()
		return
	}
	wp.stopped = true
	wp.mu.Unlock()

	wp.logger.Info("Stopping worker pool...")
	close(wp.jobQueue)
	wp.wg.Wait()
	wp.logger.Info("Worker pool stopped")
}

// Run submits jobs and blocks until every one of them has completed. Failed
// jobs are counted in the report and never affect their siblings.
func (wp *WorkerPool) Run(ctx context.Context, jobs []models.DownloadJob) BatchReport {
	start := time.Now()
	report := BatchReport{Total: len(jobs), Outcomes: make([]FetchOutcome, 0, len(jobs))}
	if len(jobs) == 0 {
		return report
	}

	wp.Start()

	wp.mu.Lock()
	stopped := wp.stopped
	wp.mu.Unlock()
	if stopped {
		for _, job := range jobs {
			report.add(FetchOutcome{
				Job:    job,
				Status: OutcomeFailed,
				Err:    errors.New(errors.ErrorTypeUnknown, "worker pool is stopped"),
			})
		}
		report.Duration = time.Since(start)
		return report
	}

	results := make(chan FetchOutcome, len(jobs))
	go func() {
		for _, job := range jobs {
			wp.jobQueue <- task{ctx: ctx, job: job, results: results}
		}
	}()

	for range jobs {
		report.add(<-results)
	}
	report.Duration = time.Since(start)

	wp.logger.DebugWithFields("Batch drained", map[string]interface{}{
		"total":        report.Total,
		"succeeded":    report.Succeeded,
		"failed":       report.Failed,
		"write_failed": report.WriteFailed,
		"skipped":      report.Skipped,
		"duration":     report.Duration,
	})
	return report
}

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	wp.logger.DebugWithFields("Worker started", map[string]interface{}{"worker_id": id})

	for t := range wp.jobQueue {
		t.results <- wp.processJob(t, id)
	}

	wp.logger.DebugWithFields("Worker stopping - job queue closed", map[string]interface{}{"worker_id": id})
}

// processJob runs one job. A panic inside the fetcher becomes a failed outcome.
func (wp *WorkerPool) processJob(t task, workerID int) (outcome FetchOutcome) {
	defer func() {
		if r := recover(); r != nil {
			outcome = FetchOutcome{
				Job:    t.job,
				Status: OutcomeFailed,
				Err:    errors.New(errors.ErrorTypeUnknown, fmt.Sprintf("panic: %v", r)),
			}
		}
		wp.logOutcome(outcome, workerID)
	}()

	return wp.fetcher.Fetch(t.ctx, t.job)
}

func (wp *WorkerPool) logOutcome(o FetchOutcome, workerID int) {
	fields := map[string]interface{}{
		"worker_id": workerID,
		"sequence":  o.Job.Sequence,
		"illust_id": o.Job.IllustID,
		"title":     o.Job.Title,
	}

	switch o.Status {
	case OutcomeSucceeded:
		fields["path"] = o.Path
		fields["url"] = o.Candidate.URL
		fields["bytes"] = o.Bytes
		wp.logger.InfoWithFields("Download completed", fields)
	case OutcomeSkipped:
		fields["path"] = o.Path
		wp.logger.InfoWithFields("Destination exists, download skipped", fields)
	case OutcomeWriteFailed:
		fields["path"] = o.Path
		fields["url"] = o.Candidate.URL
		wp.logger.WithError(o.Err).ErrorWithFields("Download write failed", fields)
	default:
		if n := len(o.Candidates); n > 0 {
			fields["url"] = o.Candidates[n-1].URL
		}
		fields["last_status"] = o.LastStatus
		wp.logger.WithError(o.Err).ErrorWithFields("Download failed", fields)
	}
}
