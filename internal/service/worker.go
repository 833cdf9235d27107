package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/arlo/knowbase/internal/domain"
	"github.com/arlo/knowbase/internal/logger"
)

// WorkerOptions tune the polling loop and the maintenance tickers.
type WorkerOptions struct {
	PollInterval    time.Duration
	JobTimeout      time.Duration
	Staleness       time.Duration
	ReapInterval    time.Duration
	CleanupInterval time.Duration
	Retention       time.Duration
}

// maxErrorBackoff caps the escalating sleep after consecutive poll errors.
const maxErrorBackoff = 30 * time.Second

// Worker polls the queue and executes jobs one at a time. Scale-out is by
// running more worker processes; the conditional claim in the queue keeps
// them from stepping on each other.
type Worker struct {
	queue  Queue
	ingest *IngestService
	opts   WorkerOptions
}

// NewWorker creates a worker over the queue and pipeline.
func NewWorker(queue Queue, ingest *IngestService, opts WorkerOptions) *Worker {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = 10 * time.Minute
	}
	if opts.Staleness <= 0 {
		opts.Staleness = 2 * time.Minute
	}
	if opts.ReapInterval <= 0 {
		opts.ReapInterval = 30 * time.Second
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = time.Hour
	}
	if opts.Retention <= 0 {
		opts.Retention = 7 * 24 * time.Hour
	}
	return &Worker{queue: queue, ingest: ingest, opts: opts}
}

// Run executes the claim loop until ctx is cancelled. A job claimed before
// cancellation still runs to completion under its own timeout, so shutdown
// never abandons work mid-flight. Maintenance (stale-job reaping, terminal
// job cleanup) runs on its own tickers.
func (w *Worker) Run(ctx context.Context) error {
	ctx = logger.SetComponent(ctx, "worker")
	logger.CtxInfo(ctx, "worker started")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.maintenanceLoop(ctx)
	}()

	consecutiveErrors := 0
	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			logger.CtxInfo(ctx, "worker stopped")
			return ctx.Err()
		default:
		}

		job, err := w.queue.ClaimNext(ctx)
		if err != nil {
			consecutiveErrors++
			logger.CtxError(ctx, "claim failed: %v", err)
			w.sleep(ctx, errorBackoff(consecutiveErrors))
			continue
		}
		consecutiveErrors = 0

		if job == nil {
			w.sleep(ctx, w.opts.PollInterval)
			continue
		}

		w.process(ctx, job)
	}
}

// process runs one claimed job and settles it as completed or failed.
// The job context is detached from the loop context so shutdown does not
// cancel in-flight work; the job timeout bounds it instead.
func (w *Worker) process(ctx context.Context, job *domain.Job) {
	jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.opts.JobTimeout)
	defer cancel()
	jobCtx = logger.SetJobID(jobCtx, job.ID)

	start := time.Now()
	logger.CtxInfo(jobCtx, "job started: %s (attempt %d/%d)", job.Type, job.Attempts+1, job.MaxAttempts)

	result, err := w.dispatch(jobCtx, job)
	if err != nil {
		retry := domain.IsRetryable(err)
		logger.CtxError(jobCtx, "job failed (retryable=%t): %v", retry, err)
		if failErr := w.queue.Fail(jobCtx, job.ID, err.Error(), retry); failErr != nil {
			logger.CtxError(jobCtx, "could not settle failed job: %v", failErr)
		}
		return
	}

	if err := w.queue.Complete(jobCtx, job.ID, result); err != nil {
		logger.CtxError(jobCtx, "could not settle completed job: %v", err)
		return
	}
	logger.CtxInfo(logger.WithField(jobCtx, logger.FieldDurationMs, time.Since(start).Milliseconds()), "job completed")
}

// dispatch routes a job to its handler by type. An unknown type or a
// malformed payload is a permanent failure: retrying cannot fix it.
func (w *Worker) dispatch(ctx context.Context, job *domain.Job) (domain.JSONMap, error) {
	switch job.Type {
	case domain.JobTypeIngestFile:
		payload, err := domain.IngestFilePayloadFromMap(job.Payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrUnsupportedType, err)
		}
		return w.ingest.IngestFile(ctx, payload)

	case domain.JobTypeIngestCollection:
		payload, err := domain.IngestCollectionPayloadFromMap(job.Payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrUnsupportedType, err)
		}
		return w.ingest.IngestCollection(ctx, job, payload)

	default:
		return nil, fmt.Errorf("%w: unknown job type %q", domain.ErrUnsupportedType, job.Type)
	}
}

// maintenanceLoop reaps jobs abandoned by crashed workers and purges old
// terminal jobs.
func (w *Worker) maintenanceLoop(ctx context.Context) {
	reap := time.NewTicker(w.opts.ReapInterval)
	defer reap.Stop()
	cleanup := time.NewTicker(w.opts.CleanupInterval)
	defer cleanup.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-reap.C:
			if n, err := w.queue.ReapStale(ctx, w.opts.Staleness); err != nil {
				logger.CtxError(ctx, "reap failed: %v", err)
			} else if n > 0 {
				logger.CtxWarn(ctx, "requeued %d stale jobs", n)
			}
		case <-cleanup.C:
			cutoff := time.Now().Add(-w.opts.Retention)
			if n, err := w.queue.Cleanup(ctx, cutoff); err != nil {
				logger.CtxError(ctx, "cleanup failed: %v", err)
			} else if n > 0 {
				logger.CtxInfo(ctx, "purged %d terminal jobs", n)
			}
		}
	}
}

// sleep waits for d or until ctx is cancelled.
func (w *Worker) sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// errorBackoff escalates the pause after repeated poll failures so a down
// database is not hammered.
func errorBackoff(consecutive int) time.Duration {
	d := time.Second
	for i := 1; i < consecutive && d < maxErrorBackoff; i++ {
		d *= 2
	}
	if d > maxErrorBackoff {
		d = maxErrorBackoff
	}
	return d
}
