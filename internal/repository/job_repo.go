package repository

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/arlo/knowbase/internal/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// claimCandidates bounds how many claim races a single ClaimNext call will
// lose before reporting that no job is available. The poll loop retries.
const claimCandidates = 5

// JobRepository is the durable job queue. All state transitions are
// conditional updates keyed on the current status, so concurrent workers
// on separate processes or machines cannot double-claim or double-complete.
type JobRepository struct {
	db          *gorm.DB
	maxAttempts int
	backoffBase time.Duration
	backoffCap  time.Duration

	rngMu sync.Mutex
	rng   *rand.Rand
}

// JobQueueConfig tunes retry and backoff behavior.
type JobQueueConfig struct {
	MaxAttempts int
	BackoffBase time.Duration
	BackoffCap  time.Duration

	// Seed fixes the jitter source; 0 seeds from the clock.
	Seed int64
}

// NewJobRepository creates a job queue backed by db.
func NewJobRepository(db *gorm.DB, cfg *JobQueueConfig) *JobRepository {
	maxAttempts := 3
	backoffBase := 5 * time.Second
	backoffCap := 5 * time.Minute
	seed := time.Now().UnixNano()
	if cfg != nil {
		if cfg.MaxAttempts > 0 {
			maxAttempts = cfg.MaxAttempts
		}
		if cfg.BackoffBase > 0 {
			backoffBase = cfg.BackoffBase
		}
		if cfg.BackoffCap > 0 {
			backoffCap = cfg.BackoffCap
		}
		if cfg.Seed != 0 {
			seed = cfg.Seed
		}
	}
	return &JobRepository{
		db:          db,
		maxAttempts: maxAttempts,
		backoffBase: backoffBase,
		backoffCap:  backoffCap,
		rng:         rand.New(rand.NewSource(seed)),
	}
}

// Enqueue creates a new pending job and returns its ID.
func (r *JobRepository) Enqueue(ctx context.Context, jobType domain.JobType, payload domain.JSONMap, priority int, ownerID string) (string, error) {
	job := &domain.Job{
		ID:          uuid.New().String(),
		Type:        jobType,
		Status:      domain.JobStatusPending,
		Priority:    priority,
		OwnerID:     ownerID,
		Payload:     payload,
		MaxAttempts: r.maxAttempts,
	}
	if err := r.db.WithContext(ctx).Create(job).Error; err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrQueueUnavailable, err)
	}
	return job.ID, nil
}

// ClaimNext atomically claims the highest-priority eligible pending job and
// returns it, or nil when no job is eligible. The claim is a conditional
// UPDATE on status='pending' checked via RowsAffected: under concurrent
// callers exactly one update wins per job, the losers fall through to the
// next candidate.
func (r *JobRepository) ClaimNext(ctx context.Context) (*domain.Job, error) {
	now := time.Now()

	for i := 0; i < claimCandidates; i++ {
		var candidate domain.Job
		err := r.db.WithContext(ctx).
			Where("status = ? AND (next_retry_at IS NULL OR next_retry_at <= ?)", domain.JobStatusPending, now).
			Order("priority DESC, created_at ASC").
			First(&candidate).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrQueueUnavailable, err)
		}

		res := r.db.WithContext(ctx).Model(&domain.Job{}).
			Where("id = ? AND status = ?", candidate.ID, domain.JobStatusPending).
			Updates(map[string]interface{}{
				"status":     domain.JobStatusProcessing,
				"started_at": now,
				"updated_at": now,
			})
		if res.Error != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrQueueUnavailable, res.Error)
		}
		if res.RowsAffected == 0 {
			// Another worker won this candidate; try the next one.
			continue
		}

		candidate.Status = domain.JobStatusProcessing
		candidate.StartedAt = &now
		return &candidate, nil
	}

	return nil, nil
}

// Complete transitions a processing job to completed and stores its result.
// Completing a job not in processing is an error.
func (r *JobRepository) Complete(ctx context.Context, jobID string, result domain.JSONMap) error {
	now := time.Now()
	res := r.db.WithContext(ctx).Model(&domain.Job{}).
		Where("id = ? AND status = ?", jobID, domain.JobStatusProcessing).
		Updates(map[string]interface{}{
			"status":       domain.JobStatusCompleted,
			"result":       result,
			"completed_at": now,
			"updated_at":   now,
		})
	if res.Error != nil {
		return fmt.Errorf("%w: %v", domain.ErrQueueUnavailable, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("job %s is not in processing", jobID)
	}
	return nil
}

// Fail records a failed attempt. With retry enabled and attempts remaining,
// the job is rescheduled as pending with an exponential, jittered
// next_retry_at; otherwise it transitions to the terminal failed state.
func (r *JobRepository) Fail(ctx context.Context, jobID string, errMsg string, retry bool) error {
	var job domain.Job
	if err := r.db.WithContext(ctx).First(&job, "id = ?", jobID).Error; err != nil {
		return fmt.Errorf("%w: %v", domain.ErrQueueUnavailable, err)
	}
	if job.Status != domain.JobStatusProcessing {
		return fmt.Errorf("job %s is not in processing", jobID)
	}

	now := time.Now()
	attempts := job.Attempts + 1

	if retry && attempts < job.MaxAttempts {
		nextRetry := now.Add(r.Backoff(attempts))
		res := r.db.WithContext(ctx).Model(&domain.Job{}).
			Where("id = ? AND status = ?", jobID, domain.JobStatusProcessing).
			Updates(map[string]interface{}{
				"status":        domain.JobStatusPending,
				"attempts":      attempts,
				"error":         errMsg,
				"next_retry_at": nextRetry,
				"updated_at":    now,
			})
		if res.Error != nil {
			return fmt.Errorf("%w: %v", domain.ErrQueueUnavailable, res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("job %s is not in processing", jobID)
		}
		return nil
	}

	res := r.db.WithContext(ctx).Model(&domain.Job{}).
		Where("id = ? AND status = ?", jobID, domain.JobStatusProcessing).
		Updates(map[string]interface{}{
			"status":     domain.JobStatusFailed,
			"attempts":   attempts,
			"error":      errMsg,
			"failed_at":  now,
			"updated_at": now,
		})
	if res.Error != nil {
		return fmt.Errorf("%w: %v", domain.ErrQueueUnavailable, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("job %s is not in processing", jobID)
	}
	return nil
}

// Backoff returns the delay before attempt N may run again:
// min(base * 2^attempts, cap), jittered by up to ±10%.
func (r *JobRepository) Backoff(attempts int) time.Duration {
	d := r.backoffBase
	for i := 0; i < attempts && d < r.backoffCap; i++ {
		d *= 2
	}
	if d > r.backoffCap {
		d = r.backoffCap
	}

	r.rngMu.Lock()
	jitter := time.Duration((r.rng.Float64()*0.2 - 0.1) * float64(d))
	r.rngMu.Unlock()

	return d + jitter
}

// Get retrieves a job by ID.
func (r *JobRepository) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	var job domain.Job
	if err := r.db.WithContext(ctx).First(&job, "id = ?", jobID).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

// ListByOwner returns the owner's most recent jobs, newest first.
func (r *JobRepository) ListByOwner(ctx context.Context, ownerID string, limit int) ([]domain.Job, error) {
	if limit <= 0 {
		limit = 50
	}
	var jobs []domain.Job
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Limit(limit).
		Find(&jobs).Error
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrQueueUnavailable, err)
	}
	return jobs, nil
}

// Stats aggregates job counts per status plus the mean processing time of
// completed jobs.
func (r *JobRepository) Stats(ctx context.Context) (*domain.QueueStats, error) {
	type statusCount struct {
		Status domain.JobStatus
		Count  int64
	}
	var rows []statusCount
	err := r.db.WithContext(ctx).Model(&domain.Job{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrQueueUnavailable, err)
	}

	stats := &domain.QueueStats{}
	for _, row := range rows {
		switch row.Status {
		case domain.JobStatusPending:
			stats.Pending = row.Count
		case domain.JobStatusProcessing:
			stats.Processing = row.Count
		case domain.JobStatusCompleted:
			stats.Completed = row.Count
		case domain.JobStatusFailed:
			stats.Failed = row.Count
		case domain.JobStatusCancelled:
			stats.Cancelled = row.Count
		}
	}

	if stats.Completed > 0 {
		var completed []domain.Job
		err := r.db.WithContext(ctx).
			Where("status = ? AND started_at IS NOT NULL AND completed_at IS NOT NULL", domain.JobStatusCompleted).
			Find(&completed).Error
		if err == nil && len(completed) > 0 {
			var totalMs float64
			for _, j := range completed {
				totalMs += float64(j.CompletedAt.Sub(*j.StartedAt).Milliseconds())
			}
			stats.AvgProcessingMs = totalMs / float64(len(completed))
		}
	}

	return stats, nil
}

// Cleanup purges terminal jobs older than the given cutoff and returns how
// many rows were removed.
func (r *JobRepository) Cleanup(ctx context.Context, olderThan time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("status IN ? AND updated_at < ?",
			[]domain.JobStatus{domain.JobStatusCompleted, domain.JobStatusFailed, domain.JobStatusCancelled},
			olderThan).
		Delete(&domain.Job{})
	if res.Error != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrQueueUnavailable, res.Error)
	}
	return res.RowsAffected, nil
}

// ReapStale requeues jobs abandoned mid-processing by a crashed worker.
// A job whose started_at is older than the staleness threshold is treated
// as a retryable failure: attempts are charged and the job goes back to
// pending (or terminal failed once attempts are exhausted). Returns the
// number of jobs reaped.
func (r *JobRepository) ReapStale(ctx context.Context, staleness time.Duration) (int, error) {
	cutoff := time.Now().Add(-staleness)

	var stale []domain.Job
	err := r.db.WithContext(ctx).
		Where("status = ? AND started_at < ?", domain.JobStatusProcessing, cutoff).
		Find(&stale).Error
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrQueueUnavailable, err)
	}

	reaped := 0
	for _, job := range stale {
		if err := r.Fail(ctx, job.ID, "worker abandoned job (stale processing)", true); err != nil {
			// Lost a race with the original worker finishing late; skip.
			continue
		}
		reaped++
	}
	return reaped, nil
}
