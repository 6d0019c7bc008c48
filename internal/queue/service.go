package queue

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/agrovale/paysync-worker/internal/models"
)

// JobRepository is the storage the queue service drives. Satisfied by
// repository.SyncJobRepository.
type JobRepository interface {
	Create(ctx context.Context, job *models.SyncJob) error
	FindActive(ctx context.Context, kind models.SyncJobKind, correlationKey string) (*models.SyncJob, error)
	NextDue(ctx context.Context, now time.Time) (*models.SyncJob, error)
	TryClaim(ctx context.Context, jobID string, now time.Time) (bool, error)
	MarkDone(ctx context.Context, jobID string) error
	MarkFailed(ctx context.Context, jobID string, attempts int, lastError *string) error
	Reschedule(ctx context.Context, jobID string, runAfter time.Time, attempts int, lastError *string) error
	BringForward(ctx context.Context, jobID string, runAfter time.Time) error
	CloseForBatch(ctx context.Context, kind models.SyncJobKind, batchID string) error
	ReclaimStale(ctx context.Context, olderThan time.Time) (int64, error)
}

// Service owns every mutation of the sync job table. It never talks to the
// bank; external-call failures reach it only through HandleError.
type Service struct {
	jobs        JobRepository
	maxAttempts int
}

func NewService(jobs JobRepository) *Service {
	return &Service{jobs: jobs, maxAttempts: MaxAttempts}
}

// ScheduleBatchSync enqueues a status poll for a batch. A delay <= 0 selects
// the default. No-op when the request number is empty; dedup keeps at most
// one active job per request number, only ever pulling its due time earlier.
func (s *Service) ScheduleBatchSync(ctx context.Context, batchRequestNumber, accountID string, batchID *string, delay time.Duration) error {
	if batchRequestNumber == "" {
		return nil
	}
	return s.schedule(ctx, models.JobKindBatch, batchRequestNumber, accountID, batchID, delay)
}

// ScheduleItemSync enqueues a status poll for a single payment, keyed by the
// bank-assigned payment identifier. Same dedup semantics as batch jobs.
func (s *Service) ScheduleItemSync(ctx context.Context, paymentIdentifier, accountID string, batchID *string, delay time.Duration) error {
	if paymentIdentifier == "" {
		return nil
	}
	return s.schedule(ctx, models.JobKindItem, paymentIdentifier, accountID, batchID, delay)
}

func (s *Service) schedule(ctx context.Context, kind models.SyncJobKind, correlationKey, accountID string, batchID *string, delay time.Duration) error {
	if delay <= 0 {
		delay = DefaultSyncDelay
	}
	runAfter := time.Now().Add(delay)

	existing, err := s.jobs.FindActive(ctx, kind, correlationKey)
	if err != nil {
		return err
	}
	if existing != nil {
		if runAfter.Before(existing.RunAfter) {
			return s.jobs.BringForward(ctx, existing.ID, runAfter)
		}
		return nil
	}

	now := time.Now()
	job := &models.SyncJob{
		ID:             uuid.NewString(),
		Kind:           kind,
		CorrelationKey: correlationKey,
		AccountID:      accountID,
		BatchID:        batchID,
		Status:         models.JobStatusPending,
		RunAfter:       runAfter,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	return s.jobs.Create(ctx, job)
}

// ClaimNextJob picks the oldest due pending job and flips it to running with
// a conditional update. A lost race just moves on to the next candidate.
// Returns nil when the queue has nothing due.
func (s *Service) ClaimNextJob(ctx context.Context) (*models.SyncJob, error) {
	for {
		now := time.Now()
		job, err := s.jobs.NextDue(ctx, now)
		if err != nil {
			return nil, err
		}
		if job == nil {
			return nil, nil
		}

		claimed, err := s.jobs.TryClaim(ctx, job.ID, now)
		if err != nil {
			return nil, err
		}
		if !claimed {
			// Another worker got there first; look for the next one.
			continue
		}

		job.Status = models.JobStatusRunning
		job.LastRunAt = &now
		return job, nil
	}
}

// MarkDone closes a job after a successful sync pass.
func (s *Service) MarkDone(ctx context.Context, jobID string) error {
	return s.jobs.MarkDone(ctx, jobID)
}

// Reschedule puts the job back in the queue to poll again later. The reason
// is stored on the row so operators can see why polling continues.
func (s *Service) Reschedule(ctx context.Context, job *models.SyncJob, delay time.Duration, reason string) error {
	if delay <= 0 {
		delay = DefaultSyncDelay
	}
	var lastError *string
	if reason != "" {
		lastError = &reason
	}
	return s.jobs.Reschedule(ctx, job.ID, time.Now().Add(delay), job.Attempts, lastError)
}

// HandleError records a failed attempt: retry with backoff until the
// attempts run out, then park the job as failed.
func (s *Service) HandleError(ctx context.Context, job *models.SyncJob, jobErr error) error {
	delay := RetryBackoff(job.Attempts)
	job.Attempts++

	msg := jobErr.Error()
	if job.Attempts >= s.maxAttempts {
		log.Printf("Job %s failed permanently after %d attempts: %v", job.ID, job.Attempts, jobErr)
		return s.jobs.MarkFailed(ctx, job.ID, job.Attempts, &msg)
	}

	log.Printf("Job %s attempt %d failed, retrying in %s: %v", job.ID, job.Attempts, delay, jobErr)
	return s.jobs.Reschedule(ctx, job.ID, time.Now().Add(delay), job.Attempts, &msg)
}

// MarkAllItemJobsDoneForBatch stops item polling for a batch immediately.
func (s *Service) MarkAllItemJobsDoneForBatch(ctx context.Context, batchID string) error {
	return s.jobs.CloseForBatch(ctx, models.JobKindItem, batchID)
}

// MarkAllBatchJobsDoneForBatch stops batch polling for a batch immediately.
func (s *Service) MarkAllBatchJobsDoneForBatch(ctx context.Context, batchID string) error {
	return s.jobs.CloseForBatch(ctx, models.JobKindBatch, batchID)
}

// ReclaimStale returns running jobs older than the threshold to the pending
// queue, covering a crash between claim and completion.
func (s *Service) ReclaimStale(ctx context.Context, threshold time.Duration) error {
	reclaimed, err := s.jobs.ReclaimStale(ctx, time.Now().Add(-threshold))
	if err != nil {
		return fmt.Errorf("failed to reclaim stale jobs: %w", err)
	}
	if reclaimed > 0 {
		log.Printf("Reclaimed %d stale running job(s)", reclaimed)
	}
	return nil
}
