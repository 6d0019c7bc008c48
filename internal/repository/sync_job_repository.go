package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/agrovale/paysync-worker/internal/models"
	"gorm.io/gorm"
)

type SyncJobRepository struct {
	db *gorm.DB
}

func NewSyncJobRepository(db *gorm.DB) *SyncJobRepository {
	return &SyncJobRepository{db: db}
}

// Create inserts a new sync job row.
func (r *SyncJobRepository) Create(ctx context.Context, job *models.SyncJob) error {
	if err := r.db.WithContext(ctx).Create(job).Error; err != nil {
		return fmt.Errorf("failed to create sync job: %w", err)
	}
	return nil
}

// FindActive returns the pending/running job holding the dedup slot for the
// given kind and correlation key, or nil when the slot is free.
func (r *SyncJobRepository) FindActive(ctx context.Context, kind models.SyncJobKind, correlationKey string) (*models.SyncJob, error) {
	var job models.SyncJob
	result := r.db.WithContext(ctx).
		Where("kind = ? AND correlation_key = ? AND status IN ?",
			kind, correlationKey, []models.SyncJobStatus{models.JobStatusPending, models.JobStatusRunning}).
		Order("created_at ASC").
		First(&job)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query active sync job: %w", result.Error)
	}
	return &job, nil
}

// NextDue returns the oldest pending job whose run_after has elapsed,
// ordered by run_after then id so ties break by insertion order.
func (r *SyncJobRepository) NextDue(ctx context.Context, now time.Time) (*models.SyncJob, error) {
	var job models.SyncJob
	result := r.db.WithContext(ctx).
		Where("status = ? AND run_after <= ?", models.JobStatusPending, now).
		Order("run_after ASC, id ASC").
		First(&job)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query next due job: %w", result.Error)
	}
	return &job, nil
}

// TryClaim flips a pending job to running. The status check in the WHERE
// clause is the concurrency boundary: with two workers racing, exactly one
// update reports an affected row.
func (r *SyncJobRepository) TryClaim(ctx context.Context, jobID string, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.SyncJob{}).
		Where("id = ? AND status = ?", jobID, models.JobStatusPending).
		Updates(map[string]interface{}{
			"status":      models.JobStatusRunning,
			"last_run_at": now,
			"updated_at":  now,
		})
	if result.Error != nil {
		return false, fmt.Errorf("failed to claim job: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

// MarkDone closes the job and clears any recorded error.
func (r *SyncJobRepository) MarkDone(ctx context.Context, jobID string) error {
	result := r.db.WithContext(ctx).Model(&models.SyncJob{}).
		Where("id = ?", jobID).
		Updates(map[string]interface{}{
			"status":     models.JobStatusDone,
			"last_error": nil,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to mark job done: %w", result.Error)
	}
	return nil
}

// MarkFailed terminates the job after retries are exhausted.
func (r *SyncJobRepository) MarkFailed(ctx context.Context, jobID string, attempts int, lastError *string) error {
	result := r.db.WithContext(ctx).Model(&models.SyncJob{}).
		Where("id = ?", jobID).
		Updates(map[string]interface{}{
			"status":     models.JobStatusFailed,
			"attempts":   attempts,
			"last_error": lastError,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to mark job failed: %w", result.Error)
	}
	return nil
}

// Reschedule returns the job to the pending queue with a new due time.
func (r *SyncJobRepository) Reschedule(ctx context.Context, jobID string, runAfter time.Time, attempts int, lastError *string) error {
	result := r.db.WithContext(ctx).Model(&models.SyncJob{}).
		Where("id = ?", jobID).
		Updates(map[string]interface{}{
			"status":     models.JobStatusPending,
			"run_after":  runAfter,
			"attempts":   attempts,
			"last_error": lastError,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to reschedule job: %w", result.Error)
	}
	return nil
}

// BringForward pulls an active job's due time earlier. It never pushes a
// job later; callers wanting a delay reschedule instead.
func (r *SyncJobRepository) BringForward(ctx context.Context, jobID string, runAfter time.Time) error {
	result := r.db.WithContext(ctx).Model(&models.SyncJob{}).
		Where("id = ? AND run_after > ?", jobID, runAfter).
		Updates(map[string]interface{}{
			"run_after":  runAfter,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to bring job forward: %w", result.Error)
	}
	return nil
}

// CloseForBatch bulk-marks all active jobs of one kind tied to a batch as
// done, so polling stops as soon as the batch is forcibly finalized.
func (r *SyncJobRepository) CloseForBatch(ctx context.Context, kind models.SyncJobKind, batchID string) error {
	result := r.db.WithContext(ctx).Model(&models.SyncJob{}).
		Where("kind = ? AND batch_id = ? AND status IN ?",
			kind, batchID, []models.SyncJobStatus{models.JobStatusPending, models.JobStatusRunning}).
		Updates(map[string]interface{}{
			"status":     models.JobStatusDone,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to close %s jobs for batch: %w", kind, result.Error)
	}
	return nil
}

// ReclaimStale returns running jobs older than the threshold to the pending
// queue. Covers crashes between claiming a job and finishing its work.
func (r *SyncJobRepository) ReclaimStale(ctx context.Context, olderThan time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Model(&models.SyncJob{}).
		Where("status = ? AND last_run_at < ?", models.JobStatusRunning, olderThan).
		Updates(map[string]interface{}{
			"status":     models.JobStatusPending,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to reclaim stale jobs: %w", result.Error)
	}
	return result.RowsAffected, nil
}
