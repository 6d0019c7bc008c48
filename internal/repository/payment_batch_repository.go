package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/agrovale/paysync-worker/internal/models"
	"gorm.io/gorm"
)

type PaymentBatchRepository struct {
	db *gorm.DB
}

func NewPaymentBatchRepository(db *gorm.DB) *PaymentBatchRepository {
	return &PaymentBatchRepository{db: db}
}

// GetByRequestNumber retrieves a batch by its externally visible request number.
func (r *PaymentBatchRepository) GetByRequestNumber(ctx context.Context, batchRequestNumber string) (*models.PaymentBatch, error) {
	var batch models.PaymentBatch
	result := r.db.WithContext(ctx).
		Where("batch_request_number = ?", batchRequestNumber).
		First(&batch)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("batch %s not found", batchRequestNumber)
		}
		return nil, fmt.Errorf("failed to get batch: %w", result.Error)
	}
	return &batch, nil
}

// GetByID retrieves a batch by primary key.
func (r *PaymentBatchRepository) GetByID(ctx context.Context, batchID string) (*models.PaymentBatch, error) {
	var batch models.PaymentBatch
	result := r.db.WithContext(ctx).Where("id = ?", batchID).First(&batch)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("batch %s not found", batchID)
		}
		return nil, fmt.Errorf("failed to get batch: %w", result.Error)
	}
	return &batch, nil
}

// RecordStatusQuery stores the outcome of an external batch status query.
func (r *PaymentBatchRepository) RecordStatusQuery(ctx context.Context, batchID string, externalState *int, validCount int, validAmount float64) error {
	now := time.Now()
	updates := map[string]interface{}{
		"last_status_query_at": &now,
		"updated_at":           now,
	}
	if externalState != nil {
		updates["external_state_current"] = externalState
	}
	if validCount > 0 {
		updates["valid_count"] = validCount
		updates["valid_amount"] = validAmount
	}

	result := r.db.WithContext(ctx).Model(&models.PaymentBatch{}).
		Where("id = ?", batchID).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to record status query: %w", result.Error)
	}
	return nil
}

// UpdateInternalStatus moves the batch through its internal state machine.
func (r *PaymentBatchRepository) UpdateInternalStatus(ctx context.Context, batchID string, status models.BatchStatus) error {
	now := time.Now()
	updates := map[string]interface{}{
		"internal_status":   status,
		"last_processed_at": &now,
		"updated_at":        now,
	}
	if status == models.BatchStatusCompleted {
		updates["settled_successfully"] = true
	}

	result := r.db.WithContext(ctx).Model(&models.PaymentBatch{}).
		Where("id = ?", batchID).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update batch status: %w", result.Error)
	}
	return nil
}

// MarkRejected finalizes the batch as rejected and pins the external state
// to the bank's rejection code.
func (r *PaymentBatchRepository) MarkRejected(ctx context.Context, batchID string) error {
	now := time.Now()
	result := r.db.WithContext(ctx).Model(&models.PaymentBatch{}).
		Where("id = ?", batchID).
		Updates(map[string]interface{}{
			"internal_status":        models.BatchStatusRejected,
			"external_state_current": models.BankBatchStateRejected,
			"settled_successfully":   false,
			"last_processed_at":      &now,
			"updated_at":             now,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to mark batch rejected: %w", result.Error)
	}
	return nil
}

// ExistsByRequestNumber reports whether a batch already uses the request number.
func (r *PaymentBatchRepository) ExistsByRequestNumber(ctx context.Context, batchRequestNumber string) (bool, error) {
	var count int64
	result := r.db.WithContext(ctx).Model(&models.PaymentBatch{}).
		Where("batch_request_number = ?", batchRequestNumber).
		Count(&count)
	if result.Error != nil {
		return false, fmt.Errorf("failed to check request number: %w", result.Error)
	}
	return count > 0, nil
}

// GetPendingBatches lists batches still awaiting a final verdict, used by
// the sweep that makes sure every live batch has a sync job.
func (r *PaymentBatchRepository) GetPendingBatches(ctx context.Context, limit int) ([]models.PaymentBatch, error) {
	var batches []models.PaymentBatch
	result := r.db.WithContext(ctx).
		Where("internal_status IN ?", []models.BatchStatus{
			models.BatchStatusPending, models.BatchStatusProcessing, models.BatchStatusSent,
		}).
		Order("created_at ASC").
		Limit(limit).
		Find(&batches)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to query pending batches: %w", result.Error)
	}
	return batches, nil
}
