package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/agrovale/paysync-worker/internal/models"
	"gorm.io/gorm"
)

type PaymentItemRepository struct {
	db *gorm.DB
}

func NewPaymentItemRepository(db *gorm.DB) *PaymentItemRepository {
	return &PaymentItemRepository{db: db}
}

// GetByPaymentIdentifier retrieves the item carrying the bank-assigned
// correlation id.
func (r *PaymentItemRepository) GetByPaymentIdentifier(ctx context.Context, paymentIdentifier string) (*models.PaymentItem, error) {
	var item models.PaymentItem
	result := r.db.WithContext(ctx).
		Where("payment_identifier = ?", paymentIdentifier).
		First(&item)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("payment item %s not found", paymentIdentifier)
		}
		return nil, fmt.Errorf("failed to get payment item: %w", result.Error)
	}
	return &item, nil
}

// ListByBatch returns every item of a batch ordered by its position.
func (r *PaymentItemRepository) ListByBatch(ctx context.Context, batchID string) ([]models.PaymentItem, error) {
	var items []models.PaymentItem
	result := r.db.WithContext(ctx).
		Where("batch_id = ?", batchID).
		Order("index_in_batch ASC").
		Find(&items)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list batch items: %w", result.Error)
	}
	return items, nil
}

// RecordExternalState stores the raw individual-status string from the bank.
func (r *PaymentItemRepository) RecordExternalState(ctx context.Context, itemID string, rawState string) error {
	result := r.db.WithContext(ctx).Model(&models.PaymentItem{}).
		Where("id = ?", itemID).
		Updates(map[string]interface{}{
			"external_individual_state": rawState,
			"updated_at":                time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to record external state: %w", result.Error)
	}
	return nil
}

// MarkProcessed settles the item. The status guard in the WHERE clause keeps
// the transition idempotent.
func (r *PaymentItemRepository) MarkProcessed(ctx context.Context, itemID string, paidAt *time.Time) error {
	now := time.Now()
	if paidAt == nil {
		paidAt = &now
	}
	result := r.db.WithContext(ctx).Model(&models.PaymentItem{}).
		Where("id = ? AND internal_status <> ?", itemID, models.ItemStatusProcessed).
		Updates(map[string]interface{}{
			"internal_status": models.ItemStatusProcessed,
			"paid_at":         paidAt,
			"updated_at":      now,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to mark item processed: %w", result.Error)
	}
	return nil
}

// MarkRejected reverts the item. Processed items are excluded by the WHERE
// clause; a paid item is never reverted.
func (r *PaymentItemRepository) MarkRejected(ctx context.Context, itemID string) error {
	result := r.db.WithContext(ctx).Model(&models.PaymentItem{}).
		Where("id = ? AND internal_status <> ?", itemID, models.ItemStatusProcessed).
		Updates(map[string]interface{}{
			"internal_status": models.ItemStatusRejected,
			"updated_at":      time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to mark item rejected: %w", result.Error)
	}
	return nil
}

// RejectAllUnprocessed forces every item of the batch that has not settled
// to rejected, used when the whole batch is finalized as rejected.
func (r *PaymentItemRepository) RejectAllUnprocessed(ctx context.Context, batchID string) (int64, error) {
	result := r.db.WithContext(ctx).Model(&models.PaymentItem{}).
		Where("batch_id = ? AND internal_status <> ?", batchID, models.ItemStatusProcessed).
		Updates(map[string]interface{}{
			"internal_status": models.ItemStatusRejected,
			"updated_at":      time.Now(),
		})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to reject batch items: %w", result.Error)
	}
	return result.RowsAffected, nil
}
