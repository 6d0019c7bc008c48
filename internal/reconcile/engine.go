package reconcile

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/agrovale/paysync-worker/internal/models"
	"github.com/agrovale/paysync-worker/internal/notifier"
)

// BatchStore is the batch persistence the engine needs. Satisfied by
// repository.PaymentBatchRepository.
type BatchStore interface {
	RecordStatusQuery(ctx context.Context, batchID string, externalState *int, validCount int, validAmount float64) error
	UpdateInternalStatus(ctx context.Context, batchID string, status models.BatchStatus) error
	MarkRejected(ctx context.Context, batchID string) error
}

// ItemStore is the item persistence the engine needs. Satisfied by
// repository.PaymentItemRepository.
type ItemStore interface {
	ListByBatch(ctx context.Context, batchID string) ([]models.PaymentItem, error)
	RecordExternalState(ctx context.Context, itemID string, rawState string) error
	MarkProcessed(ctx context.Context, itemID string, paidAt *time.Time) error
	MarkRejected(ctx context.Context, itemID string) error
	RejectAllUnprocessed(ctx context.Context, batchID string) (int64, error)
}

// JobCloser stops item polling once a batch verdict makes it pointless.
// Satisfied by queue.Service.
type JobCloser interface {
	MarkAllItemJobsDoneForBatch(ctx context.Context, batchID string) error
}

// Engine applies classified external states to the local records. All
// decisions are in the pure functions of this package; Engine only turns
// them into storage mutations and notifications.
type Engine struct {
	batches  BatchStore
	items    ItemStore
	jobs     JobCloser
	notifier notifier.Notifier
}

func NewEngine(batches BatchStore, items ItemStore, jobs JobCloser, n notifier.Notifier) *Engine {
	return &Engine{batches: batches, items: items, jobs: jobs, notifier: n}
}

// ApplyBatchStatus reconciles one external batch status query result and
// returns the authoritative state code used for it. The stored state takes
// precedence over the fresh read once it records a terminal rejection.
func (e *Engine) ApplyBatchStatus(ctx context.Context, batch *models.PaymentBatch, externalCode *int, validCount int, validAmount float64) (*int, error) {
	authoritative := ResolveAuthoritativeState(batch.ExternalStateCurrent, externalCode)

	if err := e.batches.RecordStatusQuery(ctx, batch.ID, authoritative, validCount, validAmount); err != nil {
		return nil, err
	}
	if authoritative == nil {
		// Bank answered without a state code; keep polling.
		return nil, nil
	}

	status := ClassifyBatchState(*authoritative)
	switch status {
	case models.BatchStatusRejected:
		items, err := e.items.ListByBatch(ctx, batch.ID)
		if err != nil {
			return nil, err
		}
		if !CanMarkBatchRejected(items) {
			// The bank condemned the batch but some items are still in
			// flight; the item jobs finish the picture.
			log.Printf("Batch %s reported rejected (state %d) but items are not all definitive yet", batch.BatchRequestNumber, *authoritative)
			return authoritative, nil
		}
		if err := e.ApplyBatchRejection(ctx, batch.ID); err != nil {
			return nil, err
		}
	case models.BatchStatusCompleted:
		if batch.InternalStatus != models.BatchStatusCompleted {
			if err := e.batches.UpdateInternalStatus(ctx, batch.ID, models.BatchStatusCompleted); err != nil {
				return nil, err
			}
			log.Printf("Batch %s completed (state %d)", batch.BatchRequestNumber, *authoritative)
		}
	default:
		// Never downgrade a batch that already reached a verdict.
		if batch.InternalStatus != models.BatchStatusRejected &&
			batch.InternalStatus != models.BatchStatusCompleted &&
			batch.InternalStatus != status {
			if err := e.batches.UpdateInternalStatus(ctx, batch.ID, status); err != nil {
				return nil, err
			}
		}
	}
	return authoritative, nil
}

// ApplyBatchRejection finalizes a batch as rejected: every item that has not
// settled is reverted, and item polling for the batch stops. The batch job
// itself stays open; the worker closes it when it next sees the terminal
// state, so job completion has a single owner.
func (e *Engine) ApplyBatchRejection(ctx context.Context, batchID string) error {
	items, err := e.items.ListByBatch(ctx, batchID)
	if err != nil {
		return err
	}

	for _, item := range items {
		if item.InternalStatus == models.ItemStatusProcessed || item.InternalStatus == models.ItemStatusRejected {
			continue
		}
		if err := e.notifier.PaymentReverted(ctx, item); err != nil {
			return fmt.Errorf("failed to notify reverted payment %s: %w", item.ID, err)
		}
	}

	if _, err := e.items.RejectAllUnprocessed(ctx, batchID); err != nil {
		return err
	}
	if err := e.batches.MarkRejected(ctx, batchID); err != nil {
		return err
	}
	if err := e.jobs.MarkAllItemJobsDoneForBatch(ctx, batchID); err != nil {
		return err
	}

	log.Printf("Batch %s marked rejected, unsettled items reverted", batchID)
	return nil
}

// ApplyItemOutcome reconciles one external individual-status query result.
// A processed item is never mutated again, whatever a later poll claims.
func (e *Engine) ApplyItemOutcome(ctx context.Context, item *models.PaymentItem, rawState string, paidAt *time.Time) (ItemCategory, error) {
	category := ClassifyItemState(rawState)

	if rawState != "" {
		if err := e.items.RecordExternalState(ctx, item.ID, rawState); err != nil {
			return category, err
		}
		item.ExternalIndividualState = &rawState
	}

	if item.InternalStatus == models.ItemStatusProcessed {
		return category, nil
	}

	switch category {
	case CategorySuccess:
		if err := e.items.MarkProcessed(ctx, item.ID, paidAt); err != nil {
			return category, err
		}
		item.InternalStatus = models.ItemStatusProcessed
		settledAt := time.Now()
		if paidAt != nil {
			settledAt = *paidAt
		}
		if err := e.notifier.PaymentSettled(ctx, *item, settledAt); err != nil {
			return category, fmt.Errorf("failed to notify settled payment %s: %w", item.ID, err)
		}
	case CategoryCancelled, CategoryRejected, CategoryBlocked:
		if err := e.items.MarkRejected(ctx, item.ID); err != nil {
			return category, err
		}
		item.InternalStatus = models.ItemStatusRejected
		if err := e.notifier.PaymentReverted(ctx, *item); err != nil {
			return category, fmt.Errorf("failed to notify reverted payment %s: %w", item.ID, err)
		}
		if err := e.reevaluateBatch(ctx, item.BatchID); err != nil {
			return category, err
		}
	}
	return category, nil
}

// reevaluateBatch re-checks the rejection gate after an item turned
// rejected or blocked.
func (e *Engine) reevaluateBatch(ctx context.Context, batchID string) error {
	items, err := e.items.ListByBatch(ctx, batchID)
	if err != nil {
		return err
	}
	if !CanMarkBatchRejected(items) {
		return nil
	}
	return e.ApplyBatchRejection(ctx, batchID)
}
