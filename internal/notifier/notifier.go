package notifier

import (
	"context"
	"log"
	"time"

	"github.com/agrovale/paysync-worker/internal/models"
)

// Notifier receives the final fate of a payment so downstream records
// (harvest cost lines, payroll lines) can be settled or reverted.
type Notifier interface {
	PaymentSettled(ctx context.Context, item models.PaymentItem, paidAt time.Time) error
	PaymentReverted(ctx context.Context, item models.PaymentItem) error
}

// LogNotifier is the default implementation; it only records the decision.
// The ERP wires its own implementation against the domain tables.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) PaymentSettled(ctx context.Context, item models.PaymentItem, paidAt time.Time) error {
	log.Printf("Payment %s settled at %s (batch: %s, harvest cost line: %s, payroll line: %s)",
		item.ID, paidAt.Format(time.RFC3339), item.BatchID,
		deref(item.HarvestCostLineID), deref(item.PayrollLineID))
	return nil
}

func (n *LogNotifier) PaymentReverted(ctx context.Context, item models.PaymentItem) error {
	log.Printf("Payment %s reverted (batch: %s, harvest cost line: %s, payroll line: %s)",
		item.ID, item.BatchID, deref(item.HarvestCostLineID), deref(item.PayrollLineID))
	return nil
}

func deref(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}
