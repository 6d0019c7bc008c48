package models

import "time"

type ItemStatus string

const (
	ItemStatusPending   ItemStatus = "pending"
	ItemStatusSent      ItemStatus = "sent"
	ItemStatusAccepted  ItemStatus = "accepted"
	ItemStatusRejected  ItemStatus = "rejected"
	ItemStatusProcessed ItemStatus = "processed"
	ItemStatusBlocked   ItemStatus = "blocked"
)

// PaymentItem is one payment inside a batch. Items settle independently of
// each other; `processed` and `rejected` are terminal. Once an item is
// processed (paid) no reconciliation path may revert it.
type PaymentItem struct {
	ID                      string     `gorm:"column:id;primaryKey"`
	BatchID                 string     `gorm:"column:batch_id;index"`
	IndexInBatch            int        `gorm:"column:index_in_batch"`
	InternalStatus          ItemStatus `gorm:"column:internal_status;index"`
	ExternalIndividualState *string    `gorm:"column:external_individual_state"`
	PaymentIdentifier       *string    `gorm:"column:payment_identifier;index"`
	Amount                  float64    `gorm:"column:amount"`
	PaidAt                  *time.Time `gorm:"column:paid_at"`
	HarvestCostLineID       *string    `gorm:"column:harvest_cost_line_id"`
	PayrollLineID           *string    `gorm:"column:payroll_line_id"`
	CreatedAt               time.Time  `gorm:"column:created_at"`
	UpdatedAt               time.Time  `gorm:"column:updated_at"`
}

// TableName specifies the table name for GORM
func (PaymentItem) TableName() string {
	return "payment_item"
}
