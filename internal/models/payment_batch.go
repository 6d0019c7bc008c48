package models

import "time"

type BatchStatus string

const (
	BatchStatusPending    BatchStatus = "pending"
	BatchStatusProcessing BatchStatus = "processing"
	BatchStatusSent       BatchStatus = "sent"
	BatchStatusRejected   BatchStatus = "rejected"
	BatchStatusCompleted  BatchStatus = "completed"
	BatchStatusError      BatchStatus = "error"
)

type PaymentMethod string

const (
	PaymentMethodPix    PaymentMethod = "pix"
	PaymentMethodBoleto PaymentMethod = "boleto"
	PaymentMethodGuia   PaymentMethod = "guia"
)

// Bank-side requisition state codes (1-10) as returned by the batch
// status query.
const (
	BankBatchStateConsistent          = 1
	BankBatchStateSomeInconsistent    = 2
	BankBatchStateAllInconsistent     = 3
	BankBatchStatePendingAction       = 4
	BankBatchStateInProcess           = 5
	BankBatchStateProcessed           = 6
	BankBatchStateRejected            = 7
	BankBatchStatePreparingRemittance = 8
	BankBatchStateReleased            = 9
	BankBatchStatePreparingReleased   = 10
)

// PaymentBatch is one payment requisition sent to the bank. The bank answers
// "accepted" immediately and settles the items asynchronously, so the
// internal status trails the external state until reconciliation converges.
type PaymentBatch struct {
	ID                        string        `gorm:"column:id;primaryKey"`
	BatchRequestNumber        string        `gorm:"column:batch_request_number;uniqueIndex"`
	AccountID                 string        `gorm:"column:account_id;index"`
	PaymentMethod             PaymentMethod `gorm:"column:payment_method"`
	InternalStatus            BatchStatus   `gorm:"column:internal_status;index"`
	ExternalStateAtSubmission *int          `gorm:"column:external_state_at_submission"`
	ExternalStateCurrent      *int          `gorm:"column:external_state_current"`
	SentCount                 int           `gorm:"column:sent_count"`
	SentAmount                float64       `gorm:"column:sent_amount"`
	ValidCount                int           `gorm:"column:valid_count"`
	ValidAmount               float64       `gorm:"column:valid_amount"`
	SettledSuccessfully       bool          `gorm:"column:settled_successfully"`
	LastStatusQueryAt         *time.Time    `gorm:"column:last_status_query_at"`
	LastProcessedAt           *time.Time    `gorm:"column:last_processed_at"`
	CreatedAt                 time.Time     `gorm:"column:created_at"`
	UpdatedAt                 time.Time     `gorm:"column:updated_at"`
}

// TableName specifies the table name for GORM
func (PaymentBatch) TableName() string {
	return "payment_batch"
}
