package models

import "time"

type SyncJobKind string

const (
	JobKindBatch SyncJobKind = "batch"
	JobKindItem  SyncJobKind = "item"
)

type SyncJobStatus string

const (
	JobStatusPending SyncJobStatus = "pending"
	JobStatusRunning SyncJobStatus = "running"
	JobStatusDone    SyncJobStatus = "done"
	JobStatusFailed  SyncJobStatus = "failed"
)

// SyncJob is one row of the polling queue. The table itself is the queue;
// there is no broker. Done/failed jobs are kept for audit, never deleted.
type SyncJob struct {
	ID             string        `gorm:"column:id;primaryKey"`
	Kind           SyncJobKind   `gorm:"column:kind;index:idx_sync_job_dedup"`
	CorrelationKey string        `gorm:"column:correlation_key;index:idx_sync_job_dedup"`
	AccountID      string        `gorm:"column:account_id"`
	BatchID        *string       `gorm:"column:batch_id;index"`
	Status         SyncJobStatus `gorm:"column:status;index"`
	RunAfter       time.Time     `gorm:"column:run_after;index"`
	Attempts       int           `gorm:"column:attempts"`
	LastError      *string       `gorm:"column:last_error"`
	LastRunAt      *time.Time    `gorm:"column:last_run_at"`
	CreatedAt      time.Time     `gorm:"column:created_at"`
	UpdatedAt      time.Time     `gorm:"column:updated_at"`
}

// TableName specifies the table name for GORM
func (SyncJob) TableName() string {
	return "payment_sync_job"
}

// SyncTarget is the subject a job polls: either a whole batch or a single
// item, each carrying its own correlation key.
type SyncTarget interface {
	CorrelationKey() string
}

// BatchTarget identifies a batch by its externally visible request number.
type BatchTarget struct {
	BatchRequestNumber string
}

func (t BatchTarget) CorrelationKey() string { return t.BatchRequestNumber }

// ItemTarget identifies a single payment by the bank-assigned identifier.
type ItemTarget struct {
	PaymentIdentifier string
}

func (t ItemTarget) CorrelationKey() string { return t.PaymentIdentifier }

// Target resolves the row into its typed variant so callers can dispatch
// with a type switch instead of comparing kind strings.
func (j *SyncJob) Target() SyncTarget {
	if j.Kind == JobKindItem {
		return ItemTarget{PaymentIdentifier: j.CorrelationKey}
	}
	return BatchTarget{BatchRequestNumber: j.CorrelationKey}
}

// Active reports whether the job still occupies its dedup slot.
func (j *SyncJob) Active() bool {
	return j.Status == JobStatusPending || j.Status == JobStatusRunning
}
