package worker

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/agrovale/paysync-worker/internal/bank"
	"github.com/agrovale/paysync-worker/internal/config"
	"github.com/agrovale/paysync-worker/internal/metrics"
	"github.com/agrovale/paysync-worker/internal/models"
	"github.com/agrovale/paysync-worker/internal/queue"
	"github.com/agrovale/paysync-worker/internal/reconcile"
)

// JobQueue is the queue service surface the worker drives. Errors returned
// from it are job-store failures and abort the current tick.
type JobQueue interface {
	ClaimNextJob(ctx context.Context) (*models.SyncJob, error)
	MarkDone(ctx context.Context, jobID string) error
	Reschedule(ctx context.Context, job *models.SyncJob, delay time.Duration, reason string) error
	HandleError(ctx context.Context, job *models.SyncJob, jobErr error) error
	ScheduleBatchSync(ctx context.Context, batchRequestNumber, accountID string, batchID *string, delay time.Duration) error
	ReclaimStale(ctx context.Context, threshold time.Duration) error
}

// BankClient queries the bank's asynchronous status APIs.
type BankClient interface {
	QueryBatchStatus(ctx context.Context, batchRequestNumber, accountID string) (*bank.BatchStatus, error)
	QueryItemStatus(ctx context.Context, paymentIdentifier, accountID string) (*bank.ItemStatus, error)
}

// Reconciler applies classified external states to local records.
type Reconciler interface {
	ApplyBatchStatus(ctx context.Context, batch *models.PaymentBatch, externalCode *int, validCount int, validAmount float64) (*int, error)
	ApplyItemOutcome(ctx context.Context, item *models.PaymentItem, rawState string, paidAt *time.Time) (reconcile.ItemCategory, error)
}

// BatchReader loads batches for batch jobs and the pending-batch sweep.
type BatchReader interface {
	GetByRequestNumber(ctx context.Context, batchRequestNumber string) (*models.PaymentBatch, error)
	GetPendingBatches(ctx context.Context, limit int) ([]models.PaymentBatch, error)
}

// ItemReader loads the item a sync job polls.
type ItemReader interface {
	GetByPaymentIdentifier(ctx context.Context, paymentIdentifier string) (*models.PaymentItem, error)
}

// jobDecision is what a processed job asks the queue to do with it.
type jobDecision struct {
	done   bool
	reason string
}

// Worker drains the sync queue once per tick, strictly one job at a time.
type Worker struct {
	cfg     *config.Config
	queue   JobQueue
	batches BatchReader
	items   ItemReader
	bank    BankClient
	engine  Reconciler
	metrics *metrics.Recorder

	// processing short-circuits a tick that fires while the previous one
	// is still draining the queue.
	processing atomic.Bool
}

func New(
	cfg *config.Config,
	jobQueue JobQueue,
	batches BatchReader,
	items ItemReader,
	bankClient BankClient,
	engine Reconciler,
	recorder *metrics.Recorder,
) *Worker {
	return &Worker{
		cfg:     cfg,
		queue:   jobQueue,
		batches: batches,
		items:   items,
		bank:    bankClient,
		engine:  engine,
		metrics: recorder,
	}
}

// Start runs the polling loop until the context is cancelled.
func (w *Worker) Start(ctx context.Context) error {
	log.Println("Starting payment sync worker...")

	// Drain whatever is due from previous runs before the first tick.
	if err := w.Tick(ctx); err != nil {
		log.Printf("Warning: startup tick failed: %v", err)
	}

	ticker := time.NewTicker(time.Duration(w.cfg.PollInterval) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Worker shutting down...")
			return ctx.Err()
		case <-ticker.C:
			if err := w.Tick(ctx); err != nil {
				log.Printf("Error processing sync jobs: %v", err)
			}
		}
	}
}

// Tick claims and processes due jobs until the queue is empty. A single
// job's failure is routed to the retry path and never aborts the tick; a
// job-store failure aborts the tick, which resumes on the next schedule.
func (w *Worker) Tick(ctx context.Context) error {
	if !w.processing.CompareAndSwap(false, true) {
		log.Println("Previous tick still running, skipping")
		return nil
	}
	defer w.processing.Store(false)

	start := time.Now()
	if w.metrics != nil {
		defer func() { w.metrics.TickCompleted(time.Since(start).Seconds()) }()
	}

	if err := w.queue.ReclaimStale(ctx, time.Duration(w.cfg.StaleRunningMins)*time.Minute); err != nil {
		return err
	}
	if err := w.ensurePendingBatchJobs(ctx); err != nil {
		log.Printf("Warning: pending batch sweep failed: %v", err)
	}

	var processed, succeeded, failed int
	var tickErrs *multierror.Error

	for {
		job, err := w.queue.ClaimNextJob(ctx)
		if err != nil {
			return err
		}
		if job == nil {
			break
		}
		processed++

		decision, jobErr := w.processJob(ctx, job)
		if jobErr != nil {
			failed++
			tickErrs = multierror.Append(tickErrs, fmt.Errorf("job %s: %w", job.ID, jobErr))
			w.recordOutcome(job.Kind, "error")
			if err := w.queue.HandleError(ctx, job, jobErr); err != nil {
				return err
			}
			continue
		}

		succeeded++
		if decision.done {
			w.recordOutcome(job.Kind, "done")
			if err := w.queue.MarkDone(ctx, job.ID); err != nil {
				return err
			}
		} else {
			w.recordOutcome(job.Kind, "rescheduled")
			if err := w.queue.Reschedule(ctx, job, queue.DefaultSyncDelay, decision.reason); err != nil {
				return err
			}
		}
	}

	if processed > 0 {
		log.Printf("Tick finished: %d job(s) processed, %d succeeded, %d failed in %s",
			processed, succeeded, failed, time.Since(start).Round(time.Millisecond))
		if err := tickErrs.ErrorOrNil(); err != nil {
			log.Printf("Tick job errors: %v", err)
		}
	}
	return nil
}

// processJob dispatches on the job's target type. The returned error means
// the pass failed and the job goes to the retry path; the decision is only
// valid when the error is nil.
func (w *Worker) processJob(ctx context.Context, job *models.SyncJob) (jobDecision, error) {
	switch target := job.Target().(type) {
	case models.BatchTarget:
		return w.processBatchJob(ctx, job, target)
	case models.ItemTarget:
		return w.processItemJob(ctx, job, target)
	default:
		return jobDecision{}, fmt.Errorf("unknown job kind %q", job.Kind)
	}
}

func (w *Worker) processBatchJob(ctx context.Context, job *models.SyncJob, target models.BatchTarget) (jobDecision, error) {
	batch, err := w.batches.GetByRequestNumber(ctx, target.BatchRequestNumber)
	if err != nil {
		return jobDecision{}, err
	}

	status, err := w.bank.QueryBatchStatus(ctx, target.BatchRequestNumber, job.AccountID)
	if err != nil {
		return jobDecision{}, err
	}

	resolved, err := w.engine.ApplyBatchStatus(ctx, batch, status.StateCode, status.ValidCount, status.ValidAmount)
	if err != nil {
		return jobDecision{}, err
	}
	if resolved == nil {
		return jobDecision{reason: "bank response carried no requisition state"}, nil
	}

	classified := reconcile.ClassifyBatchState(*resolved)
	if classified == models.BatchStatusCompleted || classified == models.BatchStatusRejected {
		return jobDecision{done: true}, nil
	}
	return jobDecision{
		reason: fmt.Sprintf("batch still %s at the bank (state %d)", classified, *resolved),
	}, nil
}

func (w *Worker) processItemJob(ctx context.Context, job *models.SyncJob, target models.ItemTarget) (jobDecision, error) {
	item, err := w.items.GetByPaymentIdentifier(ctx, target.PaymentIdentifier)
	if err != nil {
		return jobDecision{}, err
	}

	status, err := w.bank.QueryItemStatus(ctx, target.PaymentIdentifier, job.AccountID)
	if err != nil {
		return jobDecision{}, err
	}

	category, err := w.engine.ApplyItemOutcome(ctx, item, status.State, status.PaidAt)
	if err != nil {
		return jobDecision{}, err
	}

	if category == reconcile.CategoryPending || category == reconcile.CategoryUnknown {
		return jobDecision{
			reason: fmt.Sprintf("payment state %q not settled yet", status.State),
		}, nil
	}
	return jobDecision{done: true}, nil
}

// ensurePendingBatchJobs backstops the submission flow: every batch still
// awaiting a verdict gets a sync job if its dedup slot is empty.
func (w *Worker) ensurePendingBatchJobs(ctx context.Context) error {
	batches, err := w.batches.GetPendingBatches(ctx, 50)
	if err != nil {
		return err
	}
	for _, batch := range batches {
		batchID := batch.ID
		if err := w.queue.ScheduleBatchSync(ctx, batch.BatchRequestNumber, batch.AccountID, &batchID, 0); err != nil {
			return err
		}
	}
	return nil
}

func (w *Worker) recordOutcome(kind models.SyncJobKind, outcome string) {
	if w.metrics != nil {
		w.metrics.JobProcessed(string(kind), outcome)
	}
}
