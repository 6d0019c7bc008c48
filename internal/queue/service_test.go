package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/agrovale/paysync-worker/internal/models"
)

type mockJobRepository struct {
	createFunc       func(ctx context.Context, job *models.SyncJob) error
	findActiveFunc   func(ctx context.Context, kind models.SyncJobKind, correlationKey string) (*models.SyncJob, error)
	nextDueFunc      func(ctx context.Context, now time.Time) (*models.SyncJob, error)
	tryClaimFunc     func(ctx context.Context, jobID string, now time.Time) (bool, error)
	markDoneFunc     func(ctx context.Context, jobID string) error
	markFailedFunc   func(ctx context.Context, jobID string, attempts int, lastError *string) error
	rescheduleFunc   func(ctx context.Context, jobID string, runAfter time.Time, attempts int, lastError *string) error
	bringForwardFunc func(ctx context.Context, jobID string, runAfter time.Time) error
	closeForBatch    func(ctx context.Context, kind models.SyncJobKind, batchID string) error
	reclaimStaleFunc func(ctx context.Context, olderThan time.Time) (int64, error)
}

func (m *mockJobRepository) Create(ctx context.Context, job *models.SyncJob) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, job)
	}
	return nil
}

func (m *mockJobRepository) FindActive(ctx context.Context, kind models.SyncJobKind, correlationKey string) (*models.SyncJob, error) {
	if m.findActiveFunc != nil {
		return m.findActiveFunc(ctx, kind, correlationKey)
	}
	return nil, nil
}

func (m *mockJobRepository) NextDue(ctx context.Context, now time.Time) (*models.SyncJob, error) {
	if m.nextDueFunc != nil {
		return m.nextDueFunc(ctx, now)
	}
	return nil, nil
}

func (m *mockJobRepository) TryClaim(ctx context.Context, jobID string, now time.Time) (bool, error) {
	if m.tryClaimFunc != nil {
		return m.tryClaimFunc(ctx, jobID, now)
	}
	return true, nil
}

func (m *mockJobRepository) MarkDone(ctx context.Context, jobID string) error {
	if m.markDoneFunc != nil {
		return m.markDoneFunc(ctx, jobID)
	}
	return nil
}

func (m *mockJobRepository) MarkFailed(ctx context.Context, jobID string, attempts int, lastError *string) error {
	if m.markFailedFunc != nil {
		return m.markFailedFunc(ctx, jobID, attempts, lastError)
	}
	return nil
}

func (m *mockJobRepository) Reschedule(ctx context.Context, jobID string, runAfter time.Time, attempts int, lastError *string) error {
	if m.rescheduleFunc != nil {
		return m.rescheduleFunc(ctx, jobID, runAfter, attempts, lastError)
	}
	return nil
}

func (m *mockJobRepository) BringForward(ctx context.Context, jobID string, runAfter time.Time) error {
	if m.bringForwardFunc != nil {
		return m.bringForwardFunc(ctx, jobID, runAfter)
	}
	return nil
}

func (m *mockJobRepository) CloseForBatch(ctx context.Context, kind models.SyncJobKind, batchID string) error {
	if m.closeForBatch != nil {
		return m.closeForBatch(ctx, kind, batchID)
	}
	return nil
}

func (m *mockJobRepository) ReclaimStale(ctx context.Context, olderThan time.Time) (int64, error) {
	if m.reclaimStaleFunc != nil {
		return m.reclaimStaleFunc(ctx, olderThan)
	}
	return 0, nil
}

func TestScheduleItemSync_EmptyKeyIsNoOp(t *testing.T) {
	created := false
	mockRepo := &mockJobRepository{
		createFunc: func(ctx context.Context, job *models.SyncJob) error {
			created = true
			return nil
		},
	}

	service := NewService(mockRepo)

	if err := service.ScheduleItemSync(context.Background(), "", "acc-1", nil, 0); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if created {
		t.Error("expected no job to be created for an empty payment identifier")
	}
}

func TestScheduleItemSync_CreatesJobWithDefaultDelay(t *testing.T) {
	var created *models.SyncJob
	mockRepo := &mockJobRepository{
		createFunc: func(ctx context.Context, job *models.SyncJob) error {
			created = job
			return nil
		},
	}

	service := NewService(mockRepo)
	before := time.Now()

	if err := service.ScheduleItemSync(context.Background(), "pay-42", "acc-1", nil, 0); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if created == nil {
		t.Fatal("expected a job to be created")
	}
	if created.Kind != models.JobKindItem {
		t.Errorf("expected kind %s, got %s", models.JobKindItem, created.Kind)
	}
	if created.CorrelationKey != "pay-42" {
		t.Errorf("expected correlation key 'pay-42', got %s", created.CorrelationKey)
	}
	if created.Status != models.JobStatusPending {
		t.Errorf("expected status pending, got %s", created.Status)
	}
	if created.ID == "" {
		t.Error("expected a generated job id")
	}

	wantRunAfter := before.Add(DefaultSyncDelay)
	if created.RunAfter.Before(wantRunAfter.Add(-time.Second)) || created.RunAfter.After(wantRunAfter.Add(time.Minute)) {
		t.Errorf("expected run_after around %s, got %s", wantRunAfter, created.RunAfter)
	}
}

func TestScheduleItemSync_DedupNeverCreatesSecondJob(t *testing.T) {
	active := &models.SyncJob{
		ID:             "job-1",
		Kind:           models.JobKindItem,
		CorrelationKey: "pay-42",
		Status:         models.JobStatusPending,
		RunAfter:       time.Now().Add(time.Hour),
	}

	created := false
	broughtForward := false
	mockRepo := &mockJobRepository{
		findActiveFunc: func(ctx context.Context, kind models.SyncJobKind, correlationKey string) (*models.SyncJob, error) {
			return active, nil
		},
		createFunc: func(ctx context.Context, job *models.SyncJob) error {
			created = true
			return nil
		},
		bringForwardFunc: func(ctx context.Context, jobID string, runAfter time.Time) error {
			if jobID != "job-1" {
				t.Errorf("expected job-1 to be brought forward, got %s", jobID)
			}
			if !runAfter.Before(active.RunAfter) {
				t.Errorf("expected earlier run_after than %s, got %s", active.RunAfter, runAfter)
			}
			broughtForward = true
			return nil
		},
	}

	service := NewService(mockRepo)

	// Sooner request: existing job is pulled earlier, never duplicated.
	if err := service.ScheduleItemSync(context.Background(), "pay-42", "acc-1", nil, time.Minute); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if created {
		t.Error("expected no second job while an active job exists")
	}
	if !broughtForward {
		t.Error("expected the active job's run_after to be pulled earlier")
	}

	// Later request: existing schedule is left alone.
	broughtForward = false
	if err := service.ScheduleItemSync(context.Background(), "pay-42", "acc-1", nil, 2*time.Hour); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if created || broughtForward {
		t.Error("expected a later request to leave the active job untouched")
	}
}

func TestClaimNextJob_EmptyQueue(t *testing.T) {
	mockRepo := &mockJobRepository{
		nextDueFunc: func(ctx context.Context, now time.Time) (*models.SyncJob, error) {
			return nil, nil
		},
		tryClaimFunc: func(ctx context.Context, jobID string, now time.Time) (bool, error) {
			t.Error("expected no claim attempt on an empty queue")
			return false, nil
		},
	}

	service := NewService(mockRepo)

	job, err := service.ClaimNextJob(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if job != nil {
		t.Errorf("expected no job, got %v", job)
	}
}

func TestClaimNextJob_RetriesAfterLostRace(t *testing.T) {
	jobs := []*models.SyncJob{
		{ID: "job-1", Kind: models.JobKindBatch, CorrelationKey: "100", Status: models.JobStatusPending},
		{ID: "job-2", Kind: models.JobKindItem, CorrelationKey: "pay-1", Status: models.JobStatusPending},
	}

	calls := 0
	mockRepo := &mockJobRepository{
		nextDueFunc: func(ctx context.Context, now time.Time) (*models.SyncJob, error) {
			job := jobs[calls]
			calls++
			return job, nil
		},
		tryClaimFunc: func(ctx context.Context, jobID string, now time.Time) (bool, error) {
			// job-1 is snatched by a concurrent worker.
			return jobID == "job-2", nil
		},
	}

	service := NewService(mockRepo)

	job, err := service.ClaimNextJob(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if job == nil || job.ID != "job-2" {
		t.Fatalf("expected job-2 after the lost race, got %v", job)
	}
	if job.Status != models.JobStatusRunning {
		t.Errorf("expected claimed job to be running, got %s", job.Status)
	}
}

func TestHandleError_BackoffThenFailed(t *testing.T) {
	var rescheduledAfter []time.Duration
	var failedAttempts int
	mockRepo := &mockJobRepository{
		rescheduleFunc: func(ctx context.Context, jobID string, runAfter time.Time, attempts int, lastError *string) error {
			rescheduledAfter = append(rescheduledAfter, time.Until(runAfter).Round(time.Minute))
			if lastError == nil {
				t.Error("expected the failure message to be recorded")
			}
			return nil
		},
		markFailedFunc: func(ctx context.Context, jobID string, attempts int, lastError *string) error {
			failedAttempts = attempts
			return nil
		},
	}

	service := NewService(mockRepo)
	job := &models.SyncJob{ID: "job-1", Kind: models.JobKindItem, CorrelationKey: "pay-1"}
	jobErr := errors.New("bank API returned status 502")

	for i := 0; i < 5; i++ {
		if err := service.HandleError(context.Background(), job, jobErr); err != nil {
			t.Fatalf("attempt %d: expected no error, got %v", i+1, err)
		}
	}

	expected := []time.Duration{15 * time.Minute, 15 * time.Minute, 30 * time.Minute, 60 * time.Minute}
	if len(rescheduledAfter) != len(expected) {
		t.Fatalf("expected %d reschedules before failing, got %d", len(expected), len(rescheduledAfter))
	}
	for i, want := range expected {
		if rescheduledAfter[i] != want {
			t.Errorf("reschedule %d: expected %s backoff, got %s", i+1, want, rescheduledAfter[i])
		}
	}
	if failedAttempts != 5 {
		t.Errorf("expected job to fail permanently at attempt 5, got %d", failedAttempts)
	}
}
