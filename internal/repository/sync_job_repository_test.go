package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/agrovale/paysync-worker/internal/models"
)

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn:                 sqlDB,
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		Logger:      logger.Default.LogMode(logger.Silent),
		PrepareStmt: false,
	})
	require.NoError(t, err)

	return gormDB, mock
}

func TestSyncJobRepository_TryClaim_Wins(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewSyncJobRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "payment_sync_job" SET .+ WHERE id = \$\d+ AND status = \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	claimed, err := repo.TryClaim(context.Background(), "job-1", time.Now())
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSyncJobRepository_TryClaim_LosesRace(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewSyncJobRepository(db)

	// Another worker already flipped the row; the conditional update
	// matches nothing.
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "payment_sync_job" SET .+ WHERE id = \$\d+ AND status = \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	claimed, err := repo.TryClaim(context.Background(), "job-1", time.Now())
	require.NoError(t, err)
	assert.False(t, claimed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSyncJobRepository_NextDue_OrdersByRunAfterThenID(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewSyncJobRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "kind", "correlation_key", "account_id", "status", "run_after", "attempts"}).
		AddRow("job-1", "batch", "100", "acc-1", "pending", now.Add(-time.Minute), 0)

	mock.ExpectQuery(`SELECT .+ FROM "payment_sync_job" WHERE status = \$\d+ AND run_after <= \$\d+ ORDER BY run_after ASC, id ASC`).
		WillReturnRows(rows)

	job, err := repo.NextDue(context.Background(), now)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "job-1", job.ID)
	assert.Equal(t, models.JobKindBatch, job.Kind)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSyncJobRepository_NextDue_EmptyQueue(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewSyncJobRepository(db)

	mock.ExpectQuery(`SELECT .+ FROM "payment_sync_job"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	job, err := repo.NextDue(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestSyncJobRepository_FindActive_NoSlotTaken(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewSyncJobRepository(db)

	mock.ExpectQuery(`SELECT .+ FROM "payment_sync_job" WHERE kind = \$\d+ AND correlation_key = \$\d+ AND status IN \(\$\d+,\$\d+\)`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	job, err := repo.FindActive(context.Background(), models.JobKindItem, "pay-1")
	require.NoError(t, err)
	assert.Nil(t, job)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSyncJobRepository_CloseForBatch(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewSyncJobRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "payment_sync_job" SET .+ WHERE kind = \$\d+ AND batch_id = \$\d+ AND status IN \(\$\d+,\$\d+\)`).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	err := repo.CloseForBatch(context.Background(), models.JobKindItem, "batch-1")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSyncJobRepository_ReclaimStale(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewSyncJobRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "payment_sync_job" SET .+ WHERE status = \$\d+ AND last_run_at < \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	reclaimed, err := repo.ReclaimStale(context.Background(), time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), reclaimed)
}
