package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"casepilot/internal/pipelineerr"
	"casepilot/internal/store"
)

func TestTickDispatchesAndMarksSucceeded(t *testing.T) {
	db := setupTestDB(t)
	caseID := uuid.New()
	now := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	_, err := Enqueue(db, store.JobKindOCR, caseID, map[string]string{}, now)
	require.NoError(t, err)

	var called bool
	w := NewWorker(WorkerConfig{
		DB: db,
		Dispatcher: Dispatcher{
			store.JobKindOCR: func(ctx context.Context, tx *gorm.DB, job *store.Job) error {
				called = true
				return nil
			},
		},
		Now: func() time.Time { return now },
	})
	w.tick(context.Background())

	require.True(t, called)
	var job store.Job
	require.NoError(t, db.First(&job).Error)
	require.Equal(t, store.JobSucceeded, job.State)
}

func TestTickRetriesOnRetryableFailure(t *testing.T) {
	db := setupTestDB(t)
	caseID := uuid.New()
	now := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	_, err := Enqueue(db, store.JobKindOCR, caseID, map[string]string{}, now)
	require.NoError(t, err)

	w := NewWorker(WorkerConfig{
		DB: db,
		Dispatcher: Dispatcher{
			store.JobKindOCR: func(ctx context.Context, tx *gorm.DB, job *store.Job) error {
				return pipelineerr.New(pipelineerr.CodeExternalTransient, "provider unreachable")
			},
		},
		Now: func() time.Time { return now },
	})
	w.tick(context.Background())

	var job store.Job
	require.NoError(t, db.First(&job).Error)
	require.Equal(t, store.JobQueued, job.State)
	require.Equal(t, 1, job.Attempts)
}

func TestTickFailsTerminallyOnNonRetryableError(t *testing.T) {
	db := setupTestDB(t)
	caseID := uuid.New()
	now := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	_, err := Enqueue(db, store.JobKindOCR, caseID, map[string]string{}, now)
	require.NoError(t, err)

	w := NewWorker(WorkerConfig{
		DB: db,
		Dispatcher: Dispatcher{
			store.JobKindOCR: func(ctx context.Context, tx *gorm.DB, job *store.Job) error {
				return pipelineerr.New(pipelineerr.CodeValidation, "bad payload")
			},
		},
		Now: func() time.Time { return now },
	})
	w.tick(context.Background())

	var job store.Job
	require.NoError(t, db.First(&job).Error)
	require.Equal(t, store.JobFailed, job.State)
}

func TestTickSkipsWhenNoJobClaimable(t *testing.T) {
	db := setupTestDB(t)
	now := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)

	w := NewWorker(WorkerConfig{DB: db, Dispatcher: Dispatcher{}, Now: func() time.Time { return now }})
	w.tick(context.Background())
}
