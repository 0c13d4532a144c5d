package jobs

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"casepilot/internal/store"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := store.Open(dsn)
	require.NoError(t, err)
	require.NoError(t, store.AutoMigrate(db))
	return db
}

func TestEnqueueClaimSucceed(t *testing.T) {
	db := setupTestDB(t)
	caseID := uuid.New()
	now := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)

	job, err := Enqueue(db, store.JobKindOCR, caseID, map[string]string{"k": "v"}, now)
	require.NoError(t, err)

	claimed, err := Claim(db, now)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	require.Equal(t, job.ID, claimed.ID)
	require.Equal(t, store.JobRunning, claimed.State)

	again, err := Claim(db, now)
	require.NoError(t, err)
	require.Nil(t, again)

	require.NoError(t, Succeed(db, job.ID))
	var reloaded store.Job
	require.NoError(t, db.First(&reloaded, "id = ?", job.ID).Error)
	require.Equal(t, store.JobSucceeded, reloaded.State)
}

func TestClaimRespectsNotBefore(t *testing.T) {
	db := setupTestDB(t)
	caseID := uuid.New()
	now := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)

	job, err := Enqueue(db, store.JobKindOCR, caseID, map[string]string{}, now.Add(time.Hour))
	require.NoError(t, err)

	claimed, err := Claim(db, now)
	require.NoError(t, err)
	require.Nil(t, claimed)

	claimed, err = Claim(db, now.Add(2*time.Hour))
	require.NoError(t, err)
	require.NotNil(t, claimed)
	require.Equal(t, job.ID, claimed.ID)
}

func TestFailRequeuesWithBackoffThenTerminates(t *testing.T) {
	db := setupTestDB(t)
	caseID := uuid.New()
	now := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	cfg := Config{MaxAttempts: 2, BackoffBase: 10 * time.Second, BackoffFactor: 2}

	job, err := Enqueue(db, store.JobKindOCR, caseID, map[string]string{}, now)
	require.NoError(t, err)

	require.NoError(t, Fail(db, job.ID, "transient failure", cfg, now))
	var reloaded store.Job
	require.NoError(t, db.First(&reloaded, "id = ?", job.ID).Error)
	require.Equal(t, store.JobQueued, reloaded.State)
	require.Equal(t, 1, reloaded.Attempts)
	require.Equal(t, now.Add(10*time.Second), reloaded.NotBefore)

	require.NoError(t, Fail(db, job.ID, "transient failure again", cfg, now))
	require.NoError(t, db.First(&reloaded, "id = ?", job.ID).Error)
	require.Equal(t, store.JobFailed, reloaded.State)
	require.Equal(t, 2, reloaded.Attempts)
}

func TestCancelForCaseTransitionsNonTerminalJobs(t *testing.T) {
	db := setupTestDB(t)
	caseID := uuid.New()
	now := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)

	queued, err := Enqueue(db, store.JobKindOCR, caseID, map[string]string{}, now)
	require.NoError(t, err)
	done, err := Enqueue(db, store.JobKindClassify, caseID, map[string]string{}, now)
	require.NoError(t, err)
	require.NoError(t, Succeed(db, done.ID))

	require.NoError(t, CancelForCase(db, caseID))

	var q store.Job
	require.NoError(t, db.First(&q, "id = ?", queued.ID).Error)
	require.Equal(t, store.JobCancelled, q.State)

	var d store.Job
	require.NoError(t, db.First(&d, "id = ?", done.ID).Error)
	require.Equal(t, store.JobSucceeded, d.State)
}

func TestProgressForCaseAggregatesByKindAndState(t *testing.T) {
	db := setupTestDB(t)
	caseID := uuid.New()
	now := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)

	j1, _ := Enqueue(db, store.JobKindOCR, caseID, map[string]string{}, now)
	j2, _ := Enqueue(db, store.JobKindOCR, caseID, map[string]string{}, now)
	require.NoError(t, Succeed(db, j1.ID))
	_ = j2

	progress, err := ProgressForCase(db, caseID)
	require.NoError(t, err)
	require.Equal(t, 1, progress.Counts[store.JobKindOCR][store.JobSucceeded])
	require.Equal(t, 1, progress.Counts[store.JobKindOCR][store.JobQueued])
}

func TestMaybeCascadeEnqueuesOnceDocumentJobsAreTerminal(t *testing.T) {
	db := setupTestDB(t)
	caseID := uuid.New()
	now := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)

	pending, err := Enqueue(db, store.JobKindExtract, caseID, map[string]string{}, now)
	require.NoError(t, err)

	require.NoError(t, MaybeCascade(db, caseID, now))
	var count int64
	db.Model(&store.Job{}).Where("case_id = ? AND kind = ?", caseID, store.JobKindCascade).Count(&count)
	require.Equal(t, int64(0), count)

	require.NoError(t, Succeed(db, pending.ID))
	require.NoError(t, MaybeCascade(db, caseID, now))
	db.Model(&store.Job{}).Where("case_id = ? AND kind = ?", caseID, store.JobKindCascade).Count(&count)
	require.Equal(t, int64(1), count)

	require.NoError(t, MaybeCascade(db, caseID, now))
	db.Model(&store.Job{}).Where("case_id = ? AND kind = ?", caseID, store.JobKindCascade).Count(&count)
	require.Equal(t, int64(1), count)
}
