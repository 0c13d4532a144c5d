package export

import (
	"fmt"
	"os"
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

func TestSnapshotWritesParquetFilesForWindow(t *testing.T) {
	db := setupTestDB(t)
	dir := t.TempDir()

	caseID := uuid.New()
	c := store.Case{ID: caseID, CaseNumber: "CASE-20260731-0001", Status: store.CaseStatusCreated}
	require.NoError(t, db.Create(&c).Error)

	runID := uuid.New()
	score := 72.5
	rank := 1
	result := store.EligibilityResult{
		ID:                uuid.New(),
		CaseID:            caseID,
		LenderProductID:   uuid.New(),
		RunID:             runID,
		HardFilterStatus:  "PASS",
		EligibilityScore:  &score,
		Rank:              &rank,
		CreatedAt:         time.Now(),
	}
	require.NoError(t, db.Create(&result).Error)

	job := store.Job{ID: uuid.New(), Kind: store.JobKindScoreEligibility, CaseID: caseID, State: store.JobSucceeded, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	require.NoError(t, db.Create(&job).Error)

	start := time.Now().Add(-time.Hour)
	end := time.Now().Add(time.Hour)
	eligibilityPath, jobsPath, err := Snapshot(db, dir, start, end)
	require.NoError(t, err)

	for _, p := range []string{eligibilityPath, jobsPath} {
		info, err := os.Stat(p)
		require.NoError(t, err)
		require.Greater(t, info.Size(), int64(0))
	}
}

func TestSnapshotWritesJobsFileWhenAllRowsOutsideWindow(t *testing.T) {
	db := setupTestDB(t)
	dir := t.TempDir()

	caseID := uuid.New()
	c := store.Case{ID: caseID, CaseNumber: "CASE-20260731-0002", Status: store.CaseStatusCreated}
	require.NoError(t, db.Create(&c).Error)

	old := store.Job{ID: uuid.New(), Kind: store.JobKindOCR, CaseID: caseID, State: store.JobSucceeded, CreatedAt: time.Now().Add(-48 * time.Hour), UpdatedAt: time.Now()}
	require.NoError(t, db.Create(&old).Error)

	start := time.Now().Add(-time.Hour)
	end := time.Now().Add(time.Hour)
	_, jobsPath, err := Snapshot(db, dir, start, end)
	require.NoError(t, err)

	info, err := os.Stat(jobsPath)
	require.NoError(t, err)
	require.Greater(t, info.Size(), int64(0))
}
