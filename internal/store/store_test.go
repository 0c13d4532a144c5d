package store

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := Open(dsn)
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(db))
	require.NoError(t, AutoMigrateCounter(db))
	return db
}

func TestCaseStatusCanAdvanceTo(t *testing.T) {
	require.True(t, CaseStatusCreated.CanAdvanceTo(CaseStatusDocumentsUploaded))
	require.True(t, CaseStatusCreated.CanAdvanceTo(CaseStatusCreated))
	require.False(t, CaseStatusReportGenerated.CanAdvanceTo(CaseStatusCreated))
	require.True(t, CaseStatusOCRInProgress.CanAdvanceTo(CaseStatusEligibilityScored))
}

func TestDocumentStatusIsTerminal(t *testing.T) {
	require.True(t, DocumentStatusExtracted.IsTerminal())
	require.True(t, DocumentStatusFailed.IsTerminal())
	require.False(t, DocumentStatusUploaded.IsTerminal())
	require.False(t, DocumentStatusClassified.IsTerminal())
}

func TestNextCaseNumberSequentialWithinDay(t *testing.T) {
	db := setupTestDB(t)
	now := time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)

	first, err := NextCaseNumber(db, now)
	require.NoError(t, err)
	require.Equal(t, "CASE-20260731-0001", first)

	second, err := NextCaseNumber(db, now.Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, "CASE-20260731-0002", second)

	nextDay := now.Add(24 * time.Hour)
	third, err := NextCaseNumber(db, nextDay)
	require.NoError(t, err)
	require.Equal(t, "CASE-20260801-0001", third)
}

func TestDocumentContentHashUniquePerCase(t *testing.T) {
	db := setupTestDB(t)
	c := Case{ID: uuid.New(), CaseNumber: "CASE-20260731-0001", Status: CaseStatusCreated}
	require.NoError(t, db.Create(&c).Error)

	doc := Document{
		ID:          uuid.New(),
		CaseID:      c.ID,
		ContentHash: "abc123",
		Status:      DocumentStatusUploaded,
	}
	require.NoError(t, db.Create(&doc).Error)

	dup := Document{
		ID:          uuid.New(),
		CaseID:      c.ID,
		ContentHash: "abc123",
		Status:      DocumentStatusUploaded,
	}
	require.Error(t, db.Create(&dup).Error)
}
