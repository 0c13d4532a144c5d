package ingest

import (
	"archive/zip"
	"bytes"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"casepilot/internal/pipelineerr"
	"casepilot/internal/storage"
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

func newTestIngester(t *testing.T) (*Ingester, uuid.UUID) {
	t.Helper()
	db := setupTestDB(t)
	blobs, err := storage.New(t.TempDir())
	require.NoError(t, err)

	c := store.Case{ID: uuid.New(), CaseNumber: "CASE-20260731-0001", Status: store.CaseStatusCreated}
	require.NoError(t, db.Create(&c).Error)

	ig := New(db, blobs, Limits{})
	ig.Now = func() time.Time { return time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC) }
	return ig, c.ID
}

func TestIngestFileCreatesDocumentAndOCRJob(t *testing.T) {
	ig, caseID := newTestIngester(t)

	docID, err := ig.IngestFile(caseID, "pan-card.jpg", []byte("fake-jpg-bytes"))
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, docID)

	var doc store.Document
	require.NoError(t, ig.DB.First(&doc, "id = ?", docID).Error)
	require.Equal(t, store.DocumentStatusUploaded, doc.Status)

	var job store.Job
	require.NoError(t, ig.DB.First(&job, "case_id = ? AND kind = ?", caseID, store.JobKindOCR).Error)
	require.Equal(t, store.JobQueued, job.State)

	var c store.Case
	require.NoError(t, ig.DB.First(&c, "id = ?", caseID).Error)
	require.Equal(t, store.CaseStatusDocumentsUploaded, c.Status)
}

func TestIngestFileRejectsUnsupportedExtension(t *testing.T) {
	ig, caseID := newTestIngester(t)
	_, err := ig.IngestFile(caseID, "notes.txt", []byte("hello"))
	require.Error(t, err)
	require.True(t, pipelineerr.Is(err, pipelineerr.CodeValidation))
}

func TestIngestFileDuplicateContentRejected(t *testing.T) {
	ig, caseID := newTestIngester(t)
	content := []byte("identical-content")

	_, err := ig.IngestFile(caseID, "a.pdf", content)
	require.NoError(t, err)

	_, err = ig.IngestFile(caseID, "b.pdf", content)
	require.Error(t, err)
	require.True(t, pipelineerr.Is(err, pipelineerr.CodeDuplicate))
}

func TestIngestZipSkipsIgnoredAndInvalidEntries(t *testing.T) {
	ig, caseID := newTestIngester(t)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	w, _ := zw.Create("pan.pdf")
	w.Write([]byte("pan-content"))

	w, _ = zw.Create(".DS_Store")
	w.Write([]byte("junk"))

	w, _ = zw.Create("__MACOSX/pan.pdf")
	w.Write([]byte("junk"))

	w, _ = zw.Create("notes.txt")
	w.Write([]byte("not allowed"))

	zw.Create("empty.pdf")

	require.NoError(t, zw.Close())

	result, err := ig.IngestZip(caseID, buf.Bytes())
	require.NoError(t, err)
	require.Len(t, result.Accepted, 1)
	require.Len(t, result.Skipped, 2) // notes.txt + empty.pdf (DS_Store and __MACOSX ignored silently)
}
