package jobs

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"casepilot/internal/ocr"
	"casepilot/internal/storage"
	"casepilot/internal/store"
)

func marshal(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func stringsReader(s string) *strings.Reader {
	return strings.NewReader(s)
}

func newOCRTestServer(t *testing.T, text string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(ocr.Result{Text: text, PageCount: 1})
	}))
}

func TestPipelineHandlersAdvanceCaseThroughEligibility(t *testing.T) {
	db := setupTestDB(t)
	blobRoot := t.TempDir()
	blobs, err := storage.New(blobRoot)
	require.NoError(t, err)

	srv := newOCRTestServer(t, "Permanent Account Number card issued by Income Tax Department. PAN: ABCPE1234F")
	defer srv.Close()
	ocrClient, err := ocr.NewClient(ocr.Config{BaseURL: srv.URL})
	require.NoError(t, err)

	stages := &Stages{DB: db, Blobs: blobs, OCR: ocrClient}

	now := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	c := store.Case{
		ID:         uuid.New(),
		CaseNumber: "CASE-20260731-0001",
		BorrowerName: "Jane Doe",
		Status:     store.CaseStatusCreated,
	}
	require.NoError(t, db.Create(&c).Error)

	product := store.LenderProduct{
		ID: uuid.New(), LenderName: "Lender A", ProductName: "Term Loan",
		IsActive: true, PolicyAvailable: true, MinCIBILScore: 0,
		EligibleEntityTypes: marshal(t, []string{"Proprietorship"}), RequiredDocuments: marshal(t, []string{}),
	}
	require.NoError(t, db.Create(&product).Error)

	supplemental := []store.ExtractedField{
		{ID: uuid.New(), CaseID: c.ID, FieldName: "cibil_score", FieldValue: "742", Confidence: 0.9, Source: store.SourceExtraction},
		{ID: uuid.New(), CaseID: c.ID, FieldName: "entity_type", FieldValue: "Proprietorship", Confidence: 0.9, Source: store.SourceExtraction},
		{ID: uuid.New(), CaseID: c.ID, FieldName: "business_vintage_years", FieldValue: "4", Confidence: 0.9, Source: store.SourceExtraction},
		{ID: uuid.New(), CaseID: c.ID, FieldName: "annual_turnover", FieldValue: "3000000", Confidence: 0.9, Source: store.SourceExtraction},
		{ID: uuid.New(), CaseID: c.ID, FieldName: "avg_monthly_balance", FieldValue: "150000", Confidence: 0.9, Source: store.SourceExtraction},
	}
	for _, f := range supplemental {
		require.NoError(t, db.Create(&f).Error)
	}

	docID := uuid.New()
	key := storage.DocumentKey(c.ID, docID, ".pdf")
	_, hash, err := blobs.WriteStream(key, stringsReader("pan document bytes"))
	require.NoError(t, err)
	doc := store.Document{
		ID: docID, CaseID: c.ID, StorageKey: key, OriginalFilename: "pan_card.pdf",
		ContentHash: hash, Extension: ".pdf", Status: store.DocumentStatusUploaded,
	}
	require.NoError(t, db.Create(&doc).Error)

	ocrJob, err := Enqueue(db, store.JobKindOCR, c.ID, documentJobPayload{DocumentID: docID}, now)
	require.NoError(t, err)

	require.NoError(t, stages.handleOCR(context.Background(), db, ocrJob))

	var classifyJob store.Job
	require.NoError(t, db.First(&classifyJob, "case_id = ? AND kind = ?", c.ID, store.JobKindClassify).Error)
	require.NoError(t, stages.handleClassify(context.Background(), db, &classifyJob))

	var extractJob store.Job
	require.NoError(t, db.First(&extractJob, "case_id = ? AND kind = ?", c.ID, store.JobKindExtract).Error)
	require.NoError(t, stages.handleExtract(context.Background(), db, &extractJob))

	var cascadeJob store.Job
	require.NoError(t, db.First(&cascadeJob, "case_id = ? AND kind = ?", c.ID, store.JobKindCascade).Error)
	require.NoError(t, stages.handleCascade(context.Background(), db, &cascadeJob))

	var assembleJob store.Job
	require.NoError(t, db.First(&assembleJob, "case_id = ? AND kind = ?", c.ID, store.JobKindAssembleFeatures).Error)
	require.NoError(t, stages.handleAssembleFeatures(context.Background(), db, &assembleJob))

	var feature store.BorrowerFeatureVector
	require.NoError(t, db.First(&feature, "case_id = ?", c.ID).Error)
	require.Equal(t, "ABCPE1234F", feature.PAN)

	var scoreJob store.Job
	require.NoError(t, db.First(&scoreJob, "case_id = ? AND kind = ?", c.ID, store.JobKindScoreEligibility).Error)
	require.NoError(t, stages.handleScoreEligibility(context.Background(), db, &scoreJob))

	var result store.EligibilityResult
	require.NoError(t, db.First(&result, "case_id = ?", c.ID).Error)
	require.Equal(t, store.HardFilterPass, result.HardFilterStatus)

	reportJob, err := Enqueue(db, store.JobKindGenerateReport, c.ID, map[string]any{}, now)
	require.NoError(t, err)
	require.NoError(t, stages.handleGenerateReport(context.Background(), db, reportJob))

	var caseReport store.CaseReport
	require.NoError(t, db.First(&caseReport, "case_id = ?", c.ID).Error)
	require.NotEmpty(t, caseReport.PDFStorageKey)
	require.Contains(t, caseReport.WhatsAppSummary, "CASE-20260731-0001")

	var finalCase store.Case
	require.NoError(t, db.First(&finalCase, "id = ?", c.ID).Error)
	require.Equal(t, store.CaseStatusReportGenerated, finalCase.Status)
}
