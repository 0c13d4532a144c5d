package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"casepilot/internal/classify"
	"casepilot/internal/eligibility"
	"casepilot/internal/enrich/bankstatement"
	"casepilot/internal/enrich/gstin"
	"casepilot/internal/extract"
	"casepilot/internal/features"
	"casepilot/internal/ocr"
	"casepilot/internal/pipelineerr"
	"casepilot/internal/report"
	"casepilot/internal/storage"
	"casepilot/internal/store"
)

// Stages wires every stage handler spec.md §4.1-4.10 names into a
// Dispatcher, grounded on the pipeline's job-dependency-chain ordering
// (spec.md §5: "next job is enqueued by the preceding handler, after its
// DB commit").
type Stages struct {
	DB            *gorm.DB
	Blobs         *storage.Store
	OCR           *ocr.Client
	Model         classify.Model
	GSTIN         *gstin.Client
	BankStatement *bankstatement.Client
}

// Dispatcher returns the job-kind -> handler map for these stages.
func (s *Stages) Dispatcher() Dispatcher {
	return Dispatcher{
		store.JobKindOCR:              s.handleOCR,
		store.JobKindClassify:         s.handleClassify,
		store.JobKindExtract:          s.handleExtract,
		store.JobKindCascade:          s.handleCascade,
		store.JobKindAssembleFeatures: s.handleAssembleFeatures,
		store.JobKindScoreEligibility: s.handleScoreEligibility,
		store.JobKindGenerateReport:   s.handleGenerateReport,
	}
}

type documentJobPayload struct {
	DocumentID uuid.UUID `json:"document_id"`
}

// handleOCR extracts text from the document's stored blob (spec.md §4.2).
// On engine failure the Document is marked FAILED and downstream stages
// treat it as present but textless, rather than failing the job terminally.
func (s *Stages) handleOCR(ctx context.Context, db *gorm.DB, job *store.Job) error {
	var payload documentJobPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return pipelineerr.Wrap(pipelineerr.CodeValidation, "invalid ocr job payload", err)
	}

	var doc store.Document
	if err := db.First(&doc, "id = ?", payload.DocumentID).Error; err != nil {
		return err
	}

	blob, err := s.Blobs.OpenStream(doc.StorageKey)
	if err != nil {
		return fmt.Errorf("open document blob: %w", err)
	}
	content, err := io.ReadAll(blob)
	blob.Close()
	if err != nil {
		return fmt.Errorf("read document blob: %w", err)
	}

	result, ocrErr := s.OCR.Extract(ctx, doc.OriginalFilename, content)

	return db.Transaction(func(tx *gorm.DB) error {
		if ocrErr != nil {
			if pe, ok := pipelineerr.As(ocrErr); ok && pe.Code == pipelineerr.CodeExternalPermanent {
				doc.Status = store.DocumentStatusFailed
				doc.OCRFailureReason = pe.Message
				if err := tx.Save(&doc).Error; err != nil {
					return err
				}
				return enqueueNextDocumentStage(tx, doc, job.CaseID, time.Now())
			}
			return ocrErr
		}
		doc.OCRText = &result.Text
		doc.PageCount = result.PageCount
		doc.Status = store.DocumentStatusOCRComplete
		if err := tx.Save(&doc).Error; err != nil {
			return err
		}
		if _, err := Enqueue(tx, store.JobKindClassify, job.CaseID, documentJobPayload{DocumentID: doc.ID}, time.Now()); err != nil {
			return err
		}
		return advanceCaseStatus(tx, job.CaseID, store.CaseStatusOCRInProgress)
	})
}

// handleClassify runs the document classifier (spec.md §4.3) and enqueues
// the extraction job.
func (s *Stages) handleClassify(ctx context.Context, db *gorm.DB, job *store.Job) error {
	var payload documentJobPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return pipelineerr.Wrap(pipelineerr.CodeValidation, "invalid classify job payload", err)
	}

	var doc store.Document
	if err := db.First(&doc, "id = ?", payload.DocumentID).Error; err != nil {
		return err
	}
	if doc.Status == store.DocumentStatusFailed {
		return nil
	}

	ocrText := ""
	if doc.OCRText != nil {
		ocrText = *doc.OCRText
	}
	result := classify.Classify(doc.OriginalFilename, ocrText, s.Model)
	docType := string(result.DocType)

	return db.Transaction(func(tx *gorm.DB) error {
		doc.DocType = &docType
		doc.ClassificationConfidence = result.Confidence
		doc.ClassificationMethod = string(result.Method)
		doc.Status = store.DocumentStatusClassified
		if err := tx.Save(&doc).Error; err != nil {
			return err
		}
		if _, err := Enqueue(tx, store.JobKindExtract, job.CaseID, documentJobPayload{DocumentID: doc.ID}, time.Now()); err != nil {
			return err
		}
		return advanceCaseStatus(tx, job.CaseID, store.CaseStatusClassifying)
	})
}

// handleExtract runs the field extractor (spec.md §4.4) and persists every
// candidate as an ExtractedField row, then checks whether the case is
// ready to cascade into feature assembly.
func (s *Stages) handleExtract(ctx context.Context, db *gorm.DB, job *store.Job) error {
	var payload documentJobPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return pipelineerr.Wrap(pipelineerr.CodeValidation, "invalid extract job payload", err)
	}

	var doc store.Document
	if err := db.First(&doc, "id = ?", payload.DocumentID).Error; err != nil {
		return err
	}
	if doc.Status == store.DocumentStatusFailed {
		return nil
	}

	ocrText := ""
	if doc.OCRText != nil {
		ocrText = *doc.OCRText
	}
	docType := classify.DocumentType("")
	if doc.DocType != nil {
		docType = classify.DocumentType(*doc.DocType)
	}
	fields := extract.Extract(docType, ocrText)

	err := db.Transaction(func(tx *gorm.DB) error {
		for _, f := range fields {
			row := store.ExtractedField{
				ID:         uuid.New(),
				CaseID:     job.CaseID,
				DocumentID: &doc.ID,
				FieldName:  f.Name,
				FieldValue: f.Value,
				Confidence: f.Confidence,
				Source:     store.SourceExtraction,
			}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}
		doc.Status = store.DocumentStatusExtracted
		if err := tx.Save(&doc).Error; err != nil {
			return err
		}
		return advanceCaseStatus(tx, job.CaseID, store.CaseStatusExtracting)
	})
	if err != nil {
		return err
	}
	return MaybeCascade(db, job.CaseID, time.Now())
}

// handleCascade fans out the feature-assembly job once every document job
// for the case is terminal (spec.md §4.10, §5).
func (s *Stages) handleCascade(ctx context.Context, db *gorm.DB, job *store.Job) error {
	ready, err := allDocumentJobsTerminal(db, job.CaseID)
	if err != nil {
		return err
	}
	if !ready {
		return nil
	}
	_, err = Enqueue(db, store.JobKindAssembleFeatures, job.CaseID, map[string]any{}, time.Now())
	return err
}

// handleAssembleFeatures runs the feature assembler (spec.md §4.5) and
// enqueues eligibility scoring.
func (s *Stages) handleAssembleFeatures(ctx context.Context, db *gorm.DB, job *store.Job) error {
	var c store.Case
	if err := db.First(&c, "id = ?", job.CaseID).Error; err != nil {
		return err
	}
	s.runEnrichers(ctx, db, &c)
	if err := features.AssembleForCase(db, c); err != nil {
		return err
	}
	_, err := Enqueue(db, store.JobKindScoreEligibility, job.CaseID, map[string]any{}, time.Now())
	return err
}

// runEnrichers calls the optional GSTIN lookup and bank-statement analyzer
// before feature assembly (spec.md §4.6). Both are optional and neither
// fails the pipeline: an enricher error is dropped without being logged,
// and assembly continues without that enrichment. Results are persisted as
// ExtractedField rows with source=external so features.AssembleForCase's
// normal resolution rule picks them up.
func (s *Stages) runEnrichers(ctx context.Context, db *gorm.DB, c *store.Case) {
	s.runGSTINEnrichment(ctx, db, c)
	s.runBankStatementEnrichment(ctx, db, c)
}

func (s *Stages) runGSTINEnrichment(ctx context.Context, db *gorm.DB, c *store.Case) {
	if s.GSTIN == nil {
		return
	}
	var gstinField store.ExtractedField
	if err := db.Where("case_id = ? AND field_name = ?", c.ID, "gstin").
		Order("confidence desc").First(&gstinField).Error; err != nil {
		return
	}

	enrichCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	resp, err := s.GSTIN.Lookup(enrichCtx, gstinField.FieldValue)
	if err != nil {
		return
	}

	raw, _ := json.Marshal(resp)
	vintageYears := 0.0
	if t, parseErr := time.Parse("2006-01-02", resp.RegistrationDate); parseErr == nil {
		vintageYears = gstin.BusinessVintageYears(t, time.Now())
	}

	externalFields := map[string]string{
		"entity_type":            resp.ConstitutionOfBusiness,
		"pincode":                resp.PrincipalPlace.Pincode,
		"business_vintage_years": fmt.Sprintf("%.2f", vintageYears),
	}
	_ = db.Transaction(func(tx *gorm.DB) error {
		for name, value := range externalFields {
			if value == "" {
				continue
			}
			if err := upsertExternalField(tx, c.ID, name, value); err != nil {
				return err
			}
		}
		c.GSTINRawResponse = raw
		c.EntityType = resp.ConstitutionOfBusiness
		c.Pincode = resp.PrincipalPlace.Pincode
		c.BusinessVintageYears = vintageYears
		return tx.Save(c).Error
	})
}

func (s *Stages) runBankStatementEnrichment(ctx context.Context, db *gorm.DB, c *store.Case) {
	if s.BankStatement == nil {
		return
	}
	var docs []store.Document
	if err := db.Where("case_id = ? AND doc_type = ?", c.ID, string(classify.TypeBankStatement)).Find(&docs).Error; err != nil || len(docs) == 0 {
		return
	}
	keys := make([]string, 0, len(docs))
	for _, d := range docs {
		keys = append(keys, d.StorageKey)
	}

	enrichCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	resp, err := s.BankStatement.Analyze(enrichCtx, keys)
	if err != nil {
		return
	}

	var creditSum, balanceSum float64
	for _, m := range resp.Monthly {
		creditSum += m.Credit
		balanceSum += m.ClosingBalance
	}
	monthlyCreditAvg, avgMonthlyBalance := 0.0, 0.0
	if n := len(resp.Monthly); n > 0 {
		monthlyCreditAvg = creditSum / float64(n)
		avgMonthlyBalance = balanceSum / float64(n)
	}

	externalFields := map[string]string{
		"monthly_credit_avg":  fmt.Sprintf("%.2f", monthlyCreditAvg),
		"avg_monthly_balance": fmt.Sprintf("%.2f", avgMonthlyBalance),
		"bounces_12m":         fmt.Sprintf("%d", resp.Bounces12M),
		"cash_deposit_ratio":  fmt.Sprintf("%.4f", resp.CashDepositRatio),
	}
	_ = db.Transaction(func(tx *gorm.DB) error {
		for name, value := range externalFields {
			if err := upsertExternalField(tx, c.ID, name, value); err != nil {
				return err
			}
		}
		return nil
	})
}

// upsertExternalField replaces any prior external-sourced value for
// field_name so re-running enrichment stays idempotent.
func upsertExternalField(tx *gorm.DB, caseID uuid.UUID, fieldName, value string) error {
	if err := tx.Where("case_id = ? AND field_name = ? AND source = ?", caseID, fieldName, store.SourceExternal).
		Delete(&store.ExtractedField{}).Error; err != nil {
		return err
	}
	row := store.ExtractedField{
		ID:         uuid.New(),
		CaseID:     caseID,
		FieldName:  fieldName,
		FieldValue: value,
		Confidence: 1.0,
		Source:     store.SourceExternal,
	}
	return tx.Create(&row).Error
}

// handleScoreEligibility runs the eligibility engine (spec.md §4.7).
func (s *Stages) handleScoreEligibility(ctx context.Context, db *gorm.DB, job *store.Job) error {
	_, err := eligibility.Run(db, job.CaseID, time.Now())
	return err
}

// handleGenerateReport assembles and renders the case report (spec.md
// §4.8), storing the PDF as a blob and the WhatsApp digest alongside it.
func (s *Stages) handleGenerateReport(ctx context.Context, db *gorm.DB, job *store.Job) error {
	var c store.Case
	if err := db.First(&c, "id = ?", job.CaseID).Error; err != nil {
		return err
	}
	var feature store.BorrowerFeatureVector
	if err := db.First(&feature, "case_id = ?", job.CaseID).Error; err != nil {
		return err
	}
	var docs []store.Document
	if err := db.Where("case_id = ?", job.CaseID).Find(&docs).Error; err != nil {
		return err
	}
	var results []store.EligibilityResult
	if err := db.Where("case_id = ?", job.CaseID).Find(&results).Error; err != nil {
		return err
	}
	var products []store.LenderProduct
	if err := db.Find(&products).Error; err != nil {
		return err
	}
	nameByProduct := make(map[uuid.UUID]string, len(products))
	requiredByProduct := make(map[uuid.UUID][]string, len(products))
	for _, p := range products {
		nameByProduct[p.ID] = p.LenderName
		var required []string
		if err := json.Unmarshal(p.RequiredDocuments, &required); err == nil {
			requiredByProduct[p.ID] = required
		}
	}

	data := report.Build(c, feature, docs, results, requiredByProduct, nameByProduct)
	pdfBytes, err := report.RenderPDF(data)
	if err != nil {
		return fmt.Errorf("render report pdf: %w", err)
	}
	whatsapp := report.RenderWhatsApp(data)

	reportID := uuid.New()
	key := storage.ReportKey(job.CaseID, reportID)
	if _, _, err := s.Blobs.WriteStream(key, bytes.NewReader(pdfBytes)); err != nil {
		return fmt.Errorf("store report pdf: %w", err)
	}

	payloadJSON, err := json.Marshal(data)
	if err != nil {
		return err
	}

	return db.Transaction(func(tx *gorm.DB) error {
		existing := store.CaseReport{}
		err := tx.First(&existing, "case_id = ?", job.CaseID).Error
		record := store.CaseReport{
			CaseID:          job.CaseID,
			ReportID:        reportID,
			Payload:         payloadJSON,
			PDFStorageKey:   key,
			WhatsAppSummary: whatsapp,
			GeneratedAt:     time.Now(),
		}
		if errors.Is(err, gorm.ErrRecordNotFound) {
			if err := tx.Create(&record).Error; err != nil {
				return err
			}
		} else if err != nil {
			return err
		} else {
			record.CaseID = existing.CaseID
			if err := tx.Save(&record).Error; err != nil {
				return err
			}
		}
		return advanceCaseStatus(tx, job.CaseID, store.CaseStatusReportGenerated)
	})
}

// enqueueNextDocumentStage is used on OCR failure: the document is
// terminal (FAILED), so instead of enqueuing classify/extract it checks
// whether the case as a whole can now cascade.
func enqueueNextDocumentStage(tx *gorm.DB, doc store.Document, caseID uuid.UUID, now time.Time) error {
	return MaybeCascade(tx, caseID, now)
}

// advanceCaseStatus moves a Case forward only, never backward (spec.md §3
// invariant enforced by CaseStatus.CanAdvanceTo).
func advanceCaseStatus(tx *gorm.DB, caseID uuid.UUID, next store.CaseStatus) error {
	var c store.Case
	if err := tx.First(&c, "id = ?", caseID).Error; err != nil {
		return err
	}
	if !c.Status.CanAdvanceTo(next) {
		return nil
	}
	return tx.Model(&c).Update("status", next).Error
}
