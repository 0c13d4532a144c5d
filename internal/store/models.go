// Package store holds the gorm entities for every table spec.md §3 and §6
// name (cases, documents, extracted_fields, borrower_features,
// lender_products, lender_pincodes, eligibility_results, case_reports,
// copilot_queries, jobs) plus the AutoMigrate wiring, following the
// teacher's services/otc-gateway/models package.
package store

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CaseStatus tracks monotone progression of a Case through the pipeline.
type CaseStatus string

// The pipeline's ordered status graph. Status only ever advances forward;
// see CaseStatus.CanAdvanceTo.
const (
	CaseStatusCreated           CaseStatus = "CREATED"
	CaseStatusDocumentsUploaded CaseStatus = "DOCUMENTS_UPLOADED"
	CaseStatusOCRInProgress     CaseStatus = "OCR_IN_PROGRESS"
	CaseStatusClassifying       CaseStatus = "CLASSIFYING"
	CaseStatusExtracting        CaseStatus = "EXTRACTING"
	CaseStatusFeaturesAssembled CaseStatus = "FEATURES_ASSEMBLED"
	CaseStatusEligibilityScored CaseStatus = "ELIGIBILITY_SCORED"
	CaseStatusReportGenerated   CaseStatus = "REPORT_GENERATED"
)

var caseStatusOrder = map[CaseStatus]int{
	CaseStatusCreated:           0,
	CaseStatusDocumentsUploaded: 1,
	CaseStatusOCRInProgress:     2,
	CaseStatusClassifying:       3,
	CaseStatusExtracting:        4,
	CaseStatusFeaturesAssembled: 5,
	CaseStatusEligibilityScored: 6,
	CaseStatusReportGenerated:   7,
}

// CanAdvanceTo reports whether moving from c to next respects the
// monotone-progression invariant (spec.md §3, §8).
func (c CaseStatus) CanAdvanceTo(next CaseStatus) bool {
	return caseStatusOrder[next] >= caseStatusOrder[c]
}

// Case is the root entity owning a borrower's application.
type Case struct {
	ID                   uuid.UUID      `gorm:"type:uuid;primaryKey"`
	CaseNumber           string         `gorm:"uniqueIndex;size:32;not null"` // CASE-YYYYMMDD-NNNN
	OwnerOperatorID      string         `gorm:"index;size:128;not null"`
	BorrowerName         string         `gorm:"size:255"`
	ProgramType          string         `gorm:"size:32;index"` // banking, gst, hybrid, ...
	Status               CaseStatus     `gorm:"size:32;index;not null"`
	ManualOverrides      []byte         `gorm:"type:jsonb"` // map[string]string, field_name -> value
	GSTIN                string         `gorm:"size:16"`
	Address              string         `gorm:"size:512"`
	EntityType           string         `gorm:"size:64"`
	Pincode              string         `gorm:"size:6"`
	BusinessVintageYears float64        `gorm:"default:0"`
	AnnualTurnover        float64        `gorm:"default:0"`
	GSTINRawResponse     []byte         `gorm:"type:jsonb"`
	CompletenessScore    float64        `gorm:"default:0"`
	CreatedAt            time.Time
	UpdatedAt             time.Time
	DeletedAt             gorm.DeletedAt `gorm:"index"`

	Documents           []Document
	ExtractedFields     []ExtractedField
	BorrowerFeatures    *BorrowerFeatureVector
	EligibilityResults  []EligibilityResult
	Report              *CaseReport
}

// DocumentStatus tracks a single uploaded document through ingest -> OCR ->
// classify -> extract.
type DocumentStatus string

const (
	DocumentStatusUploaded   DocumentStatus = "UPLOADED"
	DocumentStatusOCRComplete DocumentStatus = "OCR_COMPLETE"
	DocumentStatusClassified DocumentStatus = "CLASSIFIED"
	DocumentStatusExtracted  DocumentStatus = "EXTRACTED"
	DocumentStatusFailed     DocumentStatus = "FAILED"
)

// IsTerminal reports whether a Document has reached a terminal
// document-level state for the purposes of feature-assembly fan-in
// (spec.md §5: "Feature-assembly runs only after all Documents for the case
// reach a terminal document-level state (EXTRACTED or FAILED)").
func (s DocumentStatus) IsTerminal() bool {
	return s == DocumentStatusExtracted || s == DocumentStatusFailed
}

// Document is one borrower-submitted file bound to a Case.
type Document struct {
	ID                       uuid.UUID `gorm:"type:uuid;primaryKey"`
	CaseID                   uuid.UUID `gorm:"type:uuid;index:idx_doc_case_hash,unique;not null"`
	StorageKey               string    `gorm:"size:512;not null"`
	OriginalFilename         string    `gorm:"size:255"`
	ContentHash              string    `gorm:"size:64;index:idx_doc_case_hash,unique;not null"` // sha256 hex
	SizeBytes                int64
	Extension                string         `gorm:"size:16"`
	DocType                  *string        `gorm:"size:64;index"`
	ClassificationConfidence float64        `gorm:"default:0"`
	ClassificationMethod     string         `gorm:"size:16"`
	OCRText                  *string        `gorm:"type:text"`
	OCRFailureReason         string         `gorm:"size:128"`
	PageCount                int            `gorm:"default:0"`
	Status                   DocumentStatus `gorm:"size:32;index;not null"`
	CreatedAt                time.Time
	UpdatedAt                time.Time
}

// ExtractedFieldSource captures where a field value came from, used by the
// feature assembler's resolution rule (spec.md §4.5).
type ExtractedFieldSource string

const (
	SourceExtraction ExtractedFieldSource = "extraction"
	SourceManual     ExtractedFieldSource = "manual"
	SourceComputed   ExtractedFieldSource = "computed"
	SourceExternal   ExtractedFieldSource = "external"
)

// ExtractedField is one (field_name, value) candidate observed for a Case.
// Multiple rows per (case, field_name) are permitted by design; resolution
// happens at feature-assembly time, not at write time.
type ExtractedField struct {
	ID         uuid.UUID             `gorm:"type:uuid;primaryKey"`
	CaseID     uuid.UUID             `gorm:"type:uuid;index;not null"`
	DocumentID *uuid.UUID            `gorm:"type:uuid;index"`
	FieldName  string                `gorm:"size:64;index;not null"`
	FieldValue string                `gorm:"type:text"`
	Confidence float64               `gorm:"default:0"`
	Source     ExtractedFieldSource  `gorm:"size:16;not null"`
	CreatedAt  time.Time
}

// BorrowerFeatureVector is the single assembled view of a Case's financial
// and identity attributes (spec.md §3, §4.5). One row per Case (upsert).
type BorrowerFeatureVector struct {
	CaseID uuid.UUID `gorm:"type:uuid;primaryKey"`

	// Identity
	FullName string     `gorm:"size:255"`
	PAN      string     `gorm:"size:10"`
	Aadhaar  string      `gorm:"size:12"`
	DOB      *time.Time

	// Business
	EntityType           string `gorm:"size:64"`
	GSTIN                string `gorm:"size:16"`
	Pincode              string `gorm:"size:6"`
	BusinessVintageYears float64

	// Financial
	AnnualTurnover     float64
	MonthlyTurnover    float64
	AvgMonthlyBalance  float64
	MonthlyCreditAvg   float64
	Bounces12M         int
	CashDepositRatio   float64
	ExistingEMIs       float64

	// Credit
	CIBILScore    int
	ActiveLoans   int
	Overdues      int
	Enquiries12M  int

	FeatureCompleteness float64
	UpdatedAt           time.Time
}

// LenderProduct is process-wide reference data (spec.md §3), mutated only by
// the ingestion CLI (cmd/lenderctl).
type LenderProduct struct {
	ID                   uuid.UUID `gorm:"type:uuid;primaryKey"`
	LenderName           string    `gorm:"size:128;index;not null"`
	ProductName          string    `gorm:"size:128;not null"`
	ProgramType          string    `gorm:"size:32;index"`
	IsActive             bool      `gorm:"index;not null;default:true"`
	PolicyAvailable      bool      `gorm:"index;not null;default:true"`
	MinCIBILScore        int
	MinVintageYears      float64
	MinTurnoverAnnual    float64
	MinABB               float64
	AgeMin               int
	AgeMax               int
	MaxTicketSize        float64
	MaxDPD30Plus         int
	EligibleEntityTypes  []byte `gorm:"type:jsonb"` // []string
	RequiredDocuments    []byte `gorm:"type:jsonb"` // []string
	EnforcesGeo          bool   `gorm:"not null;default:false"`
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// LenderPincode maps a LenderProduct's lender to a serviceable pincode.
type LenderPincode struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	LenderName string    `gorm:"size:128;index:idx_lender_pincode,unique;not null"`
	Pincode    string    `gorm:"size:6;index:idx_lender_pincode,unique;not null"`
}

// HardFilterStatus is the layer-1 outcome for one (case, lender product).
type HardFilterStatus string

const (
	HardFilterPass HardFilterStatus = "PASS"
	HardFilterFail HardFilterStatus = "FAIL"
)

// ApprovalProbability is the layer-3 bucketed output (spec.md §4.7).
type ApprovalProbability string

const (
	ApprovalHigh   ApprovalProbability = "HIGH"
	ApprovalMedium ApprovalProbability = "MEDIUM"
	ApprovalLow    ApprovalProbability = "LOW"
	ApprovalNone   ApprovalProbability = "NONE"
)

// EligibilityResult is one row of one run's evaluation of one lender product
// against one case (spec.md §3, §4.7).
type EligibilityResult struct {
	ID                      uuid.UUID           `gorm:"type:uuid;primaryKey"`
	CaseID                  uuid.UUID           `gorm:"type:uuid;index:idx_elig_case_run;not null"`
	LenderProductID         uuid.UUID           `gorm:"type:uuid;index;not null"`
	RunID                   uuid.UUID           `gorm:"type:uuid;index:idx_elig_case_run;not null"`
	HardFilterStatus        HardFilterStatus    `gorm:"size:8;not null"`
	HardFilterDetails       []byte              `gorm:"type:jsonb"` // map[string]string
	EligibilityScore        *float64
	ApprovalProbability     ApprovalProbability `gorm:"size:8"`
	ExpectedTicketMin       float64
	ExpectedTicketMax       float64
	Confidence              float64
	MissingForImprovement   []byte `gorm:"type:jsonb"` // []string
	Rank                    *int
	CreatedAt               time.Time
}

// CaseReport is the generated narrative/PDF/WhatsApp artifact bundle for a
// Case (spec.md §3, §4.8). One per Case (upsert on regeneration).
type CaseReport struct {
	CaseID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	ReportID         uuid.UUID `gorm:"type:uuid;uniqueIndex;not null"`
	Payload          []byte    `gorm:"type:jsonb"` // CaseReportData, see internal/report
	PDFStorageKey    string    `gorm:"size:512"`
	WhatsAppSummary  string    `gorm:"type:text"`
	GeneratedAt      time.Time
}

// CopilotQuery is one natural-language interaction, persisted regardless of
// detected type (spec.md §3, §4.9).
type CopilotQuery struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey"`
	OperatorID       string    `gorm:"size:128;index;not null"`
	CaseID           *uuid.UUID `gorm:"type:uuid;index"`
	QueryText        string    `gorm:"type:text;not null"`
	DetectedType     string    `gorm:"size:32"`
	RetrievedSources []byte    `gorm:"type:jsonb"`
	ResponseText     string    `gorm:"type:text"`
	CreatedAt        time.Time
}

// JobState is the job runner's lifecycle state (spec.md §4.10).
type JobState string

const (
	JobQueued    JobState = "queued"
	JobRunning   JobState = "running"
	JobSucceeded JobState = "succeeded"
	JobFailed    JobState = "failed"
	JobCancelled JobState = "cancelled"
)

// JobKind enumerates the stage handlers the job runner dispatches.
type JobKind string

const (
	JobKindOCR              JobKind = "ocr"
	JobKindClassify         JobKind = "classify"
	JobKindExtract          JobKind = "extract"
	JobKindAssembleFeatures JobKind = "assemble_features"
	JobKindScoreEligibility JobKind = "score_eligibility"
	JobKindGenerateReport   JobKind = "generate_report"
	JobKindCascade          JobKind = "cascade" // fan-in: checks whether all of a case's document jobs are terminal
)

// Job is a durable queue entry (spec.md §4.10).
type Job struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	Kind          JobKind   `gorm:"size:32;index;not null"`
	CaseID        uuid.UUID `gorm:"type:uuid;index;not null"`
	Payload       []byte    `gorm:"type:jsonb"`
	Attempts      int       `gorm:"not null;default:0"`
	State         JobState  `gorm:"size:16;index;not null"`
	LastError     string    `gorm:"type:text"`
	NotBefore     time.Time `gorm:"index;not null"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// AutoMigrate performs all schema migrations casepilot requires.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Case{},
		&Document{},
		&ExtractedField{},
		&BorrowerFeatureVector{},
		&LenderProduct{},
		&LenderPincode{},
		&EligibilityResult{},
		&CaseReport{},
		&CopilotQuery{},
		&Job{},
	)
}
