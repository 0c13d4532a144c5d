// Package export snapshots eligibility_results and jobs to Parquet files
// for offline analysis (SPEC_FULL.md §4: "Audit/analytics export"),
// grounded on the teacher's services/otc-gateway/recon reconciliation
// export — same writerfile/writer.NewParquetWriter(..., 1) shape and
// struct-tag schema, repurposed from voucher reconciliation rows to
// case/eligibility rows. This is a once-daily batch snapshot, not the
// real-time streaming analytics spec.md's Non-goals exclude.
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
	"gorm.io/gorm"

	"casepilot/internal/store"
)

// eligibilityRow is one flattened EligibilityResult for columnar export.
type eligibilityRow struct {
	ResultID             string  `parquet:"name=result_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	CaseID               string  `parquet:"name=case_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	RunID                string  `parquet:"name=run_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	LenderProductID      string  `parquet:"name=lender_product_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	HardFilterStatus     string  `parquet:"name=hard_filter_status, type=BYTE_ARRAY, convertedtype=UTF8"`
	EligibilityScore     float64 `parquet:"name=eligibility_score, type=DOUBLE"`
	ApprovalProbability  string  `parquet:"name=approval_probability, type=BYTE_ARRAY, convertedtype=UTF8"`
	ExpectedTicketMin    float64 `parquet:"name=expected_ticket_min, type=DOUBLE"`
	ExpectedTicketMax    float64 `parquet:"name=expected_ticket_max, type=DOUBLE"`
	Confidence           float64 `parquet:"name=confidence, type=DOUBLE"`
	Rank                 int32   `parquet:"name=rank, type=INT32"`
	CreatedAt            string  `parquet:"name=created_at, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// jobRow is one flattened Job for columnar export.
type jobRow struct {
	JobID     string `parquet:"name=job_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Kind      string `parquet:"name=kind, type=BYTE_ARRAY, convertedtype=UTF8"`
	CaseID    string `parquet:"name=case_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Attempts  int32  `parquet:"name=attempts, type=INT32"`
	State     string `parquet:"name=state, type=BYTE_ARRAY, convertedtype=UTF8"`
	LastError string `parquet:"name=last_error, type=BYTE_ARRAY, convertedtype=UTF8"`
	CreatedAt string `parquet:"name=created_at, type=BYTE_ARRAY, convertedtype=UTF8"`
	UpdatedAt string `parquet:"name=updated_at, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// Snapshot writes eligibility_results and jobs created in [start, end) to
// two Parquet files under dir, named by the window's end timestamp.
func Snapshot(db *gorm.DB, dir string, start, end time.Time) (eligibilityPath, jobsPath string, err error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", fmt.Errorf("export: create dir: %w", err)
	}

	var results []store.EligibilityResult
	if err := db.Where("created_at >= ? AND created_at < ?", start, end).Find(&results).Error; err != nil {
		return "", "", fmt.Errorf("export: load eligibility results: %w", err)
	}
	var jobs []store.Job
	if err := db.Where("created_at >= ? AND created_at < ?", start, end).Find(&jobs).Error; err != nil {
		return "", "", fmt.Errorf("export: load jobs: %w", err)
	}

	stamp := end.UTC().Format("20060102T150405Z")
	eligibilityPath = filepath.Join(dir, "eligibility_results_"+stamp+".parquet")
	jobsPath = filepath.Join(dir, "jobs_"+stamp+".parquet")

	if err := writeEligibilityParquet(eligibilityPath, results); err != nil {
		return "", "", err
	}
	if err := writeJobsParquet(jobsPath, jobs); err != nil {
		return "", "", err
	}
	return eligibilityPath, jobsPath, nil
}

func writeEligibilityParquet(path string, results []store.EligibilityResult) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export: create parquet: %w", err)
	}
	fw := writerfile.NewWriterFile(file)
	pw, err := writer.NewParquetWriter(fw, new(eligibilityRow), 1)
	if err != nil {
		file.Close()
		return fmt.Errorf("export: parquet schema: %w", err)
	}
	pw.RowGroupSize = 64 * 1024 * 1024
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, r := range results {
		score := 0.0
		if r.EligibilityScore != nil {
			score = *r.EligibilityScore
		}
		rank := int32(0)
		if r.Rank != nil {
			rank = int32(*r.Rank)
		}
		row := &eligibilityRow{
			ResultID:            r.ID.String(),
			CaseID:              r.CaseID.String(),
			RunID:               r.RunID.String(),
			LenderProductID:     r.LenderProductID.String(),
			HardFilterStatus:    string(r.HardFilterStatus),
			EligibilityScore:    score,
			ApprovalProbability: string(r.ApprovalProbability),
			ExpectedTicketMin:   r.ExpectedTicketMin,
			ExpectedTicketMax:   r.ExpectedTicketMax,
			Confidence:          r.Confidence,
			Rank:                rank,
			CreatedAt:           r.CreatedAt.Format(time.RFC3339),
		}
		if err := pw.Write(row); err != nil {
			pw.WriteStop()
			file.Close()
			return fmt.Errorf("export: parquet write: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		file.Close()
		return fmt.Errorf("export: parquet flush: %w", err)
	}
	return file.Close()
}

func writeJobsParquet(path string, jobs []store.Job) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export: create parquet: %w", err)
	}
	fw := writerfile.NewWriterFile(file)
	pw, err := writer.NewParquetWriter(fw, new(jobRow), 1)
	if err != nil {
		file.Close()
		return fmt.Errorf("export: parquet schema: %w", err)
	}
	pw.RowGroupSize = 64 * 1024 * 1024
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, j := range jobs {
		row := &jobRow{
			JobID:     j.ID.String(),
			Kind:      string(j.Kind),
			CaseID:    j.CaseID.String(),
			Attempts:  int32(j.Attempts),
			State:     string(j.State),
			LastError: j.LastError,
			CreatedAt: j.CreatedAt.Format(time.RFC3339),
			UpdatedAt: j.UpdatedAt.Format(time.RFC3339),
		}
		if err := pw.Write(row); err != nil {
			pw.WriteStop()
			file.Close()
			return fmt.Errorf("export: parquet write: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		file.Close()
		return fmt.Errorf("export: parquet flush: %w", err)
	}
	return file.Close()
}
