// Package report assembles the per-case CaseReportData structure and
// renders it to PDF and WhatsApp-summary artifacts (spec.md §4.8). No
// example repo in the corpus ships a PDF renderer; this package uses
// jung-kurt/gofpdf, the canonical pure-Go PDF library for fixed-layout
// documents (see DESIGN.md for the out-of-pack justification).
package report

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/jung-kurt/gofpdf"

	"casepilot/internal/store"
)

// LenderMatch is one ranked result surfaced in the report.
type LenderMatch struct {
	LenderName          string
	ProductName         string
	Score               float64
	ApprovalProbability store.ApprovalProbability
	TicketMin           float64
	TicketMax           float64
}

// Data is the deterministic structure spec.md §4.8 assembles before
// rendering either artifact.
type Data struct {
	CaseNumber    string
	BorrowerName  string
	EntityType    string
	Pincode       string
	VintageYears  float64
	CIBILScore    int
	AnnualTurnover float64
	AvgMonthlyBalance float64

	DocumentsAvailable []string
	DocumentsMissing   []string
	DocumentsUnreadable []string

	Strengths []string
	RiskFlags []string

	TopMatches []LenderMatch

	SubmissionStrategy []string
	MissingDataAdvisory []string

	ExpectedLoanMin float64
	ExpectedLoanMax float64
}

// Build assembles Data from a Case, its feature vector, documents, and the
// latest eligibility run's results, per spec.md §4.8. Strengths are derived
// from positive signals; risk flags from negative ones (bounces ≥ 3, cash
// ratio > 40%, overdues > 0).
func Build(c store.Case, f store.BorrowerFeatureVector, docs []store.Document, results []store.EligibilityResult, requiredByProduct map[uuid.UUID][]string, nameByProduct map[uuid.UUID]string) Data {
	d := Data{
		CaseNumber:        c.CaseNumber,
		BorrowerName:      c.BorrowerName,
		EntityType:        f.EntityType,
		Pincode:           f.Pincode,
		VintageYears:      f.BusinessVintageYears,
		CIBILScore:        f.CIBILScore,
		AnnualTurnover:    f.AnnualTurnover,
		AvgMonthlyBalance: f.AvgMonthlyBalance,
	}

	for _, doc := range docs {
		switch {
		case doc.Status == store.DocumentStatusFailed:
			d.DocumentsUnreadable = append(d.DocumentsUnreadable, doc.OriginalFilename)
		case doc.DocType != nil:
			d.DocumentsAvailable = append(d.DocumentsAvailable, *doc.DocType)
		}
	}

	if f.CIBILScore >= 750 {
		d.Strengths = append(d.Strengths, "Strong CIBIL score (750+)")
	}
	if f.BusinessVintageYears >= 5 {
		d.Strengths = append(d.Strengths, "Established business vintage (5+ years)")
	}
	if f.CashDepositRatio < 0.20 {
		d.Strengths = append(d.Strengths, "Low reliance on cash deposits")
	}

	if f.Bounces12M >= 3 {
		d.RiskFlags = append(d.RiskFlags, fmt.Sprintf("%d cheque/ECS bounces in the last 12 months", f.Bounces12M))
	}
	if f.CashDepositRatio > 0.40 {
		d.RiskFlags = append(d.RiskFlags, "High cash-deposit ratio (>40%)")
	}
	if f.Overdues > 0 {
		d.RiskFlags = append(d.RiskFlags, fmt.Sprintf("%d overdue accounts on credit report", f.Overdues))
	}

	passing := make([]store.EligibilityResult, 0, len(results))
	for _, r := range results {
		if r.HardFilterStatus == store.HardFilterPass && r.Rank != nil {
			passing = append(passing, r)
		}
	}
	sort.Slice(passing, func(i, j int) bool { return *passing[i].Rank < *passing[j].Rank })

	limit := 5
	if len(passing) < limit {
		limit = len(passing)
	}
	for _, r := range passing[:limit] {
		score := 0.0
		if r.EligibilityScore != nil {
			score = *r.EligibilityScore
		}
		d.TopMatches = append(d.TopMatches, LenderMatch{
			LenderName:          nameByProduct[r.LenderProductID],
			Score:               score,
			ApprovalProbability: r.ApprovalProbability,
			TicketMin:           r.ExpectedTicketMin,
			TicketMax:           r.ExpectedTicketMax,
		})
	}

	if len(d.TopMatches) > 0 {
		d.ExpectedLoanMin = d.TopMatches[0].TicketMin
		d.ExpectedLoanMax = d.TopMatches[0].TicketMax
		d.SubmissionStrategy = append(d.SubmissionStrategy,
			fmt.Sprintf("Lead with %s — highest match score among active lenders", d.TopMatches[0].LenderName))
	} else {
		d.SubmissionStrategy = append(d.SubmissionStrategy, "No qualifying lenders at this time; address missing_for_improvement items first")
	}

	have := make(map[string]bool, len(d.DocumentsAvailable))
	for _, t := range d.DocumentsAvailable {
		have[t] = true
	}
	seenMissing := make(map[string]bool)
	for _, required := range requiredByProduct {
		for _, docType := range required {
			if !have[docType] && !seenMissing[docType] {
				d.DocumentsMissing = append(d.DocumentsMissing, docType)
				seenMissing[docType] = true
			}
		}
	}
	if f.FeatureCompleteness < 80 {
		d.MissingDataAdvisory = append(d.MissingDataAdvisory,
			fmt.Sprintf("Borrower profile is %.0f%% complete; request remaining documents to improve match quality", f.FeatureCompleteness))
	}

	return d
}

// RenderPDF lays out Data in the fixed section order spec.md §4.8 names:
// cover, borrower, checklist, strengths/risks, lender matches table,
// strategy, advisory.
func RenderPDF(d Data) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetAutoPageBreak(true, 15)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 20)
	pdf.CellFormat(0, 15, "Case Eligibility Report", "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 11)
	pdf.CellFormat(0, 8, d.CaseNumber, "", 1, "C", false, 0, "")
	pdf.Ln(6)

	section(pdf, "Borrower")
	row(pdf, "Name", d.BorrowerName)
	row(pdf, "Entity type", d.EntityType)
	row(pdf, "Pincode", d.Pincode)
	row(pdf, "Vintage (years)", fmt.Sprintf("%.1f", d.VintageYears))
	row(pdf, "CIBIL score", fmt.Sprintf("%d", d.CIBILScore))
	row(pdf, "Annual turnover", fmt.Sprintf("%.0f", d.AnnualTurnover))
	pdf.Ln(4)

	section(pdf, "Document Checklist")
	row(pdf, "Available", strings.Join(d.DocumentsAvailable, ", "))
	row(pdf, "Missing", strings.Join(d.DocumentsMissing, ", "))
	row(pdf, "Unreadable", strings.Join(d.DocumentsUnreadable, ", "))
	pdf.Ln(4)

	section(pdf, "Strengths")
	for _, s := range d.Strengths {
		bullet(pdf, s)
	}
	section(pdf, "Risk Flags")
	for _, r := range d.RiskFlags {
		bullet(pdf, r)
	}
	pdf.Ln(4)

	section(pdf, "Lender Matches")
	for _, m := range d.TopMatches {
		bullet(pdf, fmt.Sprintf("%s — score %.1f, %s, ticket %.0f-%.0f", m.LenderName, m.Score, m.ApprovalProbability, m.TicketMin, m.TicketMax))
	}
	pdf.Ln(4)

	section(pdf, "Submission Strategy")
	for _, s := range d.SubmissionStrategy {
		bullet(pdf, s)
	}

	section(pdf, "Missing-Data Advisory")
	for _, a := range d.MissingDataAdvisory {
		bullet(pdf, a)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func section(pdf *gofpdf.Fpdf, title string) {
	pdf.SetFont("Helvetica", "B", 13)
	pdf.CellFormat(0, 8, title, "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
}

func row(pdf *gofpdf.Fpdf, label, value string) {
	pdf.CellFormat(50, 6, label+":", "", 0, "L", false, 0, "")
	pdf.CellFormat(0, 6, value, "", 1, "L", false, 0, "")
}

func bullet(pdf *gofpdf.Fpdf, text string) {
	pdf.CellFormat(0, 6, "- "+text, "", 1, "L", false, 0, "")
}

// RenderWhatsApp produces the short plain-text digest spec.md §4.8
// specifies: case id, borrower name, entity, vintage, CIBIL, turnover, ABB,
// top match, and match counts.
func RenderWhatsApp(d Data) string {
	var topMatch string
	if len(d.TopMatches) > 0 {
		topMatch = fmt.Sprintf("%s (%.1f)", d.TopMatches[0].LenderName, d.TopMatches[0].Score)
	} else {
		topMatch = "none"
	}
	return fmt.Sprintf(
		"Case %s — %s (%s)\nVintage: %.1fy | CIBIL: %d | Turnover: %.0f | ABB: %.0f\nTop match: %s\nMatches: %d lenders",
		d.CaseNumber, d.BorrowerName, d.EntityType,
		d.VintageYears, d.CIBILScore, d.AnnualTurnover, d.AvgMonthlyBalance,
		topMatch, len(d.TopMatches),
	)
}
