package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"casepilot/internal/pipelineerr"
	"casepilot/internal/report"
	"casepilot/internal/storage"
	"casepilot/internal/store"
)

type generateReportResponse struct {
	ReportID string `json:"report_id"`
	PDFURL   string `json:"pdf_url"`
}

// generateReport handles `POST /reports/case/{case_id}/generate` (spec.md
// §4.8): assembles report.Data from the case's latest feature vector,
// documents, and eligibility run, renders both artifacts, and upserts the
// single CaseReport row for the case.
func (s *Server) generateReport(w http.ResponseWriter, r *http.Request) {
	c, err := s.loadCase(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var vec store.BorrowerFeatureVector
	if err := s.cfg.DB.First(&vec, "case_id = ?", c.ID).Error; err != nil {
		writeError(w, pipelineerr.New(pipelineerr.CodePrecondition, "feature vector has not been built for this case"))
		return
	}

	var docs []store.Document
	if err := s.cfg.DB.Where("case_id = ?", c.ID).Find(&docs).Error; err != nil {
		writeError(w, pipelineerr.Wrap(pipelineerr.CodeInternal, "list documents", err))
		return
	}

	var latestResult store.EligibilityResult
	var results []store.EligibilityResult
	if err := s.cfg.DB.Where("case_id = ?", c.ID).Order("created_at desc").First(&latestResult).Error; err == nil {
		if err := s.cfg.DB.Where("case_id = ? AND run_id = ?", c.ID, latestResult.RunID).Find(&results).Error; err != nil {
			writeError(w, pipelineerr.Wrap(pipelineerr.CodeInternal, "load eligibility results", err))
			return
		}
	}

	productIDs := make([]uuid.UUID, 0, len(results))
	for _, res := range results {
		productIDs = append(productIDs, res.LenderProductID)
	}
	var products []store.LenderProduct
	if len(productIDs) > 0 {
		if err := s.cfg.DB.Where("id IN ?", productIDs).Find(&products).Error; err != nil {
			writeError(w, pipelineerr.Wrap(pipelineerr.CodeInternal, "load lender products", err))
			return
		}
	}
	nameByProduct := make(map[uuid.UUID]string, len(products))
	requiredByProduct := make(map[uuid.UUID][]string, len(products))
	for _, p := range products {
		nameByProduct[p.ID] = p.LenderName + " " + p.ProductName
		requiredByProduct[p.ID] = requiredDocTypes(p)
	}

	data := report.Build(*c, vec, docs, results, requiredByProduct, nameByProduct)

	pdfBytes, err := report.RenderPDF(data)
	if err != nil {
		writeError(w, pipelineerr.Wrap(pipelineerr.CodeInternal, "render pdf report", err))
		return
	}
	whatsapp := report.RenderWhatsApp(data)

	reportID := uuid.New()
	key := storage.ReportKey(c.ID, reportID)
	if _, _, err := s.cfg.Blobs.WriteStream(key, bytes.NewReader(pdfBytes)); err != nil {
		writeError(w, pipelineerr.Wrap(pipelineerr.CodeInternal, "store pdf report", err))
		return
	}

	payload, err := json.Marshal(data)
	if err != nil {
		writeError(w, pipelineerr.Wrap(pipelineerr.CodeInternal, "marshal report data", err))
		return
	}

	record := store.CaseReport{
		CaseID:          c.ID,
		ReportID:        reportID,
		Payload:         payload,
		PDFStorageKey:   key,
		WhatsAppSummary: whatsapp,
		GeneratedAt:     time.Now(),
	}
	if err := s.cfg.DB.Save(&record).Error; err != nil {
		writeError(w, pipelineerr.Wrap(pipelineerr.CodeInternal, "persist case report", err))
		return
	}

	writeJSON(w, http.StatusOK, generateReportResponse{
		ReportID: reportID.String(),
		PDFURL:   "/api/v1/reports/case/" + c.CaseNumber + "/report/pdf",
	})
}

// downloadReportPDF handles `GET /reports/case/{case_id}/report/pdf`.
func (s *Server) downloadReportPDF(w http.ResponseWriter, r *http.Request) {
	c, err := s.loadCase(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var rec store.CaseReport
	if err := s.cfg.DB.First(&rec, "case_id = ?", c.ID).Error; err != nil {
		writeError(w, pipelineerr.New(pipelineerr.CodePrecondition, "no report has been generated for this case"))
		return
	}
	stream, err := s.cfg.Blobs.OpenStream(rec.PDFStorageKey)
	if err != nil {
		writeError(w, pipelineerr.Wrap(pipelineerr.CodeInternal, "open report blob", err))
		return
	}
	defer stream.Close()
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="`+c.CaseNumber+`-report.pdf"`)
	_, _ = io.Copy(w, stream)
}

// downloadReportWhatsApp handles `GET /reports/case/{case_id}/report/whatsapp`.
func (s *Server) downloadReportWhatsApp(w http.ResponseWriter, r *http.Request) {
	c, err := s.loadCase(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var rec store.CaseReport
	if err := s.cfg.DB.First(&rec, "case_id = ?", c.ID).Error; err != nil {
		writeError(w, pipelineerr.New(pipelineerr.CodePrecondition, "no report has been generated for this case"))
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(rec.WhatsAppSummary))
}

type sendWhatsAppRequest struct {
	To string `json:"to"`
}

type sendWhatsAppResponse struct {
	MessageID string `json:"message_id"`
	Status    string `json:"status"`
}

// sendReportWhatsApp dispatches the generated report's digest through the
// WhatsApp gateway (spec.md §4.8's whatsapp_summary, spec.md §6's
// `POST /send` contract), an operator-triggered push alongside the
// plain-text pull at `.../report/whatsapp`.
func (s *Server) sendReportWhatsApp(w http.ResponseWriter, r *http.Request) {
	if s.cfg.WhatsApp == nil {
		writeError(w, pipelineerr.New(pipelineerr.CodePrecondition, "whatsapp gateway is not configured"))
		return
	}
	c, err := s.loadCase(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req sendWhatsAppRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.To == "" {
		writeError(w, pipelineerr.New(pipelineerr.CodeValidation, "to is required"))
		return
	}
	var rec store.CaseReport
	if err := s.cfg.DB.First(&rec, "case_id = ?", c.ID).Error; err != nil {
		writeError(w, pipelineerr.New(pipelineerr.CodePrecondition, "no report has been generated for this case"))
		return
	}

	result, err := s.cfg.WhatsApp.Send(r.Context(), req.To, rec.WhatsAppSummary)
	if err != nil {
		writeError(w, pipelineerr.Wrap(pipelineerr.CodeExternalTransient, "whatsapp send failed", err))
		return
	}
	writeJSON(w, http.StatusOK, sendWhatsAppResponse{MessageID: result.MessageID, Status: result.Status})
}
