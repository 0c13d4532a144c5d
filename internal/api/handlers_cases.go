package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"casepilot/internal/pipelineerr"
	"casepilot/internal/store"
)

type createCaseRequest struct {
	BorrowerName string `json:"borrower_name"`
	ProgramType  string `json:"program_type"`
}

type createCaseResponse struct {
	CaseID string `json:"case_id"`
	UUID   string `json:"uuid"`
	Status string `json:"status"`
}

// createCase handles `POST /cases` (spec.md §6).
func (s *Server) createCase(w http.ResponseWriter, r *http.Request) {
	var req createCaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, pipelineerr.Wrap(pipelineerr.CodeValidation, "invalid request body", err))
		return
	}
	if req.BorrowerName == "" {
		writeError(w, pipelineerr.New(pipelineerr.CodeValidation, "borrower_name is required"))
		return
	}

	operatorID := OperatorID(r.Context())
	now := time.Now()
	caseNumber, err := store.NextCaseNumber(s.cfg.DB, now)
	if err != nil {
		writeError(w, pipelineerr.Wrap(pipelineerr.CodeInternal, "mint case number", err))
		return
	}

	c := store.Case{
		ID:               uuid.New(),
		CaseNumber:       caseNumber,
		OwnerOperatorID:  operatorID,
		BorrowerName:     req.BorrowerName,
		ProgramType:      req.ProgramType,
		Status:           store.CaseStatusCreated,
		ManualOverrides:  []byte("{}"),
	}
	if err := s.cfg.DB.Create(&c).Error; err != nil {
		writeError(w, pipelineerr.Wrap(pipelineerr.CodeInternal, "create case", err))
		return
	}

	writeJSON(w, http.StatusCreated, createCaseResponse{
		CaseID: c.CaseNumber,
		UUID:   c.ID.String(),
		Status: string(c.Status),
	})
}

// loadCase resolves the {case_id} path param, accepting either the
// human-facing CASE-YYYYMMDD-NNNN number or the internal UUID.
func (s *Server) loadCase(r *http.Request) (*store.Case, error) {
	raw := chi.URLParam(r, "case_id")
	var c store.Case
	var err error
	if parsed, parseErr := uuid.Parse(raw); parseErr == nil {
		err = s.cfg.DB.First(&c, "id = ?", parsed).Error
	} else {
		err = s.cfg.DB.First(&c, "case_number = ?", raw).Error
	}
	if err != nil {
		return nil, pipelineerr.Wrap(pipelineerr.CodeNotFound, "case not found", err)
	}
	return &c, nil
}
