package api

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"casepilot/internal/copilot"
	"casepilot/internal/pipelineerr"
)

type copilotRequest struct {
	CaseID    string `json:"case_id,omitempty"`
	QueryText string `json:"query_text"`
}

type copilotSource struct {
	LenderName  string `json:"lender_name"`
	ProductName string `json:"product_name"`
}

type copilotResponse struct {
	ResponseText string          `json:"response_text"`
	QueryType    string          `json:"query_type"`
	Sources      []copilotSource `json:"sources,omitempty"`
}

// copilotQuery handles `POST /copilot/query` (spec.md §4.9).
func (s *Server) copilotQuery(w http.ResponseWriter, r *http.Request) {
	var req copilotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, pipelineerr.Wrap(pipelineerr.CodeValidation, "invalid request body", err))
		return
	}
	if req.QueryText == "" {
		writeError(w, pipelineerr.New(pipelineerr.CodeValidation, "query_text is required"))
		return
	}

	creq := copilot.Request{
		OperatorID: OperatorID(r.Context()),
		QueryText:  req.QueryText,
	}
	if req.CaseID != "" {
		caseID, err := uuid.Parse(req.CaseID)
		if err != nil {
			writeError(w, pipelineerr.New(pipelineerr.CodeValidation, "case_id is not a valid uuid"))
			return
		}
		creq.CaseID = &caseID
	}

	answer, err := s.cfg.Copilot.Handle(r.Context(), creq)
	if err != nil {
		writeError(w, pipelineerr.Wrap(pipelineerr.CodeInternal, "copilot query failed", err))
		return
	}

	sources := make([]copilotSource, 0, len(answer.Sources))
	for _, p := range answer.Sources {
		sources = append(sources, copilotSource{LenderName: p.LenderName, ProductName: p.ProductName})
	}

	writeJSON(w, http.StatusOK, copilotResponse{
		ResponseText: answer.ResponseText,
		QueryType:    string(answer.QueryType),
		Sources:      sources,
	})
}
