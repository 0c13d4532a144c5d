package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"casepilot/internal/eligibility"
	"casepilot/internal/pipelineerr"
	"casepilot/internal/store"
)

// eligibilityResultView renders a store.EligibilityResult's jsonb columns
// as inline JSON (json.RawMessage) instead of base64-encoded bytes.
type eligibilityResultView struct {
	LenderProductID       string              `json:"lender_product_id"`
	HardFilterStatus      string              `json:"hard_filter_status"`
	HardFilterDetails     json.RawMessage     `json:"hard_filter_details,omitempty"`
	EligibilityScore      *float64            `json:"eligibility_score"`
	ApprovalProbability   string              `json:"approval_probability"`
	ExpectedTicketMin     float64             `json:"expected_ticket_min"`
	ExpectedTicketMax     float64             `json:"expected_ticket_max"`
	Confidence            float64             `json:"confidence"`
	MissingForImprovement json.RawMessage     `json:"missing_for_improvement,omitempty"`
	Rank                  *int                `json:"rank"`
}

func toEligibilityView(r store.EligibilityResult) eligibilityResultView {
	v := eligibilityResultView{
		LenderProductID:       r.LenderProductID.String(),
		HardFilterStatus:      string(r.HardFilterStatus),
		EligibilityScore:      r.EligibilityScore,
		ApprovalProbability:   string(r.ApprovalProbability),
		ExpectedTicketMin:     r.ExpectedTicketMin,
		ExpectedTicketMax:     r.ExpectedTicketMax,
		Confidence:            r.Confidence,
		Rank:                  r.Rank,
	}
	if len(r.HardFilterDetails) > 0 {
		v.HardFilterDetails = json.RawMessage(r.HardFilterDetails)
	}
	if len(r.MissingForImprovement) > 0 {
		v.MissingForImprovement = json.RawMessage(r.MissingForImprovement)
	}
	return v
}

type eligibilityResponse struct {
	TotalLendersEvaluated int                     `json:"total_lenders_evaluated"`
	LendersPassed         int                     `json:"lenders_passed"`
	Results               []eligibilityResultView `json:"results"`
}

// scoreEligibility handles `POST /eligibility/case/{case_id}/score`
// (spec.md §4.7, §5: runs are serialized per case; this handler performs
// one synchronous run rather than enqueuing, since the engine itself
// already writes atomically under a single run_id).
func (s *Server) scoreEligibility(w http.ResponseWriter, r *http.Request) {
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
	runID, err := eligibility.Run(s.cfg.DB, c.ID, time.Now())
	if err != nil {
		writeError(w, pipelineerr.Wrap(pipelineerr.CodeInternal, "run eligibility engine", err))
		return
	}
	s.writeRunResults(w, c.ID, runID)
}

// latestEligibility handles `GET /eligibility/case/{case_id}/results`.
func (s *Server) latestEligibility(w http.ResponseWriter, r *http.Request) {
	c, err := s.loadCase(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var latest store.EligibilityResult
	if err := s.cfg.DB.Where("case_id = ?", c.ID).Order("created_at desc").First(&latest).Error; err != nil {
		writeError(w, pipelineerr.New(pipelineerr.CodePrecondition, "no eligibility run exists for this case"))
		return
	}
	s.writeRunResults(w, c.ID, latest.RunID)
}

func (s *Server) writeRunResults(w http.ResponseWriter, caseID, runID uuid.UUID) {
	var results []store.EligibilityResult
	if err := s.cfg.DB.Where("case_id = ? AND run_id = ?", caseID, runID).Order("rank asc").Find(&results).Error; err != nil {
		writeError(w, pipelineerr.Wrap(pipelineerr.CodeInternal, "load eligibility results", err))
		return
	}
	passed := 0
	views := make([]eligibilityResultView, 0, len(results))
	for _, res := range results {
		if res.HardFilterStatus == store.HardFilterPass {
			passed++
		}
		views = append(views, toEligibilityView(res))
	}
	writeJSON(w, http.StatusOK, eligibilityResponse{
		TotalLendersEvaluated: len(results),
		LendersPassed:         passed,
		Results:               views,
	})
}
