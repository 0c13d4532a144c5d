package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"nhooyr.io/websocket"

	"casepilot/internal/classify"
	"casepilot/internal/jobs"
	"casepilot/internal/jobs/progress"
	"casepilot/internal/pipelineerr"
	"casepilot/internal/store"
)

type uploadOutcome struct {
	DocID    string `json:"doc_id,omitempty"`
	Type     string `json:"type,omitempty"`
	Filename string `json:"filename"`
}

type uploadRejection struct {
	Filename string `json:"filename"`
	Reason   string `json:"reason"`
}

type uploadResponse struct {
	Created    []uploadOutcome   `json:"created"`
	Duplicates []uploadOutcome   `json:"duplicates"`
	Rejected   []uploadRejection `json:"rejected"`
}

// uploadDocuments handles `POST /cases/{case_id}/upload` (spec.md §4.1,
// §6): each multipart part is either a zip archive (its members are
// expanded one level; a zip nested inside it is skipped as an unsupported
// extension) or a single file; outcomes are reported per file, never failing the
// whole request for one bad entry.
func (s *Server) uploadDocuments(w http.ResponseWriter, r *http.Request) {
	c, err := s.loadCase(r)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, pipelineerr.Wrap(pipelineerr.CodeValidation, "invalid multipart upload", err))
		return
	}

	resp := uploadResponse{
		Created:    []uploadOutcome{},
		Duplicates: []uploadOutcome{},
		Rejected:   []uploadRejection{},
	}

	for _, headers := range r.MultipartForm.File {
		for _, fh := range headers {
			f, err := fh.Open()
			if err != nil {
				resp.Rejected = append(resp.Rejected, uploadRejection{Filename: fh.Filename, Reason: "unreadable"})
				continue
			}
			content, err := io.ReadAll(f)
			f.Close()
			if err != nil {
				resp.Rejected = append(resp.Rejected, uploadRejection{Filename: fh.Filename, Reason: "unreadable"})
				continue
			}

			if strings.EqualFold(filepath.Ext(fh.Filename), ".zip") {
				result, err := s.cfg.Ingest.IngestZip(c.ID, content)
				if err != nil {
					resp.Rejected = append(resp.Rejected, uploadRejection{Filename: fh.Filename, Reason: err.Error()})
					continue
				}
				for _, accepted := range result.Accepted {
					resp.Created = append(resp.Created, uploadOutcome{DocID: accepted.DocID.String(), Filename: accepted.Filename})
				}
				for _, skipped := range result.Skipped {
					if skipped.Reason == "duplicate_content" {
						resp.Duplicates = append(resp.Duplicates, uploadOutcome{Filename: skipped.Name})
						continue
					}
					resp.Rejected = append(resp.Rejected, uploadRejection{Filename: skipped.Name, Reason: skipped.Reason})
				}
				continue
			}

			docID, err := s.cfg.Ingest.IngestFile(c.ID, fh.Filename, content)
			switch {
			case err == nil:
				resp.Created = append(resp.Created, uploadOutcome{DocID: docID.String(), Filename: fh.Filename})
			case pipelineerr.Is(err, pipelineerr.CodeDuplicate):
				resp.Duplicates = append(resp.Duplicates, uploadOutcome{Filename: fh.Filename})
			default:
				if pe, ok := pipelineerr.As(err); ok {
					resp.Rejected = append(resp.Rejected, uploadRejection{Filename: fh.Filename, Reason: pe.Message})
				} else {
					resp.Rejected = append(resp.Rejected, uploadRejection{Filename: fh.Filename, Reason: err.Error()})
				}
			}
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

type documentSummary struct {
	DocID                    string  `json:"doc_id"`
	Filename                 string  `json:"filename"`
	DocType                  *string `json:"doc_type"`
	ClassificationConfidence float64 `json:"classification_confidence"`
	Status                   string  `json:"status"`
}

// listDocuments handles `GET /cases/{case_id}/documents`.
func (s *Server) listDocuments(w http.ResponseWriter, r *http.Request) {
	c, err := s.loadCase(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var docs []store.Document
	if err := s.cfg.DB.Where("case_id = ?", c.ID).Order("created_at asc").Find(&docs).Error; err != nil {
		writeError(w, pipelineerr.Wrap(pipelineerr.CodeInternal, "list documents", err))
		return
	}
	out := make([]documentSummary, 0, len(docs))
	for _, d := range docs {
		out = append(out, documentSummary{
			DocID:                    d.ID.String(),
			Filename:                 d.OriginalFilename,
			DocType:                  d.DocType,
			ClassificationConfidence: d.ClassificationConfidence,
			Status:                   string(d.Status),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type checklistResponse struct {
	ProgramType       string   `json:"program_type"`
	Available         []string `json:"available"`
	Missing           []string `json:"missing"`
	CompletenessScore float64  `json:"completeness_score"`
}

// checklist handles `GET /cases/{case_id}/checklist` (spec.md §6, §7
// "why some lenders didn't match" view): required documents are the union
// of required_documents across active, policy-available lender products
// matching the case's program_type.
func (s *Server) checklist(w http.ResponseWriter, r *http.Request) {
	c, err := s.loadCase(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var docs []store.Document
	if err := s.cfg.DB.Where("case_id = ?", c.ID).Find(&docs).Error; err != nil {
		writeError(w, pipelineerr.Wrap(pipelineerr.CodeInternal, "list documents", err))
		return
	}
	have := map[string]bool{}
	for _, d := range docs {
		if d.DocType != nil && *d.DocType != string(classify.TypeUnknown) {
			have[*d.DocType] = true
		}
	}

	query := s.cfg.DB.Where("is_active = ? AND policy_available = ?", true, true)
	if c.ProgramType != "" {
		query = query.Where("program_type = ?", c.ProgramType)
	}
	var products []store.LenderProduct
	if err := query.Find(&products).Error; err != nil {
		writeError(w, pipelineerr.Wrap(pipelineerr.CodeInternal, "list lender products", err))
		return
	}

	seen := map[string]bool{}
	resp := checklistResponse{ProgramType: c.ProgramType, CompletenessScore: c.CompletenessScore}
	for t := range have {
		resp.Available = append(resp.Available, t)
	}
	for _, p := range products {
		required := requiredDocTypes(p)
		for _, t := range required {
			if !have[t] && !seen[t] {
				resp.Missing = append(resp.Missing, t)
				seen[t] = true
			}
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// progressSnapshot handles the polling `GET .../progress` read model
// spec.md §4.10 requires ("expose counts by kind x state").
func (s *Server) progressSnapshot(w http.ResponseWriter, r *http.Request) {
	c, err := s.loadCase(r)
	if err != nil {
		writeError(w, err)
		return
	}
	p, err := jobs.ProgressForCase(s.cfg.DB, c.ID)
	if err != nil {
		writeError(w, pipelineerr.Wrap(pipelineerr.CodeInternal, "load progress", err))
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// progressStream handles `GET /cases/{case_id}/progress/stream`, the
// WebSocket extension SPEC_FULL.md §4 adds on top of the polling endpoint.
func (s *Server) progressStream(w http.ResponseWriter, r *http.Request) {
	c, err := s.loadCase(r)
	if err != nil {
		writeError(w, err)
		return
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Minute)
	defer cancel()
	if err := progress.Stream(ctx, s.cfg.DB, c.ID, conn); err != nil {
		if websocket.CloseStatus(err) == -1 {
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

// requiredDocTypes decodes a LenderProduct's required_documents jsonb
// column, tolerating an empty/unset column.
func requiredDocTypes(p store.LenderProduct) []string {
	if len(p.RequiredDocuments) == 0 {
		return nil
	}
	var docs []string
	if err := json.Unmarshal(p.RequiredDocuments, &docs); err != nil {
		return nil
	}
	return docs
}
