package api

import (
	"encoding/json"
	"net/http"

	"casepilot/internal/pipelineerr"
)

var errNotAuthenticated = pipelineerr.New(pipelineerr.CodeValidation, "missing or invalid bearer token")

// errorEnvelope is the `{error:{code,message,details}}` wire shape spec.md
// §6 specifies.
type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// writeError renders err as the stable error envelope, translating a
// pipelineerr.Error to its taxonomy code/status and treating anything else
// as an opaque internal error so callers never see accidental detail.
func writeError(w http.ResponseWriter, err error) {
	pe, ok := pipelineerr.As(err)
	if !ok {
		pe = pipelineerr.Wrap(pipelineerr.CodeInternal, "internal error", err)
	}
	writeJSON(w, pe.Code.HTTPStatus(), errorEnvelope{Error: errorBody{
		Code:    string(pe.Code),
		Message: pe.Message,
		Details: pe.Details,
	}})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
