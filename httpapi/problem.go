package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/finvault/authd"
)

// ProblemDetail is the JSON error body written for every failed request. The
// trace id also lands in the server log, so a caller-reported id can be
// matched to the full error.
type ProblemDetail struct {
	Code    int      `json:"code"`
	Message string   `json:"message"`
	TraceID string   `json:"traceId"`
	Errors  []string `json:"errors,omitempty"`
}

// writeProblem translates err into a ProblemDetail and writes it. Validation
// and friendly messages pass through verbatim in every mode; everything else
// is redacted to a generic per-status message unless the server runs in
// development mode.
func (h *Handlers) writeProblem(w http.ResponseWriter, err error) {
	code := authd.StatusCode(err)
	problem := ProblemDetail{
		Code:    code,
		Message: genericMessage(code),
		TraceID: uuid.NewString(),
	}

	var validation *authd.ValidationError
	var friendly *authd.FriendlyError
	switch {
	case errors.As(err, &validation):
		problem.Errors = validation.Errors
	case errors.As(err, &friendly):
		problem.Message = friendly.Message
	case h.dev:
		problem.Message = err.Error()
	}

	if code >= http.StatusInternalServerError {
		h.logger.Errorf("httpapi: request failed trace_id=%s: %v", problem.TraceID, err)
	} else {
		h.logger.Infof("httpapi: request rejected trace_id=%s code=%d: %v", problem.TraceID, code, err)
	}

	writeJSON(w, code, problem)
}

func genericMessage(code int) string {
	switch code {
	case http.StatusBadRequest:
		return "bad request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusNotFound:
		return "not found"
	case http.StatusConflict:
		return "conflict"
	default:
		return "an unexpected error has occurred"
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
