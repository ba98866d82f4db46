package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/warp/folio-engine/folio"
)

// ProblemDetail is an RFC7807 problem body. Field is set for validation
// failures that concern one input.
type ProblemDetail struct {
	Type      string `json:"type,omitempty"`
	Title     string `json:"title"`
	Status    int    `json:"status"`
	Detail    string `json:"detail,omitempty"`
	Field     string `json:"field,omitempty"`
	Expected  string `json:"expected,omitempty"`
	Actual    string `json:"actual,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeProblem(w http.ResponseWriter, r *http.Request, p ProblemDetail) {
	p.RequestID = middleware.GetReqID(r.Context())
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

// badRequest reports malformed input that never reached the domain.
func badRequest(w http.ResponseWriter, r *http.Request, detail string, err error) {
	if err != nil {
		detail = detail + ": " + err.Error()
	}
	writeProblem(w, r, ProblemDetail{Title: "Bad Request", Status: http.StatusBadRequest, Detail: detail})
}

// respondError maps folio error categories to HTTP status codes.
func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr  *folio.ValidationError
		ferrs validator.ValidationErrors
	)
	switch {
	case errors.As(err, &verr):
		writeProblem(w, r, ProblemDetail{
			Title:    "Validation Failed",
			Status:   http.StatusBadRequest,
			Detail:   verr.Message,
			Field:    verr.Field,
			Expected: verr.Expected,
			Actual:   verr.Actual,
		})
	case errors.As(err, &ferrs):
		first := ferrs[0]
		writeProblem(w, r, ProblemDetail{
			Title:    "Validation Failed",
			Status:   http.StatusBadRequest,
			Detail:   first.Error(),
			Field:    first.Field(),
			Expected: first.Tag(),
		})
	case errors.Is(err, folio.ErrValidation):
		writeProblem(w, r, ProblemDetail{Title: "Validation Failed", Status: http.StatusBadRequest, Detail: err.Error()})
	case errors.Is(err, folio.ErrNotFound):
		writeProblem(w, r, ProblemDetail{Title: "Not Found", Status: http.StatusNotFound, Detail: err.Error()})
	case errors.Is(err, folio.ErrConflict):
		writeProblem(w, r, ProblemDetail{Title: "Conflict", Status: http.StatusConflict, Detail: err.Error()})
	default:
		h.Logger.Error("request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("request_id", middleware.GetReqID(r.Context())),
			slog.Any("error", err),
		)
		writeProblem(w, r, ProblemDetail{Title: "Internal Error", Status: http.StatusInternalServerError})
	}
}
