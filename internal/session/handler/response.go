package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"hancock/internal/session/domain"
)

type envelope struct {
	Status    int       `json:"status"`
	Data      any       `json:"data,omitempty"`
	Error     *apiError `json:"error,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
}

type apiError struct {
	Code    string              `json:"code"`
	Message string              `json:"message"`
	Fields  []domain.FieldError `json:"fields,omitempty"`
}

// problem is the status, code and client-facing message for an error.
type problem struct {
	status  int
	code    string
	message string
	fields  []domain.FieldError
}

// classify maps service errors to HTTP problems. Unknown errors become 500 with a generic message.
func classify(err error) problem {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		return problem{http.StatusBadRequest, "VALIDATION_FAILED", "request validation failed", ve.Fields}
	case errors.Is(err, domain.ErrUnauthorized):
		return problem{status: http.StatusUnauthorized, code: "UNAUTHORIZED", message: "missing or invalid API key"}
	case errors.Is(err, domain.ErrInvalidLinkToken):
		return problem{status: http.StatusForbidden, code: "INVALID_LINK", message: "this signing link is invalid or has expired"}
	case errors.Is(err, domain.ErrPolicyDenied):
		return problem{status: http.StatusForbidden, code: "POLICY_DENIED", message: err.Error()}
	case errors.Is(err, domain.ErrNotFound):
		return problem{status: http.StatusNotFound, code: "NOT_FOUND", message: "signature session not found"}
	case errors.Is(err, domain.ErrAlreadySigned):
		return problem{status: http.StatusConflict, code: "ALREADY_SIGNED", message: "this session has already been signed"}
	case errors.Is(err, domain.ErrSessionExists):
		return problem{status: http.StatusConflict, code: "SESSION_EXISTS", message: "a session for this document and signee already exists"}
	default:
		return problem{status: http.StatusInternalServerError, code: "INTERNAL", message: "internal error"}
	}
}

func requestID(r *http.Request) string {
	return chimiddleware.GetReqID(r.Context())
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Status: status, Data: data})
}

// writeError writes the JSON error envelope. Server-side failures are logged with the SID.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, sid string, err error) {
	p := classify(err)
	h.logFailure(r, sid, p, err)
	writeJSON(w, p.status, envelope{
		Status:    p.status,
		Error:     &apiError{Code: p.code, Message: p.message, Fields: p.fields},
		RequestID: requestID(r),
	})
}

// WriteUnauthorized is the rejection used by the API key middleware.
func (h *Handler) WriteUnauthorized(w http.ResponseWriter, r *http.Request, err error) {
	h.writeError(w, r, "", err)
}

func (h *Handler) logFailure(r *http.Request, sid string, p problem, err error) {
	if p.status < http.StatusInternalServerError {
		return
	}
	h.logger.ErrorContext(r.Context(), "session: request failed",
		slog.String("sid", sid),
		slog.String("path", r.URL.Path),
		slog.String("request_id", requestID(r)),
		slog.Any("error", err))
}
