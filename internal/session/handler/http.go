// Package handler exposes the signature session service over HTTP: a JSON
// API for creators and HTML pages for signees.
package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"hancock/internal/identity/domain"
	"hancock/internal/server/middleware"
	sessiondomain "hancock/internal/session/domain"
	"hancock/internal/session/service"
	"hancock/internal/signature/repository"
)

const (
	maxCreateBody = 1 << 20
	// formOverhead covers the token field and form encoding around the signature.
	formOverhead = 64 << 10
)

// SessionService is the subset of service.SessionService used by the handlers.
type SessionService interface {
	Create(ctx context.Context, org domain.Organization, details sessiondomain.Details) (*service.CreateResult, error)
	View(ctx context.Context, sid, token string) (*service.ViewResult, error)
	SubmitSignature(ctx context.Context, sid, token string, svg []byte) (*sessiondomain.Session, error)
	Status(ctx context.Context, sid string) (*sessiondomain.Session, sessiondomain.Status, error)
	Close(ctx context.Context, sid string) (string, error)
	Artifact(ctx context.Context, sid string) ([]byte, error)
}

// Handler serves the session and signature routes.
type Handler struct {
	svc          SessionService
	logger       *slog.Logger
	maxFormBytes int64
}

// NewHandler returns a Handler. maxSignatureBytes bounds the signing form body.
func NewHandler(svc SessionService, logger *slog.Logger, maxSignatureBytes int) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{svc: svc, logger: logger, maxFormBytes: int64(maxSignatureBytes) + formOverhead}
}

// Mount registers the routes on r. auth guards the creation endpoint.
func (h *Handler) Mount(r chi.Router, auth func(http.Handler) http.Handler) {
	r.With(auth).Post("/session/", h.CreateSession)
	r.Get("/session/{sid}/", h.SignPage)
	r.Post("/session/{sid}/", h.SubmitSignature)
	r.Get("/session/{sid}/close/", h.ClosePage)
	r.Get("/signature/{file}", h.Signature)
}

type createResponse struct {
	SID           string    `json:"sid"`
	SigningURL    string    `json:"signing_url"`
	LinkExpiresAt time.Time `json:"link_expires_at"`
	Replaced      bool      `json:"replaced"`
}

// CreateSession handles POST /session/.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	org, ok := middleware.GetOrganization(r.Context())
	if !ok {
		h.writeError(w, r, "", sessiondomain.ErrUnauthorized)
		return
	}
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxCreateBody))
	if err != nil {
		h.writeError(w, r, "", &sessiondomain.ValidationError{Fields: []sessiondomain.FieldError{{Field: "body", Reason: "too large"}}})
		return
	}
	details, err := sessiondomain.ParseDetails(raw)
	if err != nil {
		h.writeError(w, r, "", err)
		return
	}
	res, err := h.svc.Create(r.Context(), org, details)
	if err != nil {
		h.writeError(w, r, "", err)
		return
	}
	writeData(w, http.StatusCreated, createResponse{
		SID:           res.Session.SID,
		SigningURL:    res.SigningURL,
		LinkExpiresAt: res.LinkExpiresAt,
		Replaced:      res.Replaced,
	})
}

// SignPage handles GET /session/{sid}/.
func (h *Handler) SignPage(w http.ResponseWriter, r *http.Request) {
	sid := chi.URLParam(r, "sid")
	token := r.URL.Query().Get("token")
	res, err := h.svc.View(r.Context(), sid, token)
	if err != nil {
		h.renderError(w, r, sid, err)
		return
	}
	if res.Signed {
		http.Redirect(w, r, "/signature/"+sid+".svg", http.StatusSeeOther)
		return
	}
	h.renderPage(w, r, http.StatusOK, "sign", signPage{Session: res.Session, Token: token})
}

// SubmitSignature handles POST /session/{sid}/ with form fields signature and token.
func (h *Handler) SubmitSignature(w http.ResponseWriter, r *http.Request) {
	sid := chi.URLParam(r, "sid")
	r.Body = http.MaxBytesReader(w, r.Body, h.maxFormBytes)
	if err := r.ParseForm(); err != nil {
		var tooLarge *http.MaxBytesError
		reason := "malformed form"
		if errors.As(err, &tooLarge) {
			reason = "signature too large"
		}
		h.renderError(w, r, sid, &sessiondomain.ValidationError{Fields: []sessiondomain.FieldError{{Field: "signature", Reason: reason}}})
		return
	}
	svg := []byte(r.PostForm.Get("signature"))
	if _, err := h.svc.SubmitSignature(r.Context(), sid, r.PostForm.Get("token"), svg); err != nil {
		h.renderError(w, r, sid, err)
		return
	}
	http.Redirect(w, r, "/session/"+sid+"/close/", http.StatusSeeOther)
}

// ClosePage handles GET /session/{sid}/close/.
func (h *Handler) ClosePage(w http.ResponseWriter, r *http.Request) {
	sid := chi.URLParam(r, "sid")
	redirectURI, err := h.svc.Close(r.Context(), sid)
	if err != nil {
		h.renderError(w, r, sid, err)
		return
	}
	h.renderPage(w, r, http.StatusOK, "close", closePage{RedirectURI: redirectURI})
}

type sessionView struct {
	SID         string               `json:"sid"`
	Title       string               `json:"title"`
	Declaration string               `json:"declaration"`
	SigneeEmail string               `json:"signee_email"`
	RedirectURI string               `json:"redirect_uri"`
	CreatedOn   time.Time            `json:"created_on"`
	CreatedBy   string               `json:"created_by"`
	SignedOn    *time.Time           `json:"signed_on"`
	Status      sessiondomain.Status `json:"status"`
}

// Signature handles GET /signature/{sid}.svg and GET /signature/{sid}.json.
func (h *Handler) Signature(w http.ResponseWriter, r *http.Request) {
	file := chi.URLParam(r, "file")
	switch {
	case strings.HasSuffix(file, ".svg"):
		h.signatureSVG(w, r, strings.TrimSuffix(file, ".svg"))
	case strings.HasSuffix(file, ".json"):
		h.signatureJSON(w, r, strings.TrimSuffix(file, ".json"))
	default:
		h.writeError(w, r, "", sessiondomain.ErrNotFound)
	}
}

func (h *Handler) signatureSVG(w http.ResponseWriter, r *http.Request, sid string) {
	content, err := h.svc.Artifact(r.Context(), sid)
	if err != nil {
		h.writeError(w, r, sid, err)
		return
	}
	w.Header().Set("Content-Type", repository.ContentType)
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Content-Security-Policy", "default-src 'none'; style-src 'unsafe-inline'")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(content)
}

func (h *Handler) signatureJSON(w http.ResponseWriter, r *http.Request, sid string) {
	s, status, err := h.svc.Status(r.Context(), sid)
	if err != nil {
		h.writeError(w, r, sid, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Data sessionView `json:"data"`
	}{Data: sessionView{
		SID:         s.SID,
		Title:       s.Title,
		Declaration: s.Declaration,
		SigneeEmail: s.SigneeEmail,
		RedirectURI: s.RedirectURI,
		CreatedOn:   s.CreatedOn,
		CreatedBy:   s.CreatedBy,
		SignedOn:    s.SignedOn,
		Status:      status,
	}})
}
