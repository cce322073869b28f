package handler

import (
	"embed"
	"html/template"
	"net/http"

	"hancock/internal/session/domain"
)

//go:embed templates/*.html
var templateFS embed.FS

var pages = map[string]*template.Template{
	"sign":  parsePage("sign.html"),
	"close": parsePage("close.html"),
	"error": parsePage("error.html"),
}

func parsePage(name string) *template.Template {
	return template.Must(template.ParseFS(templateFS, "templates/layout.html", "templates/"+name))
}

type signPage struct {
	Session *domain.Session
	Token   string
}

type closePage struct {
	RedirectURI string
}

type errorPage struct {
	Title     string
	Message   string
	RequestID string
}

var errorTitles = map[int]string{
	http.StatusBadRequest:          "Invalid signature",
	http.StatusForbidden:           "Link not valid",
	http.StatusNotFound:            "Session not found",
	http.StatusConflict:            "Already signed",
	http.StatusInternalServerError: "Something went wrong",
}

func (h *Handler) renderPage(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := pages[name].ExecuteTemplate(w, name+".html", data); err != nil {
		h.logger.ErrorContext(r.Context(), "session: render page failed", "page", name, "error", err)
	}
}

// renderError shows the human-facing error page for err.
func (h *Handler) renderError(w http.ResponseWriter, r *http.Request, sid string, err error) {
	p := classify(err)
	h.logFailure(r, sid, p, err)
	title, ok := errorTitles[p.status]
	if !ok {
		title = http.StatusText(p.status)
	}
	msg := p.message
	if len(p.fields) > 0 {
		msg = p.fields[0].Reason
	}
	h.renderPage(w, r, p.status, "error", errorPage{Title: title, Message: msg, RequestID: requestID(r)})
}
