package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	identitydomain "hancock/internal/identity/domain"
	"hancock/internal/identity/service"
	"hancock/internal/session/domain"
)

func TestWithOrganization_GetOrganization(t *testing.T) {
	ctx := WithOrganization(context.Background(), identitydomain.Organization{Name: "Acme"})
	org, ok := GetOrganization(ctx)
	if !ok || org.Name != "Acme" {
		t.Errorf("GetOrganization = %+v, %v; want Acme, true", org, ok)
	}
	if _, ok := GetOrganization(context.Background()); ok {
		t.Error("GetOrganization on empty context should be false")
	}
}

func TestRequireAPIKey(t *testing.T) {
	resolver := service.NewStaticResolver(map[string]string{"Demo Organisation": "123"})
	var rejected error
	reject := func(w http.ResponseWriter, r *http.Request, err error) {
		rejected = err
		w.WriteHeader(http.StatusUnauthorized)
	}
	var seen string
	h := RequireAPIKey(resolver, reject)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		org, _ := GetOrganization(r.Context())
		seen = org.Name
		w.WriteHeader(http.StatusCreated)
	}))

	tests := []struct {
		name       string
		key        string
		wantStatus int
		wantOrg    string
	}{
		{"valid key", "123", http.StatusCreated, "Demo Organisation"},
		{"valid key with spaces", " 123 ", http.StatusCreated, "Demo Organisation"},
		{"unknown key", "456", http.StatusUnauthorized, ""},
		{"missing key", "", http.StatusUnauthorized, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen, rejected = "", nil
			req := httptest.NewRequest(http.MethodPost, "/session/", nil)
			if tt.key != "" {
				req.Header.Set(APIKeyHeader, tt.key)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if seen != tt.wantOrg {
				t.Errorf("organization = %q, want %q", seen, tt.wantOrg)
			}
			if tt.wantStatus == http.StatusUnauthorized && rejected != domain.ErrUnauthorized {
				t.Errorf("reject err = %v, want ErrUnauthorized", rejected)
			}
		})
	}
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	h := RequestLogger(logger, "/healthz")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if buf.Len() != 0 {
		t.Fatalf("skipped path was logged: %s", buf.String())
	}

	req := httptest.NewRequest(http.MethodGet, "/session/abc/", nil)
	req = req.WithContext(WithOrganization(req.Context(), identitydomain.Organization{Name: "Acme"}))
	h.ServeHTTP(httptest.NewRecorder(), req)

	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("log line: %v (%s)", err, buf.String())
	}
	if line["msg"] != "http request" {
		t.Errorf("msg = %v, want http request", line["msg"])
	}
	if line["status"] != float64(http.StatusTeapot) {
		t.Errorf("status = %v, want %d", line["status"], http.StatusTeapot)
	}
	if line["organization"] != "Acme" {
		t.Errorf("organization = %v, want Acme", line["organization"])
	}
	if !strings.HasPrefix(line["path"].(string), "/session/") {
		t.Errorf("path = %v", line["path"])
	}
}
