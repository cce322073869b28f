package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"google.golang.org/grpc"

	healthhandler "hancock/internal/health/handler"
	identityservice "hancock/internal/identity/service"
	"hancock/internal/security"
	sessionhandler "hancock/internal/session/handler"
	sessionrepo "hancock/internal/session/repository"
	"hancock/internal/session/service"
	"hancock/internal/signature"
	signaturerepo "hancock/internal/signature/repository"
)

// mockServiceRegistrar implements grpc.ServiceRegistrar for testing.
type mockServiceRegistrar struct {
	services []string
}

func (m *mockServiceRegistrar) RegisterService(desc *grpc.ServiceDesc, impl interface{}) {
	m.services = append(m.services, desc.ServiceName)
}

func TestRegisterServices(t *testing.T) {
	reg := &mockServiceRegistrar{}
	RegisterServices(reg, healthhandler.NewServer(nil, nil))
	if len(reg.services) != 1 || reg.services[0] != "grpc.health.v1.Health" {
		t.Errorf("services = %v, want [grpc.health.v1.Health]", reg.services)
	}
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("down") }

func newRouter(t *testing.T, health *healthhandler.Server) http.Handler {
	t.Helper()
	tokens, err := security.NewTestLinkTokenProvider()
	if err != nil {
		t.Fatalf("NewTestLinkTokenProvider: %v", err)
	}
	svc, err := service.NewSessionService(service.Deps{
		Sessions:  sessionrepo.NewMemoryRepository(),
		Artifacts: signaturerepo.NewMemoryRepository(),
		Tokens:    tokens,
	}, service.Options{BaseURL: "http://sign.test"})
	if err != nil {
		t.Fatalf("NewSessionService: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRouter(Deps{
		Sessions: sessionhandler.NewHandler(svc, logger, signature.DefaultMaxBytes),
		Resolver: identityservice.NewStaticResolver(map[string]string{"Demo Organisation": "123"}),
		Health:   health,
		Logger:   logger,
	})
}

func TestNewRouter_Healthz(t *testing.T) {
	rec := httptest.NewRecorder()
	newRouter(t, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Errorf("healthz = %d %s, want 200 ok", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	newRouter(t, healthhandler.NewServer(failingPinger{}, nil)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("healthz with failing store = %d, want 503", rec.Code)
	}
}

func TestNewRouter_CreateRequiresAPIKey(t *testing.T) {
	router := newRouter(t, nil)
	body := `{"title":"NDA","declaration":"I agree","signee_email":"a@b.com","redirect_uri":"https://x/done"}`

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/session/", strings.NewReader(body)))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("without key = %d, want 401", rec.Code)
	}
	if rec.Header().Get("Content-Type") != "application/json" {
		t.Errorf("content-type = %q, want application/json", rec.Header().Get("Content-Type"))
	}

	req := httptest.NewRequest(http.MethodPost, "/session/", strings.NewReader(body))
	req.Header.Set("X-Api-Key", "123")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Errorf("with key = %d, want 201 (%s)", rec.Code, rec.Body.String())
	}
}

func TestNewRouter_UnknownRoute(t *testing.T) {
	rec := httptest.NewRecorder()
	newRouter(t, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/subset/", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
