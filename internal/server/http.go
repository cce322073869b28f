// Package server assembles the HTTP router and the gRPC health listener.
package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	healthhandler "hancock/internal/health/handler"
	identityservice "hancock/internal/identity/service"
	"hancock/internal/server/middleware"
	sessionhandler "hancock/internal/session/handler"
)

// Deps holds the handlers and collaborators mounted on the router.
type Deps struct {
	Sessions *sessionhandler.Handler
	// Resolver authenticates X-Api-Key on session creation.
	Resolver identityservice.KeyResolver
	// Health serves /healthz. If nil, /healthz always reports ok.
	Health *healthhandler.Server
	Logger *slog.Logger
}

// NewRouter returns the HTTP handler for the public API and signing pages.
func NewRouter(deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	health := deps.Health
	if health == nil {
		health = healthhandler.NewServer(nil, nil)
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(logger, "/healthz"))
	r.Use(chimiddleware.Recoverer)

	r.Method(http.MethodGet, "/healthz", health)
	deps.Sessions.Mount(r, middleware.RequireAPIKey(deps.Resolver, deps.Sessions.WriteUnauthorized))
	return r
}
