// Package handler reports readiness over HTTP (/healthz) and gRPC (grpc.health.v1).
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Pinger checks a backing store (session store, database).
type Pinger interface {
	Ping(ctx context.Context) error
}

// PolicyChecker checks the creation policy engine (e.g. OPA evaluator).
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

// Server answers readiness checks. Nil collaborators are skipped.
type Server struct {
	pinger  Pinger
	policy  PolicyChecker
	timeout time.Duration
}

// NewServer returns a health Server. Either argument may be nil.
func NewServer(pinger Pinger, policy PolicyChecker) *Server {
	return &Server{pinger: pinger, policy: policy, timeout: 2 * time.Second}
}

// Check returns nil when every configured dependency is reachable.
func (s *Server) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if s.pinger != nil {
		if err := s.pinger.Ping(ctx); err != nil {
			return fmt.Errorf("store: %w", err)
		}
	}
	if s.policy != nil {
		if err := s.policy.HealthCheck(ctx); err != nil {
			return fmt.Errorf("policy: %w", err)
		}
	}
	return nil
}

// ServeHTTP handles GET /healthz.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := s.Check(r.Context()); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
