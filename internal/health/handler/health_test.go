package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// mockPinger implements Pinger for tests.
type mockPinger struct {
	pingErr error
}

func (m *mockPinger) Ping(context.Context) error {
	return m.pingErr
}

// mockPolicyChecker implements PolicyChecker for tests.
type mockPolicyChecker struct {
	healthErr error
}

func (m *mockPolicyChecker) HealthCheck(context.Context) error {
	return m.healthErr
}

func TestHealthCheck(t *testing.T) {
	tests := []struct {
		name    string
		pinger  Pinger
		policy  PolicyChecker
		serving bool
	}{
		{"no checks", nil, nil, true},
		{"pinger success", &mockPinger{}, nil, true},
		{"pinger failure", &mockPinger{pingErr: errors.New("connection refused")}, nil, false},
		{"policy success", nil, &mockPolicyChecker{}, true},
		{"policy failure", nil, &mockPolicyChecker{healthErr: errors.New("rego compile failed")}, false},
		{"both, policy fails", &mockPinger{}, &mockPolicyChecker{healthErr: errors.New("policy error")}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := NewServer(tt.pinger, tt.policy)

			resp, err := NewGRPCServer(srv).Check(context.Background(), &healthpb.HealthCheckRequest{})
			if err != nil {
				t.Fatalf("Check must not return a gRPC error: %v", err)
			}
			want := healthpb.HealthCheckResponse_NOT_SERVING
			if tt.serving {
				want = healthpb.HealthCheckResponse_SERVING
			}
			if resp.GetStatus() != want {
				t.Errorf("grpc status = %v, want %v", resp.GetStatus(), want)
			}

			rec := httptest.NewRecorder()
			srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
			wantCode := http.StatusServiceUnavailable
			if tt.serving {
				wantCode = http.StatusOK
			}
			if rec.Code != wantCode {
				t.Errorf("http status = %d, want %d", rec.Code, wantCode)
			}
			var body map[string]string
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if tt.serving && body["status"] != "ok" {
				t.Errorf("body status = %q, want ok", body["status"])
			}
		})
	}
}
