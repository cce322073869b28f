package migrate

import (
	"os"
	"testing"
)

func TestRun_EmptyDSN(t *testing.T) {
	err := Run("", "up")
	if err == nil {
		t.Fatal("Run with empty DSN should return error")
	}
	if err.Error() != "DATABASE_URL is not set" {
		t.Errorf("error = %q, want %q", err.Error(), "DATABASE_URL is not set")
	}
}

func TestRun_InvalidDirection(t *testing.T) {
	for _, direction := range []string{"", "sideways", "UP", "Down"} {
		t.Run(direction, func(t *testing.T) {
			if err := Run("postgres://localhost/test", direction); err == nil {
				t.Errorf("Run with direction %q should return error", direction)
			}
		})
	}
}

func TestDriverURL(t *testing.T) {
	testCases := []struct {
		in   string
		want string
	}{
		{"postgres://u:p@localhost:5432/db?sslmode=disable", "pgx5://u:p@localhost:5432/db?sslmode=disable"},
		{"postgresql://localhost/db", "pgx5://localhost/db"},
		{"pgx5://localhost/db", "pgx5://localhost/db"},
	}
	for _, tc := range testCases {
		if got := driverURL(tc.in); got != tc.want {
			t.Errorf("driverURL(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestRun_UpIdempotent(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}
	if err := Run(dsn, "up"); err != nil {
		t.Fatalf("first up: %v", err)
	}
	if err := Run(dsn, "up"); err != nil {
		t.Errorf("second up should be a no-op, got %v", err)
	}
}
