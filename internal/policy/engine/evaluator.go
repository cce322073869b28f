package engine

import (
	"context"

	sessiondomain "hancock/internal/session/domain"
)

// CreateInput is what the creation policy sees about a pending session.
type CreateInput struct {
	Organization string
	Details      sessiondomain.Details
	// Exists is true when a record with the same SID is already stored.
	Exists bool
}

// Decision is the outcome of a policy evaluation. Reasons lists every deny rule that fired.
type Decision struct {
	Allow   bool
	Reasons []string
}

// Evaluator decides whether a session may be created.
type Evaluator interface {
	EvaluateCreate(ctx context.Context, in CreateInput) (Decision, error)
}

// AllowAll is an Evaluator that permits every request.
type AllowAll struct{}

func (AllowAll) EvaluateCreate(context.Context, CreateInput) (Decision, error) {
	return Decision{Allow: true}, nil
}
