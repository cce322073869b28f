package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnauthorized is returned when the API key is missing or unknown.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNotFound is returned when no session or artifact exists for a SID.
	ErrNotFound = errors.New("session not found")
	// ErrAlreadySigned is returned when a signed session would be signed or replaced again.
	ErrAlreadySigned = errors.New("session already signed")
	// ErrSessionExists is returned when a create collides with an existing SID and collisions are rejected.
	ErrSessionExists = errors.New("session already exists")
	// ErrInvalidLinkToken is returned when a signing link token is missing, invalid, or for another session.
	ErrInvalidLinkToken = errors.New("invalid signing link")
	// ErrPolicyDenied is returned when the creation policy rejects a request.
	ErrPolicyDenied = errors.New("denied by policy")
	// ErrValidation matches any *ValidationError via errors.Is.
	ErrValidation = errors.New("validation failed")
	// ErrStorage matches any *StorageError via errors.Is.
	ErrStorage = errors.New("storage failure")
)

// FieldError names one offending field of a creation payload.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// ValidationError lists every field that failed validation.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Reason
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// FieldNames returns the offending field names in order.
func (e *ValidationError) FieldNames() []string {
	out := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		out[i] = f.Field
	}
	return out
}

// StorageError wraps an underlying I/O or driver failure from a store.
type StorageError struct {
	Op  string
	SID string
	Err error
}

// NewStorageError wraps err; it returns nil when err is nil.
func NewStorageError(op, sid string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, SID: sid, Err: err}
}

func (e *StorageError) Error() string {
	if e.SID == "" {
		return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage: %s %s: %v", e.Op, e.SID, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorage }
