package domain

import (
	"errors"
	"testing"
	"time"
)

func TestSession_StateAndStatus(t *testing.T) {
	s := &Session{SID: "s1"}
	if s.State() != StateCreated {
		t.Errorf("State = %q, want %q", s.State(), StateCreated)
	}
	if s.Status() != StatusPending {
		t.Errorf("Status = %q, want %q", s.Status(), StatusPending)
	}

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	if err := s.Sign(at); err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if s.State() != StateSigned {
		t.Errorf("State = %q, want %q", s.State(), StateSigned)
	}
	if s.Status() != StatusSigned {
		t.Errorf("Status = %q, want %q", s.Status(), StatusSigned)
	}
	if !s.SignedOn.Equal(at) {
		t.Errorf("SignedOn = %v, want %v", s.SignedOn, at)
	}
}

func TestSession_SignTwiceRejected(t *testing.T) {
	s := &Session{SID: "s1"}
	first := time.Now().UTC()
	if err := s.Sign(first); err != nil {
		t.Fatalf("Sign: %v", err)
	}
	err := s.Sign(first.Add(time.Hour))
	if !errors.Is(err, ErrAlreadySigned) {
		t.Fatalf("second Sign err = %v, want ErrAlreadySigned", err)
	}
	if !s.SignedOn.Equal(first) {
		t.Error("SignedOn changed after rejected transition")
	}
}

func TestSession_Clone(t *testing.T) {
	at := time.Now().UTC()
	s := &Session{SID: "s1", SignedOn: &at}
	c := s.Clone()
	*c.SignedOn = at.Add(time.Hour)
	if !s.SignedOn.Equal(at) {
		t.Error("Clone shares SignedOn with the original")
	}
	var nilSession *Session
	if nilSession.Clone() != nil {
		t.Error("Clone of nil should be nil")
	}
}

func TestStorageError(t *testing.T) {
	cause := errors.New("disk full")
	err := NewStorageError("put", "abc", cause)
	if !errors.Is(err, ErrStorage) {
		t.Error("StorageError should match ErrStorage")
	}
	if !errors.Is(err, cause) {
		t.Error("StorageError should unwrap to its cause")
	}
	if NewStorageError("put", "abc", nil) != nil {
		t.Error("NewStorageError(nil) should return nil")
	}
}
