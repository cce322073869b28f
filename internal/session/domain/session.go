package domain

import "time"

// State is the lifecycle state of a signature session.
type State string

const (
	// StateCreated is a session awaiting a signature (signed_on is null).
	StateCreated State = "CREATED"
	// StateSigned is a session whose signature has been collected.
	StateSigned State = "SIGNED"
)

// Status is the externally reported status of a session.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusSigned  Status = "SIGNED"
)

// Session is one signature request: the declaration being agreed to, who must
// sign it, and whether they have.
type Session struct {
	SID         string     `json:"sid"`
	Title       string     `json:"title"`
	Declaration string     `json:"declaration"`
	SigneeEmail string     `json:"signee_email"`
	RedirectURI string     `json:"redirect_uri"`
	CreatedOn   time.Time  `json:"created_on"`
	CreatedBy   string     `json:"created_by"`
	SignedOn    *time.Time `json:"signed_on"` // nil while pending
	// LinkTokenHash is the SHA-256 of the signing link token id issued at creation.
	LinkTokenHash string `json:"link_token_hash,omitempty"`
}

// State derives the lifecycle state from SignedOn.
func (s *Session) State() State {
	if s.SignedOn != nil {
		return StateSigned
	}
	return StateCreated
}

// Status maps the lifecycle state to the reported status.
func (s *Session) Status() Status {
	if s.State() == StateSigned {
		return StatusSigned
	}
	return StatusPending
}

// Sign transitions CREATED -> SIGNED. Any other transition is rejected with ErrAlreadySigned.
func (s *Session) Sign(at time.Time) error {
	if s.State() != StateCreated {
		return ErrAlreadySigned
	}
	at = at.UTC()
	s.SignedOn = &at
	return nil
}

// Clone returns a deep copy so stores never share SignedOn pointers with callers.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	if s.SignedOn != nil {
		t := *s.SignedOn
		c.SignedOn = &t
	}
	return &c
}
