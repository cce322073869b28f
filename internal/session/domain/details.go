package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/mail"
	"net/url"
	"strings"
)

// Details is the creation payload for a signature session.
type Details struct {
	Title       string `json:"title"`
	Declaration string `json:"declaration"`
	SigneeEmail string `json:"signee_email"`
	RedirectURI string `json:"redirect_uri"`
}

// ParseDetails decodes a raw JSON creation payload and validates it.
// Type mismatches and malformed JSON are reported as a *ValidationError.
func ParseDetails(raw []byte) (Details, error) {
	var d Details
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(&d); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return Details{}, &ValidationError{Fields: []FieldError{{Field: typeErr.Field, Reason: "must be a string"}}}
		}
		if errors.Is(err, io.EOF) {
			return Details{}, &ValidationError{Fields: []FieldError{{Field: "body", Reason: "required"}}}
		}
		return Details{}, &ValidationError{Fields: []FieldError{{Field: "body", Reason: "malformed JSON"}}}
	}
	if err := d.Validate(); err != nil {
		return Details{}, err
	}
	return d, nil
}

// Validate checks required fields and their formats. It returns a *ValidationError
// naming every offending field, or nil.
func (d Details) Validate() error {
	var fields []FieldError
	required := []struct {
		name  string
		value string
	}{
		{"title", d.Title},
		{"declaration", d.Declaration},
		{"signee_email", d.SigneeEmail},
		{"redirect_uri", d.RedirectURI},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			fields = append(fields, FieldError{Field: r.name, Reason: "required"})
		}
	}
	if strings.TrimSpace(d.SigneeEmail) != "" && !validEmail(d.SigneeEmail) {
		fields = append(fields, FieldError{Field: "signee_email", Reason: "must be a plain e-mail address"})
	}
	if strings.TrimSpace(d.RedirectURI) != "" && !validRedirect(d.RedirectURI) {
		fields = append(fields, FieldError{Field: "redirect_uri", Reason: "must be an absolute http(s) URI"})
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func validEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	if err != nil {
		return false
	}
	return addr.Name == "" && addr.Address == strings.TrimSpace(s)
}

func validRedirect(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
