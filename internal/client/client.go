// Package client is a small Go client for the hancock HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"hancock/internal/session/domain"
)

const defaultTimeout = 30 * time.Second

// Client talks to one hancock server.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// New returns a Client for baseURL authenticating with apiKey.
func New(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL:    strings.TrimSuffix(baseURL, "/"),
		APIKey:     apiKey,
		HTTPClient: &http.Client{Timeout: defaultTimeout},
	}
}

// APIError is a non-2xx response decoded from the JSON error envelope.
type APIError struct {
	Status    int
	Code      string
	Message   string
	Fields    []domain.FieldError
	RequestID string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("hancock: %d %s: %s", e.Status, e.Code, e.Message)
	for _, f := range e.Fields {
		msg += fmt.Sprintf(" [%s: %s]", f.Field, f.Reason)
	}
	return msg
}

// Created is the result of CreateSession.
type Created struct {
	SID           string    `json:"sid"`
	SigningURL    string    `json:"signing_url"`
	LinkExpiresAt time.Time `json:"link_expires_at"`
	Replaced      bool      `json:"replaced"`
}

// SessionStatus is the public view of a session.
type SessionStatus struct {
	SID         string        `json:"sid"`
	Title       string        `json:"title"`
	Declaration string        `json:"declaration"`
	SigneeEmail string        `json:"signee_email"`
	RedirectURI string        `json:"redirect_uri"`
	CreatedOn   time.Time     `json:"created_on"`
	CreatedBy   string        `json:"created_by"`
	SignedOn    *time.Time    `json:"signed_on"`
	Status      domain.Status `json:"status"`
}

// CreateSession posts details to /session/.
func (c *Client) CreateSession(ctx context.Context, details domain.Details) (*Created, error) {
	body, err := json.Marshal(details)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/session/", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", c.APIKey)

	var out struct {
		Data Created `json:"data"`
	}
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

// Status fetches /signature/{sid}.json.
func (c *Client) Status(ctx context.Context, sid string) (*SessionStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/signature/"+url.PathEscape(sid)+".json", nil)
	if err != nil {
		return nil, err
	}
	var out struct {
		Data SessionStatus `json:"data"`
	}
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

// Artifact downloads /signature/{sid}.svg.
func (c *Client) Artifact(ctx context.Context, sid string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/signature/"+url.PathEscape(sid)+".svg", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}
	return io.ReadAll(resp.Body)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("hancock: decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var env struct {
		Error *struct {
			Code    string              `json:"code"`
			Message string              `json:"message"`
			Fields  []domain.FieldError `json:"fields"`
		} `json:"error"`
		RequestID string `json:"request_id"`
	}
	apiErr := &APIError{Status: resp.StatusCode, Code: http.StatusText(resp.StatusCode)}
	if json.Unmarshal(raw, &env) == nil && env.Error != nil {
		apiErr.Code = env.Error.Code
		apiErr.Message = env.Error.Message
		apiErr.Fields = env.Error.Fields
		apiErr.RequestID = env.RequestID
	} else {
		apiErr.Message = strings.TrimSpace(string(raw))
	}
	return apiErr
}
