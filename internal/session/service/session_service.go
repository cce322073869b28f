// Package service implements the signature session lifecycle: create, view,
// submit, status, close and artifact retrieval.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	identitydomain "hancock/internal/identity/domain"
	"hancock/internal/notify"
	"hancock/internal/policy/engine"
	"hancock/internal/security"
	"hancock/internal/session/domain"
	sessionrepo "hancock/internal/session/repository"
	"hancock/internal/session/sid"
	"hancock/internal/signature"
	signaturerepo "hancock/internal/signature/repository"
	"hancock/internal/telemetry"
)

// CollisionPolicy decides what Create does when the SID already exists.
type CollisionPolicy string

const (
	// CollisionOverwrite replaces a pending record with the same SID.
	CollisionOverwrite CollisionPolicy = "overwrite"
	// CollisionReject fails with domain.ErrSessionExists.
	CollisionReject CollisionPolicy = "reject"
)

// LinkTokens issues and validates signing-link tokens.
type LinkTokens interface {
	Issue(sid string) (token, jti string, expiresAt time.Time, err error)
	Validate(token string) (sid, jti string, err error)
}

// Enqueuer accepts notifications for asynchronous delivery.
type Enqueuer interface {
	Enqueue(msg notify.Message) error
}

// Deps holds the collaborators of SessionService. Sessions, Artifacts and
// Tokens are required; the rest default to no-ops.
type Deps struct {
	Sessions  sessionrepo.Repository
	Artifacts signaturerepo.Repository
	Tokens    LinkTokens
	// Policy evaluates creation requests. If nil, every request is allowed.
	Policy engine.Evaluator
	// Notifications receives signature_requested messages. If nil, nobody is notified.
	Notifications Enqueuer
	// Events receives lifecycle events. If nil, none are emitted.
	Events telemetry.EventEmitter
	Tracer trace.Tracer
	Meter  metric.Meter
	Logger *slog.Logger
}

// Options are the tunables of SessionService.
type Options struct {
	// BaseURL prefixes signing links (e.g. https://sign.example.com).
	BaseURL           string
	CollisionPolicy   CollisionPolicy
	MaxSignatureBytes int
}

// CreateResult is returned by Create.
type CreateResult struct {
	Session       *domain.Session
	SigningURL    string
	LinkToken     string
	LinkExpiresAt time.Time
	// Replaced is true when an existing pending record was overwritten.
	Replaced bool
}

// ViewResult is returned by View. Signed sessions carry no form; callers redirect to the artifact.
type ViewResult struct {
	Session *domain.Session
	Signed  bool
}

// SessionService runs the session state machine over the configured stores.
type SessionService struct {
	sessions  sessionrepo.Repository
	artifacts signaturerepo.Repository
	tokens    LinkTokens
	policy    engine.Evaluator
	notifier  Enqueuer
	events    telemetry.EventEmitter
	tracer    trace.Tracer
	logger    *slog.Logger
	opts      Options

	createdCounter   metric.Int64Counter
	submittedCounter metric.Int64Counter

	locks *keyedMutex
	nowF  func() time.Time
}

// NewSessionService returns a SessionService. It fails only when required deps are
// missing or metric instruments cannot be created.
func NewSessionService(deps Deps, opts Options) (*SessionService, error) {
	if deps.Sessions == nil || deps.Artifacts == nil || deps.Tokens == nil {
		return nil, errors.New("session service: sessions, artifacts and tokens are required")
	}
	if deps.Policy == nil {
		deps.Policy = engine.AllowAll{}
	}
	if deps.Tracer == nil {
		deps.Tracer = tracenoop.NewTracerProvider().Tracer("")
	}
	if deps.Meter == nil {
		deps.Meter = metricnoop.NewMeterProvider().Meter("")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if opts.CollisionPolicy == "" {
		opts.CollisionPolicy = CollisionOverwrite
	}
	if opts.MaxSignatureBytes <= 0 {
		opts.MaxSignatureBytes = signature.DefaultMaxBytes
	}
	opts.BaseURL = strings.TrimSuffix(opts.BaseURL, "/")

	created, err := deps.Meter.Int64Counter("hancock.sessions.created",
		metric.WithDescription("Signature sessions stored by Create."))
	if err != nil {
		return nil, fmt.Errorf("sessions.created counter: %w", err)
	}
	submitted, err := deps.Meter.Int64Counter("hancock.signatures.submitted",
		metric.WithDescription("Signature submissions by outcome."))
	if err != nil {
		return nil, fmt.Errorf("signatures.submitted counter: %w", err)
	}

	return &SessionService{
		sessions:         deps.Sessions,
		artifacts:        deps.Artifacts,
		tokens:           deps.Tokens,
		policy:           deps.Policy,
		notifier:         deps.Notifications,
		events:           deps.Events,
		tracer:           deps.Tracer,
		logger:           deps.Logger,
		opts:             opts,
		createdCounter:   created,
		submittedCounter: submitted,
		locks:            newKeyedMutex(),
		nowF:             time.Now,
	}, nil
}

// Create validates details, stores a CREATED session for org and queues the
// signee notification. A notification that cannot be queued is logged; the
// session is kept.
func (s *SessionService) Create(ctx context.Context, org identitydomain.Organization, details domain.Details) (res *CreateResult, err error) {
	ctx, span := s.tracer.Start(ctx, "session.Create")
	defer func() { endSpan(span, err) }()

	if err := details.Validate(); err != nil {
		return nil, err
	}
	id := sid.Generate(details.Title, details.Declaration, details.SigneeEmail)
	span.SetAttributes(attribute.String("hancock.sid", id))

	unlock := s.locks.Lock(id)
	defer unlock()

	existing, err := s.sessions.Get(ctx, id)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		existing = nil
	case err != nil:
		return nil, err
	case existing.State() == domain.StateSigned:
		return nil, domain.ErrAlreadySigned
	case s.opts.CollisionPolicy == CollisionReject:
		return nil, domain.ErrSessionExists
	}

	decision, err := s.policy.EvaluateCreate(ctx, engine.CreateInput{
		Organization: org.Name,
		Details:      details,
		Exists:       existing != nil,
	})
	if err != nil {
		return nil, fmt.Errorf("creation policy: %w", err)
	}
	if !decision.Allow {
		return nil, fmt.Errorf("%w: %s", domain.ErrPolicyDenied, strings.Join(decision.Reasons, "; "))
	}

	token, jti, expiresAt, err := s.tokens.Issue(id)
	if err != nil {
		return nil, fmt.Errorf("issue link token: %w", err)
	}
	session := &domain.Session{
		SID:           id,
		Title:         details.Title,
		Declaration:   details.Declaration,
		SigneeEmail:   details.SigneeEmail,
		RedirectURI:   details.RedirectURI,
		CreatedOn:     s.nowF().UTC(),
		CreatedBy:     org.Name,
		LinkTokenHash: security.HashLinkTokenID(jti),
	}
	replaced, err := s.sessions.PutPending(ctx, session, s.opts.CollisionPolicy == CollisionOverwrite)
	if err != nil {
		return nil, err
	}
	if replaced {
		s.logger.WarnContext(ctx, "session: sid collision, pending record replaced", "sid", id, "organization", org.Name)
	}

	signingURL := SigningURL(s.opts.BaseURL, id, token)
	s.enqueueNotification(ctx, session, signingURL)

	s.createdCounter.Add(ctx, 1, metric.WithAttributes(attribute.Bool("replaced", replaced)))
	telemetry.EmitAsync(s.events, ctx, telemetry.NewEvent(telemetry.EventSessionCreated, id, org.Name, "session").
		With("replaced", fmt.Sprint(replaced)))

	return &CreateResult{
		Session:       session.Clone(),
		SigningURL:    signingURL,
		LinkToken:     token,
		LinkExpiresAt: expiresAt,
		Replaced:      replaced,
	}, nil
}

func (s *SessionService) enqueueNotification(ctx context.Context, session *domain.Session, signingURL string) {
	if s.notifier == nil {
		return
	}
	msg := notify.NewMessage(notify.EventSignatureRequested, session.SID, session.SigneeEmail, signingURL, session.CreatedBy, session.Title)
	if err := s.notifier.Enqueue(msg); err != nil {
		s.logger.WarnContext(ctx, "notify: enqueue failed", "sid", session.SID, "error", err)
		telemetry.EmitAsync(s.events, ctx, telemetry.NewEvent(telemetry.EventNotificationFailed, session.SID, session.CreatedBy, "session").
			With("error", err.Error()))
	}
}

// View loads a session for the signing page. A pending session requires a
// link token issued for it; a signed one is returned with Signed set.
func (s *SessionService) View(ctx context.Context, id, token string) (res *ViewResult, err error) {
	ctx, span := s.tracer.Start(ctx, "session.View", trace.WithAttributes(attribute.String("hancock.sid", id)))
	defer func() { endSpan(span, err) }()

	session, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.State() == domain.StateSigned {
		return &ViewResult{Session: session, Signed: true}, nil
	}
	if err := s.checkLinkToken(session, token); err != nil {
		return nil, err
	}
	return &ViewResult{Session: session}, nil
}

// SubmitSignature moves a session from CREATED to SIGNED. The artifact is staged,
// the record is marked signed by the conditional MarkSigned, and only the writer
// that won that step promotes its artifact. A losing writer's staged copy is discarded.
func (s *SessionService) SubmitSignature(ctx context.Context, id, token string, svg []byte) (session *domain.Session, err error) {
	ctx, span := s.tracer.Start(ctx, "session.SubmitSignature", trace.WithAttributes(attribute.String("hancock.sid", id)))
	defer func() {
		s.submittedCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome(err))))
		endSpan(span, err)
	}()

	if !sid.Valid(id) {
		return nil, domain.ErrNotFound
	}
	unlock := s.locks.Lock(id)
	defer unlock()

	session, err = s.sessions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.State() == domain.StateSigned {
		return nil, domain.ErrAlreadySigned
	}
	if err := s.checkLinkToken(session, token); err != nil {
		return nil, err
	}
	if err := signature.ValidateSVG(svg, s.opts.MaxSignatureBytes); err != nil {
		return nil, &domain.ValidationError{Fields: []domain.FieldError{{Field: "signature", Reason: err.Error()}}}
	}

	stageID, err := s.artifacts.Stage(ctx, id, svg)
	if err != nil {
		return nil, err
	}
	at := s.nowF().UTC()
	if err := s.sessions.MarkSigned(ctx, id, at); err != nil {
		if derr := s.artifacts.Discard(ctx, id, stageID); derr != nil {
			s.logger.WarnContext(ctx, "session: staged artifact not discarded", "sid", id, "stage_id", stageID, "error", derr)
		}
		return nil, err
	}
	if err := s.promote(ctx, id, stageID); err != nil {
		s.logger.ErrorContext(ctx, "session: signed but artifact not promoted", "sid", id, "stage_id", stageID, "error", err)
		return nil, err
	}
	if err := session.Sign(at); err != nil {
		return nil, err
	}

	telemetry.EmitAsync(s.events, ctx, telemetry.NewEvent(telemetry.EventSessionSigned, id, session.CreatedBy, "session").
		With("signature_bytes", fmt.Sprint(len(svg))))
	return session, nil
}

// promote retries a failed promotion briefly; the record is already signed.
func (s *SessionService) promote(ctx context.Context, id, stageID string) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = time.Second
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, s.artifacts.Promote(ctx, id, stageID)
	}, backoff.WithBackOff(b), backoff.WithMaxTries(promoteAttempts))
	return err
}

const promoteAttempts = 3

// Status returns the session and its computed status. It never mutates state.
func (s *SessionService) Status(ctx context.Context, id string) (*domain.Session, domain.Status, error) {
	ctx, span := s.tracer.Start(ctx, "session.Status", trace.WithAttributes(attribute.String("hancock.sid", id)))
	session, err := s.get(ctx, id)
	endSpan(span, err)
	if err != nil {
		return nil, "", err
	}
	return session, session.Status(), nil
}

// Close returns the redirect URI shown on the post-signing page.
func (s *SessionService) Close(ctx context.Context, id string) (string, error) {
	session, err := s.get(ctx, id)
	if err != nil {
		return "", err
	}
	return session.RedirectURI, nil
}

// Artifact returns the stored signature for id. Only signed sessions have one.
func (s *SessionService) Artifact(ctx context.Context, id string) (b []byte, err error) {
	ctx, span := s.tracer.Start(ctx, "session.Artifact", trace.WithAttributes(attribute.String("hancock.sid", id)))
	defer func() { endSpan(span, err) }()

	session, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.State() != domain.StateSigned {
		return nil, domain.ErrNotFound
	}
	return s.artifacts.Get(ctx, id)
}

// Ping checks the session store.
func (s *SessionService) Ping(ctx context.Context) error {
	return s.sessions.Ping(ctx)
}

func (s *SessionService) get(ctx context.Context, id string) (*domain.Session, error) {
	if !sid.Valid(id) {
		return nil, domain.ErrNotFound
	}
	return s.sessions.Get(ctx, id)
}

// checkLinkToken accepts only the most recent token issued for session.
func (s *SessionService) checkLinkToken(session *domain.Session, token string) error {
	tokenSID, jti, err := s.tokens.Validate(token)
	if err != nil || tokenSID != session.SID {
		return domain.ErrInvalidLinkToken
	}
	if !security.LinkTokenIDEqual(jti, session.LinkTokenHash) {
		return domain.ErrInvalidLinkToken
	}
	return nil
}

// SigningURL builds the link a signee follows.
func SigningURL(baseURL, id, token string) string {
	return strings.TrimSuffix(baseURL, "/") + "/session/" + id + "/?token=" + url.QueryEscape(token)
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "signed"
	case errors.Is(err, domain.ErrAlreadySigned):
		return "already_signed"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrInvalidLinkToken):
		return "invalid_token"
	case errors.Is(err, domain.ErrValidation):
		return "invalid"
	default:
		return "error"
	}
}

// endSpan records err on span unless it is an expected client outcome.
func endSpan(span trace.Span, err error) {
	if err != nil && errors.Is(err, domain.ErrStorage) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else if err != nil {
		span.SetAttributes(attribute.String("hancock.outcome", outcome(err)))
	}
	span.End()
}
