package service

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"hancock/internal/security"
	"hancock/internal/session/domain"
	sessionrepo "hancock/internal/session/repository"
	signaturerepo "hancock/internal/signature/repository"
)

// hookSessions runs beforePut once, just before the first PutPending reaches the store.
type hookSessions struct {
	sessionrepo.Repository
	once      sync.Once
	beforePut func()
}

func (h *hookSessions) PutPending(ctx context.Context, s *domain.Session, overwrite bool) (bool, error) {
	if h.beforePut != nil {
		h.once.Do(h.beforePut)
	}
	return h.Repository.PutPending(ctx, s, overwrite)
}

// hookArtifacts runs beforeStage once and tracks stage ids not yet promoted or discarded.
type hookArtifacts struct {
	signaturerepo.Repository
	once        sync.Once
	beforeStage func()
	failPromote int

	mu     sync.Mutex
	staged map[string]bool
}

func (h *hookArtifacts) Stage(ctx context.Context, sid string, content []byte) (string, error) {
	if h.beforeStage != nil {
		h.once.Do(h.beforeStage)
	}
	id, err := h.Repository.Stage(ctx, sid, content)
	if err == nil {
		h.mu.Lock()
		if h.staged == nil {
			h.staged = map[string]bool{}
		}
		h.staged[id] = true
		h.mu.Unlock()
	}
	return id, err
}

func (h *hookArtifacts) Promote(ctx context.Context, sid, stageID string) error {
	h.mu.Lock()
	if h.failPromote > 0 {
		h.failPromote--
		h.mu.Unlock()
		return domain.NewStorageError("promote artifact", sid, errors.New("bucket unavailable"))
	}
	delete(h.staged, stageID)
	h.mu.Unlock()
	return h.Repository.Promote(ctx, sid, stageID)
}

func (h *hookArtifacts) Discard(ctx context.Context, sid, stageID string) error {
	h.mu.Lock()
	delete(h.staged, stageID)
	h.mu.Unlock()
	return h.Repository.Discard(ctx, sid, stageID)
}

func (h *hookArtifacts) leftover() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.staged)
}

// sharedStores are two views of one backing store, one per replica.
type sharedStores struct {
	sessions  [2]sessionrepo.Repository
	artifacts [2]signaturerepo.Repository
}

func storeBackends() map[string]func(t *testing.T) sharedStores {
	return map[string]func(t *testing.T) sharedStores{
		"memory": func(t *testing.T) sharedStores {
			s := sessionrepo.NewMemoryRepository()
			a := signaturerepo.NewMemoryRepository()
			return sharedStores{
				sessions:  [2]sessionrepo.Repository{s, s},
				artifacts: [2]signaturerepo.Repository{a, a},
			}
		},
		"file": func(t *testing.T) sharedStores {
			dir := t.TempDir()
			var st sharedStores
			for i := range 2 {
				s, err := sessionrepo.NewFileRepository(dir)
				if err != nil {
					t.Fatalf("NewFileRepository: %v", err)
				}
				a, err := signaturerepo.NewFileRepository(dir)
				if err != nil {
					t.Fatalf("NewFileRepository: %v", err)
				}
				st.sessions[i], st.artifacts[i] = s, a
			}
			return st
		},
		"redis": func(t *testing.T) sharedStores {
			m := miniredis.RunT(t)
			a := signaturerepo.NewMemoryRepository()
			var st sharedStores
			for i := range 2 {
				client := redis.NewClient(&redis.Options{Addr: m.Addr()})
				t.Cleanup(func() { _ = client.Close() })
				st.sessions[i] = sessionrepo.NewRedisRepository(client, "replica-test")
				st.artifacts[i] = a
			}
			return st
		},
	}
}

// newReplica builds a SessionService with its own lock table over shared stores.
func newReplica(t *testing.T, tokens LinkTokens, sessions sessionrepo.Repository, artifacts signaturerepo.Repository, policy CollisionPolicy) *SessionService {
	t.Helper()
	svc, err := NewSessionService(Deps{
		Sessions:  sessions,
		Artifacts: artifacts,
		Tokens:    tokens,
	}, Options{BaseURL: "http://sign.test", CollisionPolicy: policy})
	if err != nil {
		t.Fatalf("NewSessionService: %v", err)
	}
	svc.nowF = func() time.Time { return fixedNow }
	return svc
}

func testTokens(t *testing.T) LinkTokens {
	t.Helper()
	tokens, err := security.NewTestLinkTokenProvider()
	if err != nil {
		t.Fatalf("NewTestLinkTokenProvider: %v", err)
	}
	return tokens
}

func TestReplicas_CreateRacingSubmitKeepsSigned(t *testing.T) {
	for name, open := range storeBackends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			st := open(t)
			tokens := testTokens(t)
			hooked := &hookSessions{Repository: st.sessions[0]}
			a := newReplica(t, tokens, hooked, st.artifacts[0], CollisionOverwrite)
			b := newReplica(t, tokens, st.sessions[1], st.artifacts[1], CollisionOverwrite)

			res, err := b.Create(ctx, acme, ndaDetails())
			if err != nil {
				t.Fatalf("Create: %v", err)
			}
			// Replica A has read the pending record when B's signee signs.
			hooked.beforePut = func() {
				if _, err := b.SubmitSignature(ctx, res.Session.SID, res.LinkToken, ndaSVG); err != nil {
					t.Errorf("SubmitSignature on B: %v", err)
				}
			}
			if _, err := a.Create(ctx, acme, ndaDetails()); !errors.Is(err, domain.ErrAlreadySigned) {
				t.Errorf("Create on A err = %v, want ErrAlreadySigned", err)
			}

			_, status, err := a.Status(ctx, res.Session.SID)
			if err != nil {
				t.Fatalf("Status: %v", err)
			}
			if status != domain.StatusSigned {
				t.Errorf("status = %v, want SIGNED", status)
			}
			got, err := a.Artifact(ctx, res.Session.SID)
			if err != nil {
				t.Fatalf("Artifact: %v", err)
			}
			if !bytes.Equal(got, ndaSVG) {
				t.Errorf("Artifact = %q, want %q", got, ndaSVG)
			}
		})
	}
}

func TestReplicas_RejectPolicyRacingCreate(t *testing.T) {
	for name, open := range storeBackends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			st := open(t)
			tokens := testTokens(t)
			hooked := &hookSessions{Repository: st.sessions[0]}
			a := newReplica(t, tokens, hooked, st.artifacts[0], CollisionReject)
			b := newReplica(t, tokens, st.sessions[1], st.artifacts[1], CollisionReject)

			var first *CreateResult
			hooked.beforePut = func() {
				var err error
				if first, err = b.Create(ctx, acme, ndaDetails()); err != nil {
					t.Errorf("Create on B: %v", err)
				}
			}
			if _, err := a.Create(ctx, acme, ndaDetails()); !errors.Is(err, domain.ErrSessionExists) {
				t.Fatalf("Create on A err = %v, want ErrSessionExists", err)
			}
			if first == nil {
				t.Fatal("B did not create the session")
			}
			if _, err := b.View(ctx, first.Session.SID, first.LinkToken); err != nil {
				t.Errorf("B's link no longer valid: %v", err)
			}
		})
	}
}

func TestReplicas_LosingSubmitKeepsWinnersArtifact(t *testing.T) {
	winnerSVG := []byte(`<svg xmlns="http://www.w3.org/2000/svg"><path d="M1 1 L2 2"/></svg>`)
	loserSVG := []byte(`<svg xmlns="http://www.w3.org/2000/svg"><path d="M9 9 L8 8"/></svg>`)

	for name, open := range storeBackends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			st := open(t)
			tokens := testTokens(t)
			hooked := &hookArtifacts{Repository: st.artifacts[1]}
			a := newReplica(t, tokens, st.sessions[0], st.artifacts[0], CollisionOverwrite)
			b := newReplica(t, tokens, st.sessions[1], hooked, CollisionOverwrite)

			res, err := a.Create(ctx, acme, ndaDetails())
			if err != nil {
				t.Fatalf("Create: %v", err)
			}
			// B has validated its submission when A's completes.
			hooked.beforeStage = func() {
				if _, err := a.SubmitSignature(ctx, res.Session.SID, res.LinkToken, winnerSVG); err != nil {
					t.Errorf("SubmitSignature on A: %v", err)
				}
			}
			if _, err := b.SubmitSignature(ctx, res.Session.SID, res.LinkToken, loserSVG); !errors.Is(err, domain.ErrAlreadySigned) {
				t.Errorf("SubmitSignature on B err = %v, want ErrAlreadySigned", err)
			}

			for i, svc := range []*SessionService{a, b} {
				got, err := svc.Artifact(ctx, res.Session.SID)
				if err != nil {
					t.Fatalf("Artifact via replica %d: %v", i, err)
				}
				if !bytes.Equal(got, winnerSVG) {
					t.Errorf("Artifact via replica %d = %q, want the winning submission", i, got)
				}
			}
			if n := hooked.leftover(); n != 0 {
				t.Errorf("%d staged artifacts left behind by the losing submit", n)
			}
		})
	}
}

func TestArtifact_PendingSessionHidesOrphan(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	res := f.create(t, ndaDetails())

	// A served artifact with no signed record behind it.
	stageID, err := f.artifacts.Stage(ctx, res.Session.SID, ndaSVG)
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}
	if err := f.artifacts.Promote(ctx, res.Session.SID, stageID); err != nil {
		t.Fatalf("Promote: %v", err)
	}

	if _, err := f.svc.Artifact(ctx, res.Session.SID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Artifact err = %v, want ErrNotFound for a pending session", err)
	}
	if _, err := f.svc.Artifact(ctx, "../etc"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Artifact err = %v, want ErrNotFound for a malformed sid", err)
	}
}

func TestSubmitSignature_PromoteRetried(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	hooked := &hookArtifacts{Repository: f.artifacts, failPromote: promoteAttempts - 1}
	f.svc.artifacts = hooked
	res := f.create(t, ndaDetails())

	if _, err := f.svc.SubmitSignature(ctx, res.Session.SID, res.LinkToken, ndaSVG); err != nil {
		t.Fatalf("SubmitSignature: %v", err)
	}
	got, err := f.svc.Artifact(ctx, res.Session.SID)
	if err != nil {
		t.Fatalf("Artifact: %v", err)
	}
	if !bytes.Equal(got, ndaSVG) {
		t.Errorf("Artifact = %q, want %q", got, ndaSVG)
	}
	if n := hooked.leftover(); n != 0 {
		t.Errorf("%d staged artifacts left behind", n)
	}
}
