package repository

import (
	"context"
	"sync"
	"time"

	"hancock/internal/session/domain"
)

// MemoryRepository is an in-memory Repository. Records do not survive a restart.
type MemoryRepository struct {
	mu sync.RWMutex
	m  map[string]*domain.Session
}

// NewMemoryRepository returns an empty in-memory session repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{m: make(map[string]*domain.Session)}
}

func (r *MemoryRepository) PutPending(ctx context.Context, s *domain.Session, overwrite bool) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.m[s.SID]
	if err := checkReplace(cur, ok, overwrite); err != nil {
		return false, err
	}
	rec := s.Clone()
	rec.SignedOn = nil
	r.m[s.SID] = rec
	return ok, nil
}

func (r *MemoryRepository) Get(ctx context.Context, sid string) (*domain.Session, error) {
	r.mu.RLock()
	s, ok := r.m[sid]
	r.mu.RUnlock()
	if !ok {
		return nil, domain.ErrNotFound
	}
	return s.Clone(), nil
}

func (r *MemoryRepository) Exists(ctx context.Context, sid string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.m[sid]
	return ok, nil
}

func (r *MemoryRepository) MarkSigned(ctx context.Context, sid string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.m[sid]
	if !ok {
		return domain.ErrNotFound
	}
	return s.Sign(at)
}

func (r *MemoryRepository) Ping(ctx context.Context) error { return nil }
