package repository

import (
	"context"
	"sync"

	"hancock/internal/session/domain"
)

// MemoryRepository keeps artifacts in process memory.
type MemoryRepository struct {
	mu     sync.RWMutex
	m      map[string][]byte
	staged map[string][]byte
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{m: make(map[string][]byte), staged: make(map[string][]byte)}
}

func stagedKey(sid, stageID string) string { return sid + "/" + stageID }

func (r *MemoryRepository) Stage(ctx context.Context, sid string, content []byte) (string, error) {
	id := newStageID()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.staged[stagedKey(sid, id)] = append([]byte(nil), content...)
	return id, nil
}

func (r *MemoryRepository) Promote(ctx context.Context, sid, stageID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.staged[stagedKey(sid, stageID)]
	if !ok {
		return domain.NewStorageError("promote artifact", sid, errUnknownStageID)
	}
	delete(r.staged, stagedKey(sid, stageID))
	r.m[sid] = b
	return nil
}

func (r *MemoryRepository) Discard(ctx context.Context, sid, stageID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.staged, stagedKey(sid, stageID))
	return nil
}

func (r *MemoryRepository) Get(ctx context.Context, sid string) ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.m[sid]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return append([]byte(nil), b...), nil
}

func (r *MemoryRepository) Exists(ctx context.Context, sid string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.m[sid]
	return ok, nil
}

// stagedCount reports how many submissions are staged but not yet promoted or discarded.
func (r *MemoryRepository) stagedCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.staged)
}
