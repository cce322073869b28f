package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"hancock/internal/fsutil"
	"hancock/internal/session/domain"
	"hancock/internal/session/sid"
)

// FileRepository stores one JSON document per SID in a single directory
// (<dir>/<sid>.json). Writes go to a temp file that is renamed into place, so
// readers never observe a partial record.
//
// Conditional writes are serialized per directory within one process. Several
// processes must not share a directory; use the postgres or redis store for that.
type FileRepository struct {
	dir string
	mu  *sync.Mutex
}

var (
	dirLocksMu sync.Mutex
	dirLocks   = map[string]*sync.Mutex{}
)

// dirLock returns the mutex shared by every FileRepository rooted at dir.
func dirLock(dir string) *sync.Mutex {
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	dirLocksMu.Lock()
	defer dirLocksMu.Unlock()
	mu, ok := dirLocks[dir]
	if !ok {
		mu = &sync.Mutex{}
		dirLocks[dir] = mu
	}
	return mu
}

// NewFileRepository returns a repository rooted at dir, creating it if needed.
func NewFileRepository(dir string) (*FileRepository, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating session directory %s: %w", dir, err)
	}
	return &FileRepository{dir: dir, mu: dirLock(dir)}, nil
}

func (r *FileRepository) path(id string) string {
	return filepath.Join(r.dir, id+".json")
}

func (r *FileRepository) PutPending(ctx context.Context, s *domain.Session, overwrite bool) (bool, error) {
	if !sid.Valid(s.SID) {
		return false, domain.NewStorageError("put", s.SID, errors.New("malformed sid"))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, err := r.Get(ctx, s.SID)
	exists := err == nil
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return false, err
	}
	if err := checkReplace(cur, exists, overwrite); err != nil {
		return false, err
	}
	rec := s.Clone()
	rec.SignedOn = nil
	return exists, r.write(rec)
}

func (r *FileRepository) write(s *domain.Session) error {
	if !sid.Valid(s.SID) {
		return domain.NewStorageError("put", s.SID, errors.New("malformed sid"))
	}
	data, err := json.Marshal(s)
	if err != nil {
		return domain.NewStorageError("put", s.SID, err)
	}
	return domain.NewStorageError("put", s.SID, fsutil.WriteFileAtomic(r.dir, r.path(s.SID), data))
}

func (r *FileRepository) Get(ctx context.Context, id string) (*domain.Session, error) {
	if !sid.Valid(id) {
		return nil, domain.ErrNotFound
	}
	data, err := os.ReadFile(r.path(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.NewStorageError("get", id, err)
	}
	var s domain.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, domain.NewStorageError("get", id, fmt.Errorf("decoding record: %w", err))
	}
	return &s, nil
}

func (r *FileRepository) Exists(ctx context.Context, id string) (bool, error) {
	if !sid.Valid(id) {
		return false, nil
	}
	_, err := os.Stat(r.path(id))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, domain.NewStorageError("exists", id, err)
}

func (r *FileRepository) MarkSigned(ctx context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.Sign(at); err != nil {
		return err
	}
	return r.write(s)
}

func (r *FileRepository) Ping(ctx context.Context) error {
	info, err := os.Stat(r.dir)
	if err != nil {
		return domain.NewStorageError("ping", "", err)
	}
	if !info.IsDir() {
		return domain.NewStorageError("ping", "", fmt.Errorf("%s is not a directory", r.dir))
	}
	return nil
}
