package repository

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"hancock/internal/fsutil"
	"hancock/internal/session/domain"
	"hancock/internal/session/sid"
)

// FileRepository stores artifacts as <dir>/<sid>.svg, alongside the session
// records when both stores share a directory. Staged submissions live in
// <dir>/.staged-<sid>-<stage id>.svg until renamed into place.
type FileRepository struct {
	dir string
}

// NewFileRepository returns an artifact store rooted at dir, creating it if needed.
func NewFileRepository(dir string) (*FileRepository, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating artifact directory %s: %w", dir, err)
	}
	return &FileRepository{dir: dir}, nil
}

func (r *FileRepository) path(id string) string {
	return filepath.Join(r.dir, id+".svg")
}

func (r *FileRepository) stagedPath(id, stageID string) string {
	return filepath.Join(r.dir, ".staged-"+id+"-"+stageID+".svg")
}

func (r *FileRepository) Stage(ctx context.Context, id string, content []byte) (string, error) {
	if !sid.Valid(id) {
		return "", domain.NewStorageError("stage artifact", id, errors.New("malformed sid"))
	}
	stageID := newStageID()
	if err := fsutil.WriteFileAtomic(r.dir, r.stagedPath(id, stageID), content); err != nil {
		return "", domain.NewStorageError("stage artifact", id, err)
	}
	return stageID, nil
}

func (r *FileRepository) Promote(ctx context.Context, id, stageID string) error {
	if !sid.Valid(id) || !validStageID(stageID) {
		return domain.NewStorageError("promote artifact", id, errBadStageID)
	}
	return domain.NewStorageError("promote artifact", id, os.Rename(r.stagedPath(id, stageID), r.path(id)))
}

func (r *FileRepository) Discard(ctx context.Context, id, stageID string) error {
	if !sid.Valid(id) || !validStageID(stageID) {
		return nil
	}
	err := os.Remove(r.stagedPath(id, stageID))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return domain.NewStorageError("discard artifact", id, err)
	}
	return nil
}

func (r *FileRepository) Get(ctx context.Context, id string) ([]byte, error) {
	if !sid.Valid(id) {
		return nil, domain.ErrNotFound
	}
	b, err := os.ReadFile(r.path(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.NewStorageError("get artifact", id, err)
	}
	return b, nil
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
	return false, domain.NewStorageError("stat artifact", id, err)
}
