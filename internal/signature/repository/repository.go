// Package repository persists signature artifacts (SVG documents) keyed by session SID.
package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ContentType is the media type every stored artifact is served with.
const ContentType = "image/svg+xml"

// Repository stores one served artifact per SID. A submission is first written
// under a staging id that Get never serves, then promoted once the session is
// signed or discarded when it is not.
// Get returns domain.ErrNotFound when nothing has been promoted for sid.
type Repository interface {
	// Stage writes content under a fresh staging id and returns that id.
	Stage(ctx context.Context, sid string, content []byte) (stageID string, err error)
	// Promote makes the staged content the served artifact for sid.
	Promote(ctx context.Context, sid, stageID string) error
	// Discard removes staged content. A missing staging id is not an error.
	Discard(ctx context.Context, sid, stageID string) error
	Get(ctx context.Context, sid string) ([]byte, error)
	Exists(ctx context.Context, sid string) (bool, error)
}

var (
	_ Repository = (*MemoryRepository)(nil)
	_ Repository = (*FileRepository)(nil)
	_ Repository = (*MinIORepository)(nil)
)

var (
	errBadStageID     = errors.New("malformed staging id")
	errUnknownStageID = errors.New("unknown staging id")
)

func newStageID() string { return uuid.NewString() }

func validStageID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
