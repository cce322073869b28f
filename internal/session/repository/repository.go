package repository

import (
	"context"
	"time"

	"hancock/internal/session/domain"
)

// Repository defines persistence for signature sessions, one record per SID.
//
// Get returns domain.ErrNotFound for an unknown SID. Driver and I/O failures
// are returned as *domain.StorageError.
type Repository interface {
	// PutPending writes an unsigned record. When a record already exists it
	// is replaced only if overwrite is set (otherwise domain.ErrSessionExists)
	// and only while it is unsigned (otherwise domain.ErrAlreadySigned). The
	// check and the write are one atomic step in the store. replaced reports
	// whether an existing record was overwritten.
	PutPending(ctx context.Context, s *domain.Session, overwrite bool) (replaced bool, err error)
	Get(ctx context.Context, sid string) (*domain.Session, error)
	Exists(ctx context.Context, sid string) (bool, error)
	// MarkSigned sets signed_on only if it is still null. It returns
	// domain.ErrAlreadySigned when another writer got there first.
	MarkSigned(ctx context.Context, sid string, at time.Time) error
	// Ping reports whether the backing store is reachable.
	Ping(ctx context.Context) error
}

var (
	_ Repository = (*MemoryRepository)(nil)
	_ Repository = (*FileRepository)(nil)
	_ Repository = (*PostgresRepository)(nil)
	_ Repository = (*RedisRepository)(nil)
)

// checkReplace decides whether PutPending may write over cur.
func checkReplace(cur *domain.Session, exists, overwrite bool) error {
	switch {
	case !exists:
		return nil
	case cur.State() == domain.StateSigned:
		return domain.ErrAlreadySigned
	case !overwrite:
		return domain.ErrSessionExists
	}
	return nil
}
