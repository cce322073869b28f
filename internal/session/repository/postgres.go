package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"hancock/internal/session/domain"
)

// PostgresRepository persists sessions in the signature_sessions table.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a session repository that uses the given db for persistence.
// The schema is created by internal/db/migrate.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const insertSession = `
INSERT INTO signature_sessions (sid, title, declaration, signee_email, redirect_uri, created_on, created_by, signed_on, link_token_hash)
VALUES ($1, $2, $3, $4, $5, $6, $7, NULL, $8)`

// replacePending only updates a conflicting row while it is unsigned; xmax is
// non-zero on the returned row when it was an update rather than an insert.
const replacePending = insertSession + `
ON CONFLICT (sid) DO UPDATE SET
	title = EXCLUDED.title,
	declaration = EXCLUDED.declaration,
	signee_email = EXCLUDED.signee_email,
	redirect_uri = EXCLUDED.redirect_uri,
	created_on = EXCLUDED.created_on,
	created_by = EXCLUDED.created_by,
	signed_on = NULL,
	link_token_hash = EXCLUDED.link_token_hash
WHERE signature_sessions.signed_on IS NULL
RETURNING (xmax <> 0)`

const insertPending = insertSession + `
ON CONFLICT (sid) DO NOTHING
RETURNING false`

const selectSession = `
SELECT sid, title, declaration, signee_email, redirect_uri, created_on, created_by, signed_on, link_token_hash
FROM signature_sessions WHERE sid = $1`

// PutPending runs a single conditional statement. No returned row means the
// conflicting record was kept.
func (r *PostgresRepository) PutPending(ctx context.Context, s *domain.Session, overwrite bool) (bool, error) {
	query := insertPending
	if overwrite {
		query = replacePending
	}
	var replaced bool
	err := r.db.QueryRowContext(ctx, query,
		s.SID,
		s.Title,
		s.Declaration,
		s.SigneeEmail,
		s.RedirectURI,
		s.CreatedOn,
		s.CreatedBy,
		sql.NullString{String: s.LinkTokenHash, Valid: s.LinkTokenHash != ""},
	).Scan(&replaced)
	if err == nil {
		return replaced, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return false, domain.NewStorageError("put", s.SID, err)
	}
	if overwrite {
		return false, domain.ErrAlreadySigned
	}
	cur, err := r.Get(ctx, s.SID)
	if err != nil {
		return false, err
	}
	return false, checkReplace(cur, true, false)
}

// Get returns the session for sid, or domain.ErrNotFound.
func (r *PostgresRepository) Get(ctx context.Context, sid string) (*domain.Session, error) {
	var (
		s         domain.Session
		signedOn  sql.NullTime
		tokenHash sql.NullString
	)
	err := r.db.QueryRowContext(ctx, selectSession, sid).Scan(
		&s.SID, &s.Title, &s.Declaration, &s.SigneeEmail, &s.RedirectURI,
		&s.CreatedOn, &s.CreatedBy, &signedOn, &tokenHash,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.NewStorageError("get", sid, err)
	}
	s.CreatedOn = s.CreatedOn.UTC()
	s.SignedOn = nullTimeToPtr(signedOn)
	if tokenHash.Valid {
		s.LinkTokenHash = tokenHash.String
	}
	return &s, nil
}

func (r *PostgresRepository) Exists(ctx context.Context, sid string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM signature_sessions WHERE sid = $1)`, sid).Scan(&exists)
	if err != nil {
		return false, domain.NewStorageError("exists", sid, err)
	}
	return exists, nil
}

// MarkSigned is a single conditional UPDATE; zero affected rows means the
// session is either missing or already signed.
func (r *PostgresRepository) MarkSigned(ctx context.Context, sid string, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE signature_sessions SET signed_on = $2 WHERE sid = $1 AND signed_on IS NULL`,
		sid, at.UTC())
	if err != nil {
		return domain.NewStorageError("mark signed", sid, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.NewStorageError("mark signed", sid, err)
	}
	if n == 1 {
		return nil
	}
	exists, err := r.Exists(ctx, sid)
	if err != nil {
		return err
	}
	if !exists {
		return domain.ErrNotFound
	}
	return domain.ErrAlreadySigned
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	return domain.NewStorageError("ping", "", r.db.PingContext(ctx))
}

func nullTimeToPtr(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	t := n.Time.UTC()
	return &t
}
