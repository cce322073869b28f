package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"hancock/internal/session/domain"
)

const (
	fieldRecord   = "record"
	fieldSignedOn = "signed_on"
)

// redisMarkSignedScript sets the signed_on field only while it is absent.
// Returns 1 on success, 0 when the session is missing, -1 when already signed.
var redisMarkSignedScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
if redis.call("HEXISTS", KEYS[1], "signed_on") == 1 then
  return -1
end
redis.call("HSET", KEYS[1], "signed_on", ARGV[1])
return 1
`)

// redisPutPendingScript writes the record and clears signed_on unless the
// session is signed. ARGV[2] is "1" when an unsigned record may be replaced.
// Returns 1 when created, 2 when replaced, -1 when already signed, -2 when it
// exists and replacing is not allowed.
var redisPutPendingScript = redis.NewScript(`
local exists = redis.call("EXISTS", KEYS[1]) == 1
if exists then
  if redis.call("HEXISTS", KEYS[1], "signed_on") == 1 then
    return -1
  end
  if ARGV[2] ~= "1" then
    return -2
  end
end
redis.call("HSET", KEYS[1], "record", ARGV[1])
redis.call("HDEL", KEYS[1], "signed_on")
if exists then
  return 2
end
return 1
`)

// RedisRepository stores each session as a hash under <prefix>:session:<sid>:
// the JSON record in "record" and the signing time in "signed_on", so the
// CREATED -> SIGNED flip is a single atomic script.
type RedisRepository struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisRepository returns a Redis-backed repository. prefix defaults to "hancock".
func NewRedisRepository(client redis.UniversalClient, prefix string) *RedisRepository {
	if prefix == "" {
		prefix = "hancock"
	}
	return &RedisRepository{client: client, prefix: prefix}
}

func (r *RedisRepository) key(sid string) string {
	return fmt.Sprintf("%s:session:%s", r.prefix, sid)
}

func (r *RedisRepository) PutPending(ctx context.Context, s *domain.Session, overwrite bool) (bool, error) {
	rec := s.Clone()
	rec.SignedOn = nil
	data, err := json.Marshal(rec)
	if err != nil {
		return false, domain.NewStorageError("put", s.SID, err)
	}
	mode := "0"
	if overwrite {
		mode = "1"
	}
	res, err := redisPutPendingScript.Run(ctx, r.client, []string{r.key(s.SID)}, data, mode).Int()
	if err != nil {
		return false, domain.NewStorageError("put", s.SID, err)
	}
	switch res {
	case 1:
		return false, nil
	case 2:
		return true, nil
	case -1:
		return false, domain.ErrAlreadySigned
	default:
		return false, domain.ErrSessionExists
	}
}

func (r *RedisRepository) Get(ctx context.Context, sid string) (*domain.Session, error) {
	fields, err := r.client.HGetAll(ctx, r.key(sid)).Result()
	if err != nil {
		return nil, domain.NewStorageError("get", sid, err)
	}
	raw, ok := fields[fieldRecord]
	if !ok {
		return nil, domain.ErrNotFound
	}
	var s domain.Session
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil, domain.NewStorageError("get", sid, fmt.Errorf("decoding record: %w", err))
	}
	s.SignedOn = nil
	if v, ok := fields[fieldSignedOn]; ok {
		at, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return nil, domain.NewStorageError("get", sid, fmt.Errorf("decoding signed_on: %w", err))
		}
		at = at.UTC()
		s.SignedOn = &at
	}
	return &s, nil
}

func (r *RedisRepository) Exists(ctx context.Context, sid string) (bool, error) {
	n, err := r.client.Exists(ctx, r.key(sid)).Result()
	if err != nil {
		return false, domain.NewStorageError("exists", sid, err)
	}
	return n == 1, nil
}

func (r *RedisRepository) MarkSigned(ctx context.Context, sid string, at time.Time) error {
	res, err := redisMarkSignedScript.Run(ctx, r.client, []string{r.key(sid)}, at.UTC().Format(time.RFC3339Nano)).Int()
	if err != nil {
		return domain.NewStorageError("mark signed", sid, err)
	}
	switch res {
	case 1:
		return nil
	case 0:
		return domain.ErrNotFound
	default:
		return domain.ErrAlreadySigned
	}
}

func (r *RedisRepository) Ping(ctx context.Context) error {
	return domain.NewStorageError("ping", "", r.client.Ping(ctx).Err())
}
