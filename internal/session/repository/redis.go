package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"splan/backend/internal/session/domain"
)

const (
	sessionKeyPrefix = "sess:"
	userKeyPrefix    = "sess:user:"
	// epochKey lives outside sessionKeyPrefix so DeleteOlderThan's scan never removes it.
	epochKey = "sesscache:epoch"
)

// fillScript writes a cache entry only if no delete has bumped the epoch since the
// caller read it. KEYS: epoch, session, user index. ARGV: epoch, data, ttl ms, session id.
var fillScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[1]) or '0'
if cur ~= ARGV[1] then
  return 0
end
redis.call('SET', KEYS[2], ARGV[2], 'PX', ARGV[3])
redis.call('SADD', KEYS[3], ARGV[4])
redis.call('PEXPIRE', KEYS[3], ARGV[3])
return 1
`)

// CachedRepository is a read-through Redis cache in front of another Repository.
// Only positive lookups are cached. Every delete path bumps a cache epoch and clears the
// affected keys; a fill started before a delete is discarded, so a revoked session is
// never served from cache.
type CachedRepository struct {
	inner Repository
	rdb   redis.UniversalClient
	ttl   time.Duration
}

// NewCachedRepository wraps inner with a Redis cache. ttl bounds how long an entry lives.
func NewCachedRepository(inner Repository, rdb redis.UniversalClient, ttl time.Duration) *CachedRepository {
	return &CachedRepository{inner: inner, rdb: rdb, ttl: ttl}
}

type cachedSession struct {
	UserID    int64     `json:"u"`
	CreatedAt time.Time `json:"c"`
}

func sessionKey(id string) string  { return sessionKeyPrefix + id }
func userKey(userID int64) string { return fmt.Sprintf("%s%d", userKeyPrefix, userID) }

// GetByID serves from cache when possible. Cache read failures fall through to the store.
func (r *CachedRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	data, err := r.rdb.Get(ctx, sessionKey(id)).Bytes()
	if err == nil {
		var c cachedSession
		if json.Unmarshal(data, &c) == nil {
			return &domain.Session{ID: id, UserID: c.UserID, CreatedAt: c.CreatedAt}, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		return r.inner.GetByID(ctx, id)
	}

	epoch, err := r.rdb.Get(ctx, epochKey).Result()
	switch {
	case errors.Is(err, redis.Nil):
		epoch = "0"
	case err != nil:
		return r.inner.GetByID(ctx, id)
	}

	s, err := r.inner.GetByID(ctx, id)
	if err != nil || s == nil {
		return s, err
	}
	r.store(ctx, epoch, s)
	return s, nil
}

func (r *CachedRepository) store(ctx context.Context, epoch string, s *domain.Session) {
	data, err := json.Marshal(cachedSession{UserID: s.UserID, CreatedAt: s.CreatedAt})
	if err != nil {
		return
	}
	keys := []string{epochKey, sessionKey(s.ID), userKey(s.UserID)}
	_ = fillScript.Run(ctx, r.rdb, keys, epoch, data, r.ttl.Milliseconds(), s.ID).Err()
}

// invalidate bumps the epoch and deletes keys in one transaction.
func (r *CachedRepository) invalidate(ctx context.Context, keys ...string) error {
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, epochKey)
		if len(keys) > 0 {
			pipe.Del(ctx, keys...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("session cache: %w", err)
	}
	return nil
}

func (r *CachedRepository) ListByUser(ctx context.Context, userID int64) ([]*domain.Session, error) {
	return r.inner.ListByUser(ctx, userID)
}

func (r *CachedRepository) ListAll(ctx context.Context) ([]*domain.Session, error) {
	return r.inner.ListAll(ctx)
}

func (r *CachedRepository) Create(ctx context.Context, s *domain.Session) error {
	return r.inner.Create(ctx, s)
}

// Delete removes the session from the store and then from the cache. A cache failure is
// returned so callers do not assume the session is gone from every read path.
func (r *CachedRepository) Delete(ctx context.Context, id string) error {
	if err := r.inner.Delete(ctx, id); err != nil {
		return err
	}
	return r.invalidate(ctx, sessionKey(id))
}

// DeleteByUser removes the user's sessions from the store, then every cached entry indexed under the user.
func (r *CachedRepository) DeleteByUser(ctx context.Context, userID int64) error {
	if err := r.inner.DeleteByUser(ctx, userID); err != nil {
		return err
	}
	ids, err := r.rdb.SMembers(ctx, userKey(userID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("session cache: %w", err)
	}
	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, sessionKey(id))
	}
	keys = append(keys, userKey(userID))
	return r.invalidate(ctx, keys...)
}

// DeleteOlderThan prunes the store and then drops every cached session entry.
func (r *CachedRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	n, err := r.inner.DeleteOlderThan(ctx, cutoff)
	if err != nil || n == 0 {
		return n, err
	}
	if err := r.invalidate(ctx); err != nil {
		return n, err
	}
	iter := r.rdb.Scan(ctx, 0, sessionKeyPrefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return n, fmt.Errorf("session cache: %w", err)
	}
	if len(keys) > 0 {
		if err := r.rdb.Del(ctx, keys...).Err(); err != nil {
			return n, fmt.Errorf("session cache: %w", err)
		}
	}
	return n, nil
}
