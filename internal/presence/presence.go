package presence

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Tracker is the fast-path presence store refreshed by the realtime gateway.
// The users table keeps the durable is_active flag; the tracker answers
// "online right now" without touching the database and expires on its own if
// the process dies without cleaning up.
type Tracker interface {
	SetOnline(ctx context.Context, userID int64) error
	SetOffline(ctx context.Context, userID int64) error
	IsOnline(ctx context.Context, userID int64) (bool, error)
}

// RedisTracker stores presence keys with a TTL.
type RedisTracker struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisTracker connects to redis. An empty addr returns a no-op tracker
// so callers degrade to database-only presence.
func NewRedisTracker(addr, password string, ttl time.Duration) Tracker {
	if strings.TrimSpace(addr) == "" {
		return NoopTracker{}
	}
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return &RedisTracker{client: client, ttl: ttl, prefix: "presence:user:"}
}

// NewRedisTrackerWithClient wraps an existing client; used by tests and by
// callers sharing one redis connection.
func NewRedisTrackerWithClient(client *redis.Client, ttl time.Duration) *RedisTracker {
	return &RedisTracker{client: client, ttl: ttl, prefix: "presence:user:"}
}

func (t *RedisTracker) key(userID int64) string {
	return fmt.Sprintf("%s%d", t.prefix, userID)
}

// SetOnline marks the user online. The TTL bounds how long a stale key can
// survive a process that died without cleaning up.
func (t *RedisTracker) SetOnline(ctx context.Context, userID int64) error {
	return t.client.Set(ctx, t.key(userID), time.Now().Unix(), t.ttl).Err()
}

// SetOffline removes the presence key.
func (t *RedisTracker) SetOffline(ctx context.Context, userID int64) error {
	return t.client.Del(ctx, t.key(userID)).Err()
}

// IsOnline reports whether a live presence key exists.
func (t *RedisTracker) IsOnline(ctx context.Context, userID int64) (bool, error) {
	n, err := t.client.Exists(ctx, t.key(userID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// NoopTracker disables the fast path; lookups report offline and callers
// fall back to the durable flag.
type NoopTracker struct{}

func (NoopTracker) SetOnline(context.Context, int64) error  { return nil }
func (NoopTracker) SetOffline(context.Context, int64) error { return nil }
func (NoopTracker) IsOnline(context.Context, int64) (bool, error) {
	return false, nil
}
