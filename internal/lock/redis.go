// Package lock provides a Redis-backed guard so that several jobalert
// processes sharing one database never check the same alert at once.
package lock

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultTTL bounds how long a crashed holder can block other processes.
const DefaultTTL = 15 * time.Minute

const releaseTimeout = 5 * time.Second

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
else
	return 0
end`)

// RedisLocker implements SET NX leases with owner-checked release.
type RedisLocker struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisLocker returns a locker on rdb. A non-positive ttl uses DefaultTTL.
func NewRedisLocker(rdb *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisLocker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisLocker{rdb: rdb, ttl: ttl, logger: logger}
}

// Dial connects to addr and verifies the server answers.
func Dial(ctx context.Context, addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", addr, err)
	}
	return rdb, nil
}

// Acquire tries to take key. When another holder owns it, acquired is false
// and no error is returned.
func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), bool, error) {
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquiring %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		// The caller's context may already be cancelled by the time we release.
		rctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
		defer cancel()
		n, err := releaseScript.Run(rctx, l.rdb, []string{key}, token).Int()
		if err != nil {
			l.logger.Warn("releasing lock failed", "key", key, "error", err)
			return
		}
		if n == 0 {
			l.logger.Warn("lock expired before release", "key", key, "ttl", l.ttl)
		}
	}
	return release, true, nil
}
