package lock

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/invoicedesk/internal/config"
)

const lockReleaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

const (
	defaultLockTTL   = 30 * time.Second
	defaultRetryWait = 25 * time.Millisecond
)

// RedisLocker is a single-instance Redis lock: SET NX with a random
// token, released only by the holder of that token.
type RedisLocker struct {
	client    redis.UniversalClient
	script    *redis.Script
	prefix    string
	ttl       time.Duration
	retryWait time.Duration
}

func NewRedisClient(cfg config.Config) *redis.Client {
	addr := strings.TrimSpace(cfg.Redis.Addr)
	addr = strings.TrimPrefix(strings.TrimPrefix(addr, "redis://"), "rediss://")
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(cfg.Redis.Password),
		DB:       cfg.Redis.DB,
	})
}

func NewRedisLocker(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisLocker {
	if client == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLocker{
		client:    client,
		script:    redis.NewScript(lockReleaseScript),
		prefix:    strings.TrimSuffix(prefix, ":"),
		ttl:       ttl,
		retryWait: defaultRetryWait,
	}
}

func (l *RedisLocker) TryLock(ctx context.Context, key string) (string, bool, error) {
	if l == nil || l.client == nil {
		return "", false, errors.New("lock client not configured")
	}
	if key == "" {
		return "", false, errors.New("lock key is empty")
	}

	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key(key), token, l.ttl).Result()
	if err != nil {
		return "", false, err
	}
	return token, ok, nil
}

func (l *RedisLocker) Unlock(ctx context.Context, key, token string) error {
	if l == nil || l.client == nil || key == "" || token == "" {
		return nil
	}
	return l.script.Run(ctx, l.client, []string{l.key(key)}, token).Err()
}

// Acquire polls TryLock until it succeeds or ctx ends.
func (l *RedisLocker) Acquire(ctx context.Context, key string) (Release, error) {
	ticker := time.NewTicker(l.retryWait)
	defer ticker.Stop()

	for {
		token, ok, err := l.TryLock(ctx, key)
		if err != nil {
			if ctx.Err() != nil {
				return nil, errors.Join(ErrNotAcquired, err)
			}
			return nil, err
		}
		if ok {
			return func(releaseCtx context.Context) error {
				return l.Unlock(releaseCtx, key, token)
			}, nil
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil, errors.Join(ErrNotAcquired, ctx.Err())
		}
	}
}

func (l *RedisLocker) key(key string) string {
	if l.prefix == "" {
		return "lock:" + key
	}
	return l.prefix + ":lock:" + key
}
