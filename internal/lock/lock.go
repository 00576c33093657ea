package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/go-redis/redis/v8"
)

// OutreachRun serializes scheduler runs across the cron endpoint, the worker
// and the CLI.
const OutreachRun = "eatauthentically:lock:outreach-run"

type Locker interface {
	// Acquire returns acquired=false when another holder owns key.
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), acquired bool, err error)
}

// Do runs fn while holding key. ran is false when the lock was busy.
func Do(ctx context.Context, l Locker, key string, ttl time.Duration, fn func(context.Context) error) (ran bool, err error) {
	release, ok, err := l.Acquire(ctx, key, ttl)
	if err != nil || !ok {
		return false, err
	}
	defer release()
	return true, fn(ctx)
}

// NopLocker always acquires. Used when no Redis is configured.
type NopLocker struct{}

func (NopLocker) Acquire(context.Context, string, time.Duration) (func(), bool, error) {
	return func() {}, true, nil
}

// releaseScript deletes the key only if it still holds our value.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
end
return 0`)

type RedisLocker struct {
	Client *redis.Client
}

func NewRedisLocker(redisURL string) (*RedisLocker, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &RedisLocker{Client: redis.NewClient(opts)}, nil
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return nil, false, err
	}
	val := hex.EncodeToString(b)

	ok, err := l.Client.SetNX(ctx, key, val, ttl).Result()
	if err != nil || !ok {
		return nil, false, err
	}

	release := func() {
		// The caller's ctx may be done by now.
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = releaseScript.Run(ctx, l.Client, []string{key}, val).Err()
	}
	return release, true, nil
}

func (l *RedisLocker) Close() error {
	return l.Client.Close()
}
