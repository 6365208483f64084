package locks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "seald:lock:"

var redisUnlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker holds a per-key lease in redis so concurrent seald
// instances serialize seals of the same draft.
type RedisLocker struct {
	client redis.UniversalClient
	retry  time.Duration
}

const redisPingTimeout = 2 * time.Second

// NewRedisLocker connects and pings redis. An unreachable server is an
// error so callers can fall back to an in-process lock.
func NewRedisLocker(ctx context.Context, addr, password string, db int) (*RedisLocker, error) {
	if addr == "" {
		return nil, errors.New("redis addr is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return NewRedisLockerWithClient(client), nil
}

func NewRedisLockerWithClient(client redis.UniversalClient) *RedisLocker {
	return &RedisLocker{client: client, retry: 50 * time.Millisecond}
}

// Lock retries SET NX until it wins or ctx ends. The lease expires after
// ttl so a crashed holder cannot wedge the key.
func (r *RedisLocker) Lock(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	token := uuid.NewString()
	full := redisKeyPrefix + key
	for {
		ok, err := r.client.SetNX(ctx, full, token, ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			return func() {
				ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				_ = redisUnlockScript.Run(ctx, r.client, []string{full}, token).Err()
			}, nil
		}
		timer := time.NewTimer(r.retry)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		}
	}
}

func (r *RedisLocker) Close() error {
	return r.client.Close()
}
