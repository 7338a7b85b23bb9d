package twofactor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// consumeScript deletes KEYS[1] only while it still holds ARGV[1].
var consumeScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// incrScript increments KEYS[1] and starts its expiry on first use.
var incrScript = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`)

// RedisNonceCache shares nonce state between server instances.
type RedisNonceCache struct {
	db redis.UniversalClient
}

func NewRedisNonceCache(client redis.UniversalClient) *RedisNonceCache {
	return &RedisNonceCache{db: client}
}

func (c *RedisNonceCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := c.db.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (c *RedisNonceCache) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := c.db.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get: %w", err)
	}
	return val, true, nil
}

func (c *RedisNonceCache) Consume(ctx context.Context, key, value string) (bool, error) {
	n, err := consumeScript.Run(ctx, c.db, []string{key}, value).Int64()
	if err != nil {
		return false, fmt.Errorf("redis consume: %w", err)
	}
	return n == 1, nil
}

func (c *RedisNonceCache) Delete(ctx context.Context, key string) error {
	if err := c.db.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (c *RedisNonceCache) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	n, err := incrScript.Run(ctx, c.db, []string{key}, ttl.Milliseconds()).Int64()
	if err != nil {
		return 0, fmt.Errorf("redis incr: %w", err)
	}
	return n, nil
}

// ConnectRedis parses url and pings the server, retrying until ctx expires.
func ConnectRedis(ctx context.Context, url string, attempts int, interval time.Duration) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for range attempts {
		client := redis.NewClient(opts)
		if lastErr = client.Ping(ctx).Err(); lastErr == nil {
			return client, nil
		}
		_ = client.Close()

		select {
		case <-ctx.Done():
			return nil, errors.Join(lastErr, ctx.Err())
		case <-time.After(interval):
		}
	}
	return nil, fmt.Errorf("redis not ready: %w", lastErr)
}
