package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"faucet/pkg/platform/sentinel"
)

// compareAndSwapScript replaces KEYS[1] with ARGV[2] when the current value
// equals ARGV[1]. ARGV[4] == "1" means the key must be absent. ARGV[3] is
// the TTL in milliseconds (0 = none).
var compareAndSwapScript = redis.NewScript(`
local current = redis.call("GET", KEYS[1])
if ARGV[4] == "1" then
	if current then return 0 end
elseif current ~= ARGV[1] then
	return 0
end
local ttl = tonumber(ARGV[3])
if ttl > 0 then
	redis.call("SET", KEYS[1], ARGV[2], "PX", ttl)
else
	redis.call("SET", KEYS[1], ARGV[2])
end
return 1
`)

var compareAndDeleteScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisStore implements Store on a Redis server. Conditional writes run as
// Lua scripts so they are atomic on the server.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedis wraps an existing go-redis client.
func NewRedis(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return val, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) SetIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx %s: %w", key, err)
	}
	return ok, nil
}

func (s *RedisStore) CompareAndSwap(ctx context.Context, key string, prev, next []byte, ttl time.Duration) (bool, error) {
	mustBeAbsent := "0"
	if prev == nil {
		mustBeAbsent = "1"
	}
	res, err := compareAndSwapScript.Run(ctx, s.client, []string{key},
		prev, next, ttl.Milliseconds(), mustBeAbsent,
	).Int()
	if err != nil {
		return false, fmt.Errorf("redis compare-and-swap %s: %w", key, err)
	}
	return res == 1, nil
}

func (s *RedisStore) CompareAndDelete(ctx context.Context, key string, prev []byte) (bool, error) {
	res, err := compareAndDeleteScript.Run(ctx, s.client, []string{key}, prev).Int()
	if err != nil {
		return false, fmt.Errorf("redis compare-and-delete %s: %w", key, err)
	}
	return res == 1, nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}
