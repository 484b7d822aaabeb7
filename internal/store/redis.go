// redis.go -- go-redis client for the shared session cache.
//
// Every call round-trips to Redis; there is no local layer on top, so OTP
// challenges, allow-list entries and refresh records look the same from
// every server instance. Operations are atomic per key only.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore wraps a Redis client for session cache operations.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisClient parses redisURL, connects, and pings to verify connectivity.
// The returned client is shared by the cache store and the mail queue.
// Call once at startup from main.go and Close it on shutdown.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}

	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return rdb, nil
}

// NewRedisStore returns a cache store on top of an already-connected client.
// Safe for concurrent use.
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

// Close shuts down the underlying client. Only call it when this store owns the client.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

// CheckHealth pings Redis.
func (s *RedisStore) CheckHealth(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Get returns the string value stored at key.
// Returns ErrCacheMiss if the key does not exist (or has expired).
func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	val, err := s.rdb.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrCacheMiss
		}
		return "", fmt.Errorf("getting %s: %w", key, err)
	}
	return val, nil
}

// Set stores value at key with the given TTL, replacing any previous value.
func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		return ErrInvalidTTL
	}
	if err := s.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("setting %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Returns true if a key was actually removed;
// deleting a missing key is not an error.
func (s *RedisStore) Delete(ctx context.Context, key string) (bool, error) {
	n, err := s.rdb.Del(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("deleting %s: %w", key, err)
	}
	return n > 0, nil
}

// Exists reports whether key is present.
func (s *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("checking %s: %w", key, err)
	}
	return n > 0, nil
}

// HashGet returns a single field of the hash at key.
// Returns ErrCacheMiss if either the key or the field is missing.
func (s *RedisStore) HashGet(ctx context.Context, key, field string) (string, error) {
	val, err := s.rdb.HGet(ctx, key, field).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrCacheMiss
		}
		return "", fmt.Errorf("getting %s[%s]: %w", key, field, err)
	}
	return val, nil
}

// HashSet replaces the hash at key with fields and applies ttl.
// DEL + HSET + EXPIRE run in one MULTI/EXEC so the hash is never left without an expiry
// or with stale fields from a previous write.
func (s *RedisStore) HashSet(ctx context.Context, key string, fields map[string]string, ttl time.Duration) error {
	if ttl <= 0 {
		return ErrInvalidTTL
	}
	values := make(map[string]any, len(fields))
	for k, v := range fields {
		values[k] = v
	}

	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, values)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("setting hash %s: %w", key, err)
	}
	return nil
}

// compareAndDeleteScript deletes KEYS[1] only if its value equals ARGV[1].
// Returns 1 if deleted, 0 otherwise (missing key or different value).
var compareAndDeleteScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`)

// CompareAndDelete atomically deletes key iff it currently holds expected.
// Two concurrent callers with the same expected value cannot both get true.
func (s *RedisStore) CompareAndDelete(ctx context.Context, key, expected string) (bool, error) {
	n, err := compareAndDeleteScript.Run(ctx, s.rdb, []string{key}, expected).Int64()
	if err != nil {
		return false, fmt.Errorf("compare-and-delete %s: %w", key, err)
	}
	return n == 1, nil
}

// TTL returns the remaining time to live of key.
// Returns ErrCacheMiss if the key does not exist.
func (s *RedisStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	d, err := s.rdb.TTL(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("reading ttl of %s: %w", key, err)
	}
	// go-redis reports -2 (missing) and -1 (no expiry) as raw negative durations.
	if d == -2 {
		return 0, ErrCacheMiss
	}
	return d, nil
}
