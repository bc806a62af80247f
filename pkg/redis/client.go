package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrNil is returned by the getters when the key or field does not exist
var ErrNil = redis.Nil

type Client struct {
	rdb        *redis.Client
	KeyBuilder *KeyBuilder
	log        *zap.Logger
}

// Cache key constants
const (
	// Statistics snapshots, one hash field per time range
	KeyUserStats = "user_stats:%s"
	// Bumped on every invalidation so in-flight builds can tell they are stale
	KeyUserStatsGen = "user_stats_gen:%s"

	// Activity log entries, keyed by user and unix milliseconds
	KeyActivity     = "activity:%s:%d"
	KeyActivityScan = "activity:%s:*"
)

// TTL constants
const (
	TTLUserStats    = time.Hour
	TTLUserStatsGen = 24 * time.Hour
	TTLActivity     = 30 * 24 * time.Hour
)

// hsetIfGeneration writes KEYS[2][ARGV[2]] only while KEYS[1] still holds
// ARGV[1]; a missing counter reads as 0
var hsetIfGeneration = redis.NewScript(`
local current = redis.call('GET', KEYS[1]) or '0'
if current ~= ARGV[1] then
	return 0
end
redis.call('HSET', KEYS[2], ARGV[2], ARGV[3])
redis.call('PEXPIRE', KEYS[2], ARGV[4])
return 1
`)

// NewClient creates a new Redis client and verifies the connection
func NewClient(redisURL string, keyPrefix string, log *zap.Logger) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opts.PoolSize = 20
	opts.MinIdleConns = 2
	opts.MaxRetries = 3
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	if log == nil {
		log = zap.NewNop()
	}

	return &Client{rdb: rdb, KeyBuilder: NewKeyBuilder(keyPrefix), log: log}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	if c.rdb != nil {
		return c.rdb.Close()
	}
	return nil
}

// Get retrieves a value from Redis. A missing key returns ErrNil.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	start := time.Now()
	val, err := c.rdb.Get(ctx, key).Result()
	c.logResult("redis_get", key, time.Since(start), err)
	return val, err
}

// Set stores a value in Redis with TTL
func (c *Client) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	start := time.Now()
	err := c.rdb.Set(ctx, key, value, ttl).Err()
	c.logResult("redis_set", key, time.Since(start), err)
	return err
}

// HGet reads one hash field. A missing key or field returns ErrNil.
func (c *Client) HGet(ctx context.Context, key, field string) (string, error) {
	start := time.Now()
	val, err := c.rdb.HGet(ctx, key, field).Result()
	c.logResult("redis_hget", key, time.Since(start), err)
	return val, err
}

// Generation reads a counter written by BumpGeneration. A missing key is
// generation 0.
func (c *Client) Generation(ctx context.Context, key string) (int64, error) {
	start := time.Now()
	gen, err := c.rdb.Get(ctx, key).Int64()
	c.logResult("redis_get_gen", key, time.Since(start), err)
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// BumpGeneration increments the counter at genKey and deletes keys in a
// single transaction
func (c *Client) BumpGeneration(ctx context.Context, genKey string, ttl time.Duration, keys ...string) error {
	start := time.Now()
	pipe := c.rdb.TxPipeline()
	pipe.Incr(ctx, genKey)
	pipe.Expire(ctx, genKey, ttl)
	if len(keys) > 0 {
		pipe.Del(ctx, keys...)
	}
	_, err := pipe.Exec(ctx)
	c.logResult("redis_bump_gen", genKey, time.Since(start), err)
	return err
}

// HSetIfGeneration writes one hash field and refreshes the TTL of the whole
// hash, but only while genKey still holds gen. It reports whether the write
// happened.
func (c *Client) HSetIfGeneration(ctx context.Context, genKey string, gen int64, key, field string, value interface{}, ttl time.Duration) (bool, error) {
	start := time.Now()
	written, err := hsetIfGeneration.Run(ctx, c.rdb,
		[]string{genKey, key},
		strconv.FormatInt(gen, 10), field, value, ttl.Milliseconds(),
	).Int()
	c.logResult("redis_hset_gen", key, time.Since(start), err)
	if err != nil {
		return false, err
	}
	return written == 1, nil
}

// TTL returns the remaining time to live of key
func (c *Client) TTL(ctx context.Context, key string) (time.Duration, error) {
	return c.rdb.TTL(ctx, key).Result()
}

// ScanKeys walks the keyspace with SCAN and returns every key matching
// pattern. Unlike KEYS it does not block the server on large keyspaces.
func (c *Client) ScanKeys(ctx context.Context, pattern string) ([]string, error) {
	start := time.Now()
	var (
		keys   []string
		cursor uint64
	)
	for {
		batch, next, err := c.rdb.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			c.logResult("redis_scan", pattern, time.Since(start), err)
			return nil, err
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	c.log.Debug("redis_scan",
		zap.String("key_prefix", prefixForLog(pattern)),
		zap.Int("keys", len(keys)),
		zap.Duration("duration", time.Since(start)))
	return keys, nil
}

// MGet reads several keys at once; missing keys come back as nil entries
func (c *Client) MGet(ctx context.Context, keys ...string) ([]interface{}, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	start := time.Now()
	vals, err := c.rdb.MGet(ctx, keys...).Result()
	c.log.Debug("redis_mget",
		zap.Int("keys", len(keys)),
		zap.Duration("duration", time.Since(start)),
		zap.Error(err))
	return vals, err
}

// Health checks the Redis connection
func (c *Client) Health(ctx context.Context) error {
	start := time.Now()
	err := c.rdb.Ping(ctx).Err()
	dur := time.Since(start)
	if err != nil {
		c.log.Info("redis_ping",
			zap.Duration("duration", dur),
			zap.Error(err))
	} else {
		c.log.Debug("redis_ping", zap.Duration("duration", dur))
	}
	return err
}

func (c *Client) logResult(op, key string, dur time.Duration, err error) {
	if err != nil && !errors.Is(err, redis.Nil) {
		c.log.Info(op,
			zap.String("key_prefix", prefixForLog(key)),
			zap.Duration("duration", dur),
			zap.Error(err))
		return
	}
	c.log.Debug(op,
		zap.String("key_prefix", prefixForLog(key)),
		zap.Duration("duration", dur))
}

// prefixForLog returns a safe prefix of a key to avoid logging user IDs
func prefixForLog(key string) string {
	if len(key) <= 24 {
		return key
	}
	return key[:24] + "…"
}
