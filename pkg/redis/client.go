package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrNil is returned by Get when the key does not exist
var ErrNil = redis.Nil

type Client struct {
	rdb        *redis.Client
	KeyBuilder *KeyBuilder
	log        *zap.Logger
}

// Cache key patterns
const (
	KeyTally     = "agenda:%s:tally"
	KeyVoted     = "agenda:%s:voted:%s" // agenda:{agendaID}:voted:{userID}
	KeyStartLock = "agenda:%s:start_lock"
)

// TTL constants
const (
	TTLTally         = 10 * time.Second // counters move while a session is open
	TTLFinishedTally = 24 * time.Hour   // finished tallies never change
	TTLVoted         = 24 * time.Hour
	TTLStartLock     = 5 * time.Minute
)

// NewClient creates a new Redis client
func NewClient(redisURL string, environment string, log *zap.Logger) (*Client, error) {
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

	return &Client{rdb: rdb, KeyBuilder: NewKeyBuilder(environment), log: log}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	if c.rdb != nil {
		return c.rdb.Close()
	}
	return nil
}

// Get retrieves a value from Redis. A missing key yields ErrNil.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	start := time.Now()
	val, err := c.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		c.observe("get", key, start, nil, zap.Bool("hit", false))
		return "", err
	}
	c.observe("get", key, start, err, zap.Bool("hit", err == nil))
	return val, err
}

// Set stores a value in Redis with TTL
func (c *Client) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	start := time.Now()
	err := c.rdb.Set(ctx, key, value, ttl).Err()
	c.observe("set", key, start, err, zap.Duration("ttl", ttl))
	return err
}

// SetNX sets a value only if it doesn't exist
func (c *Client) SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	start := time.Now()
	ok, err := c.rdb.SetNX(ctx, key, value, ttl).Result()
	c.observe("setnx", key, start, err, zap.Bool("acquired", ok))
	return ok, err
}

// Delete removes keys from Redis
func (c *Client) Delete(ctx context.Context, keys ...string) error {
	start := time.Now()
	err := c.rdb.Del(ctx, keys...).Err()
	c.observe("del", firstKey(keys), start, err, zap.Int("keys", len(keys)))
	return err
}

// Exists counts how many of keys exist
func (c *Client) Exists(ctx context.Context, keys ...string) (int64, error) {
	start := time.Now()
	n, err := c.rdb.Exists(ctx, keys...).Result()
	c.observe("exists", firstKey(keys), start, err, zap.Int64("found", n))
	return n, err
}

// Health checks the Redis connection
func (c *Client) Health(ctx context.Context) error {
	start := time.Now()
	err := c.rdb.Ping(ctx).Err()
	c.observe("ping", "", start, err)
	return err
}

// observe logs one command. Failures log at warn since callers fail open.
func (c *Client) observe(op, key string, start time.Time, err error, fields ...zap.Field) {
	fields = append(fields,
		zap.String("op", op),
		zap.Duration("duration", time.Since(start)))
	if key != "" {
		fields = append(fields, zap.String("key_prefix", prefixForLog(key)))
	}
	if err != nil {
		c.log.Warn("redis command failed", append(fields, zap.Error(err))...)
		return
	}
	c.log.Debug("redis command", fields...)
}

func firstKey(keys []string) string {
	if len(keys) == 0 {
		return ""
	}
	return keys[0]
}

// prefixForLog returns a safe prefix of a key to avoid logging user ids
func prefixForLog(key string) string {
	if len(key) <= 24 {
		return key
	}
	return key[:24] + "..."
}
