// Package redis provides a Redis-backed fetch cache.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/papercomputeco/tracks/pkg/fetchcache"
	"github.com/papercomputeco/tracks/pkg/storage"
)

// DefaultPrefix namespaces fetch cache keys.
const DefaultPrefix = "tracks:fetch:"

// Config holds configuration for the Redis fetch cache.
type Config struct {
	// Address is the Redis host:port.
	Address string

	// Password for Redis AUTH.
	Password string

	// Database number.
	Database int

	// Prefix is prepended to every key. Defaults to DefaultPrefix.
	Prefix string

	// Timeout bounds each operation. Defaults to 5 seconds.
	Timeout time.Duration
}

// Cache implements fetchcache.Cache in Redis. Entries never expire.
type Cache struct {
	client  *redis.Client
	prefix  string
	timeout time.Duration
}

var _ fetchcache.Cache = (*Cache)(nil)

// New connects to Redis and verifies the connection.
func New(ctx context.Context, cfg Config) (*Cache, error) {
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.Database,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Cache{client: client, prefix: cfg.Prefix, timeout: cfg.Timeout}, nil
}

func (c *Cache) key(k string) string {
	return c.prefix + k
}

func (c *Cache) Get(ctx context.Context, key string) (*fetchcache.Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	data, err := c.client.Get(ctx, c.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, storage.NotFoundError{Kind: storage.KindFetchCache, Key: key}
		}
		return nil, fmt.Errorf("failed to load fetch cache entry from Redis: %w", err)
	}
	return fetchcache.Decode(data)
}

func (c *Cache) Put(ctx context.Context, key string, e *fetchcache.Entry) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	data, err := fetchcache.Encode(e)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, c.key(key), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save fetch cache entry to Redis: %w", err)
	}
	return nil
}

// Close closes the Redis client.
func (c *Cache) Close() error {
	return c.client.Close()
}
