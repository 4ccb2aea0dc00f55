package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Jitheswar/ruralAi/prescription-worker/internal/parser"
)

const cacheKeyPrefix = "prescription:result:"

// ResultCache keeps parsed results in Redis keyed by image content, so a
// re-uploaded image is answered without running OCR again.
type ResultCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewResultCache connects to Redis. A zero ttl disables writes.
func NewResultCache(redisURL string, ttl time.Duration) (*ResultCache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &ResultCache{client: client, ttl: ttl}, nil
}

// CacheKey is the cache key for an image: its SHA-256 hex digest, prefixed.
func CacheKey(image []byte) string {
	return cacheKeyPrefix + ImageDigest(image)
}

// ImageDigest is the hex SHA-256 of the image bytes
func ImageDigest(image []byte) string {
	sum := sha256.Sum256(image)
	return hex.EncodeToString(sum[:])
}

// Get returns the cached result, or false when there is none.
func (c *ResultCache) Get(ctx context.Context, key string) (*parser.Result, bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache get %s: %w", key, err)
	}

	var result parser.Result
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, false, fmt.Errorf("cache decode %s: %w", key, err)
	}
	return &result, true, nil
}

// Set stores a result for the configured TTL
func (c *ResultCache) Set(ctx context.Context, key string, result *parser.Result) error {
	if c.ttl <= 0 || result == nil {
		return nil
	}
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("cache encode %s: %w", key, err)
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}

// Close closes the Redis connection
func (c *ResultCache) Close() error {
	return c.client.Close()
}
