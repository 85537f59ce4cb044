package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/redis/go-redis/v9"
)

const pageKeyPrefix = "clio:page:"

// RedisCache caches fetched page bodies so repeated runs do not hit the origin
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache creates a new Redis cache connection. Pages expire after ttl;
// a zero ttl keeps them until evicted.
func NewRedisCache(redisURL string, ttl time.Duration) (*RedisCache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opt)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	return &RedisCache{
		client: client,
		ttl:    ttl,
	}, nil
}

// Close closes the Redis connection
func (rc *RedisCache) Close() error {
	return rc.client.Close()
}

// Client returns the underlying Redis client
func (rc *RedisCache) Client() *redis.Client {
	return rc.client
}

// HealthCheck pings Redis to verify connection
func (rc *RedisCache) HealthCheck(ctx context.Context) error {
	return rc.client.Ping(ctx).Err()
}

// GetPage returns a cached body. A miss is not an error.
func (rc *RedisCache) GetPage(ctx context.Context, url string) (string, bool, error) {
	body, err := rc.client.Get(ctx, PageKey(url)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return body, true, nil
}

// SetPage stores a body under the cache TTL
func (rc *RedisCache) SetPage(ctx context.Context, url, body string) error {
	return rc.client.Set(ctx, PageKey(url), body, rc.ttl).Err()
}

// DeletePage evicts a cached body
func (rc *RedisCache) DeletePage(ctx context.Context, url string) error {
	return rc.client.Del(ctx, PageKey(url)).Err()
}

// PageKey hashes the URL into a fixed-length key
func PageKey(url string) string {
	return fmt.Sprintf("%s%016x", pageKeyPrefix, xxhash.Sum64String(url))
}
