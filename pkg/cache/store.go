package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrCacheMiss indicates the requested key was not found in cache.
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the cache entry is invalid or corrupted.
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// Store is the Redis-backed page cache. A nil *Store is a valid no-op cache:
// Get always misses and Set discards, so the pipeline runs unchanged when no
// Redis is configured.
type Store struct {
	redis *redis.Client
}

// NewStore creates a page cache over the given Redis client.
func NewStore(redisClient *redis.Client) *Store {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &Store{redis: redisClient}
}

// Get retrieves a cached page by key.
// Returns ErrCacheMiss if the key doesn't exist or the entry has expired.
func (s *Store) Get(ctx context.Context, key Key) (*Entry, error) {
	if s == nil {
		return nil, ErrCacheMiss
	}

	data, err := s.redis.Get(ctx, key.String()).Bytes()
	if err != nil {
		if err == redis.Nil {
			pageCacheMisses.Inc()
			return nil, ErrCacheMiss
		}
		pageCacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		pageCacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	// Redis expiry normally collects stale entries first, but the stored TTL
	// is authoritative.
	if entry.IsExpired() {
		_ = s.Delete(ctx, key)
		pageCacheMisses.Inc()
		return nil, ErrCacheMiss
	}

	pageCacheHits.Inc()
	return &entry, nil
}

// Set stores a rendered page with the given lifetime.
func (s *Store) Set(ctx context.Context, key Key, body []byte, statusCode int, ttl time.Duration) error {
	if s == nil || ttl <= 0 {
		return nil
	}

	entry := Entry{
		Body:       body,
		StatusCode: statusCode,
		Expires:    time.Now().Add(ttl),
		CachedAt:   time.Now(),
	}

	data, err := json.Marshal(entry)
	if err != nil {
		pageCacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	if err := s.redis.Set(ctx, key.String(), data, ttl).Err(); err != nil {
		pageCacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	return nil
}

// Delete removes a cached page.
func (s *Store) Delete(ctx context.Context, key Key) error {
	if s == nil {
		return nil
	}
	if err := s.redis.Del(ctx, key.String()).Err(); err != nil {
		pageCacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
