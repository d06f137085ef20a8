//go:build integration

package cache

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis starts a Redis container and returns a client.
func setupRedis(t *testing.T) (*redis.Client, func()) {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	endpoint, err := redisContainer.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("Failed to get Redis endpoint: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: endpoint})

	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("Failed to connect to Redis: %v", err)
	}

	cleanup := func() {
		client.Close()
		redisContainer.Terminate(ctx)
	}

	return client, cleanup
}

func TestStore_Integration_SetGet(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	store := NewStore(redisClient)
	ctx := context.Background()

	key := Key{
		Endpoint: "/api/fireballs",
		Params:   url.Values{"page": {"1"}, "limit": {"24"}},
	}
	body := []byte(`{"data":[{"date":"2026-01-01"}]}`)

	if err := store.Set(ctx, key, body, 200, time.Minute); err != nil {
		t.Fatalf("Set() error: %v", err)
	}

	entry, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if string(entry.Body) != string(body) {
		t.Errorf("Body = %q, want %q", entry.Body, body)
	}
	if entry.StatusCode != 200 {
		t.Errorf("StatusCode = %d, want 200", entry.StatusCode)
	}
}

func TestStore_Integration_MissAndDelete(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	store := NewStore(redisClient)
	ctx := context.Background()

	key := Key{Endpoint: "/api/fireballs", Params: url.Values{"page": {"9"}}}

	if _, err := store.Get(ctx, key); err != ErrCacheMiss {
		t.Errorf("Get() on absent key error = %v, want ErrCacheMiss", err)
	}

	if err := store.Set(ctx, key, []byte("{}"), 200, time.Minute); err != nil {
		t.Fatalf("Set() error: %v", err)
	}
	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if _, err := store.Get(ctx, key); err != ErrCacheMiss {
		t.Errorf("Get() after delete error = %v, want ErrCacheMiss", err)
	}
}

func TestStore_Integration_TTLExpiry(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	store := NewStore(redisClient)
	ctx := context.Background()

	key := Key{Endpoint: "/api/fireballs", Params: url.Values{"page": {"1"}}}

	if err := store.Set(ctx, key, []byte("{}"), 200, time.Second); err != nil {
		t.Fatalf("Set() error: %v", err)
	}

	time.Sleep(1500 * time.Millisecond)

	if _, err := store.Get(ctx, key); err != ErrCacheMiss {
		t.Errorf("Get() after TTL expiry error = %v, want ErrCacheMiss", err)
	}
}
