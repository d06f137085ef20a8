//go:build integration

// Package integration exercises the full request pipeline against a real
// Redis container and a mock upstream feed.
package integration

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/alderon07/cosmic-index-sub001/internal/api"
	"github.com/alderon07/cosmic-index-sub001/internal/ledger"
	"github.com/alderon07/cosmic-index-sub001/internal/nasa"
	"github.com/alderon07/cosmic-index-sub001/internal/testutil"
	"github.com/alderon07/cosmic-index-sub001/pkg/cache"
	"github.com/alderon07/cosmic-index-sub001/pkg/logging"
	"github.com/alderon07/cosmic-index-sub001/pkg/ratelimit"
)

func setupRedis(t *testing.T) *redis.Client {
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
	require.NoError(t, err, "Failed to start Redis container")
	t.Cleanup(func() { redisContainer.Terminate(ctx) })

	endpoint, err := redisContainer.Endpoint(ctx, "")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: endpoint})
	require.NoError(t, client.Ping(ctx).Err())
	t.Cleanup(func() { client.Close() })

	return client
}

func setupPipeline(t *testing.T) (*testutil.MockUpstream, http.Handler) {
	t.Helper()

	mock := testutil.NewMockUpstream()
	t.Cleanup(mock.Close)

	logger := logging.NewLogger("integration-test")

	book, err := ledger.Open("file:"+filepath.Join(t.TempDir(), "ledger.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { book.Close() })

	fireballs := nasa.NewFireball(mock.URL(), logger)

	server := api.NewServer(api.Config{
		Limiter: ratelimit.New(map[ratelimit.Class]ratelimit.Budget{
			ratelimit.ClassDetail:  {Limit: 1000, Window: time.Minute},
			ratelimit.ClassBrowse:  {Limit: 1000, Window: time.Minute},
			ratelimit.ClassSitemap: {Limit: 1000, Window: time.Minute},
		}),
		Cache:   cache.NewStore(setupRedis(t)),
		Webhook: ledger.NewWebhookHandler(book, logger),
	})
	server.Mount(api.Endpoint{
		Path:           "/api/fireballs",
		Adapter:        fireballs,
		BrowseResource: cache.ResourceFireballBrowse,
		DetailResource: cache.ResourceFireballDetail,
		Sorts:          []string{"date", "energy"},
		DefaultSort:    "date",
		DefaultOrder:   "desc",
		Filters:        []string{"date-min", "energy-min"},
		DefaultLimit:   24,
		MaxLimit:       100,
	})

	return mock, server.Handler()
}

func get(handler http.Handler, url string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, url, nil)
	req.RemoteAddr = "203.0.113.9:1000"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

type listResponse struct {
	Data       []map[string]any `json:"data"`
	Pagination struct {
		Mode       string `json:"mode"`
		HasMore    bool   `json:"hasMore"`
		NextCursor string `json:"nextCursor"`
		Total      int    `json:"total"`
	} `json:"pagination"`
}

func TestPipeline_CacheRoundTrip(t *testing.T) {
	mock, handler := setupPipeline(t)

	rec := get(handler, "/api/fireballs?limit=2")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, mock.RequestCount)

	var first listResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &first))
	assert.Len(t, first.Data, 2)
	assert.Equal(t, 3, first.Pagination.Total)
	assert.True(t, first.Pagination.HasMore)

	// Identical request again: served from Redis, upstream untouched.
	rec = get(handler, "/api/fireballs?limit=2")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, mock.RequestCount)
	assert.Contains(t, rec.Header().Get("Cache-Control"), "public, max-age=")

	var cached listResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cached))
	assert.Equal(t, first.Data, cached.Data)
}

func TestPipeline_CursorChain(t *testing.T) {
	_, handler := setupPipeline(t)

	rec := get(handler, "/api/fireballs?limit=2")
	require.Equal(t, http.StatusOK, rec.Code)

	var first listResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &first))
	require.NotEmpty(t, first.Pagination.NextCursor)

	rec = get(handler, "/api/fireballs?limit=2&cursor="+first.Pagination.NextCursor)
	require.Equal(t, http.StatusOK, rec.Code)

	var second listResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &second))
	assert.Equal(t, "cursor", second.Pagination.Mode)
	assert.Len(t, second.Data, 1)
	assert.False(t, second.Pagination.HasMore)

	// No overlap between the two pages.
	for _, item := range second.Data {
		assert.NotContains(t, first.Data, item)
	}
}

func TestPipeline_WebhookIdempotency(t *testing.T) {
	_, handler := setupPipeline(t)

	payload := []byte(`{"id":"evt_42","type":"subscription.updated","data":{"user_id":"u1","tier":"pro"}}`)

	post := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/billing", bytes.NewReader(payload))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	rec := post()
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), `"duplicate":true`)

	// Redelivery acks without reapplying.
	rec = post()
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"duplicate":true`)
}
