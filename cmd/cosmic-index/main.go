package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/alderon07/cosmic-index-sub001/internal/api"
	"github.com/alderon07/cosmic-index-sub001/internal/ledger"
	"github.com/alderon07/cosmic-index-sub001/internal/nasa"
	"github.com/alderon07/cosmic-index-sub001/pkg/cache"
	"github.com/alderon07/cosmic-index-sub001/pkg/logging"
	"github.com/alderon07/cosmic-index-sub001/pkg/ratelimit"
)

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	logger := logging.Setup(logging.Config{
		Level:  logging.LogLevel(getEnv("LOG_LEVEL", "info")),
		Pretty: os.Getenv("LOG_PRETTY") == "true",
	})

	var store *cache.Store
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: os.Getenv("REDIS_PASSWORD"),
		})
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := client.Ping(pingCtx).Err(); err != nil {
			logger.Warn().Err(err).Str("addr", addr).Msg("Redis unreachable, serving without page cache")
		} else {
			store = cache.NewStore(client)
			logger.Info().Str("addr", addr).Msg("Page cache enabled")
		}
		cancel()
	}

	book, err := ledger.Open(getEnv("LEDGER_DSN", "file:cosmic-index.db"), logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to open webhook ledger")
	}
	defer book.Close()

	fireballs := nasa.NewFireball(getEnv("FIREBALL_API_URL", nasa.DefaultFireballURL), logger)

	server := api.NewServer(api.Config{
		Limiter: ratelimit.New(ratelimit.DefaultBudgets()),
		Cache:   store,
		Webhook: ledger.NewWebhookHandler(book, logger),
	})
	server.Mount(api.Endpoint{
		Path:           "/api/fireballs",
		Adapter:        fireballs,
		BrowseResource: cache.ResourceFireballBrowse,
		DetailResource: cache.ResourceFireballDetail,
		Sorts:          []string{"date", "energy", "impact-e"},
		DefaultSort:    "date",
		DefaultOrder:   "desc",
		Filters:        []string{"date-min", "date-max", "energy-min", "impact-min"},
		DefaultLimit:   24,
		MaxLimit:       100,
	})
	server.MountSitemap(api.SitemapEndpoint{
		Path:           "/api/sitemap/fireballs",
		Source:         "fireballs",
		Fetcher:        fireballs,
		IDField:        "date",
		LocationPrefix: "/fireballs/",
	})

	addr := getEnv("LISTEN_ADDR", ":8080")
	srv := &http.Server{
		Addr:              addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", addr).Msg("Listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("Server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Graceful shutdown failed")
	}
}
