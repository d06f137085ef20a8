package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/alderon07/cosmic-index-sub001/pkg/cache"
	"github.com/alderon07/cosmic-index-sub001/pkg/logging"
	"github.com/alderon07/cosmic-index-sub001/pkg/ratelimit"
)

// Server owns the HTTP surface: dataset endpoints, sitemap crawls, the
// billing webhook, health and metrics.
type Server struct {
	limiter *ratelimit.Limiter
	cache   *cache.Store
	logger  zerolog.Logger
	router  chi.Router
}

// Config wires the server's collaborators. Cache may be nil, in which case
// every request goes to the upstream adapter.
type Config struct {
	Limiter *ratelimit.Limiter
	Cache   *cache.Store

	// Webhook, when set, is mounted at POST /webhooks/billing.
	Webhook http.Handler
}

// NewServer builds the router with all shared middleware attached. Dataset
// endpoints are added with Mount and MountSitemap before serving.
func NewServer(cfg Config) *Server {
	s := &Server{
		limiter: cfg.Limiter,
		cache:   cfg.Cache,
		logger:  logging.NewLogger("api"),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	if cfg.Webhook != nil {
		r.Method(http.MethodPost, "/webhooks/billing", cfg.Webhook)
	}

	s.router = r
	return s
}

// Mount registers the browse and detail routes for a dataset.
func (s *Server) Mount(ep Endpoint) {
	s.router.Get(ep.Path, s.listHandler(ep))
	s.router.Get(ep.Path+"/{id}", s.detailHandler(ep))
}

// MountSitemap registers a sitemap crawl route.
func (s *Server) MountSitemap(sm SitemapEndpoint) {
	s.router.Get(sm.Path, s.sitemapHandler(sm))
}

// Handler returns the assembled HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}
