package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/alderon07/cosmic-index-sub001/pkg/cache"
	"github.com/alderon07/cosmic-index-sub001/pkg/cursor"
	"github.com/alderon07/cosmic-index-sub001/pkg/pagination"
	"github.com/alderon07/cosmic-index-sub001/pkg/query"
	"github.com/alderon07/cosmic-index-sub001/pkg/ratelimit"
	"github.com/alderon07/cosmic-index-sub001/pkg/upstream"
)

// Endpoint describes one dataset served through the pipeline: a browse route
// at Path and a detail route at Path/{id}.
type Endpoint struct {
	// Path is the browse route, e.g. "/api/fireballs".
	Path string

	// Adapter is the upstream data source.
	Adapter upstream.Adapter

	// BrowseResource and DetailResource select cache TTLs.
	BrowseResource cache.Resource
	DetailResource cache.Resource

	// Sorts are the accepted sort field identifiers; the first is also
	// checked against DefaultSort.
	Sorts []string

	// DefaultSort and DefaultOrder apply when the client sends none.
	DefaultSort  string
	DefaultOrder string

	// Filters are the recognized filter parameter names. Only these
	// participate in the filter fingerprint and reach the adapter.
	Filters []string

	// DefaultLimit and MaxLimit bound the page size.
	DefaultLimit int
	MaxLimit     int
}

// SitemapEndpoint describes a crawl route that walks every page of a source.
type SitemapEndpoint struct {
	// Path is the sitemap route, e.g. "/api/sitemap/fireballs".
	Path string

	// Source names the upstream source for the crawler.
	Source string

	// Fetcher fetches single pages of the source.
	Fetcher pagination.PageFetcher

	// IDField is the item field used to build entry locations.
	IDField string

	// LocationPrefix is prepended to each ID, e.g. "/fireballs/".
	LocationPrefix string
}

// fieldError is the field-level detail attached to validation failures.
type fieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// listHandler runs the full pipeline for a browse request: admission check,
// parameter validation, pagination resolution, cache lookup, adapter call,
// failure classification, response assembly.
func (s *Server) listHandler(ep Endpoint) http.HandlerFunc {
	allowedSorts := make(map[string]bool, len(ep.Sorts))
	for _, sort := range ep.Sorts {
		allowedSorts[sort] = true
	}

	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		defer func() {
			requestDuration.WithLabelValues(ep.Path).Observe(time.Since(start).Seconds())
		}()

		rl := s.limiter.Check(clientID(r), ratelimit.ClassBrowse)
		setRateLimitHeaders(w, rl)
		if !rl.Allowed {
			s.reject429(w, r, ep.Path, rl)
			return
		}

		params := r.URL.Query()

		sort := params.Get("sort")
		if sort == "" {
			sort = ep.DefaultSort
		}
		order := params.Get("order")
		if order == "" {
			order = ep.DefaultOrder
		}

		var details []fieldError
		if !allowedSorts[sort] {
			details = append(details, fieldError{
				Field:   "sort",
				Message: fmt.Sprintf("sort must be one of %v", ep.Sorts),
			})
		}
		if order != cursor.OrderAsc && order != cursor.OrderDesc {
			details = append(details, fieldError{Field: "order", Message: "order must be asc or desc"})
		}
		if len(details) > 0 {
			requestsTotal.WithLabelValues(ep.Path, "400").Inc()
			writeError(w, r, http.StatusBadRequest, codeValidation, "invalid query parameters", details)
			return
		}

		filters := make(map[string]string, len(ep.Filters))
		for _, name := range ep.Filters {
			if v := params.Get(name); v != "" {
				filters[name] = v
			}
		}
		fingerprint := query.Fingerprint(filters)

		req, err := pagination.Resolve(pagination.RawQuery{
			Page:   params.Get("page"),
			Limit:  params.Get("limit"),
			Cursor: params.Get("cursor"),
		}, pagination.Spec{
			Sort:         sort,
			Order:        order,
			Fingerprint:  fingerprint,
			DefaultLimit: ep.DefaultLimit,
			MaxLimit:     ep.MaxLimit,
		})
		if err != nil {
			s.rejectResolve(w, r, ep.Path, err)
			return
		}

		ctx := r.Context()
		cacheKey := cache.Key{Endpoint: ep.Path, Params: params}

		if entry, cacheErr := s.cache.Get(ctx, cacheKey); cacheErr == nil {
			w.Header().Set("Cache-Control", cache.ControlHeader(entry.TTL()))
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.WriteHeader(entry.StatusCode)
			_, _ = w.Write(entry.Body)
			requestsTotal.WithLabelValues(ep.Path, strconv.Itoa(entry.StatusCode)).Inc()
			return
		} else if cacheErr != cache.ErrCacheMiss {
			s.logger.Warn().Err(cacheErr).Str("endpoint", ep.Path).Msg("Page cache error, calling upstream directly")
		}

		page, err := ep.Adapter.Browse(ctx, upstream.Query{
			Offset:  req.Offset,
			Limit:   req.Limit,
			Sort:    sort,
			Order:   order,
			Filters: filters,
		})
		if err != nil {
			s.respondClassified(w, r, ep.Path, ep.BrowseResource, req, err)
			return
		}

		meta := paginationMeta(req, page)
		body, err := json.Marshal(Envelope{Data: page.Items, Pagination: meta})
		if err != nil {
			requestsTotal.WithLabelValues(ep.Path, "500").Inc()
			writeError(w, r, http.StatusInternalServerError, codeInternal, "internal error", nil)
			return
		}

		ttl := cache.TTL(ep.BrowseResource, len(page.Items) == 0)
		w.Header().Set("Cache-Control", cache.ControlHeader(ttl))
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
		requestsTotal.WithLabelValues(ep.Path, "200").Inc()

		if err := s.cache.Set(ctx, cacheKey, body, http.StatusOK, ttl); err != nil {
			s.logger.Warn().Err(err).Str("endpoint", ep.Path).Msg("Failed to cache page")
		}
	}
}

// detailHandler serves single-object lookups.
func (s *Server) detailHandler(ep Endpoint) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := ep.Path + "/{id}"
		defer func() {
			requestDuration.WithLabelValues(path).Observe(time.Since(start).Seconds())
		}()

		rl := s.limiter.Check(clientID(r), ratelimit.ClassDetail)
		setRateLimitHeaders(w, rl)
		if !rl.Allowed {
			s.reject429(w, r, path, rl)
			return
		}

		id := chi.URLParam(r, "id")
		if id == "" {
			requestsTotal.WithLabelValues(path, "400").Inc()
			writeError(w, r, http.StatusBadRequest, codeValidation, "missing object id",
				[]fieldError{{Field: "id", Message: "id is required"}})
			return
		}

		item, err := ep.Adapter.Lookup(r.Context(), id)
		if err != nil {
			s.respondClassified(w, r, path, ep.DetailResource, pagination.Request{}, err)
			return
		}

		if item == nil {
			w.Header().Set("Cache-Control", cache.ControlHeader(cache.EmptyTTL))
			requestsTotal.WithLabelValues(path, "404").Inc()
			writeError(w, r, http.StatusNotFound, codeNotFound, "object not found", nil)
			return
		}

		w.Header().Set("Cache-Control", cache.ControlHeader(cache.TTL(ep.DetailResource, false)))
		requestsTotal.WithLabelValues(path, "200").Inc()
		writeJSON(w, http.StatusOK, Envelope{Data: item})
	}
}

// sitemapHandler crawls every page of a source and returns entry locations.
// Crawls fan out into many upstream calls, hence the sitemap class budget.
func (s *Server) sitemapHandler(sm SitemapEndpoint) http.HandlerFunc {
	crawler := pagination.NewCrawler(sm.Fetcher, pagination.DefaultCrawlConfig())

	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		defer func() {
			requestDuration.WithLabelValues(sm.Path).Observe(time.Since(start).Seconds())
		}()

		rl := s.limiter.Check(clientID(r), ratelimit.ClassSitemap)
		setRateLimitHeaders(w, rl)
		if !rl.Allowed {
			s.reject429(w, r, sm.Path, rl)
			return
		}

		pages, err := crawler.CrawlAll(r.Context(), sm.Source)
		if err != nil {
			s.respondClassified(w, r, sm.Path, cache.ResourceSitemap, pagination.Request{}, err)
			return
		}

		var locations []string
		for pageNum := 1; pageNum <= len(pages); pageNum++ {
			data, ok := pages[pageNum]
			if !ok {
				continue
			}
			var items []upstream.Item
			if err := json.Unmarshal(data, &items); err != nil {
				continue
			}
			for _, item := range items {
				if id, ok := item[sm.IDField].(string); ok && id != "" {
					locations = append(locations, sm.LocationPrefix+id)
				}
			}
		}

		w.Header().Set("Cache-Control", cache.ControlHeader(cache.TTL(cache.ResourceSitemap, len(locations) == 0)))
		requestsTotal.WithLabelValues(sm.Path, "200").Inc()
		writeJSON(w, http.StatusOK, Envelope{
			Data: locations,
			Meta: map[string]any{"pages": len(pages)},
		})
	}
}

// reject429 writes the rate-limit rejection. Rate headers are already set.
func (s *Server) reject429(w http.ResponseWriter, r *http.Request, endpoint string, rl ratelimit.Result) {
	setRetryAfter(w, rl)
	requestsTotal.WithLabelValues(endpoint, "429").Inc()
	writeError(w, r, http.StatusTooManyRequests, codeRateLimited,
		"rate limit exceeded, retry after the reset time", nil)
}

// rejectResolve maps pagination resolution failures to 400s with the
// specific conflict or cursor mismatch reason.
func (s *Server) rejectResolve(w http.ResponseWriter, r *http.Request, endpoint string, err error) {
	requestsTotal.WithLabelValues(endpoint, "400").Inc()

	if resolveErr, ok := err.(*pagination.ResolveError); ok {
		var details any
		if resolveErr.Reason != "" {
			details = map[string]string{"field": resolveErr.Field, "reason": string(resolveErr.Reason)}
		} else {
			details = []fieldError{{Field: resolveErr.Field, Message: resolveErr.Message}}
		}
		writeError(w, r, http.StatusBadRequest, resolveErr.Code, resolveErr.Message, details)
		return
	}

	writeError(w, r, http.StatusBadRequest, codeValidation, "invalid pagination parameters", nil)
}

// respondClassified turns a classified adapter failure into the client
// response. The classification, never the error text, decides the status.
func (s *Server) respondClassified(w http.ResponseWriter, r *http.Request, endpoint string, resource cache.Resource, req pagination.Request, err error) {
	kind := upstream.Classify(err)
	upstreamErrorsTotal.WithLabelValues(string(kind)).Inc()

	switch kind {
	case upstream.KindUpstreamFailure:
		s.logger.Error().Err(err).
			Str("endpoint", endpoint).
			Str("error_kind", string(kind)).
			Str("request_id", RequestID(r.Context())).
			Msg("Upstream failure")
		requestsTotal.WithLabelValues(endpoint, "503").Inc()
		writeError(w, r, http.StatusServiceUnavailable, codeUpstreamUnavail,
			"upstream data source is temporarily unavailable, try again", nil)

	case upstream.KindContractMismatch:
		// Local parsing assumptions are wrong, not the user's request: serve
		// an empty result with a short TTL and keep the failure server-side.
		s.logger.Warn().Err(err).
			Str("endpoint", endpoint).
			Str("error_kind", string(kind)).
			Str("request_id", RequestID(r.Context())).
			Msg("Upstream contract mismatch, serving empty result")
		s.writeEmpty(w, req)
		requestsTotal.WithLabelValues(endpoint, "200").Inc()

	case upstream.KindCancelled:
		// The caller already went away; nothing is wrong.
		s.logger.Debug().
			Str("endpoint", endpoint).
			Msg("Request cancelled by caller")
		s.writeEmpty(w, req)
		requestsTotal.WithLabelValues(endpoint, "200").Inc()

	default:
		s.logger.Error().Err(err).
			Str("endpoint", endpoint).
			Str("error_kind", string(kind)).
			Str("request_id", RequestID(r.Context())).
			Msg("Unclassified pipeline failure")
		requestsTotal.WithLabelValues(endpoint, "500").Inc()
		writeError(w, r, http.StatusInternalServerError, codeInternal, "internal error", nil)
	}
}

// writeEmpty serves the empty-result 200 used for contract mismatches and
// cancellations.
func (s *Server) writeEmpty(w http.ResponseWriter, req pagination.Request) {
	w.Header().Set("Cache-Control", cache.ControlHeader(cache.EmptyTTL))

	meta := &Pagination{Mode: "none", HasMore: false}
	if req.Mode != "" {
		meta.Mode = string(req.Mode)
		meta.Limit = req.Limit
		if req.Mode == pagination.ModeOffset {
			meta.Page = req.Page
		}
	}

	writeJSON(w, http.StatusOK, Envelope{Data: []upstream.Item{}, Pagination: meta})
}

// paginationMeta assembles the pagination block matching the resolved mode.
func paginationMeta(req pagination.Request, page *upstream.Page) *Pagination {
	meta := &Pagination{
		Mode:    string(req.Mode),
		Limit:   req.Limit,
		HasMore: page.HasMore,
	}
	if req.Mode == pagination.ModeOffset {
		meta.Page = req.Page
	}
	if page.Total >= 0 {
		meta.Total = page.Total
	}
	if page.HasMore {
		if next, err := pagination.NextCursor(req, req.Offset+req.Limit); err == nil {
			meta.NextCursor = next
		}
	}
	return meta
}
