// Package nasa implements upstream adapters for NASA/JPL data feeds.
package nasa

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/alderon07/cosmic-index-sub001/pkg/upstream"
)

// DefaultFireballURL is the JPL fireball feed endpoint.
const DefaultFireballURL = "https://ssd-api.jpl.nasa.gov/fireball.api"

// crawlPageSize is the page size used when the sitemap crawler walks the feed.
const crawlPageSize = 100

// filterParams maps accepted filter keys to the feed's query parameters.
var filterParams = map[string]string{
	"date-min":   "date-min",
	"date-max":   "date-max",
	"energy-min": "energy-min",
	"impact-min": "impact-e-min",
}

// Fireball is the upstream adapter for the JPL fireball feed.
//
// The feed does not support offset paging, so the adapter fetches the
// filtered, sorted dataset in one call and slices locally; the dataset is a
// few thousand rows and the page cache absorbs repeat fetches.
type Fireball struct {
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewFireball creates a fireball adapter. An empty baseURL uses the
// production JPL endpoint.
func NewFireball(baseURL string, logger zerolog.Logger) *Fireball {
	if baseURL == "" {
		baseURL = DefaultFireballURL
	}
	return &Fireball{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		logger: logger.With().Str("component", "fireball-adapter").Logger(),
	}
}

// feedResponse is the wire shape of the fireball feed.
type feedResponse struct {
	Signature map[string]any `json:"signature"`
	Count     any            `json:"count"`
	Fields    []string       `json:"fields"`
	Data      [][]any        `json:"data"`
}

// Browse implements upstream.Adapter.
func (f *Fireball) Browse(ctx context.Context, q upstream.Query) (*upstream.Page, error) {
	items, err := f.fetch(ctx, q.Sort, q.Order, q.Filters)
	if err != nil {
		return nil, err
	}

	total := len(items)
	start := q.Offset
	if start > total {
		start = total
	}
	end := start + q.Limit
	if end > total {
		end = total
	}

	return &upstream.Page{
		Items:   items[start:end],
		Total:   total,
		HasMore: end < total,
	}, nil
}

// Lookup implements upstream.Adapter. Fireball events are identified by their
// peak-brightness timestamp. Returns (nil, nil) when no event matches.
func (f *Fireball) Lookup(ctx context.Context, id string) (upstream.Item, error) {
	items, err := f.fetch(ctx, "date", "desc", nil)
	if err != nil {
		return nil, err
	}

	for _, item := range items {
		if date, ok := item["date"].(string); ok && date == id {
			return item, nil
		}
	}
	return nil, nil
}

// FetchPage implements pagination.PageFetcher for sitemap crawling.
func (f *Fireball) FetchPage(ctx context.Context, source string, pageNum int) ([]byte, int, error) {
	page, err := f.Browse(ctx, upstream.Query{
		Offset: (pageNum - 1) * crawlPageSize,
		Limit:  crawlPageSize,
		Sort:   "date",
		Order:  "desc",
	})
	if err != nil {
		return nil, 0, err
	}

	totalPages := (page.Total + crawlPageSize - 1) / crawlPageSize
	if totalPages < 1 {
		totalPages = 1
	}

	data, err := json.Marshal(page.Items)
	if err != nil {
		return nil, 0, err
	}
	return data, totalPages, nil
}

// fetch retrieves and validates the filtered feed.
func (f *Fireball) fetch(ctx context.Context, sort, order string, filters map[string]string) ([]upstream.Item, error) {
	reqURL, err := f.buildURL(sort, order, filters)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		// Cancellation and timeouts surface here; classification happens on
		// the wrapped error chain.
		return nil, fmt.Errorf("fireball request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, upstream.Failure(resp.StatusCode, "fireball feed unavailable", nil)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, upstream.Mismatch(
			fmt.Sprintf("fireball feed returned unexpected status %d", resp.StatusCode), nil)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, upstream.Failure(0, "read fireball response", err)
	}

	var feed feedResponse
	if err := json.Unmarshal(body, &feed); err != nil {
		return nil, upstream.Mismatch("fireball response is not valid JSON", err)
	}

	return f.validate(feed)
}

// validate checks the feed's shape and converts rows into items.
func (f *Fireball) validate(feed feedResponse) ([]upstream.Item, error) {
	// An empty result legitimately omits fields and data.
	if len(feed.Fields) == 0 && len(feed.Data) == 0 {
		return []upstream.Item{}, nil
	}
	if len(feed.Fields) == 0 {
		return nil, upstream.Mismatch("fireball response missing fields array", nil)
	}

	items := make([]upstream.Item, 0, len(feed.Data))
	for i, row := range feed.Data {
		if len(row) != len(feed.Fields) {
			return nil, upstream.Mismatch(
				fmt.Sprintf("fireball row %d has %d values for %d fields", i, len(row), len(feed.Fields)), nil)
		}
		item := make(upstream.Item, len(feed.Fields))
		for j, field := range feed.Fields {
			item[field] = row[j]
		}
		items = append(items, item)
	}

	return items, nil
}

// buildURL renders the feed URL with sort and filter parameters.
func (f *Fireball) buildURL(sort, order string, filters map[string]string) (string, error) {
	u, err := url.Parse(f.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}

	params := url.Values{}
	if sort != "" {
		if order == "desc" {
			params.Set("sort", "-"+sort)
		} else {
			params.Set("sort", sort)
		}
	}
	for key, value := range filters {
		if param, ok := filterParams[key]; ok && strings.TrimSpace(value) != "" {
			params.Set(param, value)
		}
	}

	u.RawQuery = params.Encode()
	return u.String(), nil
}
