package pagination

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// CrawlConfig holds crawler configuration.
type CrawlConfig struct {
	// MaxConcurrency is the maximum number of parallel page fetches.
	MaxConcurrency int

	// Timeout per page fetch.
	Timeout time.Duration

	// BufferSize for the page queue (default: estimated total pages).
	BufferSize int
}

// DefaultCrawlConfig returns safe defaults for crawling rate-limited
// government APIs.
func DefaultCrawlConfig() CrawlConfig {
	return CrawlConfig{
		MaxConcurrency: 5,
		Timeout:        15 * time.Second,
		BufferSize:     200,
	}
}

// PageFetcher fetches a single page of an upstream source.
type PageFetcher interface {
	// FetchPage fetches page pageNum of source and reports the total page count.
	FetchPage(ctx context.Context, source string, pageNum int) (data []byte, totalPages int, err error)
}

// pageResult is the outcome of fetching one page.
type pageResult struct {
	pageNumber int
	data       []byte
	err        error
}

// Crawler walks every page of an upstream source in parallel. It backs the
// sitemap endpoint, which is why sitemap requests sit in the tightest
// rate-limit class: one crawl fans out into many upstream calls.
type Crawler struct {
	fetcher PageFetcher
	config  CrawlConfig
}

// NewCrawler creates a crawler over the given fetcher.
func NewCrawler(fetcher PageFetcher, config CrawlConfig) *Crawler {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 5
	}
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}
	if config.BufferSize <= 0 {
		config.BufferSize = 200
	}

	return &Crawler{
		fetcher: fetcher,
		config:  config,
	}
}

// CrawlAll fetches all pages of a source using a worker pool.
// Returns a map of pageNumber -> data for successful pages; on worker failure
// the partial map is returned alongside the error.
func (c *Crawler) CrawlAll(ctx context.Context, source string) (map[int][]byte, error) {
	start := time.Now()

	// First page establishes the total page count.
	firstPageData, totalPages, err := c.fetcher.FetchPage(ctx, source, 1)
	if err != nil {
		return nil, fmt.Errorf("fetch first page: %w", err)
	}

	log.Info().
		Str("source", source).
		Int("total_pages", totalPages).
		Msg("Starting sitemap crawl")

	if totalPages <= 1 {
		return map[int][]byte{1: firstPageData}, nil
	}

	results := map[int][]byte{1: firstPageData}
	var resultsMutex sync.Mutex

	pageQueue := make(chan int, c.config.BufferSize)
	pageResults := make(chan pageResult, c.config.BufferSize)
	errs := make(chan error, c.config.MaxConcurrency)

	go func() {
		defer close(pageQueue)
		for page := 2; page <= totalPages; page++ {
			select {
			case pageQueue <- page:
			case <-ctx.Done():
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < c.config.MaxConcurrency; i++ {
		wg.Add(1)
		go c.worker(ctx, source, pageQueue, pageResults, errs, &wg)
	}

	go func() {
		wg.Wait()
		close(pageResults)
		close(errs)
	}()

	fetched := 1
	for result := range pageResults {
		if result.err != nil {
			log.Warn().
				Err(result.err).
				Int("page", result.pageNumber).
				Msg("Page fetch failed")
			continue
		}

		resultsMutex.Lock()
		results[result.pageNumber] = result.data
		fetched++
		resultsMutex.Unlock()
	}

	select {
	case err := <-errs:
		if err != nil {
			log.Warn().
				Err(err).
				Int("fetched_pages", fetched).
				Int("total_pages", totalPages).
				Msg("Crawl worker error - returning partial results")
			return results, fmt.Errorf("crawl worker (partial data: %d/%d pages): %w", fetched, totalPages, err)
		}
	default:
	}

	if err := ctx.Err(); err != nil {
		return results, err
	}

	log.Info().
		Str("source", source).
		Int("pages", fetched).
		Int("total", totalPages).
		Dur("duration", time.Since(start)).
		Msg("Crawl complete")

	return results, nil
}

// worker processes pages from the queue.
func (c *Crawler) worker(ctx context.Context, source string, pageQueue <-chan int, results chan<- pageResult, errs chan<- error, wg *sync.WaitGroup) {
	defer wg.Done()

	for pageNum := range pageQueue {
		select {
		case <-ctx.Done():
			return
		default:
		}

		pageCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
		data, _, err := c.fetcher.FetchPage(pageCtx, source, pageNum)
		cancel()

		if err != nil {
			// Non-blocking error send; first failure wins.
			select {
			case errs <- err:
			default:
			}
			return
		}

		select {
		case results <- pageResult{pageNumber: pageNum, data: data}:
		case <-ctx.Done():
			return
		}
	}
}
