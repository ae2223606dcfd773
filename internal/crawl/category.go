// Package crawl drives the page fetcher across the catalog's listings and
// feeds results into the aggregation store.
package crawl

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ending-signal/crawler/internal/aggregate"
	"github.com/ending-signal/crawler/internal/catalog"
	"github.com/ending-signal/crawler/internal/fetcher"
	"github.com/ending-signal/crawler/internal/metrics"
)

// Config controls crawler pacing and termination bounds.
type Config struct {
	PageSize int
	// Pause is the delay inserted between listing pages.
	Pause time.Duration
	// MaxWeekdayPages is a safety net against a listing that never ends;
	// weekday listings normally terminate on the first empty page.
	MaxWeekdayPages int
	// CompletionMaxPages caps the completed listing unconditionally.
	CompletionMaxPages int
	// CompletionThreshold stops the completed listing crawl once this many
	// net-new ids were discovered.
	CompletionThreshold int
}

// Defaults returns the production crawl bounds.
func Defaults() Config {
	return Config{
		PageSize:            100,
		Pause:               100 * time.Millisecond,
		MaxWeekdayPages:     500,
		CompletionMaxPages:  249,
		CompletionThreshold: 2000,
	}
}

func (c Config) withDefaults() Config {
	d := Defaults()
	if c.PageSize <= 0 {
		c.PageSize = d.PageSize
	}
	if c.Pause <= 0 {
		c.Pause = d.Pause
	}
	if c.MaxWeekdayPages <= 0 {
		c.MaxWeekdayPages = d.MaxWeekdayPages
	}
	if c.CompletionMaxPages <= 0 {
		c.CompletionMaxPages = d.CompletionMaxPages
	}
	if c.CompletionThreshold <= 0 {
		c.CompletionThreshold = d.CompletionThreshold
	}
	return c
}

// Result summarizes one crawler's outcome for the run report.
type Result struct {
	Listing string
	Pages   int
	Items   int
	Aborted bool
	Err     error
}

// CategoryCrawler walks one weekday tab page by page until the tab is
// exhausted or fails. A permanent fetch failure aborts only this tab;
// previously upserted items stay in the store.
type CategoryCrawler struct {
	fetcher fetcher.PageFetcher
	store   *aggregate.Store
	weekday string
	cfg     Config
	logger  *zap.Logger
}

// NewCategoryCrawler builds a crawler for one weekday tab key.
func NewCategoryCrawler(f fetcher.PageFetcher, store *aggregate.Store, weekday string, cfg Config, logger *zap.Logger) *CategoryCrawler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CategoryCrawler{
		fetcher: f,
		store:   store,
		weekday: weekday,
		cfg:     cfg.withDefaults(),
		logger:  logger.With(zap.String("listing", weekday)),
	}
}

// Run executes the crawl loop. Pages are fetched strictly in increasing
// order, each awaited before the next is issued.
func (c *CategoryCrawler) Run(ctx context.Context) Result {
	res := Result{Listing: c.weekday}
	listing := fetcher.WeekdayListing(c.weekday)

	for page := 1; ; page++ {
		if page > c.cfg.MaxWeekdayPages {
			c.logger.Warn("weekday listing exceeded safety bound", zap.Int("page", page))
			return res
		}

		items, err := c.fetcher.FetchPage(ctx, listing, page, c.cfg.PageSize)
		if err != nil {
			var malformed *fetcher.MalformedResponseError
			if errors.As(err, &malformed) {
				c.logger.Warn("malformed listing page, treating as end", zap.Int("page", page), zap.Error(err))
				return res
			}
			c.logger.Error("weekday crawl aborted", zap.Int("page", page), zap.Error(err))
			metrics.RecordCrawlerAborted(c.weekday)
			res.Aborted = true
			res.Err = err
			return res
		}
		if len(items) == 0 {
			return res
		}

		for _, item := range items {
			if err := c.store.Upsert(item, c.weekday); err != nil {
				res.Aborted = true
				res.Err = err
				return res
			}
		}
		res.Pages++
		res.Items += len(items)

		select {
		case <-ctx.Done():
			res.Aborted = true
			res.Err = ctx.Err()
			return res
		case <-time.After(c.cfg.Pause):
		}
	}
}

// RunWeekdays starts one CategoryCrawler per weekday tab against the shared
// store and fetcher, and waits for all of them to finish. Results come back
// in canonical weekday order regardless of completion order.
func RunWeekdays(ctx context.Context, f fetcher.PageFetcher, store *aggregate.Store, cfg Config, logger *zap.Logger) []Result {
	results := make([]Result, len(catalog.Weekdays))
	var wg sync.WaitGroup
	for i, day := range catalog.Weekdays {
		wg.Add(1)
		go func(i int, day string) {
			defer wg.Done()
			results[i] = NewCategoryCrawler(f, store, day, cfg, logger).Run(ctx)
		}(i, day)
	}
	wg.Wait()
	return results
}
