package crawl

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/ending-signal/crawler/internal/aggregate"
	"github.com/ending-signal/crawler/internal/fetcher"
	"github.com/ending-signal/crawler/internal/metrics"
)

// CompletionCrawler walks the completed-titles listing after the weekday
// crawlers finish. It stops on the first of: an empty page, the net-new
// discovery threshold, or the hard page cap.
type CompletionCrawler struct {
	fetcher fetcher.PageFetcher
	store   *aggregate.Store
	cfg     Config
	logger  *zap.Logger
}

// NewCompletionCrawler builds the completed-listing crawler.
func NewCompletionCrawler(f fetcher.PageFetcher, store *aggregate.Store, cfg Config, logger *zap.Logger) *CompletionCrawler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CompletionCrawler{
		fetcher: f,
		store:   store,
		cfg:     cfg.withDefaults(),
		logger:  logger.With(zap.String("listing", "completed")),
	}
}

// Run executes the crawl loop. Items already aggregated from weekday tabs
// are reclassified as finished but do not count toward the threshold.
func (c *CompletionCrawler) Run(ctx context.Context) Result {
	res := Result{Listing: "completed"}
	discovered := 0

	for page := 1; page <= c.cfg.CompletionMaxPages; page++ {
		items, err := c.fetcher.FetchPage(ctx, fetcher.CompletedListing, page, c.cfg.PageSize)
		if err != nil {
			var malformed *fetcher.MalformedResponseError
			if errors.As(err, &malformed) {
				c.logger.Warn("malformed completed page, treating as end", zap.Int("page", page), zap.Error(err))
				return res
			}
			c.logger.Error("completed crawl aborted", zap.Int("page", page), zap.Error(err))
			metrics.RecordCrawlerAborted("completed")
			res.Aborted = true
			res.Err = err
			return res
		}
		if len(items) == 0 {
			return res
		}

		for _, item := range items {
			isNew, err := c.store.UpsertCompleted(item)
			if err != nil {
				res.Aborted = true
				res.Err = err
				return res
			}
			if isNew {
				discovered++
			}
		}
		res.Pages++
		res.Items += len(items)

		if discovered >= c.cfg.CompletionThreshold {
			c.logger.Info("completion discovery threshold reached",
				zap.Int("discovered", discovered),
				zap.Int("pages", res.Pages),
			)
			return res
		}

		select {
		case <-ctx.Done():
			res.Aborted = true
			res.Err = ctx.Err()
			return res
		case <-time.After(c.cfg.Pause):
		}
	}
	c.logger.Warn("completed listing reached page cap", zap.Int("pages", res.Pages))
	return res
}
