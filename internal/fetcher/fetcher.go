// Package fetcher issues paginated GraphQL requests against the remote
// catalog and decodes listing pages into flat item lists.
package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ending-signal/crawler/internal/catalog"
	"github.com/ending-signal/crawler/internal/metrics"
)

// PageFetcher is the contract the crawlers consume.
type PageFetcher interface {
	// FetchPage returns the decoded items of one listing page. An empty
	// slice with a nil error means the listing is exhausted.
	FetchPage(ctx context.Context, listing Listing, page, size int) ([]catalog.Item, error)
}

// Config controls the HTTP client behavior.
type Config struct {
	Endpoint  string
	UserAgent string
	Referer   string
	Timeout   time.Duration
}

// Client fetches listing pages over a shared HTTP client. Safe for
// concurrent use; per-request state lives on the stack.
type Client struct {
	cfg        Config
	httpClient *http.Client
	retry      *RetryPolicy
	logger     *zap.Logger
}

// New builds a Client. A nil retry policy falls back to the default.
func New(cfg Config, retry *RetryPolicy, logger *zap.Logger) *Client {
	if retry == nil {
		retry = DefaultRetryPolicy()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		retry:      retry,
		logger:     logger,
	}
}

// FetchPage fetches one page with the bounded retry policy. Transient
// failures are retried; exhausting retries yields a *PermanentError carrying
// the last cause. A malformed body yields a *MalformedResponseError without
// retrying (the response arrived, it just cannot be trusted).
func (c *Client) FetchPage(ctx context.Context, listing Listing, page, size int) ([]catalog.Item, error) {
	var lastErr error
	for attempt := 0; ; attempt++ {
		items, err := c.fetchOnce(ctx, listing, page, size)
		if err == nil {
			metrics.RecordPageFetched(listing.Name())
			return items, nil
		}

		var malformed *MalformedResponseError
		if errors.As(err, &malformed) {
			metrics.RecordMalformed(listing.Name())
			return nil, err
		}

		lastErr = err
		if !c.retry.ShouldRetry(err, attempt+1) {
			return nil, &PermanentError{
				Listing:  listing.Name(),
				Page:     page,
				Attempts: attempt + 1,
				Err:      lastErr,
			}
		}
		metrics.RecordRetry()
		c.logger.Warn("retrying page fetch",
			zap.String("listing", listing.Name()),
			zap.Int("page", page),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return nil, &PermanentError{
				Listing:  listing.Name(),
				Page:     page,
				Attempts: attempt + 1,
				Err:      ctx.Err(),
			}
		case <-time.After(c.retry.Backoff(attempt)):
		}
	}
}

func (c *Client) fetchOnce(ctx context.Context, listing Listing, page, size int) ([]catalog.Item, error) {
	body, err := json.Marshal(listing.payload(page, size))
	if err != nil {
		return nil, fmt.Errorf("marshal query payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/graphql+json, application/json")
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}
	if c.cfg.Referer != "" {
		req.Header.Set("Referer", c.cfg.Referer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransientError{Listing: listing.Name(), Page: page, Err: err}
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Warn("close response body", zap.Error(cerr))
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &TransientError{
			Listing: listing.Name(),
			Page:    page,
			Err:     fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransientError{Listing: listing.Name(), Page: page, Err: err}
	}

	// The service occasionally prefixes the UTF-8 body with a BOM.
	raw = bytes.TrimPrefix(raw, []byte{0xEF, 0xBB, 0xBF})

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &MalformedResponseError{Listing: listing.Name(), Page: page, Err: err}
	}
	if env.Data == nil {
		return nil, &MalformedResponseError{
			Listing: listing.Name(),
			Page:    page,
			Err:     errors.New("missing data envelope"),
		}
	}
	return env.unwrap(listing), nil
}
