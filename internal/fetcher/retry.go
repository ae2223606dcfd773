package fetcher

import (
	"context"
	"errors"
	"time"
)

// RetryPolicy bounds fetch attempts with exponential backoff. It is composed
// around the page fetch explicitly rather than hidden inside the transport.
type RetryPolicy struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
}

// NewRetryPolicy builds a policy. Zero or negative arguments fall back to the
// defaults (3 attempts, 2s base, 10s cap).
func NewRetryPolicy(maxAttempts int, baseDelay, maxDelay time.Duration) *RetryPolicy {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if baseDelay <= 0 {
		baseDelay = 2 * time.Second
	}
	if maxDelay <= 0 {
		maxDelay = 10 * time.Second
	}
	return &RetryPolicy{
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		maxDelay:    maxDelay,
	}
}

// DefaultRetryPolicy matches the catalog crawl contract: up to 3 attempts,
// backoff starting at 2s capped at 10s.
func DefaultRetryPolicy() *RetryPolicy {
	return NewRetryPolicy(3, 2*time.Second, 10*time.Second)
}

// ShouldRetry decides whether another attempt is allowed after attempts
// completed tries.
func (p *RetryPolicy) ShouldRetry(err error, attempts int) bool {
	if err == nil {
		return false
	}
	if attempts >= p.maxAttempts {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

// Backoff returns the wait before the next attempt. attempt is zero-based:
// the wait after the first failure is the base delay.
func (p *RetryPolicy) Backoff(attempt int) time.Duration {
	delay := p.baseDelay
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= p.maxDelay {
			return p.maxDelay
		}
	}
	if delay > p.maxDelay {
		return p.maxDelay
	}
	return delay
}
