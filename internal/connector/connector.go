package connector

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/t77yq/conflictwatch/internal/model"
)

// DateRange is the extraction window handed to a connector
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Query is one extraction request. PageSize overrides the connector's
// configured batch size when positive; runs snapshot their own batch
// size at submit time.
type Query struct {
	Dates        DateRange
	RegionFilter string
	PageSize     int
}

// RawRecord is one provider-native record, flattened to string fields.
// The normalizer owns the per-source field mapping; connectors only
// carry values through unchanged.
type RawRecord struct {
	Source model.DataSource
	Fields map[string]string
}

// Connector adapts one external provider's API into raw records.
// Implementations hold no mutable state between calls and are safe to
// invoke concurrently with other connectors.
type Connector interface {
	// Source returns the provider this connector talks to
	Source() model.DataSource

	// Fetch retrieves all records in the query window, following the
	// provider's own pagination. A missing-credential condition is
	// reported as ErrNoCredentials, distinct from transport errors.
	Fetch(ctx context.Context, q Query) ([]RawRecord, error)
}

// Options carries the HTTP policy shared by all connectors
type Options struct {
	MaxRetries int
	Timeout    time.Duration
	BatchSize  int
}

// PageSize returns the effective page size for a fetch, preferring a
// positive per-query override
func (o Options) PageSize(override int) int {
	if override > 0 {
		return override
	}
	return o.BatchSize
}

// DefaultOptions returns the policy used when none is configured
func DefaultOptions() Options {
	return Options{
		MaxRetries: 3,
		Timeout:    30 * time.Second,
		BatchSize:  500,
	}
}

// RetryStrategy defines the interface for retry backoff strategies
type RetryStrategy interface {
	// NextRetry calculates the delay before the given attempt
	NextRetry(attempt int) time.Duration
}

// ExponentialBackoff implements exponential backoff with a cap
type ExponentialBackoff struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// NextRetry calculates the next retry delay using exponential backoff
func (s *ExponentialBackoff) NextRetry(attempt int) time.Duration {
	delay := float64(s.InitialDelay)
	for i := 0; i < attempt; i++ {
		delay *= s.Multiplier
	}

	if delay > float64(s.MaxDelay) {
		return s.MaxDelay
	}
	return time.Duration(delay)
}

// defaultBackoff is the strategy connectors use unless overridden
func defaultBackoff() RetryStrategy {
	return &ExponentialBackoff{
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
	}
}

// fetchBody performs one GET with bounded retries. Transport errors
// and 5xx responses are retried; 4xx responses fail immediately since
// retrying a rejected request cannot succeed.
func fetchBody(ctx context.Context, client *http.Client, url string, maxRetries int, strategy RetryStrategy) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(strategy.NextRetry(attempt - 1)):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}

		switch {
		case resp.StatusCode >= 500:
			lastErr = fmt.Errorf("server returned status %d", resp.StatusCode)
			continue
		case resp.StatusCode >= 400:
			return nil, fmt.Errorf("request rejected with status %d", resp.StatusCode)
		}

		return body, nil
	}

	return nil, fmt.Errorf("%w: %v", ErrRetriesExhausted, lastErr)
}
