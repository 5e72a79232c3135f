package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"go.uber.org/zap"

	"github.com/t77yq/conflictwatch/internal/model"
)

const (
	defaultUCDPBaseURL = "https://ucdpapi.pcr.uu.se/api/gedevents"
	ucdpDatasetVersion = "24.1"
)

// UCDPConnector fetches curated georeferenced event data from the
// UCDP GED API. The API is public and keyless.
type UCDPConnector struct {
	logger   *zap.Logger
	client   *http.Client
	baseURL  string
	version  string
	opts     Options
	strategy RetryStrategy
}

// NewUCDPConnector creates a new UCDP connector
func NewUCDPConnector(logger *zap.Logger, opts Options) *UCDPConnector {
	return &UCDPConnector{
		logger:   logger.Named("ucdp"),
		client:   &http.Client{Timeout: opts.Timeout},
		baseURL:  defaultUCDPBaseURL,
		version:  ucdpDatasetVersion,
		opts:     opts,
		strategy: defaultBackoff(),
	}
}

// SetBaseURL overrides the API endpoint, used by tests
func (c *UCDPConnector) SetBaseURL(u string) { c.baseURL = u }

// Source implements Connector.Source
func (c *UCDPConnector) Source() model.DataSource { return model.DataSourceUCDP }

type ucdpResponse struct {
	TotalCount int               `json:"TotalCount"`
	TotalPages int               `json:"TotalPages"`
	Result     []json.RawMessage `json:"Result"`
}

// Fetch implements Connector.Fetch, walking the GED API's page counter
func (c *UCDPConnector) Fetch(ctx context.Context, query Query) ([]RawRecord, error) {
	pageSize := c.opts.PageSize(query.PageSize)
	var records []RawRecord

	for page := 0; ; page++ {
		q := url.Values{}
		q.Set("pagesize", strconv.Itoa(pageSize))
		q.Set("page", strconv.Itoa(page))
		q.Set("StartDate", query.Dates.Start.Format("2006-01-02"))
		q.Set("EndDate", query.Dates.End.Format("2006-01-02"))
		if query.RegionFilter != "" {
			q.Set("Country", query.RegionFilter)
		}

		endpoint := fmt.Sprintf("%s/%s?%s", c.baseURL, c.version, q.Encode())
		body, err := fetchBody(ctx, c.client, endpoint, c.opts.MaxRetries, c.strategy)
		if err != nil {
			return nil, fmt.Errorf("ucdp page %d: %w", page, err)
		}

		var resp ucdpResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadResponse, err)
		}

		for _, raw := range resp.Result {
			var fields map[string]string
			if err := json.Unmarshal(raw, &stringFields{&fields}); err != nil {
				c.logger.Warn("Skipping undecodable record", zap.Error(err))
				continue
			}
			records = append(records, RawRecord{Source: model.DataSourceUCDP, Fields: fields})
		}

		if page+1 >= resp.TotalPages {
			break
		}
	}

	c.logger.Info("UCDP fetch complete", zap.Int("records", len(records)))
	return records, nil
}
