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

const defaultACLEDBaseURL = "https://api.acleddata.com/acled/read"

// ACLEDConnector fetches curated conflict records from the ACLED API.
// ACLED requires a registered API key and email; without them the
// connector reports ErrNoCredentials and the source is skipped.
type ACLEDConnector struct {
	logger   *zap.Logger
	client   *http.Client
	baseURL  string
	apiKey   string
	email    string
	opts     Options
	strategy RetryStrategy
}

// NewACLEDConnector creates a new ACLED connector
func NewACLEDConnector(logger *zap.Logger, apiKey, email string, opts Options) *ACLEDConnector {
	return &ACLEDConnector{
		logger:   logger.Named("acled"),
		client:   &http.Client{Timeout: opts.Timeout},
		baseURL:  defaultACLEDBaseURL,
		apiKey:   apiKey,
		email:    email,
		opts:     opts,
		strategy: defaultBackoff(),
	}
}

// SetBaseURL overrides the API endpoint, used by tests
func (c *ACLEDConnector) SetBaseURL(u string) { c.baseURL = u }

// Source implements Connector.Source
func (c *ACLEDConnector) Source() model.DataSource { return model.DataSourceACLED }

type acledResponse struct {
	Status  int               `json:"status"`
	Success bool              `json:"success"`
	Count   int               `json:"count"`
	Data    []json.RawMessage `json:"data"`
}

// Fetch implements Connector.Fetch, paging through the window until
// the API returns a short page
func (c *ACLEDConnector) Fetch(ctx context.Context, query Query) ([]RawRecord, error) {
	if c.apiKey == "" || c.email == "" {
		return nil, ErrNoCredentials
	}

	limit := c.opts.PageSize(query.PageSize)
	var records []RawRecord

	for page := 1; ; page++ {
		q := url.Values{}
		q.Set("key", c.apiKey)
		q.Set("email", c.email)
		q.Set("event_date", query.Dates.Start.Format("2006-01-02")+"|"+query.Dates.End.Format("2006-01-02"))
		q.Set("event_date_where", "BETWEEN")
		q.Set("limit", strconv.Itoa(limit))
		q.Set("page", strconv.Itoa(page))
		if query.RegionFilter != "" {
			q.Set("region", query.RegionFilter)
		}

		body, err := fetchBody(ctx, c.client, c.baseURL+"?"+q.Encode(), c.opts.MaxRetries, c.strategy)
		if err != nil {
			return nil, fmt.Errorf("acled page %d: %w", page, err)
		}

		var resp acledResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadResponse, err)
		}

		for _, raw := range resp.Data {
			var fields map[string]string
			if err := json.Unmarshal(raw, &stringFields{&fields}); err != nil {
				c.logger.Warn("Skipping undecodable record", zap.Error(err))
				continue
			}
			records = append(records, RawRecord{Source: model.DataSourceACLED, Fields: fields})
		}

		c.logger.Debug("Fetched page",
			zap.Int("page", page),
			zap.Int("count", resp.Count))

		if resp.Count < limit {
			break
		}
	}

	c.logger.Info("ACLED fetch complete", zap.Int("records", len(records)))
	return records, nil
}

// stringFields decodes a JSON object into map[string]string, rendering
// numeric values as their literal text. Providers are inconsistent
// about quoting numbers; the normalizer re-parses what it needs.
type stringFields struct {
	dst *map[string]string
}

func (s *stringFields) UnmarshalJSON(data []byte) error {
	var generic map[string]interface{}
	if err := json.Unmarshal(data, &generic); err != nil {
		return err
	}
	out := make(map[string]string, len(generic))
	for k, v := range generic {
		switch val := v.(type) {
		case string:
			out[k] = val
		case float64:
			out[k] = strconv.FormatFloat(val, 'f', -1, 64)
		case bool:
			out[k] = strconv.FormatBool(val)
		case nil:
			out[k] = ""
		default:
			b, err := json.Marshal(val)
			if err != nil {
				return err
			}
			out[k] = string(b)
		}
	}
	*s.dst = out
	return nil
}
