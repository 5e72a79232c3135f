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

const defaultGDELTBaseURL = "https://api.gdeltproject.org/api/v2/doc/doc"

// gdeltQuery is the standing conflict filter sent to the doc API
const gdeltQuery = `(conflict OR attack OR violence OR battle OR airstrike)`

// GDELTConnector fetches text-mined event articles from the GDELT 2.0
// doc API. GDELT is keyless, so the connector is never skipped for
// missing credentials.
type GDELTConnector struct {
	logger   *zap.Logger
	client   *http.Client
	baseURL  string
	opts     Options
	strategy RetryStrategy
}

// NewGDELTConnector creates a new GDELT connector
func NewGDELTConnector(logger *zap.Logger, opts Options) *GDELTConnector {
	return &GDELTConnector{
		logger:   logger.Named("gdelt"),
		client:   &http.Client{Timeout: opts.Timeout},
		baseURL:  defaultGDELTBaseURL,
		opts:     opts,
		strategy: defaultBackoff(),
	}
}

// SetBaseURL overrides the API endpoint, used by tests
func (c *GDELTConnector) SetBaseURL(u string) { c.baseURL = u }

// Source implements Connector.Source
func (c *GDELTConnector) Source() model.DataSource { return model.DataSourceGDELT }

type gdeltArticle struct {
	URL           string  `json:"url"`
	Title         string  `json:"title"`
	SeenDate      string  `json:"seendate"`
	Domain        string  `json:"domain"`
	SourceCountry string  `json:"sourcecountry"`
	Language      string  `json:"language"`
	Tone          float64 `json:"tone"`
}

type gdeltResponse struct {
	Articles []gdeltArticle `json:"articles"`
}

// Fetch implements Connector.Fetch. The doc API caps results per
// query, so the window is fetched in one bounded request.
func (c *GDELTConnector) Fetch(ctx context.Context, query Query) ([]RawRecord, error) {
	filter := gdeltQuery
	if query.RegionFilter != "" {
		filter = fmt.Sprintf(`%s AND sourcecountry:%q`, gdeltQuery, query.RegionFilter)
	}

	q := url.Values{}
	q.Set("query", filter)
	q.Set("mode", "artlist")
	q.Set("format", "json")
	q.Set("startdatetime", query.Dates.Start.Format("20060102")+"000000")
	q.Set("enddatetime", query.Dates.End.Format("20060102")+"235959")
	q.Set("maxrecords", strconv.Itoa(c.opts.PageSize(query.PageSize)))

	body, err := fetchBody(ctx, c.client, c.baseURL+"?"+q.Encode(), c.opts.MaxRetries, c.strategy)
	if err != nil {
		return nil, fmt.Errorf("gdelt: %w", err)
	}

	var resp gdeltResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}

	records := make([]RawRecord, 0, len(resp.Articles))
	for _, art := range resp.Articles {
		records = append(records, RawRecord{
			Source: model.DataSourceGDELT,
			Fields: map[string]string{
				"url":           art.URL,
				"title":         art.Title,
				"seendate":      art.SeenDate,
				"domain":        art.Domain,
				"sourcecountry": art.SourceCountry,
				"language":      art.Language,
				"tone":          strconv.FormatFloat(art.Tone, 'f', -1, 64),
			},
		})
	}

	c.logger.Info("GDELT fetch complete", zap.Int("records", len(records)))
	return records, nil
}
