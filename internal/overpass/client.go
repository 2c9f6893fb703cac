package overpass

import (
	"context"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/poi-ingest/internal/fetcher"
	"github.com/sells-group/poi-ingest/internal/model"
)

// Client queries an Overpass endpoint and decodes its responses into batches.
type Client struct {
	fetcher  fetcher.Fetcher
	endpoint string
	timeout  time.Duration
}

// NewClient creates a client for endpoint. timeout is both the server-side
// query timeout and the expected ceiling of the fetcher.
func NewClient(f fetcher.Fetcher, endpoint string, timeout time.Duration) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Client{fetcher: f, endpoint: endpoint, timeout: timeout}
}

// Endpoint returns the interpreter URL queries are posted to.
func (c *Client) Endpoint() string { return c.endpoint }

// BuildQuery returns the query for nodes tagged key=value inside place.
func (c *Client) BuildQuery(place, key, value string) string {
	return BuildQuery(int(c.timeout/time.Second), place, key, value)
}

// Fetch posts the query as the "data" form field and returns the raw body.
func (c *Client) Fetch(ctx context.Context, query string) ([]byte, error) {
	return c.fetcher.PostForm(ctx, c.endpoint, url.Values{"data": {query}})
}

// Decode parses a response body into a batch carrying ann, with the whole
// response converted to GeoJSON as its aggregate geography.
func (c *Client) Decode(body []byte, ann model.Annotations) (model.Batch, error) {
	resp, err := Parse(body)
	if err != nil {
		return model.Batch{}, err
	}
	if resp.Remark != "" {
		zap.L().Warn("overpass: response carries a remark, results may be partial",
			zap.String("remark", resp.Remark),
			zap.String("place", ann.Place),
			zap.String("attribute", ann.Attribute),
		)
	}
	return model.Batch{
		Records:     resp.Records(),
		Annotations: ann,
		Geography:   ToGeoJSON(resp),
	}, nil
}
