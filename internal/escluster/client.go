// Package escluster provides the client for one Elasticsearch-compatible
// destination cluster. Each cluster is an independent failure domain: the
// pipeline constructs one Client per cluster and passes it explicitly
// through the call chain, never as shared global state.
//
// Index convention: readings are written to one index per category
// ({prefix}_{category}) and read back through the wildcard alias pattern
// ({prefix}_{category}*), so rolled-over or re-indexed history stays
// visible to boundary and gap queries.
package escluster

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/DrMrsMoo/ambient-weather-heiligers/internal/external"
	"github.com/DrMrsMoo/ambient-weather-heiligers/internal/types"
)

// Config identifies one destination cluster.
type Config struct {
	Name        string
	URL         string
	APIKey      string // empty means unauthenticated
	IndexPrefix string
	Timeout     time.Duration
}

// Client talks to one cluster. It is safe for concurrent use.
type Client struct {
	base *external.BaseClient
	cfg  Config
}

// New creates a Client for one cluster.
func New(cfg Config, opts ...external.BaseClientOption) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	httpClient := &http.Client{Timeout: timeout}
	return &Client{
		base: external.NewBaseClient(httpClient, "escluster-"+cfg.Name, external.DefaultRetryPolicy(), opts...),
		cfg:  cfg,
	}
}

// NewWithHTTPClient creates a Client with a caller-provided *http.Client,
// for tests against httptest servers.
func NewWithHTTPClient(cfg Config, httpClient *http.Client, opts ...external.BaseClientOption) *Client {
	return &Client{
		base: external.NewBaseClient(httpClient, "escluster-"+cfg.Name, external.DefaultRetryPolicy(), opts...),
		cfg:  cfg,
	}
}

// Name returns the cluster's configured name ("prod", "staging").
func (c *Client) Name() string {
	return c.cfg.Name
}

// WriteIndex returns the writable index for a category.
func (c *Client) WriteIndex(cat types.Category) string {
	return fmt.Sprintf("%s_%s", c.cfg.IndexPrefix, cat)
}

// ReadPattern returns the wildcard alias pattern used for reads.
func (c *Client) ReadPattern(cat types.Category) string {
	return c.WriteIndex(cat) + "*"
}

func (c *Client) newRequest(ctx context.Context, method, path string, body []byte) (*http.Request, error) {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.URL+path, rdr)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected,
			"building cluster request", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "ApiKey "+c.cfg.APIKey)
	}
	return req, nil
}

// do executes the request and decodes a 2xx JSON response into out.
// Non-2xx statuses are mapped to ErrCodeClusterQuery with the response
// body attached for diagnostics.
func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.base.Do(req)
	if err != nil {
		return types.NewAppError(types.ErrCodeClusterUnavailable,
			fmt.Sprintf("cluster %s unreachable", c.cfg.Name), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return types.NewAppError(types.ErrCodeClusterQuery,
			fmt.Sprintf("cluster %s returned %d: %s", c.cfg.Name, resp.StatusCode, string(body)), nil)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return types.NewAppError(types.ErrCodeClusterQuery,
			fmt.Sprintf("decoding response from cluster %s", c.cfg.Name), err)
	}
	return nil
}

// searchResponse is the subset of the _search response the client reads.
type searchResponse struct {
	Hits struct {
		Hits []struct {
			Source types.Reading `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// LatestDocument returns the most recent stored reading for a category,
// requesting only the timestamp field. A nil reading with a nil error
// means the cluster holds no documents yet for that category.
func (c *Client) LatestDocument(ctx context.Context, cat types.Category) (*types.Reading, error) {
	body := map[string]any{
		"size":    1,
		"sort":    []any{map[string]any{"dateutc": map[string]string{"order": "desc"}}},
		"_source": []string{"dateutc"},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "marshaling search body", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/"+c.ReadPattern(cat)+"/_search", payload)
	if err != nil {
		return nil, err
	}

	var sr searchResponse
	if err := c.do(req, &sr); err != nil {
		return nil, err
	}
	if len(sr.Hits.Hits) == 0 {
		return nil, nil
	}
	doc := sr.Hits.Hits[0].Source
	return &doc, nil
}

// RangeSearch returns readings with gte <= dateutc <= lte, sorted by
// timestamp in the requested direction, up to size documents. A negative
// gte or lte leaves that side of the range unbounded.
func (c *Client) RangeSearch(ctx context.Context, cat types.Category, gte, lte int64, ascending bool, size int) ([]types.Reading, error) {
	order := "desc"
	if ascending {
		order = "asc"
	}

	rangeClause := map[string]any{}
	if gte >= 0 {
		rangeClause["gte"] = gte
	}
	if lte >= 0 {
		rangeClause["lte"] = lte
	}

	body := map[string]any{
		"size":  size,
		"sort":  []any{map[string]any{"dateutc": map[string]string{"order": order}}},
		"query": map[string]any{"range": map[string]any{"dateutc": rangeClause}},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "marshaling search body", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/"+c.ReadPattern(cat)+"/_search", payload)
	if err != nil {
		return nil, err
	}

	var sr searchResponse
	if err := c.do(req, &sr); err != nil {
		return nil, err
	}

	readings := make([]types.Reading, 0, len(sr.Hits.Hits))
	for _, h := range sr.Hits.Hits {
		readings = append(readings, h.Source)
	}
	return readings, nil
}

// countResponse is the _count response shape.
type countResponse struct {
	Count int64 `json:"count"`
}

// Count returns the total number of documents stored for a category,
// across the whole read pattern.
func (c *Client) Count(ctx context.Context, cat types.Category) (int64, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/"+c.ReadPattern(cat)+"/_count", nil)
	if err != nil {
		return 0, err
	}
	var cr countResponse
	if err := c.do(req, &cr); err != nil {
		return 0, err
	}
	return cr.Count, nil
}

// Alias is one row of the cluster's alias catalog.
type Alias struct {
	Alias string `json:"alias"`
	Index string `json:"index"`
}

// Aliases lists the cluster's aliases. The backfill CLI uses this to
// verify the target index family exists before locating gaps.
func (c *Client) Aliases(ctx context.Context) ([]Alias, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/_cat/aliases?format=json", nil)
	if err != nil {
		return nil, err
	}
	var aliases []Alias
	if err := c.do(req, &aliases); err != nil {
		return nil, err
	}
	return aliases, nil
}
