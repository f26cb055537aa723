package external

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"

	"github.com/DrMrsMoo/ambient-weather-heiligers/internal/types"
)

// DeviceDataMaxLimit is the API's hard cap on records per request: one day
// of readings at the station's 5-minute sampling rate.
const DeviceDataMaxLimit = 288

// AmbientConfig holds the credentials and endpoint for one station.
type AmbientConfig struct {
	BaseURL        string
	APIKey         string
	ApplicationKey string
	DeviceMAC      string
}

// AmbientClient calls the Ambient Weather cloud API for one device. The
// device-data endpoint enumerates backwards in time from a given anchor:
// one call returns up to `limit` readings at or before `endDate`,
// newest first.
type AmbientClient struct {
	base *BaseClient
	cfg  AmbientConfig
}

// NewAmbientClient creates an AmbientClient with the given HTTP client and
// configuration.
func NewAmbientClient(httpClient *http.Client, cfg AmbientConfig, opts ...BaseClientOption) *AmbientClient {
	return &AmbientClient{
		base: NewBaseClient(httpClient, "ambient-weather-api", DefaultRetryPolicy(), opts...),
		cfg:  cfg,
	}
}

// DeviceData fetches up to limit readings at or before anchorMillis and
// returns them sorted ascending by timestamp. The API returns newest
// first; sorting here gives every caller one ordering to reason about.
//
// Transport failures and non-2xx statuses are hard failures: no data was
// obtained, so nothing downstream can be committed.
func (a *AmbientClient) DeviceData(ctx context.Context, anchorMillis int64, limit int) ([]types.Reading, error) {
	if limit <= 0 || limit > DeviceDataMaxLimit {
		limit = DeviceDataMaxLimit
	}

	endpoint := fmt.Sprintf("%s/devices/%s", a.cfg.BaseURL, url.PathEscape(a.cfg.DeviceMAC))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected,
			"building device data request", err)
	}

	q := req.URL.Query()
	q.Set("apiKey", a.cfg.APIKey)
	q.Set("applicationKey", a.cfg.ApplicationKey)
	q.Set("endDate", strconv.FormatInt(anchorMillis, 10))
	q.Set("limit", strconv.Itoa(limit))
	req.URL.RawQuery = q.Encode()

	resp, err := a.base.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ambient device data: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, types.NewAppError(types.ErrCodeUpstreamUnavailable,
			fmt.Sprintf("ambient device data returned %d: %s", resp.StatusCode, string(body)), nil)
	}

	var readings []types.Reading
	if err := json.NewDecoder(resp.Body).Decode(&readings); err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamMalformed,
			"decoding ambient device data response", err)
	}

	sort.Slice(readings, func(i, j int) bool {
		return readings[i].TimestampMillis < readings[j].TimestampMillis
	})

	return readings, nil
}
