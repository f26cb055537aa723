package escluster

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/DrMrsMoo/ambient-weather-heiligers/internal/types"
)

// bulkResponse is the subset of the _bulk response the client reads.
type bulkResponse struct {
	Errors bool `json:"errors"`
	Items  []map[string]struct {
		ID     string `json:"_id"`
		Status int    `json:"status"`
		Error  *struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	} `json:"items"`
}

// BulkWrite submits the readings to the category's write index in one
// _bulk call. The document ID is the reading's timestamp, so replaying
// the same reading overwrites rather than duplicates.
//
// Individual document rejections (schema mismatch, malformed field) are
// expected and returned in the BulkError slice; they never fail the call.
// A transport failure or a rejected request as a whole returns an error.
func (c *Client) BulkWrite(ctx context.Context, cat types.Category, readings []types.Reading) ([]types.BulkError, error) {
	if len(readings) == 0 {
		return nil, nil
	}

	index := c.WriteIndex(cat)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, r := range readings {
		action := map[string]any{
			"index": map[string]any{
				"_index": index,
				"_id":    strconv.FormatInt(r.TimestampMillis, 10),
			},
		}
		if err := enc.Encode(action); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "encoding bulk action", err)
		}
		if err := enc.Encode(r); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "encoding bulk document", err)
		}
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/_bulk", buf.Bytes())
	if err != nil {
		return nil, err
	}
	// The bulk endpoint requires NDJSON, not plain JSON.
	req.Header.Set("Content-Type", "application/x-ndjson")

	var br bulkResponse
	if err := c.do(req, &br); err != nil {
		return nil, types.NewAppError(types.ErrCodeClusterBulk,
			fmt.Sprintf("bulk write to %s on cluster %s failed", index, c.cfg.Name), err)
	}

	if !br.Errors {
		return nil, nil
	}

	var rejected []types.BulkError
	for _, item := range br.Items {
		for _, result := range item {
			if result.Error == nil {
				continue
			}
			ts, _ := strconv.ParseInt(result.ID, 10, 64)
			rejected = append(rejected, types.BulkError{
				TimestampMillis: ts,
				Status:          result.Status,
				Reason:          fmt.Sprintf("%s: %s", result.Error.Type, result.Error.Reason),
			})
		}
	}
	return rejected, nil
}
