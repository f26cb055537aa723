// Package backfill implements the operator-driven mode of the pipeline:
// locating historical gaps in a cluster's stored readings and filling
// them from the local archive or the upstream source.
package backfill

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/DrMrsMoo/ambient-weather-heiligers/internal/types"
)

// GapStore is the subset of cluster operations gap location needs.
// *escluster.Client satisfies this interface.
type GapStore interface {
	Name() string
	RangeSearch(ctx context.Context, cat types.Category, gte, lte int64, ascending bool, size int) ([]types.Reading, error)
}

// GapLocator finds the real extent of a missing span around a requested
// window. It anchors on stored boundary documents rather than the raw
// requested dates, so an operator confirms concrete timestamps and data
// adjacent to the window is never re-indexed.
type GapLocator struct {
	threshold time.Duration
	logger    *slog.Logger
}

// NewGapLocator creates a GapLocator. A gap is declared only when its
// span strictly exceeds threshold; a window already bracketed by
// documents that close together is considered fully covered.
func NewGapLocator(threshold time.Duration, logger *slog.Logger) *GapLocator {
	if logger == nil {
		logger = slog.Default()
	}
	return &GapLocator{threshold: threshold, logger: logger}
}

// Locate finds the last stored document at or before fromMillis and the
// first stored document at or after toMillis. When no document exists on
// a side, the requested bound itself is used. The gap is found only if
// the resulting span strictly exceeds the threshold; a span equal to the
// threshold means the window is already covered.
//
// Unlike live boundary resolution, a query failure here is returned to
// the caller: backfill is operator-driven and must not silently treat an
// unreachable cluster as an empty one.
func (g *GapLocator) Locate(ctx context.Context, store GapStore, cat types.Category, fromMillis, toMillis int64) (types.Gap, error) {
	gap := types.Gap{StartMillis: fromMillis, EndMillis: toMillis}

	before, err := store.RangeSearch(ctx, cat, -1, fromMillis, false, 1)
	if err != nil {
		return types.Gap{}, fmt.Errorf("locating last document before window on %s/%s: %w", store.Name(), cat, err)
	}
	if len(before) > 0 {
		gap.StartMillis = before[0].TimestampMillis
	}

	after, err := store.RangeSearch(ctx, cat, toMillis, -1, true, 1)
	if err != nil {
		return types.Gap{}, fmt.Errorf("locating first document after window on %s/%s: %w", store.Name(), cat, err)
	}
	if len(after) > 0 {
		gap.EndMillis = after[0].TimestampMillis
	}

	gap.Found = gap.EndMillis-gap.StartMillis > g.threshold.Milliseconds()

	g.logger.InfoContext(ctx, "gap located",
		"cluster", store.Name(),
		"category", string(cat),
		"start", gap.StartMillis,
		"end", gap.EndMillis,
		"span", gap.Duration().String(),
		"found", gap.Found,
	)
	return gap, nil
}
