// Package sync implements the core of the pipeline: boundary resolution,
// gap-free fetching from the upstream source, and idempotent, independently
// failing commits into each destination cluster.
package sync

import (
	"context"

	"github.com/DrMrsMoo/ambient-weather-heiligers/internal/types"
)

// ClusterStore abstracts one destination cluster's storage engine. One
// handle per cluster is constructed at startup and passed explicitly
// through the call chain; there is no shared client state between
// clusters. *escluster.Client satisfies this interface.
type ClusterStore interface {
	// Name identifies the cluster in logs and reports.
	Name() string
	// LatestDocument returns the most recent stored reading for a
	// category, or nil when the category holds no documents yet.
	LatestDocument(ctx context.Context, cat types.Category) (*types.Reading, error)
	// RangeSearch returns stored readings inside [gte, lte], sorted by
	// timestamp. A negative bound leaves that side unbounded.
	RangeSearch(ctx context.Context, cat types.Category, gte, lte int64, ascending bool, size int) ([]types.Reading, error)
	// BulkWrite submits readings in one bulk call. Per-document
	// rejections are returned, never raised as the call's error.
	BulkWrite(ctx context.Context, cat types.Category, readings []types.Reading) ([]types.BulkError, error)
	// Count returns the post-write total for a category, used as a
	// commit confirmation signal.
	Count(ctx context.Context, cat types.Category) (int64, error)
}

// DeviceAPI abstracts the upstream weather source. It enumerates
// backwards in time: one call returns up to limit readings at or before
// anchorMillis. *external.AmbientClient satisfies this interface.
type DeviceAPI interface {
	DeviceData(ctx context.Context, anchorMillis int64, limit int) ([]types.Reading, error)
}

// ArchiveStore abstracts the local archive collaborator.
// *archive.Archive satisfies this interface.
type ArchiveStore interface {
	SaveRaw(batch *types.Batch) error
	SaveBatch(batch *types.Batch) error
	LoadRange(cat types.Category, startMillis, endMillis int64) ([]types.Reading, error)
	Covers(cat types.Category, fromMillis, toMillis, toleranceMillis int64) (bool, error)
	NewestCoveredMillis() (int64, bool)
}
