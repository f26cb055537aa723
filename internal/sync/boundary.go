package sync

import (
	"context"
	"log/slog"

	"github.com/DrMrsMoo/ambient-weather-heiligers/internal/types"
)

// BoundaryResolver determines the most recent durably-stored timestamp
// for one (cluster, category) pair.
type BoundaryResolver struct {
	logger *slog.Logger
}

// NewBoundaryResolver creates a BoundaryResolver.
func NewBoundaryResolver(logger *slog.Logger) *BoundaryResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &BoundaryResolver{logger: logger}
}

// Resolve queries the cluster's most recent document for the category.
//
// Query failures are downgraded to an absent boundary, never returned:
// callers must treat "no documents yet" and "cluster unreachable"
// identically, falling back to the conservative fetch origin. Anything
// else would either silently skip the cluster or overfill it with
// duplicates on the next healthy run.
func (br *BoundaryResolver) Resolve(ctx context.Context, store ClusterStore, cat types.Category) types.Boundary {
	doc, err := store.LatestDocument(ctx, cat)
	if err != nil {
		br.logger.WarnContext(ctx, "boundary resolution failed, treating as absent",
			"cluster", store.Name(),
			"category", string(cat),
			"error", err,
		)
		return types.Boundary{}
	}
	if doc == nil {
		br.logger.InfoContext(ctx, "no boundary yet for category",
			"cluster", store.Name(),
			"category", string(cat),
		)
		return types.Boundary{}
	}

	return types.Boundary{Millis: doc.TimestampMillis, Present: true}
}
