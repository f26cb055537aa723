package sync

import (
	"context"
	"log/slog"

	"github.com/DrMrsMoo/ambient-weather-heiligers/internal/types"
)

// Committer wraps one cluster's write path. Failures are captured in the
// returned CommitResult and never escape this boundary, so one cluster's
// outage cannot prevent, delay, or alter a sibling cluster's commit.
type Committer struct {
	logger *slog.Logger
}

// NewCommitter creates a Committer.
func NewCommitter(logger *slog.Logger) *Committer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Committer{logger: logger}
}

// Commit bulk-writes the readings to one (cluster, category) pair and
// queries the resulting total as a confirmation signal. The input must
// already be filtered to the cluster's own boundary.
//
// An empty input is a successful no-op: zero written, zero errors.
// Per-document rejections reduce Written but never fail the commit.
func (c *Committer) Commit(ctx context.Context, store ClusterStore, cat types.Category, readings []types.Reading) types.CommitResult {
	result := types.CommitResult{
		Cluster:  store.Name(),
		Category: cat,
	}

	if len(readings) == 0 {
		c.logger.InfoContext(ctx, "nothing to commit",
			"cluster", store.Name(),
			"category", string(cat),
		)
		return result
	}

	result.Attempted = len(readings)

	rejected, err := store.BulkWrite(ctx, cat, readings)
	if err != nil {
		c.logger.ErrorContext(ctx, "bulk write failed",
			"cluster", store.Name(),
			"category", string(cat),
			"attempted", result.Attempted,
			"error", err,
		)
		result.Err = err
		return result
	}

	result.Errored = rejected
	result.Written = result.Attempted - len(rejected)

	// The post-write count is a confirmation signal only; failing to
	// read it does not undo a successful write.
	total, err := store.Count(ctx, cat)
	if err != nil {
		c.logger.WarnContext(ctx, "post-commit count failed",
			"cluster", store.Name(),
			"category", string(cat),
			"error", err,
		)
		result.TotalAfter = -1
	} else {
		result.TotalAfter = total
	}

	c.logger.InfoContext(ctx, "commit complete",
		"cluster", store.Name(),
		"category", string(cat),
		"written", result.Written,
		"rejected", len(rejected),
		"total_after", result.TotalAfter,
	)
	return result
}
