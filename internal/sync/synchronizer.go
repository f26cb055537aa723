package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/DrMrsMoo/ambient-weather-heiligers/internal/convert"
	"github.com/DrMrsMoo/ambient-weather-heiligers/internal/types"
)

// Synchronizer orchestrates one live run: resolve every cluster's
// boundary, fetch once from the conservative safe origin, convert, then
// replay the batch into each cluster independently.
type Synchronizer struct {
	stores    []ClusterStore
	fetcher   *Fetcher
	resolver  *BoundaryResolver
	committer *Committer
	archive   ArchiveStore
	logger    *slog.Logger
	now       func() time.Time
}

// SynchronizerConfig holds the configuration for creating a Synchronizer.
type SynchronizerConfig struct {
	Stores    []ClusterStore
	Fetcher   *Fetcher
	Resolver  *BoundaryResolver
	Committer *Committer
	Archive   ArchiveStore
	Logger    *slog.Logger
	Now       func() time.Time
}

// NewSynchronizer creates a Synchronizer with the given configuration.
func NewSynchronizer(cfg SynchronizerConfig) *Synchronizer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Synchronizer{
		stores:    cfg.Stores,
		fetcher:   cfg.Fetcher,
		resolver:  cfg.Resolver,
		committer: cfg.Committer,
		archive:   cfg.Archive,
		logger:    logger,
		now:       now,
	}
}

// boundaryKey identifies one (cluster, category) boundary slot.
type boundaryKey struct {
	cluster  string
	category types.Category
}

// Run executes one live synchronization pass.
//
// The returned error is non-nil only for a hard fetch failure: a
// TooEarly cooldown, an empty batch, and any number of per-cluster
// commit failures are all normal completions, reported per cluster in
// the RunReport.
func (s *Synchronizer) Run(ctx context.Context) (*types.RunReport, error) {
	report := &types.RunReport{
		RunID:     uuid.New().String(),
		Mode:      "live",
		StartedAt: s.now().UTC(),
	}

	boundaries := s.resolveBoundaries(ctx)
	origin := safeOrigin(boundaries)

	batch, err := s.fetcher.Fetch(ctx, origin, false)
	if err != nil {
		if errors.Is(err, types.ErrTooEarly) {
			// A normal outcome: the cron schedule is tighter than the
			// station's sampling rate. Nothing to commit.
			s.skipAll(report, "fetch cooldown active")
			report.FinishedAt = s.now().UTC()
			return report, nil
		}
		report.FinishedAt = s.now().UTC()
		return report, fmt.Errorf("fetch failed, aborting run: %w", err)
	}

	report.Fetched = len(batch.Readings)
	if batch.Empty() {
		s.skipAll(report, "no new readings")
		report.FinishedAt = s.now().UTC()
		return report, nil
	}

	metric := convert.BatchToMetric(batch)
	batches := map[types.Category]*types.Batch{
		types.CategoryImperial: batch,
		types.CategoryMetric:   metric,
	}

	// Persist both representations for audit and backfill replay;
	// archive failures must not block the commit.
	for _, b := range batches {
		if err := s.archive.SaveBatch(b); err != nil {
			s.logger.WarnContext(ctx, "failed to archive batch",
				"category", string(b.Category),
				"error", err,
			)
		}
	}

	s.commitAll(ctx, report, boundaries, batches)
	report.FinishedAt = s.now().UTC()

	s.logger.InfoContext(ctx, "live run complete",
		"run_id", report.RunID,
		"fetched", report.Fetched,
		"results", len(report.Results),
		"errored", report.Errored(),
	)
	return report, nil
}

// resolveBoundaries resolves every (cluster, category) boundary in
// parallel. Each resolution settles independently; a failed or absent
// boundary records "no constraint yet" for that slot and never aborts
// the run.
func (s *Synchronizer) resolveBoundaries(ctx context.Context) map[boundaryKey]types.Boundary {
	type slot struct {
		key      boundaryKey
		boundary types.Boundary
	}

	categories := types.Categories()
	slots := make([]slot, len(s.stores)*len(categories))

	g, gCtx := errgroup.WithContext(ctx)
	for i, store := range s.stores {
		for j, cat := range categories {
			idx := i*len(categories) + j
			store, cat := store, cat
			g.Go(func() error {
				slots[idx] = slot{
					key:      boundaryKey{cluster: store.Name(), category: cat},
					boundary: s.resolver.Resolve(gCtx, store, cat),
				}
				// Never propagate: every slot must settle.
				return nil
			})
		}
	}
	_ = g.Wait()

	boundaries := make(map[boundaryKey]types.Boundary, len(slots))
	for _, sl := range slots {
		boundaries[sl.key] = sl.boundary
	}
	return boundaries
}

// safeOrigin computes the single fetch origin: the oldest of the
// resolved boundaries. Using the minimum guarantees no cluster's needed
// range is skipped; any re-fetched span is discarded again by the
// per-cluster strict filter.
//
// Any absent slot forces an absent origin: that cluster may need data
// older than every sibling's boundary, so only the fetcher's own
// archive-driven anchor is a safe reference. A sibling's boundary must
// never substitute for it.
func safeOrigin(boundaries map[boundaryKey]types.Boundary) types.Boundary {
	var origin types.Boundary
	for _, b := range boundaries {
		if !b.Present {
			return types.Boundary{}
		}
		if !origin.Present || b.Millis < origin.Millis {
			origin = b
		}
	}
	return origin
}

// commitAll replays the batches into every cluster concurrently, one
// isolated failure domain per cluster. All outcomes settle; nothing
// short-circuits.
func (s *Synchronizer) commitAll(
	ctx context.Context,
	report *types.RunReport,
	boundaries map[boundaryKey]types.Boundary,
	batches map[types.Category]*types.Batch,
) {
	categories := types.Categories()
	results := make([][]types.ClusterResult, len(s.stores))

	g, gCtx := errgroup.WithContext(ctx)
	for i, store := range s.stores {
		i, store := i, store
		g.Go(func() error {
			for _, cat := range categories {
				boundary := boundaries[boundaryKey{cluster: store.Name(), category: cat}]
				readings := filterAfterBoundary(batches[cat].Readings, boundary)

				commit := s.committer.Commit(gCtx, store, cat, readings)
				results[i] = append(results[i], toClusterResult(commit))
			}
			// Commit errors are captured inside CommitResult; a cluster
			// failure must not cancel its siblings.
			return nil
		})
	}
	_ = g.Wait()

	for _, rs := range results {
		for _, r := range rs {
			report.Add(r)
		}
	}
}

// filterAfterBoundary keeps only readings strictly newer than the
// cluster's own boundary. This strict inequality is the sole duplicate
// prevention across repeated runs and across machines running the job
// concurrently; an at-or-before reading must never reach the committer.
func filterAfterBoundary(readings []types.Reading, boundary types.Boundary) []types.Reading {
	if !boundary.Present {
		return readings
	}
	out := make([]types.Reading, 0, len(readings))
	for _, r := range readings {
		if r.TimestampMillis > boundary.Millis {
			out = append(out, r)
		}
	}
	return out
}

// toClusterResult maps a CommitResult onto one report line.
func toClusterResult(commit types.CommitResult) types.ClusterResult {
	res := types.ClusterResult{
		Cluster:  commit.Cluster,
		Category: commit.Category,
		Written:  commit.Written,
	}
	if commit.Err != nil {
		res.Status = types.StatusError
		res.Reason = commit.Err.Error()
		return res
	}
	res.Status = types.StatusSuccess
	if len(commit.Errored) > 0 {
		res.Reason = fmt.Sprintf("%d documents rejected", len(commit.Errored))
	}
	return res
}

// skipAll records a run-level skip for every cluster and category.
func (s *Synchronizer) skipAll(report *types.RunReport, reason string) {
	for _, store := range s.stores {
		for _, cat := range types.Categories() {
			report.Add(types.ClusterResult{
				Cluster:  store.Name(),
				Category: cat,
				Status:   types.StatusSkipped,
				Reason:   reason,
			})
		}
	}
}
