package backfill

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/DrMrsMoo/ambient-weather-heiligers/internal/convert"
	"github.com/DrMrsMoo/ambient-weather-heiligers/internal/sync"
	"github.com/DrMrsMoo/ambient-weather-heiligers/internal/types"
)

// Source supplies readings newer than a reference point, with the live
// fetch cooldown bypassed for historical ranges. *sync.Fetcher satisfies
// this interface.
type Source interface {
	Fetch(ctx context.Context, origin types.Boundary, bypassCooldown bool) (*types.Batch, error)
}

// ArchiveStore is the subset of archive operations backfill needs.
// *archive.Archive satisfies this interface.
type ArchiveStore interface {
	LoadRange(cat types.Category, startMillis, endMillis int64) ([]types.Reading, error)
	SaveBatch(batch *types.Batch) error
}

// Orchestrator runs the backfill flow for one or more target clusters:
// locate the gap, gate it behind the Confirmer, source readings for the
// gap's span, and commit to that one cluster. Clusters are processed
// sequentially so an interactive prompt is always attributable to the
// cluster it gates, and each cluster's flow is isolated from its
// siblings' outcomes.
type Orchestrator struct {
	stores    []sync.ClusterStore
	locator   *GapLocator
	source    Source
	committer *sync.Committer
	archive   ArchiveStore
	confirmer Confirmer
	logger    *slog.Logger
	now       func() time.Time
}

// OrchestratorConfig holds the configuration for creating an Orchestrator.
type OrchestratorConfig struct {
	Stores    []sync.ClusterStore
	Locator   *GapLocator
	Source    Source
	Committer *sync.Committer
	Archive   ArchiveStore
	Confirmer Confirmer
	Logger    *slog.Logger
	Now       func() time.Time
}

// NewOrchestrator creates an Orchestrator with the given configuration.
func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	confirmer := cfg.Confirmer
	if confirmer == nil {
		confirmer = AutoConfirmer{}
	}
	return &Orchestrator{
		stores:    cfg.Stores,
		locator:   cfg.Locator,
		source:    cfg.Source,
		committer: cfg.Committer,
		archive:   cfg.Archive,
		confirmer: confirmer,
		logger:    logger,
		now:       now,
	}
}

// Run backfills the requested window on every target cluster.
//
// The returned error is non-nil only when sourcing data failed hard for
// at least one cluster (nothing was obtained to commit there). A covered
// window, an operator decline, and per-cluster commit failures are all
// normal completions, reported per cluster in the RunReport.
func (o *Orchestrator) Run(ctx context.Context, fromMillis, toMillis int64) (*types.RunReport, error) {
	report := &types.RunReport{
		RunID:     uuid.New().String(),
		Mode:      "backfill",
		StartedAt: o.now().UTC(),
	}

	var fatal error
	for _, store := range o.stores {
		if err := o.backfillCluster(ctx, report, store, fromMillis, toMillis); err != nil {
			fatal = errors.Join(fatal, err)
		}
	}

	report.FinishedAt = o.now().UTC()
	o.logger.InfoContext(ctx, "backfill run complete",
		"run_id", report.RunID,
		"from", fromMillis,
		"to", toMillis,
		"results", len(report.Results),
		"errored", report.Errored(),
	)
	return report, fatal
}

// backfillCluster runs the full locate, confirm, source, commit flow for
// one cluster. The returned error marks a hard sourcing failure only;
// everything else lands in the report.
func (o *Orchestrator) backfillCluster(ctx context.Context, report *types.RunReport, store sync.ClusterStore, fromMillis, toMillis int64) error {
	gaps := make(map[types.Category]types.Gap, 2)
	var widest types.Gap

	for _, cat := range types.Categories() {
		gap, err := o.locator.Locate(ctx, store, cat, fromMillis, toMillis)
		if err != nil {
			report.Add(types.ClusterResult{
				Cluster:  store.Name(),
				Category: cat,
				Status:   types.StatusError,
				Reason:   fmt.Sprintf("gap location failed: %v", err),
			})
			continue
		}
		gaps[cat] = gap
		if gap.Found {
			widest = widenGap(widest, gap)
		}
	}

	if !widest.Found {
		for cat := range gaps {
			report.Add(types.ClusterResult{
				Cluster:  store.Name(),
				Category: cat,
				Status:   types.StatusSkipped,
				Reason:   "window already covered",
			})
		}
		o.logger.InfoContext(ctx, "backfill already complete", "cluster", store.Name())
		return nil
	}

	if !o.confirmer.Confirm(store.Name(), widest) {
		for cat := range gaps {
			report.Add(types.ClusterResult{
				Cluster:  store.Name(),
				Category: cat,
				Status:   types.StatusCancelled,
				Reason:   "operator declined",
			})
		}
		o.logger.InfoContext(ctx, "backfill declined by operator", "cluster", store.Name())
		return nil
	}

	// One sourcing pass covers the widest gap; each category's commit is
	// filtered back down to its own located span.
	readings, err := o.sourceReadings(ctx, widest)
	if err != nil {
		for cat := range gaps {
			report.Add(types.ClusterResult{
				Cluster:  store.Name(),
				Category: cat,
				Status:   types.StatusError,
				Reason:   fmt.Sprintf("sourcing failed: %v", err),
			})
		}
		return fmt.Errorf("sourcing backfill data for %s: %w", store.Name(), err)
	}

	imperial := &types.Batch{Category: types.CategoryImperial, Readings: readings}
	if len(readings) > 0 {
		imperial.FromMillis = readings[0].TimestampMillis
		imperial.ToMillis = readings[len(readings)-1].TimestampMillis
	}
	byCategory := map[types.Category]*types.Batch{
		types.CategoryImperial: imperial,
		types.CategoryMetric:   convert.BatchToMetric(imperial),
	}

	for _, cat := range types.Categories() {
		gap, ok := gaps[cat]
		if !ok {
			continue // locate already reported the error for this slot
		}
		if !gap.Found {
			report.Add(types.ClusterResult{
				Cluster:  store.Name(),
				Category: cat,
				Status:   types.StatusSkipped,
				Reason:   "window already covered",
			})
			continue
		}

		inside := filterInsideGap(byCategory[cat].Readings, gap)
		commit := o.committer.Commit(ctx, store, cat, inside)
		report.Add(commitResultLine(commit))
	}
	return nil
}

// sourceReadings obtains the imperial readings strictly inside the gap,
// local archive first, falling back to the upstream source with the
// cooldown bypassed. Freshly fetched data is archived in both unit
// representations so a repeated backfill replays from disk.
func (o *Orchestrator) sourceReadings(ctx context.Context, gap types.Gap) ([]types.Reading, error) {
	readings, err := o.archive.LoadRange(types.CategoryImperial, gap.StartMillis, gap.EndMillis)
	if err != nil {
		o.logger.WarnContext(ctx, "archive load failed, falling back to upstream", "error", err)
	} else if len(readings) > 0 {
		o.logger.InfoContext(ctx, "backfill sourced from local archive", "readings", len(readings))
		return readings, nil
	}

	batch, err := o.source.Fetch(ctx, types.Boundary{Millis: gap.StartMillis, Present: true}, true)
	if err != nil {
		return nil, err
	}

	// Fetch covers (start, now]; the gap is bounded above by a real
	// stored document, which must not be re-included.
	inside := filterInsideGap(batch.Readings, gap)
	if len(inside) == 0 {
		return inside, nil
	}

	imperial := &types.Batch{
		Category:   types.CategoryImperial,
		FromMillis: inside[0].TimestampMillis,
		ToMillis:   inside[len(inside)-1].TimestampMillis,
		Readings:   inside,
	}
	for _, b := range []*types.Batch{imperial, convert.BatchToMetric(imperial)} {
		if err := o.archive.SaveBatch(b); err != nil {
			o.logger.WarnContext(ctx, "failed to archive backfill batch",
				"category", string(b.Category),
				"error", err,
			)
		}
	}
	return inside, nil
}

// filterInsideGap keeps readings strictly between the gap's bounds. Both
// bounds are real stored documents (or the operator's requested dates)
// and must never be re-committed.
func filterInsideGap(readings []types.Reading, gap types.Gap) []types.Reading {
	out := make([]types.Reading, 0, len(readings))
	for _, r := range readings {
		if r.TimestampMillis > gap.StartMillis && r.TimestampMillis < gap.EndMillis {
			out = append(out, r)
		}
	}
	return out
}

// widenGap merges two found gaps into the span covering both.
func widenGap(a, b types.Gap) types.Gap {
	if !a.Found {
		return b
	}
	if b.StartMillis < a.StartMillis {
		a.StartMillis = b.StartMillis
	}
	if b.EndMillis > a.EndMillis {
		a.EndMillis = b.EndMillis
	}
	return a
}

// commitResultLine maps a CommitResult onto one report line.
func commitResultLine(commit types.CommitResult) types.ClusterResult {
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
