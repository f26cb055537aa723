package sync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/DrMrsMoo/ambient-weather-heiligers/internal/types"
)

// defaultLookback bounds the first-ever fetch when neither a cluster
// boundary nor a local archive file exists to anchor it.
const defaultLookback = 24 * time.Hour

// maxFetchPages caps how far back a single run pages through the API, so
// a wildly stale boundary cannot turn one cron run into an unbounded
// crawl. 40 pages at the API's 288-record cap is over a week of readings.
const maxFetchPages = 40

// Fetcher obtains readings newer than a reference point, preferring the
// local archive over the upstream API, and enforces the minimum fetch
// cooldown for live runs.
type Fetcher struct {
	device    DeviceAPI
	archive   ArchiveStore
	cooldown  time.Duration
	pageLimit int
	logger    *slog.Logger
	now       func() time.Time
}

// FetcherConfig holds the configuration for creating a Fetcher.
type FetcherConfig struct {
	Device    DeviceAPI
	Archive   ArchiveStore
	Cooldown  time.Duration
	PageLimit int
	Logger    *slog.Logger
	Now       func() time.Time // defaults to time.Now; injectable for tests
}

// NewFetcher creates a Fetcher with the given configuration.
func NewFetcher(cfg FetcherConfig) *Fetcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Fetcher{
		device:    cfg.Device,
		archive:   cfg.Archive,
		cooldown:  cfg.Cooldown,
		pageLimit: cfg.PageLimit,
		logger:    logger,
		now:       now,
	}
}

// Fetch returns the imperial batch of readings with timestamps strictly
// inside (origin, now].
//
// When bypassCooldown is false and less than the cooldown has elapsed
// since the newest archived fetch, Fetch returns types.ErrTooEarly - a
// normal outcome for a cron schedule tighter than the station's sampling
// rate, not a failure.
//
// When origin is absent (first run, or every cluster unreachable), the
// fetch anchors on the newest local archive file, or defaultLookback ago
// if the archive is empty too.
//
// Upstream transport failure is a hard failure: no data was obtained, so
// the run has nothing to commit.
func (f *Fetcher) Fetch(ctx context.Context, origin types.Boundary, bypassCooldown bool) (*types.Batch, error) {
	nowMillis := f.now().UTC().UnixMilli()

	if !bypassCooldown {
		if newest, ok := f.archive.NewestCoveredMillis(); ok {
			elapsed := time.Duration(nowMillis-newest) * time.Millisecond
			if elapsed < f.cooldown {
				f.logger.InfoContext(ctx, "fetch cooldown active",
					"elapsed", elapsed.String(),
					"cooldown", f.cooldown.String(),
				)
				return nil, fmt.Errorf("last fetch %s ago: %w", elapsed, types.ErrTooEarly)
			}
		}
	}

	originMillis := f.resolveOrigin(ctx, origin, nowMillis)

	// Local-first: replaying archive files avoids upstream calls and
	// respects the API's rate limits.
	covered, err := f.archive.Covers(types.CategoryImperial, originMillis, nowMillis, f.cooldown.Milliseconds())
	if err != nil {
		f.logger.WarnContext(ctx, "archive coverage check failed, falling back to API", "error", err)
	} else if covered {
		readings, err := f.archive.LoadRange(types.CategoryImperial, originMillis, nowMillis+1)
		if err == nil {
			f.logger.InfoContext(ctx, "loaded readings from local archive",
				"origin", originMillis,
				"readings", len(readings),
			)
			return buildBatch(readings, originMillis), nil
		}
		f.logger.WarnContext(ctx, "archive load failed, falling back to API", "error", err)
	}

	readings, err := f.fetchFromAPI(ctx, originMillis, nowMillis)
	if err != nil {
		return nil, err
	}

	batch := buildBatch(readings, originMillis)

	// Archive the raw fetch for audit and replay. A write failure is not
	// worth losing the commit over.
	if err := f.archive.SaveRaw(batch); err != nil {
		f.logger.WarnContext(ctx, "failed to archive raw batch", "error", err)
	}

	return batch, nil
}

// resolveOrigin picks the reference point the fetch must reach back to.
func (f *Fetcher) resolveOrigin(ctx context.Context, origin types.Boundary, nowMillis int64) int64 {
	if origin.Present {
		return origin.Millis
	}
	if newest, ok := f.archive.NewestCoveredMillis(); ok {
		f.logger.InfoContext(ctx, "no cluster boundary, anchoring fetch on local archive",
			"archive_newest", newest,
		)
		return newest
	}
	fallback := nowMillis - defaultLookback.Milliseconds()
	f.logger.InfoContext(ctx, "no cluster boundary and empty archive, using default lookback",
		"origin", fallback,
	)
	return fallback
}

// fetchFromAPI pages backwards from now until the span back to
// originMillis is covered, then discards anything outside (origin, now].
func (f *Fetcher) fetchFromAPI(ctx context.Context, originMillis, nowMillis int64) ([]types.Reading, error) {
	var collected []types.Reading
	anchor := nowMillis

	for page := 0; page < maxFetchPages; page++ {
		readings, err := f.device.DeviceData(ctx, anchor, f.pageLimit)
		if err != nil {
			return nil, fmt.Errorf("fetching device data (anchor %d): %w", anchor, err)
		}
		if len(readings) == 0 {
			break
		}

		// DeviceData returns ascending; prepend to keep global order.
		collected = append(readings, collected...)

		oldest := readings[0].TimestampMillis
		if oldest <= originMillis || len(readings) < f.pageLimit {
			break
		}
		anchor = oldest - 1
	}

	filtered := make([]types.Reading, 0, len(collected))
	for _, r := range collected {
		if r.TimestampMillis > originMillis && r.TimestampMillis <= nowMillis {
			filtered = append(filtered, r)
		}
	}

	f.logger.InfoContext(ctx, "fetched readings from upstream",
		"origin", originMillis,
		"collected", len(collected),
		"in_range", len(filtered),
	)
	return filtered, nil
}

// buildBatch wraps readings into an imperial batch named after the span
// of data it actually holds.
func buildBatch(readings []types.Reading, originMillis int64) *types.Batch {
	batch := &types.Batch{
		Category:   types.CategoryImperial,
		FromMillis: originMillis,
		ToMillis:   originMillis,
		Readings:   readings,
	}
	if len(readings) > 0 {
		batch.FromMillis = readings[0].TimestampMillis
		batch.ToMillis = readings[len(readings)-1].TimestampMillis
	}
	return batch
}
