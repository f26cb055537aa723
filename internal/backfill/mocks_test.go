package backfill

import (
	"context"
	"log/slog"
	"os"
	stdsync "sync"
	"time"

	"github.com/DrMrsMoo/ambient-weather-heiligers/internal/types"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

func fixedNow(millis int64) func() time.Time {
	return func() time.Time { return time.UnixMilli(millis).UTC() }
}

// mockStore is an in-memory cluster. Documents are kept in insertion
// order; tests seed ascending timestamps.
type mockStore struct {
	mu   stdsync.Mutex
	name string
	docs map[types.Category][]types.Reading

	searchErr  error
	bulkErr    error
	bulkReject []types.BulkError
	bulkCalls  map[types.Category][][]types.Reading
}

func newMockStore(name string) *mockStore {
	return &mockStore{
		name:      name,
		docs:      make(map[types.Category][]types.Reading),
		bulkCalls: make(map[types.Category][][]types.Reading),
	}
}

func (m *mockStore) seed(cat types.Category, timestamps ...int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ts := range timestamps {
		m.docs[cat] = append(m.docs[cat], types.Reading{TimestampMillis: ts})
	}
}

func (m *mockStore) Name() string { return m.name }

func (m *mockStore) LatestDocument(_ context.Context, cat types.Category) (*types.Reading, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *types.Reading
	for i := range m.docs[cat] {
		r := m.docs[cat][i]
		if latest == nil || r.TimestampMillis > latest.TimestampMillis {
			latest = &r
		}
	}
	return latest, nil
}

func (m *mockStore) RangeSearch(_ context.Context, cat types.Category, gte, lte int64, ascending bool, size int) ([]types.Reading, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.searchErr != nil {
		return nil, m.searchErr
	}

	var matched []types.Reading
	for _, r := range m.docs[cat] {
		if gte >= 0 && r.TimestampMillis < gte {
			continue
		}
		if lte >= 0 && r.TimestampMillis > lte {
			continue
		}
		matched = append(matched, r)
	}
	if !ascending {
		for i, j := 0, len(matched)-1; i < j; i, j = i+1, j-1 {
			matched[i], matched[j] = matched[j], matched[i]
		}
	}
	if size > 0 && len(matched) > size {
		matched = matched[:size]
	}
	return matched, nil
}

func (m *mockStore) BulkWrite(_ context.Context, cat types.Category, readings []types.Reading) ([]types.BulkError, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bulkCalls[cat] = append(m.bulkCalls[cat], readings)
	if m.bulkErr != nil {
		return nil, m.bulkErr
	}
	m.docs[cat] = append(m.docs[cat], readings...)
	return m.bulkReject, nil
}

func (m *mockStore) Count(_ context.Context, cat types.Category) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.docs[cat])), nil
}

func (m *mockStore) written(cat types.Category) []types.Reading {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.Reading
	for _, call := range m.bulkCalls[cat] {
		out = append(out, call...)
	}
	return out
}

// mockSource is a canned Source recording the origins it was asked for.
type mockSource struct {
	batch   *types.Batch
	err     error
	origins []types.Boundary
	bypass  []bool
}

func (m *mockSource) Fetch(_ context.Context, origin types.Boundary, bypassCooldown bool) (*types.Batch, error) {
	m.origins = append(m.origins, origin)
	m.bypass = append(m.bypass, bypassCooldown)
	if m.err != nil {
		return nil, m.err
	}
	if m.batch != nil {
		return m.batch, nil
	}
	return &types.Batch{Category: types.CategoryImperial}, nil
}

// mockArchive is an in-memory ArchiveStore.
type mockArchive struct {
	readings []types.Reading // imperial, ascending
	loadErr  error
	saved    []*types.Batch
}

func (m *mockArchive) LoadRange(_ types.Category, startMillis, endMillis int64) ([]types.Reading, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	var out []types.Reading
	for _, r := range m.readings {
		if r.TimestampMillis > startMillis && r.TimestampMillis < endMillis {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockArchive) SaveBatch(batch *types.Batch) error {
	m.saved = append(m.saved, batch)
	return nil
}

// recordingConfirmer answers with a fixed verdict and records prompts.
type recordingConfirmer struct {
	approve  bool
	clusters []string
	gaps     []types.Gap
}

func (c *recordingConfirmer) Confirm(cluster string, gap types.Gap) bool {
	c.clusters = append(c.clusters, cluster)
	c.gaps = append(c.gaps, gap)
	return c.approve
}

func readingsAt(timestamps ...int64) []types.Reading {
	out := make([]types.Reading, 0, len(timestamps))
	for _, ts := range timestamps {
		v := 41.0
		out = append(out, types.Reading{TimestampMillis: ts, TempF: &v})
	}
	return out
}
