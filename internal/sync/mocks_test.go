package sync

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/DrMrsMoo/ambient-weather-heiligers/internal/types"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

func f64(v float64) *float64 { return &v }

func fixedNow(millis int64) func() time.Time {
	return func() time.Time { return time.UnixMilli(millis).UTC() }
}

// mockStore is an in-memory ClusterStore. Documents are kept sorted by
// insertion; queries scan linearly, which is plenty for test sizes.
type mockStore struct {
	mu   sync.Mutex
	name string
	docs map[types.Category][]types.Reading

	latestErr   error
	bulkErr     error
	countErr    error
	bulkReject  []types.BulkError
	bulkCalls   map[types.Category][][]types.Reading
	latestCalls int
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
	m.latestCalls++
	if m.latestErr != nil {
		return nil, m.latestErr
	}
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
	if m.latestErr != nil {
		return nil, m.latestErr
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

	// Insertion order in tests is ascending; reverse for desc queries.
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
	rejectedAt := make(map[int64]bool, len(m.bulkReject))
	for _, rej := range m.bulkReject {
		rejectedAt[rej.TimestampMillis] = true
	}
	for _, r := range readings {
		if !rejectedAt[r.TimestampMillis] {
			m.docs[cat] = append(m.docs[cat], r)
		}
	}
	return m.bulkReject, nil
}

func (m *mockStore) Count(_ context.Context, cat types.Category) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.countErr != nil {
		return 0, m.countErr
	}
	return int64(len(m.docs[cat])), nil
}

// written returns the readings passed to BulkWrite for a category,
// flattened across calls.
func (m *mockStore) written(cat types.Category) []types.Reading {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.Reading
	for _, call := range m.bulkCalls[cat] {
		out = append(out, call...)
	}
	return out
}

// mockDevice is a DeviceAPI returning canned pages. Each DeviceData call
// answers with the readings at or before the anchor, newest window first,
// honoring the page limit like the real API.
type mockDevice struct {
	mu       sync.Mutex
	readings []types.Reading // ascending
	err      error
	calls    []int64 // anchors received
}

func (m *mockDevice) DeviceData(_ context.Context, anchorMillis int64, limit int) ([]types.Reading, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, anchorMillis)
	if m.err != nil {
		return nil, m.err
	}

	var eligible []types.Reading
	for _, r := range m.readings {
		if r.TimestampMillis <= anchorMillis {
			eligible = append(eligible, r)
		}
	}
	// Backwards enumeration: the page is the newest `limit` eligible
	// readings, returned ascending like the real client.
	if len(eligible) > limit {
		eligible = eligible[len(eligible)-limit:]
	}
	return eligible, nil
}

// mockArchive is an in-memory ArchiveStore.
type mockArchive struct {
	mu          sync.Mutex
	batches     map[types.Category][]*types.Batch
	rawBatches  []*types.Batch
	newest      int64
	hasNewest   bool
	coversValue bool
	coversErr   error
	loadErr     error
	saveErr     error
}

func newMockArchive() *mockArchive {
	return &mockArchive{batches: make(map[types.Category][]*types.Batch)}
}

func (m *mockArchive) SaveRaw(batch *types.Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.rawBatches = append(m.rawBatches, batch)
	return nil
}

func (m *mockArchive) SaveBatch(batch *types.Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.batches[batch.Category] = append(m.batches[batch.Category], batch)
	return nil
}

func (m *mockArchive) LoadRange(cat types.Category, startMillis, endMillis int64) ([]types.Reading, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	var out []types.Reading
	for _, b := range m.batches[cat] {
		for _, r := range b.Readings {
			if r.TimestampMillis > startMillis && r.TimestampMillis < endMillis {
				out = append(out, r)
			}
		}
	}
	return out, nil
}

func (m *mockArchive) Covers(types.Category, int64, int64, int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.coversValue, m.coversErr
}

func (m *mockArchive) NewestCoveredMillis() (int64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.newest, m.hasNewest
}
