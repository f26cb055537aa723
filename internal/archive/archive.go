// Package archive manages the local on-disk archive of fetched readings.
// Every fetched batch is persisted three ways: the raw API payload for
// audit (array JSON), and one gzip-compressed JSON-lines file per unit
// representation for replay. Files are named {fromMillis}_{toMillis} after
// the span they cover and are retained indefinitely; backfill replays them
// instead of re-querying the upstream API.
package archive

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/DrMrsMoo/ambient-weather-heiligers/internal/types"
)

const (
	dirRaw      = "ambient-raw"
	rawSuffix   = ".json"
	linesSuffix = ".jsonl.gz"
)

// Archive is the local filesystem archive rooted at one directory.
type Archive struct {
	root   string
	logger *slog.Logger
}

// New creates an Archive rooted at dir.
func New(dir string, logger *slog.Logger) *Archive {
	if logger == nil {
		logger = slog.Default()
	}
	return &Archive{root: dir, logger: logger}
}

func (a *Archive) categoryDir(cat types.Category) string {
	return filepath.Join(a.root, string(cat))
}

// span is one archive file's covered range, parsed from its name.
type span struct {
	from, to int64
	path     string
}

// parseSpan extracts the {from}_{to} range from an archive file name.
func parseSpan(name string) (span, bool) {
	stem := strings.TrimSuffix(strings.TrimSuffix(name, linesSuffix), rawSuffix)
	parts := strings.SplitN(stem, "_", 2)
	if len(parts) != 2 {
		return span{}, false
	}
	from, err1 := strconv.ParseInt(parts[0], 10, 64)
	to, err2 := strconv.ParseInt(parts[1], 10, 64)
	if err1 != nil || err2 != nil || to < from {
		return span{}, false
	}
	return span{from: from, to: to}, true
}

// listSpans returns the parsed file spans in dir, sorted by from ascending.
// A missing directory is an empty archive, not an error.
func (a *Archive) listSpans(dir string) ([]span, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeArchiveRead,
			fmt.Sprintf("listing archive directory %s", dir), err)
	}

	var spans []span
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		s, ok := parseSpan(e.Name())
		if !ok {
			continue
		}
		s.path = filepath.Join(dir, e.Name())
		spans = append(spans, s)
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].from < spans[j].from })
	return spans, nil
}

// SaveRaw persists the as-fetched payload as an array-JSON audit file in
// the raw directory.
func (a *Archive) SaveRaw(batch *types.Batch) error {
	if batch.Empty() {
		return nil
	}
	dir := filepath.Join(a.root, dirRaw)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return types.NewAppError(types.ErrCodeArchiveWrite, "creating raw archive directory", err)
	}

	data, err := json.Marshal(batch.Readings)
	if err != nil {
		return types.NewAppError(types.ErrCodeArchiveWrite, "marshaling raw batch", err)
	}

	path := filepath.Join(dir, batch.FileName()+rawSuffix)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return types.NewAppError(types.ErrCodeArchiveWrite,
			fmt.Sprintf("writing raw archive file %s", path), err)
	}

	a.logger.Info("raw batch archived", "path", path, "readings", len(batch.Readings))
	return nil
}

// SaveBatch persists one unit representation of a batch as a compressed
// JSON-lines file in its category directory.
func (a *Archive) SaveBatch(batch *types.Batch) error {
	if batch.Empty() {
		return nil
	}
	if !batch.Category.Valid() {
		return types.NewAppError(types.ErrCodeValidationCategory,
			fmt.Sprintf("cannot archive batch with category %q", batch.Category), nil)
	}

	dir := a.categoryDir(batch.Category)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return types.NewAppError(types.ErrCodeArchiveWrite, "creating archive directory", err)
	}

	path := filepath.Join(dir, batch.FileName()+linesSuffix)
	f, err := os.Create(path)
	if err != nil {
		return types.NewAppError(types.ErrCodeArchiveWrite,
			fmt.Sprintf("creating archive file %s", path), err)
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	enc := json.NewEncoder(gz)
	for _, r := range batch.Readings {
		if err := enc.Encode(r); err != nil {
			gz.Close()
			return types.NewAppError(types.ErrCodeArchiveWrite, "encoding archived reading", err)
		}
	}
	if err := gz.Close(); err != nil {
		return types.NewAppError(types.ErrCodeArchiveWrite, "flushing archive file", err)
	}

	a.logger.Info("batch archived",
		"category", string(batch.Category),
		"path", path,
		"readings", len(batch.Readings),
	)
	return nil
}

// loadFile reads one compressed JSON-lines archive file.
func loadFile(path string) ([]types.Reading, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeArchiveRead,
			fmt.Sprintf("opening archive file %s", path), err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeArchiveRead,
			fmt.Sprintf("reading archive file %s", path), err)
	}
	defer gz.Close()

	var readings []types.Reading
	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var r types.Reading
		if err := json.Unmarshal([]byte(line), &r); err != nil {
			return nil, types.NewAppError(types.ErrCodeArchiveRead,
				fmt.Sprintf("decoding archived reading in %s", path), err)
		}
		readings = append(readings, r)
	}
	if err := scanner.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeArchiveRead,
			fmt.Sprintf("scanning archive file %s", path), err)
	}
	return readings, nil
}

// LoadRange loads all archived readings for a category whose timestamps
// lie strictly inside (startMillis, endMillis). Strict exclusivity keeps
// the boundary documents a gap was located against out of the replay.
// Duplicate timestamps across overlapping files are collapsed; the result
// is sorted ascending.
func (a *Archive) LoadRange(cat types.Category, startMillis, endMillis int64) ([]types.Reading, error) {
	spans, err := a.listSpans(a.categoryDir(cat))
	if err != nil {
		return nil, err
	}

	byTimestamp := make(map[int64]types.Reading)
	for _, s := range spans {
		if s.to <= startMillis || s.from >= endMillis {
			continue
		}
		readings, err := loadFile(s.path)
		if err != nil {
			return nil, err
		}
		for _, r := range readings {
			if r.TimestampMillis > startMillis && r.TimestampMillis < endMillis {
				byTimestamp[r.TimestampMillis] = r
			}
		}
	}

	out := make([]types.Reading, 0, len(byTimestamp))
	for _, r := range byTimestamp {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].TimestampMillis < out[j].TimestampMillis
	})
	return out, nil
}

// Covers reports whether the category's archive files cover the span
// [fromMillis, toMillis] without any hole larger than toleranceMillis.
func (a *Archive) Covers(cat types.Category, fromMillis, toMillis, toleranceMillis int64) (bool, error) {
	spans, err := a.listSpans(a.categoryDir(cat))
	if err != nil {
		return false, err
	}
	if len(spans) == 0 {
		return false, nil
	}

	covered := fromMillis
	for _, s := range spans {
		if s.to <= covered {
			continue
		}
		if s.from > covered+toleranceMillis {
			return false, nil
		}
		if s.to > covered {
			covered = s.to
		}
		if covered >= toMillis {
			return true, nil
		}
	}
	return covered >= toMillis, nil
}

// NewestCoveredMillis returns the most recent timestamp any raw archive
// file covers. This drives the fetch cooldown and the fallback fetch
// origin when no cluster has a boundary yet.
func (a *Archive) NewestCoveredMillis() (int64, bool) {
	spans, err := a.listSpans(filepath.Join(a.root, dirRaw))
	if err != nil || len(spans) == 0 {
		return 0, false
	}
	newest := int64(0)
	for _, s := range spans {
		if s.to > newest {
			newest = s.to
		}
	}
	return newest, true
}
