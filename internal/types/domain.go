// Package types defines the shared domain model for the ambient-weather
// sync pipeline: readings, batches, boundaries, gaps, and the per-cluster
// result/report structures exchanged between the synchronizer, the backfill
// orchestrator, and the cluster clients.
package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// Category identifies one of the two parallel unit representations of the
// same physical readings.
type Category string

const (
	CategoryImperial Category = "imperial"
	CategoryMetric   Category = "metric"
)

// Categories lists every representation the pipeline maintains, in the
// order they are processed (imperial is the source representation).
func Categories() []Category {
	return []Category{CategoryImperial, CategoryMetric}
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	return c == CategoryImperial || c == CategoryMetric
}

// Reading is one timestamped measurement set from the weather station.
// TimestampMillis (the station's dateutc field) is the unique ordering key
// within a category. The known sensor fields are pointers so a document
// carries only the fields present for its representation; anything the
// station sends that is not modeled here round-trips through Extra.
type Reading struct {
	TimestampMillis int64  `json:"dateutc"`
	Date            string `json:"date,omitempty"`
	Location        string `json:"loc,omitempty"`
	LastRain        string `json:"lastRain,omitempty"`

	// Unit-independent fields.
	Humidity       *float64 `json:"humidity,omitempty"`
	HumidityIn     *float64 `json:"humidityin,omitempty"`
	WindDir        *float64 `json:"winddir,omitempty"`
	SolarRadiation *float64 `json:"solarradiation,omitempty"`
	UV             *float64 `json:"uv,omitempty"`
	BattOut        *float64 `json:"battout,omitempty"`

	// Imperial representation.
	TempF         *float64 `json:"tempf,omitempty"`
	TempInF       *float64 `json:"tempinf,omitempty"`
	BaromRelIn    *float64 `json:"baromrelin,omitempty"`
	BaromAbsIn    *float64 `json:"baromabsin,omitempty"`
	WindSpeedMPH  *float64 `json:"windspeedmph,omitempty"`
	WindGustMPH   *float64 `json:"windgustmph,omitempty"`
	MaxDailyGust  *float64 `json:"maxdailygust,omitempty"`
	HourlyRainIn  *float64 `json:"hourlyrainin,omitempty"`
	DailyRainIn   *float64 `json:"dailyrainin,omitempty"`
	WeeklyRainIn  *float64 `json:"weeklyrainin,omitempty"`
	MonthlyRainIn *float64 `json:"monthlyrainin,omitempty"`
	TotalRainIn   *float64 `json:"totalrainin,omitempty"`
	DewPointF     *float64 `json:"dewPoint,omitempty"`
	FeelsLikeF    *float64 `json:"feelsLike,omitempty"`

	// Metric representation.
	TempC           *float64 `json:"tempc,omitempty"`
	TempInC         *float64 `json:"tempinc,omitempty"`
	BaromRelHpa     *float64 `json:"baromrelhpa,omitempty"`
	BaromAbsHpa     *float64 `json:"baromabshpa,omitempty"`
	WindSpeedKMH    *float64 `json:"windspeedkmh,omitempty"`
	WindGustKMH     *float64 `json:"windgustkmh,omitempty"`
	MaxDailyGustKMH *float64 `json:"maxdailygustkmh,omitempty"`
	HourlyRainMM    *float64 `json:"hourlyrainmm,omitempty"`
	DailyRainMM     *float64 `json:"dailyrainmm,omitempty"`
	WeeklyRainMM    *float64 `json:"weeklyrainmm,omitempty"`
	MonthlyRainMM   *float64 `json:"monthlyrainmm,omitempty"`
	TotalRainMM     *float64 `json:"totalrainmm,omitempty"`
	DewPointC       *float64 `json:"dewpointc,omitempty"`
	FeelsLikeC      *float64 `json:"feelslikec,omitempty"`

	// Extra carries sensor fields the station sends that are not modeled
	// above (new sensors, firmware additions). They round-trip through
	// JSON untouched.
	Extra map[string]json.RawMessage `json:"-"`
}

// Time returns the reading's timestamp as a UTC time.Time.
func (r *Reading) Time() time.Time {
	return time.UnixMilli(r.TimestampMillis).UTC()
}

// readingAlias prevents MarshalJSON/UnmarshalJSON recursion.
type readingAlias Reading

// MarshalJSON emits the known fields and merges Extra at the top level.
func (r Reading) MarshalJSON() ([]byte, error) {
	known, err := json.Marshal(readingAlias(r))
	if err != nil {
		return nil, err
	}
	if len(r.Extra) == 0 {
		return known, nil
	}

	var merged map[string]json.RawMessage
	if err := json.Unmarshal(known, &merged); err != nil {
		return nil, err
	}
	for k, v := range r.Extra {
		if _, exists := merged[k]; !exists {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}

// UnmarshalJSON populates the known fields and captures any remaining
// top-level keys into Extra.
func (r *Reading) UnmarshalJSON(data []byte) error {
	var alias readingAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for _, k := range knownReadingKeys {
		delete(raw, k)
	}
	if len(raw) > 0 {
		alias.Extra = raw
	}

	*r = Reading(alias)
	return nil
}

// knownReadingKeys lists every JSON key mapped to a struct field above.
// Keys not in this list land in Extra on unmarshal.
var knownReadingKeys = []string{
	"dateutc", "date", "loc", "lastRain",
	"humidity", "humidityin", "winddir", "solarradiation", "uv", "battout",
	"tempf", "tempinf", "baromrelin", "baromabsin", "windspeedmph",
	"windgustmph", "maxdailygust", "hourlyrainin", "dailyrainin",
	"weeklyrainin", "monthlyrainin", "totalrainin", "dewPoint", "feelsLike",
	"tempc", "tempinc", "baromrelhpa", "baromabshpa", "windspeedkmh",
	"windgustkmh", "maxdailygustkmh", "hourlyrainmm", "dailyrainmm",
	"weeklyrainmm", "monthlyrainmm", "totalrainmm", "dewpointc", "feelslikec",
}

// Batch is an ordered collection of readings covering a requested time
// span. FromMillis/ToMillis name the backing archive file.
type Batch struct {
	Category   Category
	FromMillis int64
	ToMillis   int64
	Readings   []Reading
}

// Empty reports whether the batch holds no readings.
func (b *Batch) Empty() bool {
	return b == nil || len(b.Readings) == 0
}

// FileName returns the archive file stem for this batch's span, in the
// {fromMillis}_{toMillis} convention.
func (b *Batch) FileName() string {
	return fmt.Sprintf("%d_%d", b.FromMillis, b.ToMillis)
}

// Boundary is the most recent durably-stored timestamp observed for one
// (cluster, category) pair. Absent covers both "no documents yet" and
// "cluster unreachable"; callers must treat the two identically.
type Boundary struct {
	Millis  int64
	Present bool
}

// Gap is a discovered missing interval bounded by two real stored
// documents. StartMillis is the last stored timestamp at or before the
// requested window; EndMillis the first at or after it.
type Gap struct {
	Found       bool
	StartMillis int64
	EndMillis   int64
}

// Duration returns the span of the gap.
func (g Gap) Duration() time.Duration {
	return time.Duration(g.EndMillis-g.StartMillis) * time.Millisecond
}
