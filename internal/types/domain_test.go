package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f64(v float64) *float64 { return &v }

func TestReadingJSONRoundTrip_KnownFields(t *testing.T) {
	in := Reading{
		TimestampMillis: 1704067200000,
		Date:            "2024-01-01T00:00:00.000Z",
		TempF:           f64(41.5),
		Humidity:        f64(87),
		WindSpeedMPH:    f64(3.4),
	}

	data, err := json.Marshal(in)
	require.NoError(t, err)

	var out Reading
	require.NoError(t, json.Unmarshal(data, &out))

	assert.Equal(t, int64(1704067200000), out.TimestampMillis)
	assert.Equal(t, "2024-01-01T00:00:00.000Z", out.Date)
	require.NotNil(t, out.TempF)
	assert.Equal(t, 41.5, *out.TempF)
	require.NotNil(t, out.Humidity)
	assert.Equal(t, 87.0, *out.Humidity)
	assert.Nil(t, out.TempC)
	assert.Empty(t, out.Extra)
}

func TestReadingJSONRoundTrip_UnknownFieldsSurvive(t *testing.T) {
	raw := `{"dateutc":1704067200000,"tempf":41.5,"soilhum1":22,"pm25":"7.1"}`

	var r Reading
	require.NoError(t, json.Unmarshal([]byte(raw), &r))

	// Unknown sensors land in Extra.
	require.Len(t, r.Extra, 2)
	assert.JSONEq(t, `22`, string(r.Extra["soilhum1"]))
	assert.JSONEq(t, `"7.1"`, string(r.Extra["pm25"]))

	// And come back out at the top level on marshal.
	out, err := json.Marshal(r)
	require.NoError(t, err)
	assert.JSONEq(t, raw, string(out))
}

func TestReadingExtraNeverShadowsKnownFields(t *testing.T) {
	r := Reading{
		TimestampMillis: 100,
		TempF:           f64(50),
		Extra: map[string]json.RawMessage{
			"tempf": json.RawMessage(`999`),
		},
	}

	out, err := json.Marshal(r)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(out, &decoded))
	assert.Equal(t, 50.0, decoded["tempf"])
}

func TestReadingTime(t *testing.T) {
	r := Reading{TimestampMillis: 1704067200000}
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), r.Time())
}

func TestBatchFileName(t *testing.T) {
	b := Batch{FromMillis: 1704067200000, ToMillis: 1704070800000}
	assert.Equal(t, "1704067200000_1704070800000", b.FileName())

	assert.True(t, (&Batch{}).Empty())
	assert.True(t, (*Batch)(nil).Empty())
	assert.False(t, (&Batch{Readings: []Reading{{}}}).Empty())
}

func TestGapDuration(t *testing.T) {
	g := Gap{StartMillis: 0, EndMillis: 600_000}
	assert.Equal(t, 10*time.Minute, g.Duration())
}

func TestCategoryValid(t *testing.T) {
	assert.True(t, CategoryImperial.Valid())
	assert.True(t, CategoryMetric.Valid())
	assert.False(t, Category("kelvin").Valid())
	assert.Equal(t, []Category{CategoryImperial, CategoryMetric}, Categories())
}
