package external

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DrMrsMoo/ambient-weather-heiligers/internal/types"
)

func newAmbientTestClient(t *testing.T, handler http.HandlerFunc) (*AmbientClient, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := NewAmbientClient(srv.Client(), AmbientConfig{
		BaseURL:        srv.URL,
		APIKey:         "k",
		ApplicationKey: "ak",
		DeviceMAC:      "00:11:22:33:44:55",
	}, noSleep())
	return client, srv
}

func TestDeviceDataSortsAscending(t *testing.T) {
	client, _ := newAmbientTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "k", r.URL.Query().Get("apiKey"))
		assert.Equal(t, "ak", r.URL.Query().Get("applicationKey"))
		assert.Equal(t, "1704070800000", r.URL.Query().Get("endDate"))
		assert.Equal(t, "10", r.URL.Query().Get("limit"))

		// The API enumerates backwards: newest first.
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"dateutc":1704070800000,"tempf":42.1},
			{"dateutc":1704070500000,"tempf":42.0},
			{"dateutc":1704070200000,"tempf":41.9}
		]`))
	})

	readings, err := client.DeviceData(context.Background(), 1704070800000, 10)
	require.NoError(t, err)
	require.Len(t, readings, 3)
	assert.Equal(t, int64(1704070200000), readings[0].TimestampMillis)
	assert.Equal(t, int64(1704070800000), readings[2].TimestampMillis)
}

func TestDeviceDataClampsLimit(t *testing.T) {
	client, _ := newAmbientTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "288", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`[]`))
	})

	readings, err := client.DeviceData(context.Background(), 1, 5000)
	require.NoError(t, err)
	assert.Empty(t, readings)
}

func TestDeviceDataNon200IsHardFailure(t *testing.T) {
	client, _ := newAmbientTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"applicationKey-invalid"}`))
	})

	_, err := client.DeviceData(context.Background(), 1, 10)
	require.Error(t, err)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeUpstreamUnavailable, appErr.Code)
}

func TestDeviceDataMalformedResponse(t *testing.T) {
	client, _ := newAmbientTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"not":"an array"}`))
	})

	_, err := client.DeviceData(context.Background(), 1, 10)
	require.Error(t, err)
	assert.Equal(t, types.ErrCodeUpstreamMalformed, types.CodeOf(err))
}

func TestDeviceDataUnknownSensorFieldsPreserved(t *testing.T) {
	client, _ := newAmbientTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"dateutc":1,"tempf":41.5,"soilhum1":30}]`))
	})

	readings, err := client.DeviceData(context.Background(), 1, 10)
	require.NoError(t, err)
	require.Len(t, readings, 1)
	assert.Contains(t, readings[0].Extra, "soilhum1")
}
