package weather

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/forest-guardian/greenwatch/internal/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const archiveBody = `{
  "daily": {
    "time": ["2024-05-29", "2024-05-30", "2024-05-31"],
    "temperature_2m_mean": [26.0, 28.0, 30.0],
    "precipitation_sum": [12.5, 0.0, 0.4]
  },
  "hourly": {
    "time": ["2024-05-29T00:00", "2024-05-29T01:00", "2024-05-30T00:00", "2024-05-31T00:00"],
    "relative_humidity_2m": [80, 90, 70, 60]
  }
}`

func TestService_Describe(t *testing.T) {
	var query string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.RawQuery
		w.Write([]byte(archiveBody))
	}))
	defer srv.Close()

	service := NewService(srv.URL, 3)
	summary, err := service.Describe(context.Background(), -3.1, -60.2, time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	assert.Contains(t, query, "start_date=2024-05-29")
	assert.Contains(t, query, "end_date=2024-05-31")
	assert.Equal(t, "2024-05-29", summary.Start)
	assert.Equal(t, "2024-05-31", summary.End)
	assert.InDelta(t, 12.9, summary.TotalPrecipitation, 1e-9)
	assert.InDelta(t, 28.0, summary.MeanTemperature, 1e-9)
	assert.InDelta(t, 215.0/3, summary.MeanHumidity, 1e-9)
	assert.Equal(t, 2, summary.DryDays)
	require.Len(t, summary.Days, 3)
	assert.Equal(t, 85.0, summary.Days[0].Humidity)
}

func TestService_RetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(archiveBody))
	}))
	defer srv.Close()

	service := NewService(srv.URL, 3)
	service.Backoff = time.Millisecond
	_, err := service.Describe(context.Background(), 0, 0, time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestService_ClientErrorIsNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	service := NewService(srv.URL, 3)
	service.Backoff = time.Millisecond
	_, err := service.Describe(context.Background(), 0, 0, time.Now())
	assert.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestService_UsesCache(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte(archiveBody))
	}))
	defer srv.Close()

	service := NewService(srv.URL, 3).WithCache(cache.NewFileCacheAt[[]Day](t.TempDir()))
	end := time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)

	first, err := service.Describe(context.Background(), 1, 2, end)
	require.NoError(t, err)
	second, err := service.Describe(context.Background(), 1, 2, end)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestSummarize_Empty(t *testing.T) {
	first := time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC)
	summary := summarize(nil, first, first)
	assert.Zero(t, summary.TotalPrecipitation)
	assert.Zero(t, summary.DryDays)
}

func TestToDays_Mismatched(t *testing.T) {
	_, _, err := toDays(archiveResponse{Daily: dailyData{Time: []string{"2024-01-01"}}})
	assert.Error(t, err)
}
