package observability

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Record(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordAnalysis("http", "ok", 1.5)
	m.RecordAnalysis("http", "not_found", 0.5)
	m.RecordSearch(3, 2, 1)
	m.RecordDetection(57.3, true, false)
	m.RecordProviderError()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.AnalysesTotal.WithLabelValues("http", "ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Candidates.WithLabelValues("accepted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Candidates.WithLabelValues("rejected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FlagsRaised.WithLabelValues("deforestation")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.FlagsRaised.WithLabelValues("poisoning")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProviderErrors))
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.RecordAnalysis("grpc", "ok", 2)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `greenwatch_analysis_requests_total{outcome="ok",transport="grpc"} 1`)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.RecordAnalysis("http", "ok", 1)
		m.RecordSearch(1, 1, 0)
		m.RecordDetection(0, false, false)
		m.RecordProviderError()
	})
}
