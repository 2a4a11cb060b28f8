// Package observability provides Prometheus metrics for the analysis pipeline.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "greenwatch"

// Metrics holds the Prometheus collectors of the service. A nil *Metrics records nothing.
type Metrics struct {
	// Request metrics
	AnalysesTotal    *prometheus.CounterVec
	AnalysisDuration *prometheus.HistogramVec

	// Search metrics
	SegmentsQueried prometheus.Histogram
	Candidates      *prometheus.CounterVec
	ProviderErrors  prometheus.Counter

	// Detection metrics
	FlagsRaised *prometheus.CounterVec
	PercentDrop prometheus.Histogram

	gatherer prometheus.Gatherer
}

// NewMetrics registers the collectors on reg. Tests pass a fresh prometheus.NewRegistry().
func NewMetrics(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		AnalysesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "requests_total",
			Help:      "Total number of analyses by transport and outcome",
		}, []string{"transport", "outcome"}),
		AnalysisDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "duration_seconds",
			Help:      "Analysis duration in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}, []string{"transport"}),

		SegmentsQueried: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "segments_queried",
			Help:      "Number of year segments queried per search",
			Buckets:   []float64{1, 2, 3, 4, 5, 6, 7, 8},
		}),
		Candidates: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "candidates_total",
			Help:      "Total number of candidate images by outcome",
		}, []string{"outcome"}),
		ProviderErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "provider_errors_total",
			Help:      "Total number of searches aborted because the imagery provider was unavailable",
		}),

		FlagsRaised: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "detection",
			Name:      "flags_raised_total",
			Help:      "Total number of raised change flags by kind",
		}, []string{"flag"}),
		PercentDrop: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "detection",
			Name:      "percent_drop",
			Help:      "Distribution of vegetation fraction percent drops",
			Buckets:   []float64{0, 5, 10, 20, 40, 60, 80, 100},
		}),

		gatherer: reg,
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordAnalysis(transport, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.AnalysesTotal.WithLabelValues(transport, outcome).Inc()
	m.AnalysisDuration.WithLabelValues(transport).Observe(seconds)
}

func (m *Metrics) RecordSearch(segments, accepted, rejected int) {
	if m == nil {
		return
	}
	m.SegmentsQueried.Observe(float64(segments))
	m.Candidates.WithLabelValues("accepted").Add(float64(accepted))
	m.Candidates.WithLabelValues("rejected").Add(float64(rejected))
}

func (m *Metrics) RecordProviderError() {
	if m == nil {
		return
	}
	m.ProviderErrors.Inc()
}

func (m *Metrics) RecordDetection(percentDrop float64, deforestation, poisoning bool) {
	if m == nil {
		return
	}
	m.PercentDrop.Observe(percentDrop)
	if deforestation {
		m.FlagsRaised.WithLabelValues("deforestation").Inc()
	}
	if poisoning {
		m.FlagsRaised.WithLabelValues("poisoning").Inc()
	}
}
