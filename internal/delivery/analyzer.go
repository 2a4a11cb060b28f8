package delivery

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/forest-guardian/greenwatch/internal/change"
	"github.com/forest-guardian/greenwatch/internal/greenness"
	"github.com/forest-guardian/greenwatch/internal/landcover"
	"github.com/forest-guardian/greenwatch/internal/observability"
	"github.com/forest-guardian/greenwatch/internal/properties"
	"github.com/forest-guardian/greenwatch/internal/sentinel"
	"github.com/forest-guardian/greenwatch/internal/weather"
	"github.com/gammazero/workerpool"
)

type LandCover interface {
	Describe(ctx context.Context, bbox [4]float64) (*landcover.Summary, error)
}

type WeatherContext interface {
	Describe(ctx context.Context, latitude, longitude float64, end time.Time) (*weather.Summary, error)
}

type Alerter interface {
	SendAlert(title, description string, fields map[string]string) error
}

// Analyzer runs the change detection pipeline for one photo.
type Analyzer struct {
	Archive     sentinel.Archive
	Search      sentinel.Options
	Visual      greenness.Estimator
	Reflectance greenness.Estimator
	Detector    change.Detector
	Workers     int

	// Optional collaborators.
	LandCover LandCover
	Weather   WeatherContext
	Alerts    Alerter
	Metrics   *observability.Metrics
}

// NewAnalyzer wires an analyzer with thresholds and search options read from the environment.
func NewAnalyzer(archive sentinel.Archive) *Analyzer {
	return &Analyzer{
		Archive:     archive,
		Search:      sentinel.OptionsFromEnv(),
		Visual:      greenness.NewVisual(properties.VisualVegetationThreshold()),
		Reflectance: greenness.NewReflectance(properties.ReflectanceVegetationThreshold()),
		Detector:    change.NewDetector(change.ThresholdsFromEnv()),
		Workers:     properties.EstimatorWorkers(),
	}
}

// Report is the unrounded outcome of an analysis.
type Report struct {
	change.Result
	Region      string
	Diagnostics []string
	LandCover   *landcover.Summary
	Weather     *weather.Summary
}

// Analyze compares the current photo with the historical satellite baseline around point.
// diag may be nil; callers pass one to follow the search progress.
func (a *Analyzer) Analyze(ctx context.Context, current greenness.Raster, point sentinel.Point, end time.Time, diag *sentinel.Diagnostics) (*Report, error) {
	if err := point.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	currentMetric, err := a.Visual.Estimate(current)
	if err != nil {
		return nil, fmt.Errorf("%w: current photo: %v", ErrInvalidInput, err)
	}

	if diag == nil {
		diag = sentinel.NewDiagnostics()
	}

	opts := a.Search
	if opts.Accept == nil && a.Reflectance != nil {
		opts.Accept = sentinel.EstimatorAccept(a.Reflectance)
	}

	stepStart := time.Now()
	samples, err := sentinel.Search(ctx, a.Archive, point, end, opts, diag)
	a.recordSearch(diag)
	if err != nil {
		if errors.Is(err, sentinel.ErrProviderUnavailable) {
			a.Metrics.RecordProviderError()
		}
		return nil, err
	}
	log.Printf("Historical search found %d samples in %v", len(samples), time.Since(stepStart))

	historical := a.estimateHistorical(samples)
	if len(historical) == 0 {
		messages := append(diag.Messages(), "all historical samples were degenerate")
		return nil, &sentinel.NoSamplesError{Diagnostics: messages}
	}

	result := a.Detector.Detect(currentMetric, historical)
	a.Metrics.RecordDetection(result.PercentDrop, result.DeforestationFlag, result.PoisoningFlag)

	report := &Report{
		Result:      result,
		Region:      diag.Region,
		Diagnostics: diag.Messages(),
	}

	if a.LandCover != nil {
		region := sentinel.NewRegion(point, a.Search.BufferMeters)
		summary, err := a.LandCover.Describe(ctx, region.BBox())
		if err != nil {
			log.Printf("Land cover lookup failed: %v", err)
		} else {
			report.LandCover = summary
		}
	}

	if a.Weather != nil {
		summary, err := a.Weather.Describe(ctx, point.Latitude, point.Longitude, end)
		if err != nil {
			log.Printf("Weather lookup failed: %v", err)
		} else {
			report.Weather = summary
		}
	}

	a.alert(report)
	return report, nil
}

// estimateHistorical computes the satellite metrics concurrently. Degenerate samples are
// dropped; the remaining metrics keep the sample order.
func (a *Analyzer) estimateHistorical(samples []sentinel.Sample) []greenness.Metric {
	workers := a.Workers
	if workers < 1 {
		workers = 1
	}

	results := make([]*greenness.Metric, len(samples))
	wp := workerpool.New(workers)
	for i, sample := range samples {
		i, sample := i, sample
		wp.Submit(func() {
			metric, err := a.Reflectance.Estimate(sample.Raster())
			if err != nil {
				log.Printf("Skipping sample %s: %v", sample.Image.ID, err)
				return
			}
			results[i] = &metric
		})
	}
	wp.StopWait()

	historical := make([]greenness.Metric, 0, len(results))
	for _, metric := range results {
		if metric != nil {
			historical = append(historical, *metric)
		}
	}
	return historical
}

func (a *Analyzer) recordSearch(diag *sentinel.Diagnostics) {
	if a.Metrics == nil {
		return
	}
	var accepted, rejected int
	for _, e := range diag.Events() {
		if e.Kind != sentinel.EventCandidate {
			continue
		}
		if e.Accepted {
			accepted++
		} else {
			rejected++
		}
	}
	a.Metrics.RecordSearch(diag.SegmentCount(), accepted, rejected)
}

func (a *Analyzer) alert(report *Report) {
	if a.Alerts == nil || (!report.DeforestationFlag && !report.PoisoningFlag) {
		return
	}

	title := "Vegetation change detected"
	switch {
	case report.DeforestationFlag && report.PoisoningFlag:
		title = "Deforestation and poisoning suspected"
	case report.DeforestationFlag:
		title = "Deforestation suspected"
	case report.PoisoningFlag:
		title = "Poisoning suspected"
	}

	fields := map[string]string{
		"Percent drop":   fmt.Sprintf("%.2f%%", report.PercentDrop),
		"Greenness drop": fmt.Sprintf("%.3f", report.GreennessDrop),
		"Samples":        fmt.Sprintf("%d", len(report.Historical)),
	}
	if err := a.Alerts.SendAlert(title, report.Region, fields); err != nil {
		log.Printf("Failed to send alert: %v", err)
	}
}
