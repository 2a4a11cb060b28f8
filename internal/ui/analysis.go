package ui

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/forest-guardian/greenwatch/internal/delivery"
	"github.com/forest-guardian/greenwatch/internal/greenness"
	"github.com/forest-guardian/greenwatch/internal/notification"
	"github.com/forest-guardian/greenwatch/internal/photo"
	"github.com/forest-guardian/greenwatch/internal/properties"
	"github.com/forest-guardian/greenwatch/internal/rpc"
	"github.com/forest-guardian/greenwatch/internal/sentinel"
	"github.com/forest-guardian/greenwatch/output"
)

// AnalysisParams describes one analysis run from the command line.
type AnalysisParams struct {
	PhotoPath string
	Point     sentinel.Point
	Date      time.Time
	OutputDir string
	// Remote, when set, sends the photo to a greenwatch gRPC server instead of analyzing locally.
	Remote string
	User   delivery.User
}

type AnalysisResult struct {
	Response *delivery.Response
	Files    []string
}

// Runner runs analyses and writes their exports.
type Runner struct {
	// Analyzer is built from the environment on first local use when nil.
	Analyzer *delivery.Analyzer
	Progress io.Writer
	// Notify reports finished and failed analyses to the Discord webhooks.
	Notify bool
}

func (r *Runner) Run(ctx context.Context, params AnalysisParams) (*AnalysisResult, error) {
	result, err := r.run(ctx, params)
	if r.Notify {
		notify(params, result, err)
	}
	return result, err
}

func (r *Runner) run(ctx context.Context, params AnalysisParams) (*AnalysisResult, error) {
	if err := params.Point.Validate(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(params.PhotoPath)
	if err != nil {
		return nil, fmt.Errorf("error reading photo: %w", err)
	}
	raster, err := photo.Decode(data, photo.OptionsFromEnv())
	if err != nil {
		return nil, err
	}

	var response *delivery.Response
	if params.Remote != "" {
		response, err = r.remote(ctx, params, data)
	} else {
		response, err = r.local(ctx, params, raster)
	}
	if err != nil {
		return nil, err
	}

	classification, err := greenness.NewVisual(properties.VisualVegetationThreshold()).Classify(raster)
	if err != nil {
		return nil, err
	}

	files, err := export(params, response, classification)
	if err != nil {
		return nil, err
	}
	return &AnalysisResult{Response: response, Files: files}, nil
}

func (r *Runner) local(ctx context.Context, params AnalysisParams, raster greenness.Raster) (*delivery.Response, error) {
	if r.Analyzer == nil {
		analyzer, err := delivery.NewAnalyzerFromEnv()
		if err != nil {
			return nil, err
		}
		r.Analyzer = analyzer
	}

	diag := sentinel.NewDiagnostics()
	if r.Progress != nil {
		progress := NewSearchProgress(r.Analyzer.Search.LookbackYears, r.Progress)
		diag.OnEvent = progress.OnEvent
		defer progress.Finish()
	}

	report, err := r.Analyzer.Analyze(ctx, raster, params.Point, params.Date, diag)
	if err != nil {
		return nil, err
	}
	response := delivery.NewResponse(report)
	return &response, nil
}

func (r *Runner) remote(ctx context.Context, params AnalysisParams, data []byte) (*delivery.Response, error) {
	client, err := rpc.NewClient(params.Remote)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	lat, lon := params.Point.Latitude, params.Point.Longitude
	return client.Analyze(ctx, delivery.Request{
		ImageBase64: base64.StdEncoding.EncodeToString(data),
		Latitude:    &lat,
		Longitude:   &lon,
		Timestamp:   params.Date.Format(time.RFC3339),
		User:        params.User,
	})
}

func export(params AnalysisParams, response *delivery.Response, classification *greenness.Classification) ([]string, error) {
	dir := params.OutputDir
	if dir == "" {
		dir = output.ResultDir()
	}
	name := output.BaseName(params.Point, params.Date)

	geojsonPath, err := output.CreateResultGeoJSON(params.Point, properties.RegionBufferMeters(), response, dir, name)
	if err != nil {
		return nil, err
	}
	maskPath, err := output.CreateMaskImage(classification, dir, name)
	if err != nil {
		return nil, err
	}
	indexPath, err := output.CreateIndexImage(classification.Index, dir, name)
	if err != nil {
		return nil, err
	}
	csvPath, err := output.CreateMetricsCSV(response, dir, name)
	if err != nil {
		return nil, err
	}
	return []string{geojsonPath, maskPath, indexPath, csvPath}, nil
}

func notify(params AnalysisParams, result *AnalysisResult, err error) {
	location := fmt.Sprintf("%.5f, %.5f", params.Point.Latitude, params.Point.Longitude)
	if err != nil {
		// Only unexpected failures are reported.
		if outcome := delivery.Classify(err); outcome == delivery.OutcomeNotFound || outcome == delivery.OutcomeInvalid {
			return
		}
		if sendErr := notification.SendDiscordErrorNotification(fmt.Sprintf("Greenwatch\n\nError analyzing %s: %s", location, err.Error())); sendErr != nil {
			PrintWarning(fmt.Sprintf("Failed to send notification: %s", sendErr.Error()))
		}
		return
	}

	response := result.Response
	message := fmt.Sprintf("Greenwatch\n\nSuccessful analysis!\n - Location: %s\n - Date: %s\n - Deforestation: %t (%.2f%%)\n - Poisoning: %t (%.3f)\n - Samples: %d",
		location, params.Date.Format("2006-01-02"),
		response.DeforestationFlag, response.DeforestationPercentDrop,
		response.PoisoningFlag, response.PoisoningGreennessDrop,
		len(response.HistoricalMetrics))
	if sendErr := notification.SendDiscordSuccessNotification(message); sendErr != nil {
		PrintWarning(fmt.Sprintf("Failed to send notification: %s", sendErr.Error()))
	}
}

// PrintResponse summarizes an analysis on stdout.
func PrintResponse(response *delivery.Response) {
	success.Printf("\nCurrent vegetation fraction: %.3f (mean greenness %.3f)\n",
		response.CurrentMetrics.VegetationFraction, response.CurrentMetrics.MeanGreenness)
	for _, metric := range response.HistoricalMetrics {
		info.Printf("  %s: vegetation fraction %.3f, mean greenness %.3f\n", metric.Date, metric.VegetationFraction, metric.MeanGreenness)
	}

	flag := func(label string, raised bool, value string) {
		c := success
		if raised {
			c = failure
		}
		c.Printf("%s: %t (%s)\n", label, raised, value)
	}
	flag("Deforestation", response.DeforestationFlag, fmt.Sprintf("%.2f%% drop", response.DeforestationPercentDrop))
	flag("Poisoning", response.PoisoningFlag, fmt.Sprintf("%.3f greenness drop", response.PoisoningGreennessDrop))
	if response.LandCover != nil && response.LandCover.Dominant != "" {
		info.Printf("Mapped land cover: %s\n", response.LandCover.Dominant)
	}
	if w := response.Weather; w != nil {
		info.Printf("Weather %s to %s: %.1f mm of rain, %d dry days, mean %.1f°C\n", w.Start, w.End, w.TotalPrecipitation, w.DryDays, w.MeanTemperature)
	}
}
