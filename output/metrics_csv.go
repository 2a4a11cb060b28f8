package output

import (
	"fmt"
	"os"

	"github.com/forest-guardian/greenwatch/internal/delivery"
	"github.com/forest-guardian/greenwatch/internal/greenness"
	"github.com/gocarina/gocsv"
)

type MetricRow struct {
	Source             string  `csv:"source"`
	Date               string  `csv:"date"`
	MeanGreenness      float64 `csv:"mean_greenness"`
	VegetationFraction float64 `csv:"vegetation_fraction"`
	TotalPixels        int     `csv:"total_pixels"`
}

// CreateMetricsCSV writes the current metric followed by the historical series.
func CreateMetricsCSV(response *delivery.Response, dir, name string) (string, error) {
	outputPath, err := prepare(dir, name+"_metrics", ".csv")
	if err != nil {
		return "", err
	}

	rows := make([]*MetricRow, 0, len(response.HistoricalMetrics)+1)
	for _, metric := range append([]greenness.Metric{response.CurrentMetrics}, response.HistoricalMetrics...) {
		rows = append(rows, &MetricRow{
			Source:             string(metric.Source),
			Date:               metric.Date,
			MeanGreenness:      metric.MeanGreenness,
			VegetationFraction: metric.VegetationFraction,
			TotalPixels:        metric.TotalPixels,
		})
	}

	file, err := os.Create(outputPath)
	if err != nil {
		return "", fmt.Errorf("error creating CSV file: %w", err)
	}
	defer file.Close()

	if err := gocsv.MarshalFile(&rows, file); err != nil {
		return "", fmt.Errorf("error writing CSV file: %w", err)
	}

	fmt.Println("CSV file created successfully at", outputPath)
	return outputPath, nil
}
