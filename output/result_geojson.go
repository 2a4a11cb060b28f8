package output

import (
	"fmt"
	"os"

	"github.com/forest-guardian/greenwatch/internal/delivery"
	"github.com/forest-guardian/greenwatch/internal/sentinel"
	"github.com/paulmach/orb/geojson"
)

// CreateResultGeoJSON writes the analyzed point and the sampled region with the result as properties.
func CreateResultGeoJSON(point sentinel.Point, bufferMeters float64, response *delivery.Response, dir, name string) (string, error) {
	outputPath, err := prepare(dir, name, ".geojson")
	if err != nil {
		return "", err
	}

	fc := geojson.NewFeatureCollection()

	site := geojson.NewFeature(point.Orb())
	site.Properties["kind"] = "site"
	site.Properties["status"] = response.Status
	site.Properties["deforestation_percent_drop"] = response.DeforestationPercentDrop
	site.Properties["poisoning_greenness_drop"] = response.PoisoningGreennessDrop
	site.Properties["deforestation_flag"] = response.DeforestationFlag
	site.Properties["poisoning_flag"] = response.PoisoningFlag
	site.Properties["current_vegetation_fraction"] = response.CurrentMetrics.VegetationFraction
	site.Properties["current_mean_greenness"] = response.CurrentMetrics.MeanGreenness
	dates := make([]string, 0, len(response.HistoricalMetrics))
	for _, metric := range response.HistoricalMetrics {
		dates = append(dates, metric.Date)
	}
	site.Properties["historical_dates"] = dates
	if response.LandCover != nil {
		site.Properties["land_cover"] = response.LandCover.Dominant
	}
	if response.Weather != nil {
		site.Properties["precipitation_mm"] = response.Weather.TotalPrecipitation
		site.Properties["dry_days"] = response.Weather.DryDays
	}
	fc.Append(site)

	region := sentinel.NewRegion(point, bufferMeters)
	area := geojson.NewFeature(region.Polygon)
	area.Properties["kind"] = "sampled_region"
	area.Properties["buffer_meters"] = bufferMeters
	fc.Append(area)

	data, err := fc.MarshalJSON()
	if err != nil {
		return "", fmt.Errorf("error encoding GeoJSON: %w", err)
	}
	if err := os.WriteFile(outputPath, data, 0644); err != nil {
		return "", fmt.Errorf("error creating GeoJSON file: %w", err)
	}

	fmt.Println("GeoJSON file created successfully at", outputPath)
	return outputPath, nil
}
