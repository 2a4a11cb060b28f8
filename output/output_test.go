package output

import (
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/forest-guardian/greenwatch/internal/delivery"
	"github.com/forest-guardian/greenwatch/internal/greenness"
	"github.com/forest-guardian/greenwatch/internal/sentinel"
	"github.com/gocarina/gocsv"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testResponse() *delivery.Response {
	return &delivery.Response{
		Status:                   "ok",
		DeforestationPercentDrop: 42.5,
		PoisoningGreennessDrop:   0.12,
		DeforestationFlag:        true,
		CurrentMetrics:           greenness.Metric{Source: "photo", MeanGreenness: 0.1, VegetationFraction: 0.3, TotalPixels: 600},
		HistoricalMetrics: []greenness.Metric{
			{Source: "sentinel2", Date: "2024-05-02", MeanGreenness: 0.5, VegetationFraction: 0.7, TotalPixels: 100},
			{Source: "sentinel2", Date: "2024-04-12", MeanGreenness: 0.4, VegetationFraction: 0.6, TotalPixels: 100},
		},
	}
}

func TestBaseName(t *testing.T) {
	name := BaseName(sentinel.Point{Latitude: -3.1, Longitude: -60.25}, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, "-3.10000_-60.25000_2024_06_01", name)
}

func TestCreateResultGeoJSON(t *testing.T) {
	dir := t.TempDir()
	point := sentinel.Point{Latitude: -3.1, Longitude: -60.25}

	path, err := CreateResultGeoJSON(point, 250, testResponse(), dir, "site")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "site.geojson"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	fc, err := geojson.UnmarshalFeatureCollection(data)
	require.NoError(t, err)
	require.Len(t, fc.Features, 2)

	site := fc.Features[0]
	assert.Equal(t, orb.Point{-60.25, -3.1}, site.Geometry)
	assert.Equal(t, true, site.Properties["deforestation_flag"])
	assert.Equal(t, false, site.Properties["poisoning_flag"])
	assert.Equal(t, 42.5, site.Properties["deforestation_percent_drop"])
	assert.Len(t, site.Properties["historical_dates"], 2)

	area := fc.Features[1]
	assert.Equal(t, "sampled_region", area.Properties.MustString("kind"))
	_, ok := area.Geometry.(orb.Polygon)
	assert.True(t, ok)
}

func TestCreateMaskImage(t *testing.T) {
	dir := t.TempDir()
	classification := &greenness.Classification{
		Index: greenness.Grid{{0.5, -0.2, math.NaN()}},
		Mask:  [][]bool{{true, false, false}},
	}

	path, err := CreateMaskImage(classification, dir, "site")
	require.NoError(t, err)

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()
	img, err := png.Decode(file)
	require.NoError(t, err)
	assert.Equal(t, 3, img.Bounds().Dx())
	assert.Equal(t, 1, img.Bounds().Dy())

	expect := []string{"vegetation", "bare", "unknown"}
	for x, key := range expect {
		r, g, b, _ := img.At(x, 0).RGBA()
		c := maskColor(key)
		assert.Equal(t, [3]uint32{uint32(c.R), uint32(c.G), uint32(c.B)}, [3]uint32{r >> 8, g >> 8, b >> 8}, key)
	}
}

func TestCreateMaskImage_Empty(t *testing.T) {
	_, err := CreateMaskImage(&greenness.Classification{}, t.TempDir(), "site")
	assert.Error(t, err)
}

func TestCreateIndexImage(t *testing.T) {
	path, err := CreateIndexImage(greenness.Grid{{-1, 0, 1}, {0.5, math.NaN(), 0}}, t.TempDir(), "site")
	require.NoError(t, err)
	assert.FileExists(t, path)
}

func TestValueToColor(t *testing.T) {
	assert.Equal(t, uint8(139), valueToColor(0).R)
	assert.Equal(t, uint8(255), valueToColor(0.5).G)
	assert.Equal(t, uint8(128), valueToColor(1).G)
	assert.Equal(t, 0.0, normalize(-5, -1, 1))
	assert.Equal(t, 1.0, normalize(5, -1, 1))
	assert.Equal(t, 0.0, normalize(3, 2, 2))
}

func TestCreateMetricsCSV(t *testing.T) {
	path, err := CreateMetricsCSV(testResponse(), t.TempDir(), "site")
	require.NoError(t, err)

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	var rows []*MetricRow
	require.NoError(t, gocsv.UnmarshalFile(file, &rows))
	require.Len(t, rows, 3)
	assert.Equal(t, "photo", rows[0].Source)
	assert.Equal(t, 600, rows[0].TotalPixels)
	assert.Equal(t, "2024-05-02", rows[1].Date)
	assert.Equal(t, 0.4, rows[2].MeanGreenness)
}
