package copernicus

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/airbusgeo/godal"
	"github.com/forest-guardian/greenwatch/internal/greenness"
	"github.com/forest-guardian/greenwatch/internal/sentinel"
	"github.com/forest-guardian/greenwatch/internal/utils"
)

const (
	processPath = "/api/v1/process"
	resolution  = 10.0
	maxPixels   = 2500
)

// bandNames maps estimator bands to Sentinel-2 L2A band identifiers.
var bandNames = map[greenness.Band]string{
	greenness.BandNIR:   "B08",
	greenness.BandRed:   "B04",
	greenness.BandGreen: "B03",
	greenness.BandBlue:  "B02",
}

var registerOnce sync.Once

func calculatePixels(distance float64) int {
	pixels := int(distance * (111_000.0 / resolution))
	if pixels < 1 {
		return 1
	}
	if pixels > maxPixels {
		return maxPixels
	}
	return pixels
}

// evalscript returns the requested bands as FLOAT32 reflectance. Pixels without data are NaN.
func evalscript(names []string) string {
	inputs := make([]string, 0, len(names)+1)
	samples := make([]string, 0, len(names))
	nans := make([]string, 0, len(names))
	for _, name := range names {
		inputs = append(inputs, fmt.Sprintf("%q", name))
		samples = append(samples, "sample."+name)
		nans = append(nans, "NaN")
	}
	inputs = append(inputs, `"dataMask"`)

	return fmt.Sprintf(`//VERSION=3
function setup() {
  return {
    input: [%s],
    output: { id: "default", bands: %d, sampleType: SampleType.FLOAT32 },
  }
}

function evaluatePixel(sample) {
  if (sample.dataMask == 0) {
    return [%s];
  }
  return [%s];
}
`, strings.Join(inputs, ", "), len(names), strings.Join(nans, ", "), strings.Join(samples, ", "))
}

func processRequest(image sentinel.ImageHandle, names []string, bbox [4]float64) ([]byte, error) {
	day := time.Date(image.AcquiredAt.Year(), image.AcquiredAt.Month(), image.AcquiredAt.Day(), 0, 0, 0, 0, time.UTC)

	payload := map[string]interface{}{
		"input": map[string]interface{}{
			"bounds": map[string]interface{}{
				"bbox": bbox,
				"properties": map[string]string{
					"crs": "http://www.opengis.net/def/crs/EPSG/0/4326",
				},
			},
			"data": []map[string]interface{}{
				{
					"type": collection,
					"dataFilter": map[string]interface{}{
						"timeRange": map[string]string{
							"from": day.Format(time.RFC3339),
							"to":   day.Add(24 * time.Hour).Format(time.RFC3339),
						},
						"mosaickingOrder": "mostRecent",
					},
				},
			},
		},
		"output": map[string]interface{}{
			"width":  calculatePixels(bbox[2] - bbox[0]),
			"height": calculatePixels(bbox[3] - bbox[1]),
			"responses": []map[string]interface{}{
				{
					"identifier": "default",
					"format":     map[string]string{"type": "image/tiff"},
				},
			},
		},
		"evalscript": evalscript(names),
	}

	requestBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal process request: %w", err)
	}
	return requestBody, nil
}

// RequestBands downloads the named bands of one acquisition as a GeoTIFF and decodes them.
func (c *Client) RequestBands(ctx context.Context, image sentinel.ImageHandle, names []string, bbox [4]float64) ([]greenness.Grid, error) {
	payload, err := processRequest(image, names, bbox)
	if err != nil {
		return nil, err
	}

	tiff, err := c.post(ctx, processPath, payload, "image/tiff")
	if err != nil {
		return nil, fmt.Errorf("process %s: %w", image.ID, err)
	}

	return DecodeGeoTIFF(tiff, len(names))
}

// DecodeGeoTIFF reads the first nBands bands of an in-memory GeoTIFF into grids.
func DecodeGeoTIFF(data []byte, nBands int) ([]greenness.Grid, error) {
	tmp, err := os.CreateTemp("", "sentinel-*.tif")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("failed to close temp file: %w", err)
	}

	registerOnce.Do(godal.RegisterAll)

	var grids []greenness.Grid
	utils.ExecuteWithMutex(func() {
		var ds *godal.Dataset
		ds, err = godal.Open(tmp.Name(), godal.ErrLogger(func(ec godal.ErrorCategory, code int, msg string) error {
			if ec == godal.CE_Warning {
				return nil
			}
			return fmt.Errorf("gdal: %s", msg)
		}))
		if err != nil {
			err = fmt.Errorf("failed to open GeoTIFF: %w", err)
			return
		}
		defer ds.Close()

		structure := ds.Structure()
		if structure.NBands < nBands {
			err = fmt.Errorf("%w: GeoTIFF has %d bands, expected %d", sentinel.ErrBandMissing, structure.NBands, nBands)
			return
		}

		width, height := structure.SizeX, structure.SizeY
		for _, band := range ds.Bands()[:nBands] {
			buffer := make([]float64, width*height)
			if err = band.Read(0, 0, buffer, width, height); err != nil {
				err = fmt.Errorf("failed to read raster data: %w", err)
				return
			}
			grids = append(grids, reshape(buffer, width, height))
		}
	})
	if err != nil {
		return nil, err
	}
	return grids, nil
}

func reshape(buffer []float64, width, height int) greenness.Grid {
	grid := make(greenness.Grid, height)
	for row := 0; row < height; row++ {
		grid[row] = buffer[row*width : (row+1)*width : (row+1)*width]
	}
	return grid
}
