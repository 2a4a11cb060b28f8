package greenness

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Epsilon stabilizes index denominators.
const Epsilon = 1e-6

// ErrDegenerate is returned when a raster cannot produce a meaningful metric.
// Callers are expected to discard the sample.
var ErrDegenerate = errors.New("degenerate raster")

type Source string

const (
	SourcePhoto     Source = "current_upload"
	SourceSatellite Source = "sentinel2"
)

type Band string

const (
	BandRed   Band = "red"
	BandGreen Band = "green"
	BandBlue  Band = "blue"
	BandNIR   Band = "nir"
)

// Grid is a row-major 2-D array of pixel values.
type Grid [][]float64

// Shape returns the grid dimensions as (rows, cols). A grid with ragged rows reports cols = -1.
func (g Grid) Shape() (int, int) {
	rows := len(g)
	if rows == 0 {
		return 0, 0
	}
	cols := len(g[0])
	for _, row := range g[1:] {
		if len(row) != cols {
			return rows, -1
		}
	}
	return rows, cols
}

func (g Grid) Size() int {
	rows, cols := g.Shape()
	if cols < 0 {
		return 0
	}
	return rows * cols
}

// Raster is a set of equally shaped bands plus an optional acquisition date.
type Raster struct {
	Date  *time.Time
	Bands map[Band]Grid
}

// Shape validates that the given bands are present and share the same non-empty shape.
func (r Raster) Shape(required ...Band) (int, int, error) {
	rows, cols := -1, -1
	for _, band := range required {
		grid, ok := r.Bands[band]
		if !ok {
			return 0, 0, fmt.Errorf("%w: band %s missing", ErrDegenerate, band)
		}
		h, w := grid.Shape()
		if h == 0 || w <= 0 {
			return 0, 0, fmt.Errorf("%w: band %s is empty or ragged", ErrDegenerate, band)
		}
		if rows == -1 {
			rows, cols = h, w
			continue
		}
		if h != rows || w != cols {
			return 0, 0, fmt.Errorf("%w: band %s shape %dx%d differs from %dx%d", ErrDegenerate, band, h, w, rows, cols)
		}
	}
	return rows, cols, nil
}

// Metric is the single currency the change detector works with, regardless of source.
type Metric struct {
	Source             Source  `json:"source"`
	Date               string  `json:"date,omitempty"`
	MeanGreenness      float64 `json:"mean_greenness"`
	VegetationFraction float64 `json:"vegetation_fraction"`
	TotalPixels        int     `json:"total_pixels"`
}

// Classification holds the per-pixel index and vegetation mask alongside the summary metric.
type Classification struct {
	Index  Grid
	Mask   [][]bool
	Metric Metric
}

// Estimator converts a raster into a greenness metric.
type Estimator interface {
	Estimate(r Raster) (Metric, error)
	Classify(r Raster) (*Classification, error)
}

func clip(v float64) float64 {
	if math.IsNaN(v) {
		return v
	}
	return math.Max(-1, math.Min(1, v))
}

// classify thresholds the index and summarizes it. With ignoreNaN the mean skips undefined
// pixels; otherwise a single undefined pixel makes the whole raster degenerate.
func classify(index Grid, threshold float64, ignoreNaN bool, source Source, date *time.Time) (*Classification, error) {
	total := index.Size()
	if total == 0 {
		return nil, fmt.Errorf("%w: no pixels", ErrDegenerate)
	}

	mask := make([][]bool, len(index))
	vegetated, defined := 0, 0
	sum := 0.0
	for y, row := range index {
		mask[y] = make([]bool, len(row))
		for x, value := range row {
			if value > threshold {
				mask[y][x] = true
				vegetated++
			}
			if math.IsNaN(value) {
				if !ignoreNaN {
					return nil, fmt.Errorf("%w: undefined index at (%d,%d)", ErrDegenerate, x, y)
				}
				continue
			}
			sum += value
			defined++
		}
	}
	if defined == 0 {
		return nil, fmt.Errorf("%w: all index values undefined", ErrDegenerate)
	}

	metric := Metric{
		Source:             source,
		MeanGreenness:      sum / float64(defined),
		VegetationFraction: float64(vegetated) / float64(total),
		TotalPixels:        total,
	}
	if date != nil {
		metric.Date = date.Format("2006-01-02")
	}

	return &Classification{
		Index:  index,
		Mask:   mask,
		Metric: metric,
	}, nil
}
