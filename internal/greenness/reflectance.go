package greenness

// Reflectance estimates greenness of multispectral samples with NDVI.
// The green band, when present, is carried along but not used numerically.
type Reflectance struct {
	VegetationThreshold float64
}

func NewReflectance(threshold float64) Reflectance {
	return Reflectance{VegetationThreshold: threshold}
}

// ReflectanceIndex computes the clipped per-pixel normalized difference of nir and red.
func ReflectanceIndex(nir, red Grid) Grid {
	index := make(Grid, len(nir))
	for y := range nir {
		index[y] = make([]float64, len(nir[y]))
		for x := range nir[y] {
			n, r := nir[y][x], red[y][x]
			index[y][x] = clip((n - r) / (n + r + Epsilon))
		}
	}
	return index
}

func (e Reflectance) Classify(r Raster) (*Classification, error) {
	if _, _, err := r.Shape(BandNIR, BandRed); err != nil {
		return nil, err
	}
	index := ReflectanceIndex(r.Bands[BandNIR], r.Bands[BandRed])
	return classify(index, e.VegetationThreshold, true, SourceSatellite, r.Date)
}

func (e Reflectance) Estimate(r Raster) (Metric, error) {
	c, err := e.Classify(r)
	if err != nil {
		return Metric{}, err
	}
	return c.Metric, nil
}
