package greenness

// Visual estimates greenness of a 3-channel photo with the visible atmospherically
// resistant index (G - R) / (G + R - B).
type Visual struct {
	VegetationThreshold float64
}

func NewVisual(threshold float64) Visual {
	return Visual{VegetationThreshold: threshold}
}

// VisualIndex computes the clipped per-pixel visible index.
func VisualIndex(red, green, blue Grid) Grid {
	index := make(Grid, len(red))
	for y := range red {
		index[y] = make([]float64, len(red[y]))
		for x := range red[y] {
			r, g, b := red[y][x], green[y][x], blue[y][x]
			index[y][x] = clip((g - r) / (g + r - b + Epsilon))
		}
	}
	return index
}

func (v Visual) Classify(r Raster) (*Classification, error) {
	if _, _, err := r.Shape(BandRed, BandGreen, BandBlue); err != nil {
		return nil, err
	}
	index := VisualIndex(r.Bands[BandRed], r.Bands[BandGreen], r.Bands[BandBlue])
	return classify(index, v.VegetationThreshold, false, SourcePhoto, r.Date)
}

func (v Visual) Estimate(r Raster) (Metric, error) {
	c, err := v.Classify(r)
	if err != nil {
		return Metric{}, err
	}
	return c.Metric, nil
}
