package output

import (
	"fmt"
	"image/color"
	"math"

	"github.com/fogleman/gg"
	"github.com/forest-guardian/greenwatch/internal/greenness"
	"github.com/forest-guardian/greenwatch/internal/properties"
)

func normalize(value, min, max float64) float64 {
	if max == min {
		return 0
	}
	norm := (value - min) / (max - min)
	if norm < 0 {
		return 0
	}
	if norm > 1 {
		return 1
	}
	return norm
}

// valueToColor maps 0..1 from brown through yellow to green.
func valueToColor(norm float64) color.RGBA {
	if norm <= 0.5 {
		ratio := norm / 0.5
		return color.RGBA{R: uint8(139 + 116*ratio), G: uint8(69 + 186*ratio), B: uint8(19 * (1 - ratio)), A: 255}
	}
	ratio := (norm - 0.5) / 0.5
	return color.RGBA{R: uint8(255 * (1 - ratio)), G: uint8(255 - 127*ratio), B: 0, A: 255}
}

func maskColor(key string) color.RGBA {
	c := properties.ColorMap[key]
	return color.RGBA{R: c.R, G: c.G, B: c.B, A: 255}
}

// CreateMaskImage renders the classification as a vegetation mask. Undefined pixels use the unknown color.
func CreateMaskImage(classification *greenness.Classification, dir, name string) (string, error) {
	rows, cols := classification.Index.Shape()
	if rows == 0 || cols <= 0 {
		return "", fmt.Errorf("empty classification")
	}

	outputPath, err := prepare(dir, name+"_mask", ".png")
	if err != nil {
		return "", err
	}

	dc := gg.NewContext(cols, rows)
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			key := "bare"
			switch {
			case math.IsNaN(classification.Index[y][x]):
				key = "unknown"
			case classification.Mask[y][x]:
				key = "vegetation"
			}
			dc.SetColor(maskColor(key))
			dc.SetPixel(x, y)
		}
	}

	if err := dc.SavePNG(outputPath); err != nil {
		return "", fmt.Errorf("failed to save image: %w", err)
	}

	fmt.Println("PNG image created successfully as", outputPath)
	return outputPath, nil
}

// CreateIndexImage renders the greenness index in [-1, 1] as a color ramp.
func CreateIndexImage(index greenness.Grid, dir, name string) (string, error) {
	rows, cols := index.Shape()
	if rows == 0 || cols <= 0 {
		return "", fmt.Errorf("empty index")
	}

	outputPath, err := prepare(dir, name+"_index", ".png")
	if err != nil {
		return "", err
	}

	dc := gg.NewContext(cols, rows)
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			value := index[y][x]
			if math.IsNaN(value) {
				dc.SetColor(maskColor("unknown"))
			} else {
				dc.SetColor(valueToColor(normalize(value, -1, 1)))
			}
			dc.SetPixel(x, y)
		}
	}

	if err := dc.SavePNG(outputPath); err != nil {
		return "", fmt.Errorf("failed to save image: %w", err)
	}

	fmt.Println("PNG image created successfully as", outputPath)
	return outputPath, nil
}
