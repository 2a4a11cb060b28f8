package photo

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/forest-guardian/greenwatch/internal/greenness"
	"github.com/forest-guardian/greenwatch/internal/properties"
	"github.com/nfnt/resize"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var ErrUndecodable = errors.New("unable to decode photo")

type Options struct {
	// MaxDimension downsizes photos whose longest side exceeds it. Zero keeps the original size.
	MaxDimension int
}

func OptionsFromEnv() Options {
	return Options{MaxDimension: properties.MaxPhotoDimension()}
}

// Decode turns an encoded photo into red, green and blue grids with values in 0..255.
func Decode(data []byte, opts Options) (greenness.Raster, error) {
	if len(data) == 0 {
		return greenness.Raster{}, fmt.Errorf("%w: empty payload", ErrUndecodable)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return greenness.Raster{}, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}

	bounds := img.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return greenness.Raster{}, fmt.Errorf("%w: %s image has no pixels", ErrUndecodable, format)
	}

	if opts.MaxDimension > 0 && (bounds.Dx() > opts.MaxDimension || bounds.Dy() > opts.MaxDimension) {
		limit := uint(opts.MaxDimension)
		img = resize.Thumbnail(limit, limit, img, resize.Bilinear)
		bounds = img.Bounds()
	}

	return toRaster(img, bounds), nil
}

func toRaster(img image.Image, bounds image.Rectangle) greenness.Raster {
	width, height := bounds.Dx(), bounds.Dy()
	red := make(greenness.Grid, height)
	green := make(greenness.Grid, height)
	blue := make(greenness.Grid, height)

	for y := 0; y < height; y++ {
		red[y] = make([]float64, width)
		green[y] = make([]float64, width)
		blue[y] = make([]float64, width)
		for x := 0; x < width; x++ {
			// Non-premultiplied, so transparent pixels keep their channel values.
			c := color.NRGBAModel.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.NRGBA)
			red[y][x] = float64(c.R)
			green[y][x] = float64(c.G)
			blue[y][x] = float64(c.B)
		}
	}

	return greenness.Raster{Bands: map[greenness.Band]greenness.Grid{
		greenness.BandRed:   red,
		greenness.BandGreen: green,
		greenness.BandBlue:  blue,
	}}
}
