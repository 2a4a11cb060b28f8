package sentinel

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/forest-guardian/greenwatch/internal/greenness"
)

var (
	// ErrProviderUnavailable marks archive connectivity failures. They escalate to the caller.
	ErrProviderUnavailable = errors.New("imagery provider unavailable")
	// ErrNoSamples is returned when no usable sample exists within the lookback window.
	ErrNoSamples = errors.New("no suitable Sentinel-2 images found for this location/time window")
	// ErrBandMissing is returned by archives when a requested band is not present on an image.
	ErrBandMissing = errors.New("band missing")
)

// NoSamplesError carries the diagnostics gathered during an exhausted search.
type NoSamplesError struct {
	Diagnostics []string
}

func (e *NoSamplesError) Error() string {
	return fmt.Sprintf("%s, including an extended lookback period. Diagnostics: [%s]", ErrNoSamples.Error(), strings.Join(e.Diagnostics, "; "))
}

func (e *NoSamplesError) Unwrap() error {
	return ErrNoSamples
}

// ImageHandle identifies one archived acquisition.
type ImageHandle struct {
	ID         string
	AcquiredAt time.Time
	CloudCover *float64
}

// Query filters the archive by area and date segment.
type Query struct {
	Region        Region
	Window        Segment
	Limit         int
	MaxCloudCover float64
}

// Archive is the imagery provider consumed by the search.
type Archive interface {
	// Size returns the number of images matching the query, ignoring its limit.
	Size(ctx context.Context, q Query) (int, error)
	// Query returns up to q.Limit images ordered by acquisition time, most recent first.
	Query(ctx context.Context, q Query) ([]ImageHandle, error)
	// SampleBands extracts the requested bands over the region. Bands the image does not carry
	// are either omitted from the result or reported with ErrBandMissing.
	SampleBands(ctx context.Context, image ImageHandle, bands []greenness.Band, region Region) (map[greenness.Band]greenness.Grid, error)
}

// Sample is an accepted historical observation.
type Sample struct {
	Image ImageHandle
	Bands map[greenness.Band]greenness.Grid
}

func (s Sample) Raster() greenness.Raster {
	date := s.Image.AcquiredAt
	return greenness.Raster{Date: &date, Bands: s.Bands}
}
