package sentinel

import (
	"errors"
	"testing"

	"github.com/paulmach/orb/geo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoint_Validate(t *testing.T) {
	tests := []struct {
		name  string
		point Point
		valid bool
	}{
		{"origin", Point{0, 0}, true},
		{"corners", Point{-90, 180}, true},
		{"latitude too high", Point{90.5, 0}, false},
		{"latitude too low", Point{-91, 0}, false},
		{"longitude too high", Point{0, 180.1}, false},
		{"longitude too low", Point{0, -200}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.point.Validate()
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, ErrInvalidPoint))
		})
	}
}

func TestNewRegion(t *testing.T) {
	p := Point{Latitude: 48.85, Longitude: 2.35}
	region := NewRegion(p, 250)

	require.Len(t, region.Polygon, 1)
	ring := region.Polygon[0]
	require.Len(t, ring, circleSegments+1)
	assert.Equal(t, ring[0], ring[len(ring)-1])

	for _, vertex := range ring {
		assert.InDelta(t, 250, geo.Distance(p.Orb(), vertex), 1)
	}

	bbox := region.BBox()
	assert.Less(t, bbox[0], p.Longitude)
	assert.Less(t, bbox[1], p.Latitude)
	assert.Greater(t, bbox[2], p.Longitude)
	assert.Greater(t, bbox[3], p.Latitude)
}
