package sentinel

import (
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

var ErrInvalidPoint = errors.New("invalid point")

// circleSegments is the number of vertices used to approximate the buffered region.
const circleSegments = 32

type Point struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
}

func (p Point) Validate() error {
	if p.Latitude < -90 || p.Latitude > 90 {
		return fmt.Errorf("%w: latitude %f out of range [-90, 90]", ErrInvalidPoint, p.Latitude)
	}
	if p.Longitude < -180 || p.Longitude > 180 {
		return fmt.Errorf("%w: longitude %f out of range [-180, 180]", ErrInvalidPoint, p.Longitude)
	}
	return nil
}

func (p Point) Orb() orb.Point {
	return orb.Point{p.Longitude, p.Latitude}
}

// Region is the area sampled around a point.
type Region struct {
	Center       Point
	RadiusMeters float64
	Polygon      orb.Polygon
	Bound        orb.Bound
}

// NewRegion buffers the point by the given radius.
func NewRegion(p Point, radiusMeters float64) Region {
	center := p.Orb()
	ring := make(orb.Ring, 0, circleSegments+1)
	for i := 0; i < circleSegments; i++ {
		bearing := 360.0 * float64(i) / circleSegments
		ring = append(ring, geo.PointAtBearingAndDistance(center, bearing, radiusMeters))
	}
	ring = append(ring, ring[0])

	return Region{
		Center:       p,
		RadiusMeters: radiusMeters,
		Polygon:      orb.Polygon{ring},
		Bound:        geo.NewBoundAroundPoint(center, radiusMeters),
	}
}

// BBox returns the region bounds as [minLon, minLat, maxLon, maxLat].
func (r Region) BBox() [4]float64 {
	return [4]float64{r.Bound.Min.Lon(), r.Bound.Min.Lat(), r.Bound.Max.Lon(), r.Bound.Max.Lat()}
}

func (r Region) String() string {
	return fmt.Sprintf("Lat=%f, Lon=%f, Buffer=%.0fm", r.Center.Latitude, r.Center.Longitude, r.RadiusMeters)
}
