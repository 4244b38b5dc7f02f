// Package region describes an area of interest and enumerates the tiles that
// cover it at a zoom level.
package region

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
)

var (
	ErrEmptyRegion   = errors.New("region is empty")
	ErrInvalidRegion = errors.New("invalid region")
)

// pointEpsilon is the side of the square built around a single location, in degrees
const pointEpsilon = 1e-7

// Region is a polygonal area of interest in WGS84 [lon, lat] order.
// Longitudes are unwrapped along the ring so that no edge spans more than
// 180 degrees, which lets a region cross the antimeridian.
type Region struct {
	ring orb.Ring
}

// New builds a region from an ordered ring of [lon, lat] points. The ring may
// be open or closed.
func New(points []orb.Point) (*Region, error) {
	ring := make(orb.Ring, 0, len(points)+1)
	for _, p := range points {
		if math.IsNaN(p[0]) || math.IsNaN(p[1]) || math.IsInf(p[0], 0) || math.IsInf(p[1], 0) {
			return nil, fmt.Errorf("%w: non-finite coordinate", ErrInvalidRegion)
		}
		if p[1] < -90 || p[1] > 90 {
			return nil, fmt.Errorf("%w: latitude %f out of range [-90, 90]", ErrInvalidRegion, p[1])
		}
		if len(ring) > 0 && ring[len(ring)-1].Equal(p) {
			continue
		}
		ring = append(ring, p)
	}
	if len(ring) > 1 && ring[0].Equal(ring[len(ring)-1]) {
		ring = ring[:len(ring)-1]
	}
	if len(ring) < 3 {
		return nil, fmt.Errorf("%w: need at least 3 distinct points, got %d", ErrEmptyRegion, len(ring))
	}

	unwrap(ring)

	// The closing edge must not jump across the antimeridian either, otherwise
	// the ring encircles a pole.
	if math.Abs(ring[0][0]-ring[len(ring)-1][0]) > 180 {
		return nil, fmt.Errorf("%w: ring encircles a pole", ErrInvalidRegion)
	}

	r := &Region{ring: append(ring, ring[0])}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Validate checks the extent of the region
func (r *Region) Validate() error {
	if r == nil || len(r.ring) < 4 {
		return ErrEmptyRegion
	}
	b := r.ring.Bound()
	if b.Max[0]-b.Min[0] >= 360 {
		return fmt.Errorf("%w: longitude span %.3f must be less than 360", ErrInvalidRegion, b.Max[0]-b.Min[0])
	}
	if b.Min[1] < -90 || b.Max[1] > 90 {
		return fmt.Errorf("%w: latitude out of range [-90, 90]", ErrInvalidRegion)
	}
	if b.Max[1] == b.Min[1] || b.Max[0] == b.Min[0] {
		return fmt.Errorf("%w: region has no area", ErrEmptyRegion)
	}
	return nil
}

// unwrap shifts longitudes by multiples of 360 so consecutive points differ
// by at most 180 degrees
func unwrap(ring orb.Ring) {
	for i := 1; i < len(ring); i++ {
		for ring[i][0]-ring[i-1][0] > 180 {
			ring[i][0] -= 360
		}
		for ring[i][0]-ring[i-1][0] < -180 {
			ring[i][0] += 360
		}
	}
}

// FromCorners builds a rectangular region. When upperRight lies west of
// lowerLeft the rectangle crosses the antimeridian.
func FromCorners(lowerLeft, upperRight orb.Point) (*Region, error) {
	west, south := lowerLeft[0], lowerLeft[1]
	east, north := upperRight[0], upperRight[1]
	if south >= north {
		return nil, fmt.Errorf("%w: south (%f) must be less than north (%f)", ErrInvalidRegion, south, north)
	}
	if east <= west {
		east += 360
	}
	// Edge midpoints keep every edge under 180 degrees so that unwrapping
	// cannot flip a wide rectangle into its complement.
	mid := (west + east) / 2
	return New([]orb.Point{
		{west, south},
		{mid, south},
		{east, south},
		{east, north},
		{mid, north},
		{west, north},
	})
}

// AroundPoint builds a tiny square region whose south-west corner is p, so
// that it covers the single tile containing p at any level.
func AroundPoint(p orb.Point) (*Region, error) {
	south, north := p[1], p[1]+pointEpsilon
	if north > 90 {
		south, north = p[1]-pointEpsilon, p[1]
	}
	return New([]orb.Point{
		{p[0], south},
		{p[0] + pointEpsilon, south},
		{p[0] + pointEpsilon, north},
		{p[0], north},
	})
}

// ParseLatLon parses "lat,lon" into an orb.Point ([lon, lat])
func ParseLatLon(s string) (orb.Point, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return orb.Point{}, fmt.Errorf("%w: %q is not LAT,LON", ErrInvalidRegion, s)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return orb.Point{}, fmt.Errorf("%w: bad latitude %q: %w", ErrInvalidRegion, parts[0], err)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return orb.Point{}, fmt.Errorf("%w: bad longitude %q: %w", ErrInvalidRegion, parts[1], err)
	}
	return orb.Point{lon, lat}, nil
}

// ParsePoints parses "lat,lon;lat,lon;..." (spaces allowed) into a region
func ParsePoints(s string) (*Region, error) {
	var points []orb.Point
	for _, field := range strings.Split(s, ";") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		p, err := ParseLatLon(field)
		if err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return New(points)
}

// Ring returns a copy of the closed, unwrapped ring
func (r *Region) Ring() orb.Ring {
	return r.ring.Clone()
}

// Bound returns the unwrapped bounding box
func (r *Region) Bound() orb.Bound {
	return r.ring.Bound()
}
