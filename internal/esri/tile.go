package esri

import (
	"math"

	"github.com/paulmach/orb"

	"historical-imagery/internal/common"
)

const (
	MaxLevel = 23
	// Web Mercator constants
	Equator    = 40075016.685578 // Earth's equator in meters
	EpsgNumber = 3857
	// MaxLatitude is where Web Mercator becomes square
	MaxLatitude = 85.05112877980659
)

// WebMercator is the EPSG:3857 tile system with rows counted from the north
type WebMercator struct{}

// Project returns the fractional column and row of a [lon, lat] point
func (WebMercator) Project(p orb.Point, level int) (col, row float64) {
	n := float64(common.TilesAtLevel(level))
	m := ToMercator(p)
	return (0.5 + m[0]/Equator) * n, (0.5 - m[1]/Equator) * n
}

// Corners returns the closed counter-clockwise [lon, lat] ring of t
func (WebMercator) Corners(t common.Tile) orb.Ring {
	b := TileBounds(t)
	sw := ToWgs84(b.Min)
	ne := ToWgs84(b.Max)
	return orb.Ring{
		{sw[0], sw[1]},
		{ne[0], sw[1]},
		{ne[0], ne[1]},
		{sw[0], ne[1]},
		{sw[0], sw[1]},
	}
}

// ToMercator converts [lon, lat] to Web Mercator meters, clamping latitude
func ToMercator(p orb.Point) orb.Point {
	lat := max(-MaxLatitude, min(MaxLatitude, p[1]))
	x := p[0] / 360.0 * Equator
	latRad := lat * math.Pi / 180.0
	y := math.Log(math.Tan(math.Pi/4+latRad/2)) / (2 * math.Pi) * Equator
	return orb.Point{x, y}
}

// ToWgs84 converts Web Mercator meters to [lon, lat]
func ToWgs84(m orb.Point) orb.Point {
	lon := m[0] / Equator * 360.0
	lat := math.Atan(math.Sinh(m[1]/Equator*2*math.Pi)) * 180.0 / math.Pi
	return orb.Point{lon, lat}
}

// TileBounds returns the Web Mercator extent of t
func TileBounds(t common.Tile) orb.Bound {
	n := float64(common.TilesAtLevel(t.Level))
	minX := (float64(t.Column)/n - 0.5) * Equator
	maxX := (float64(t.Column+1)/n - 0.5) * Equator
	maxY := (0.5 - float64(t.Row)/n) * Equator
	minY := (0.5 - float64(t.Row+1)/n) * Equator
	return orb.Bound{Min: orb.Point{minX, minY}, Max: orb.Point{maxX, maxY}}
}

// TileCenter returns the Web Mercator centre of t
func TileCenter(t common.Tile) orb.Point {
	return TileBounds(t).Center()
}

// Envelopes converts an unwrapped [lon, lat] bound into Web Mercator
// envelopes inside the world extent, splitting it at the antimeridian
func Envelopes(b orb.Bound) []orb.Bound {
	shift := math.Floor((b.Min[0] + 180) / 360)
	west := b.Min[0] - shift*360
	east := b.Max[0] - shift*360

	toEnvelope := func(w, e float64) orb.Bound {
		return orb.Bound{Min: ToMercator(orb.Point{w, b.Min[1]}), Max: ToMercator(orb.Point{e, b.Max[1]})}
	}
	if east <= 180 {
		return []orb.Bound{toEnvelope(west, east)}
	}
	return []orb.Bound{toEnvelope(west, 180), toEnvelope(-180, math.Min(east-360, west))}
}
