package region

import (
	"iter"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"historical-imagery/internal/common"
)

// TileSystem maps geodetic points into fractional tile space and tiles back to
// their geodetic corners.
type TileSystem interface {
	// Project returns the fractional column and row of p at level. Columns
	// are not reduced, so longitudes past 180 give columns past 2^level.
	Project(p orb.Point, level int) (col, row float64)
	// Corners returns the closed, counter-clockwise [lon, lat] ring of t
	Corners(t common.Tile) orb.Ring
}

// Covering lazily yields every tile whose square intersects the region.
// The sequence can be ranged over any number of times.
func (r *Region) Covering(sys TileSystem, level int) iter.Seq[common.Tile] {
	n := common.TilesAtLevel(level)
	return func(yield func(common.Tile) bool) {
		r.cover(sys, level, func(row, col int) bool {
			return yield(common.Tile{Row: row, Column: common.Mod(col, n), Level: level})
		})
	}
}

// Stats returns the bounding stats of Covering
func (r *Region) Stats(sys TileSystem, level int) (common.RegionStats, error) {
	b := common.NewTileBounds()
	r.cover(sys, level, func(row, col int) bool {
		b.Add(row, col)
		return true
	})
	if b.Empty() {
		return common.RegionStats{}, ErrEmptyRegion
	}
	return b.Stats(level)
}

// Count returns the number of covering tiles
func (r *Region) Count(sys TileSystem, level int) int {
	count := 0
	r.cover(sys, level, func(int, int) bool {
		count++
		return true
	})
	return count
}

// cover calls fn with the row and unwrapped column of each intersecting tile
func (r *Region) cover(sys TileSystem, level int, fn func(row, col int) bool) {
	n := common.TilesAtLevel(level)
	proj := make(orb.Ring, len(r.ring))
	for i, p := range r.ring {
		col, row := sys.Project(p, level)
		proj[i] = orb.Point{col, row}
	}
	b := proj.Bound()

	minCol, maxCol := span(b.Min[0], b.Max[0])
	minRow, maxRow := span(b.Min[1], b.Max[1])
	minRow = max(0, min(minRow, n-1))
	maxRow = max(0, min(maxRow, n-1))

	for row := minRow; row <= maxRow; row++ {
		for col := minCol; col <= maxCol; col++ {
			if !squareIntersects(proj, float64(col), float64(row)) {
				continue
			}
			if !fn(row, col) {
				return
			}
		}
	}
}

// span returns the integer cells touched by [lo, hi]; a bound lying exactly on
// a cell edge belongs to the cell below it
func span(lo, hi float64) (int, int) {
	first := int(math.Floor(lo))
	last := int(math.Floor(hi))
	if float64(last) == hi && last > first {
		last--
	}
	return first, last
}

// squareIntersects reports whether the unit square at (x, y) shares area with
// the closed ring
func squareIntersects(ring orb.Ring, x, y float64) bool {
	if planar.RingContains(ring, orb.Point{x + 0.5, y + 0.5}) {
		return true
	}
	for _, p := range ring {
		if p[0] > x && p[0] < x+1 && p[1] > y && p[1] < y+1 {
			return true
		}
	}
	square := [4]orb.Point{{x, y}, {x + 1, y}, {x + 1, y + 1}, {x, y + 1}}
	for i := 0; i+1 < len(ring); i++ {
		for j := range square {
			if crosses(ring[i], ring[i+1], square[j], square[(j+1)%4]) {
				return true
			}
		}
	}
	return false
}

// crosses reports a proper intersection of segments ab and cd
func crosses(a, b, c, d orb.Point) bool {
	o1 := orient(a, b, c)
	o2 := orient(a, b, d)
	o3 := orient(c, d, a)
	o4 := orient(c, d, b)
	return o1*o2 < 0 && o3*o4 < 0
}

func orient(a, b, c orb.Point) float64 {
	return (b[0]-a[0])*(c[1]-a[1]) - (b[1]-a[1])*(c[0]-a[0])
}
