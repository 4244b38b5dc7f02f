// Package geometry merges tile polygons into minimal polygons.
package geometry

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/ctessum/geom"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

var ErrUnionFailed = errors.New("polygon union failed")

// Unioner dissolves a set of polygons into the polygons covering the same area
type Unioner interface {
	Union(polys []orb.Polygon) (orb.MultiPolygon, error)
}

// Cascaded unions polygons pairwise in a balanced tree, which keeps every
// intermediate operand small.
type Cascaded struct{}

func (Cascaded) Union(polys []orb.Polygon) (mp orb.MultiPolygon, err error) {
	if len(polys) == 0 {
		return nil, nil
	}
	defer func() {
		if r := recover(); r != nil {
			mp, err = nil, fmt.Errorf("%w: %v", ErrUnionFailed, r)
		}
	}()

	parts := make([]geom.Polygon, len(polys))
	for i, p := range polys {
		parts[i] = toGeom(p)
	}
	for len(parts) > 1 {
		next := make([]geom.Polygon, 0, (len(parts)+1)/2)
		for i := 0; i < len(parts); i += 2 {
			if i+1 == len(parts) {
				next = append(next, parts[i])
				continue
			}
			next = append(next, rings(parts[i].Union(parts[i+1])))
		}
		parts = next
	}
	return fromGeom(parts[0]), nil
}

// rings flattens a union result into one polygon and reopens its rings, which
// the union engine returns closed
func rings(p geom.Polygonal) geom.Polygon {
	var out geom.Polygon
	for _, poly := range p.Polygons() {
		for _, path := range poly {
			n := len(path)
			if n > 1 && path[0] == path[n-1] {
				n--
			}
			out = append(out, path[:n])
		}
	}
	return out
}

// toGeom drops the closing point of every ring
func toGeom(p orb.Polygon) geom.Polygon {
	out := make(geom.Polygon, 0, len(p))
	for _, ring := range p {
		n := len(ring)
		if n > 1 && ring[0].Equal(ring[n-1]) {
			n--
		}
		path := make(geom.Path, n)
		for i := 0; i < n; i++ {
			path[i] = geom.Point{X: ring[i][0], Y: ring[i][1]}
		}
		out = append(out, path)
	}
	return out
}

type classified struct {
	ring   orb.Ring
	area   float64
	depth  int
	parent int
}

// fromGeom closes the rings of a union result and sorts them into polygons:
// rings nested an even number of times are shells (counter-clockwise), the
// rest are holes (clockwise) of their innermost enclosing shell.
func fromGeom(p geom.Polygon) orb.MultiPolygon {
	var rings []classified
	for _, path := range p {
		ring := make(orb.Ring, 0, len(path)+1)
		for _, pt := range path {
			ring = append(ring, orb.Point{pt.X, pt.Y})
		}
		if len(ring) < 3 {
			continue
		}
		if !ring[0].Equal(ring[len(ring)-1]) {
			ring = append(ring, ring[0])
		}
		if ring.Orientation() == 0 {
			continue
		}
		rings = append(rings, classified{ring: ring, area: ringArea(ring), parent: -1})
	}

	for i := range rings {
		best := math.Inf(1)
		for j := range rings {
			if i == j || rings[j].area <= rings[i].area {
				continue
			}
			if !within(rings[i].ring, rings[j].ring) {
				continue
			}
			rings[i].depth++
			if rings[j].area < best {
				best = rings[j].area
				rings[i].parent = j
			}
		}
	}

	shells := make(map[int]int)
	var mp orb.MultiPolygon
	for i, r := range rings {
		if r.depth%2 != 0 {
			continue
		}
		orient(r.ring, orb.CCW)
		shells[i] = len(mp)
		mp = append(mp, orb.Polygon{r.ring})
	}
	for _, r := range rings {
		if r.depth%2 == 0 {
			continue
		}
		idx, ok := shells[r.parent]
		if !ok {
			continue
		}
		orient(r.ring, orb.CW)
		mp[idx] = append(mp[idx], r.ring)
	}

	sort.SliceStable(mp, func(i, j int) bool {
		bi, bj := mp[i].Bound(), mp[j].Bound()
		if bi.Min[1] != bj.Min[1] {
			return bi.Min[1] > bj.Min[1]
		}
		return bi.Min[0] < bj.Min[0]
	})
	return mp
}

func ringArea(r orb.Ring) float64 {
	return math.Abs(planar.Area(orb.Polygon{r}))
}

func orient(r orb.Ring, want orb.Orientation) {
	if r.Orientation() != want {
		r.Reverse()
	}
}

// within reports whether inner lies inside outer, judged at the first vertex
// or edge midpoint of inner that is not on the boundary of outer
func within(inner, outer orb.Ring) bool {
	for i := 0; i+1 < len(inner); i++ {
		a, b := inner[i], inner[i+1]
		for _, p := range []orb.Point{a, {(a[0] + b[0]) / 2, (a[1] + b[1]) / 2}} {
			if onBoundary(outer, p) {
				continue
			}
			return planar.RingContains(outer, p)
		}
	}
	return false
}

func onBoundary(r orb.Ring, p orb.Point) bool {
	const eps = 1e-12
	for i := 0; i+1 < len(r); i++ {
		a, b := r[i], r[i+1]
		cross := (b[0]-a[0])*(p[1]-a[1]) - (b[1]-a[1])*(p[0]-a[0])
		if math.Abs(cross) > eps*math.Max(1, math.Hypot(b[0]-a[0], b[1]-a[1])) {
			continue
		}
		if p[0] >= math.Min(a[0], b[0])-eps && p[0] <= math.Max(a[0], b[0])+eps &&
			p[1] >= math.Min(a[1], b[1])-eps && p[1] <= math.Max(a[1], b[1])+eps {
			return true
		}
	}
	return false
}
