package esri

import (
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"historical-imagery/internal/common"
)

// DateRegion is the footprint of one capture date in a layer, as Web
// Mercator polygons
type DateRegion struct {
	Date     time.Time
	features [][]orb.Ring
}

func (r *DateRegion) addFeature(rings [][][2]float64) {
	feature := make([]orb.Ring, 0, len(rings))
	for _, raw := range rings {
		ring := make(orb.Ring, len(raw))
		for i, p := range raw {
			ring[i] = orb.Point(p)
		}
		if len(ring) < 3 {
			continue
		}
		if !ring[0].Equal(ring[len(ring)-1]) {
			ring = append(ring, ring[0])
		}
		feature = append(feature, ring)
	}
	if len(feature) > 0 {
		r.features = append(r.features, feature)
	}
}

// ContainsPoint applies the even-odd rule to each feature's rings, so holes
// are excluded without knowing which ring is which
func (r *DateRegion) ContainsPoint(p orb.Point) bool {
	for _, rings := range r.features {
		inside := false
		for _, ring := range rings {
			if planar.RingContains(ring, p) {
				inside = !inside
			}
		}
		if inside {
			return true
		}
	}
	return false
}

// ContainsTile reports whether the centre of t lies in the footprint
func (r *DateRegion) ContainsTile(t common.Tile) bool {
	return r.ContainsPoint(TileCenter(t))
}

// Features returns the number of polygons in the footprint
func (r *DateRegion) Features() int {
	return len(r.features)
}
