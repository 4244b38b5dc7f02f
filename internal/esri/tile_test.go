package esri

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"historical-imagery/internal/common"
)

func TestProjectRowsFromNorth(t *testing.T) {
	col, row := WebMercator{}.Project(orb.Point{-180, MaxLatitude}, 3)
	assert.InDelta(t, 0, col, 1e-9)
	assert.InDelta(t, 0, row, 1e-9)

	col, row = WebMercator{}.Project(orb.Point{0, 0}, 3)
	assert.InDelta(t, 4, col, 1e-9)
	assert.InDelta(t, 4, row, 1e-9)

	// latitudes past the projection limit clamp to the edge rows
	_, row = WebMercator{}.Project(orb.Point{0, -89.9}, 3)
	assert.InDelta(t, 8, row, 1e-9)

	// unwrapped longitudes keep going past the last column
	col, _ = WebMercator{}.Project(orb.Point{190, 0}, 1)
	assert.Greater(t, col, 2.0)
}

func TestCornersAreClosedCounterClockwise(t *testing.T) {
	tile := common.Tile{Row: 1, Column: 2, Level: 2}
	ring := WebMercator{}.Corners(tile)
	require.Len(t, ring, 5)
	assert.True(t, ring.Closed())
	assert.Equal(t, orb.CCW, ring.Orientation())

	b := ring.Bound()
	assert.InDelta(t, 0, b.Min[0], 1e-9)
	assert.InDelta(t, 90, b.Max[0], 1e-9)
	assert.InDelta(t, 0, b.Min[1], 1e-9)
	assert.InDelta(t, 66.51326044311186, b.Max[1], 1e-9)
}

func TestMercatorRoundTrip(t *testing.T) {
	for _, p := range []orb.Point{{0, 0}, {-122.4194, 37.7749}, {151.2093, -33.8688}, {179.9, 84}} {
		back := ToWgs84(ToMercator(p))
		assert.InDelta(t, p[0], back[0], 1e-9)
		assert.InDelta(t, p[1], back[1], 1e-9)
	}
}

func TestEnvelopes(t *testing.T) {
	one := Envelopes(orb.Bound{Min: orb.Point{-10, -5}, Max: orb.Point{10, 5}})
	require.Len(t, one, 1)
	assert.InDelta(t, -Equator/36, one[0].Min[0], 1e-6)

	split := Envelopes(orb.Bound{Min: orb.Point{170, 0}, Max: orb.Point{190, 10}})
	require.Len(t, split, 2)
	assert.InDelta(t, Equator/2, split[0].Max[0], 1e-6)
	assert.InDelta(t, -Equator/2, split[1].Min[0], 1e-6)
	// 190 east wraps to 170 west
	assert.InDelta(t, -170.0/360*Equator, split[1].Max[0], 1e-6)

	shifted := Envelopes(orb.Bound{Min: orb.Point{190, 0}, Max: orb.Point{200, 10}})
	require.Len(t, shifted, 1)
	assert.InDelta(t, -170.0/360*Equator, shifted[0].Min[0], 1e-6)
}
