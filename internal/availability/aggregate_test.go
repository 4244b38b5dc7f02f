package availability

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"historical-imagery/internal/common"
	"historical-imagery/internal/region"
)

// lonLatGrid is an equirectangular tile system with rows counted from the north
type lonLatGrid struct{}

func (lonLatGrid) Project(p orb.Point, level int) (float64, float64) {
	n := float64(common.TilesAtLevel(level))
	return (p[0] + 180) / 360 * n, (90 - p[1]) / 180 * n
}

func (lonLatGrid) Corners(t common.Tile) orb.Ring {
	n := float64(common.TilesAtLevel(t.Level))
	west := float64(t.Column)/n*360 - 180
	east := float64(t.Column+1)/n*360 - 180
	north := 90 - float64(t.Row)/n*180
	south := 90 - float64(t.Row+1)/n*180
	return orb.Ring{{west, south}, {east, south}, {east, north}, {west, north}, {west, south}}
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

type fakeNode []common.DatedTile

func (n fakeNode) DatedTiles() []common.DatedTile { return n }

type fakeNodes struct {
	dates map[common.Tile][]time.Time
	fail  map[common.Tile]error
}

func (f fakeNodes) NodeFor(_ context.Context, tile common.Tile) (Node, error) {
	if err := f.fail[tile]; err != nil {
		return nil, err
	}
	dates, ok := f.dates[tile]
	if !ok {
		return nil, nil
	}
	node := fakeNode{}
	for _, d := range dates {
		node = append(node, common.DatedTile{Date: d, Tile: tile})
	}
	return node, nil
}

type fakeLayers struct {
	layers  []*Layer
	regions map[int][]DateRegion
	err     error

	mu      sync.Mutex
	queried []int
}

func (f *fakeLayers) Layers(context.Context) ([]*Layer, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.layers, nil
}

func (f *fakeLayers) DateRegionsFor(_ context.Context, layer *Layer, _ Area) ([]DateRegion, error) {
	f.mu.Lock()
	f.queried = append(f.queried, layer.ID)
	f.mu.Unlock()
	return f.regions[layer.ID], nil
}

func newArea(t *testing.T, r *region.Region, level int) Area {
	t.Helper()
	area, err := NewArea(r, lonLatGrid{}, level)
	require.NoError(t, err)
	return area
}

func TestKeyholeSingleTileDropsSentinel(t *testing.T) {
	r, err := region.AroundPoint(orb.Point{10, 10})
	require.NoError(t, err)
	area := newArea(t, r, 5)

	var tile common.Tile
	for tl := range area.Tiles() {
		tile = tl
	}
	nodes := fakeNodes{dates: map[common.Tile][]time.Time{
		tile: {day(2001, 1, 1), day(2005, 6, 15), day(1, 1, 1), day(2001, 1, 1)},
	}}

	res, err := Aggregate(context.Background(), &KeyholeAdapter{Source: nodes}, area, 4)
	require.NoError(t, err)
	require.Len(t, res.Groups, 1)
	assert.Nil(t, res.Groups[0].Layer)

	grids := res.Groups[0].Grids
	require.Len(t, grids, 2)
	assert.Equal(t, day(2005, 6, 15), grids[0].Date())
	assert.Equal(t, day(2001, 1, 1), grids[1].Date())
	for _, g := range grids {
		assert.Equal(t, 1, g.Rows())
		assert.Equal(t, 1, g.Columns())
		assert.Equal(t, Available, g.Get(0, 0))
	}
	assert.Equal(t, []time.Time{day(2005, 6, 15), day(2001, 1, 1)}, res.Dates())
}

func TestKeyholeFinalizesOnlyQueriedCells(t *testing.T) {
	// covers tiles (0,0), (0,1) and (1,0) of a 2x2 box at level 2
	r, err := region.New([]orb.Point{{-170, 80}, {-10, 80}, {-170, 20}})
	require.NoError(t, err)
	area := newArea(t, r, 2)

	a, b := day(2010, 3, 4), day(2012, 7, 8)
	nodes := fakeNodes{dates: map[common.Tile][]time.Time{
		{Row: 0, Column: 0, Level: 2}: {a},
		{Row: 1, Column: 0, Level: 2}: {b},
	}}
	adapter := &KeyholeAdapter{Source: nodes}

	res, err := Aggregate(context.Background(), adapter, area, 2)
	require.NoError(t, err)
	grids := res.Groups[0].Grids
	require.Len(t, grids, 2)

	// rows are top-origin from MaxRow
	gridB, gridA := grids[0], grids[1]
	assert.Equal(t, b, gridB.Date())

	assert.Equal(t, Available, gridA.Get(1, 0))
	assert.Equal(t, Unavailable, gridA.Get(1, 1))
	assert.Equal(t, Unavailable, gridA.Get(0, 0))
	assert.Equal(t, Unknown, gridA.Get(0, 1))

	assert.Equal(t, Available, gridB.Get(0, 0))
	assert.Equal(t, Unavailable, gridB.Get(1, 0))
	assert.Equal(t, Unknown, gridB.Get(0, 1))

	tile := res.TileAt(0, 1)
	assert.Equal(t, common.Tile{Row: 1, Column: 1, Level: 2}, tile)
	row, col := res.Cell(tile)
	assert.Equal(t, [2]int{0, 1}, [2]int{row, col})
}

func TestKeyholeNoNodesIsEmpty(t *testing.T) {
	r, err := region.AroundPoint(orb.Point{0.5, 0.5})
	require.NoError(t, err)
	area := newArea(t, r, 8)

	res, err := Aggregate(context.Background(), &KeyholeAdapter{Source: fakeNodes{}}, area, 1)
	require.NoError(t, err)
	assert.True(t, res.Empty())
	assert.Empty(t, res.Dates())
}

func TestKeyholeFailureAbortsAggregation(t *testing.T) {
	r, err := region.FromCorners(orb.Point{-170, 10}, orb.Point{-10, 80})
	require.NoError(t, err)
	area := newArea(t, r, 2)

	boom := errors.New("connection reset")
	nodes := fakeNodes{fail: map[common.Tile]error{{Row: 1, Column: 1, Level: 2}: boom}}

	res, err := Aggregate(context.Background(), &KeyholeAdapter{Source: nodes}, area, 2)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), common.DisplayNameGoogleEarth)
}

// stallingNodes fails on one tile once every other tile has started, and
// blocks the others until their context is cancelled
type stallingNodes struct {
	fail      common.Tile
	started   chan struct{}
	cancelled chan struct{}
	once      sync.Once
}

func (s *stallingNodes) NodeFor(ctx context.Context, tile common.Tile) (Node, error) {
	if tile == s.fail {
		<-s.started
		return nil, errors.New("connection reset")
	}
	s.once.Do(func() { close(s.started) })
	<-ctx.Done()
	close(s.cancelled)
	return nil, ctx.Err()
}

func TestFailureCancelsTasksInFlight(t *testing.T) {
	r, err := region.FromCorners(orb.Point{-1, 1}, orb.Point{1, 2})
	require.NoError(t, err)
	area := newArea(t, r, 3)
	require.Equal(t, 1, area.Stats.NumRows)
	require.Equal(t, 2, area.Stats.NumColumns)

	nodes := &stallingNodes{
		fail:      common.Tile{Row: 3, Column: 4, Level: 3},
		started:   make(chan struct{}),
		cancelled: make(chan struct{}),
	}
	_, err = Aggregate(context.Background(), &KeyholeAdapter{Source: nodes}, area, 2)
	require.Error(t, err)

	select {
	case <-nodes.cancelled:
	case <-time.After(5 * time.Second):
		t.Fatal("task in flight was not cancelled")
	}
}

func TestKeyholeWrapsAntimeridianColumns(t *testing.T) {
	r, err := region.FromCorners(orb.Point{170, -10}, orb.Point{-170, 10})
	require.NoError(t, err)
	area := newArea(t, r, 3)
	require.Equal(t, 7, area.Stats.MinColumn)

	nodes := fakeNodes{dates: map[common.Tile][]time.Time{
		{Row: 3, Column: 0, Level: 3}: {day(2015, 1, 1)},
	}}
	adapter := &KeyholeAdapter{Source: nodes}
	res, err := Aggregate(context.Background(), adapter, area, 3)
	require.NoError(t, err)

	g := res.Groups[0].Grids[0]
	assert.Equal(t, 2, g.Columns())
	// row 3 is MinRow, so top-origin index is MaxRow-3 = 1
	assert.Equal(t, Available, g.Get(1, 1))
	assert.Equal(t, Unavailable, g.Get(1, 0))
	assert.Equal(t, common.Tile{Row: 3, Column: 0, Level: 3}, res.TileAt(1, 1))
}

func containsColumn(col int) func(common.Tile) bool {
	return func(t common.Tile) bool { return t.Column == col }
}

func never(common.Tile) bool  { return false }
func always(common.Tile) bool { return true }

func TestWaybackDropsEmptyDatesAndDuplicateLayers(t *testing.T) {
	r, err := region.FromCorners(orb.Point{-170, 10}, orb.Point{-10, 80})
	require.NoError(t, err)
	area := newArea(t, r, 2)
	require.Equal(t, 2, area.Stats.NumRows)
	require.Equal(t, 2, area.Stats.NumColumns)

	l1 := &Layer{ID: 1, Title: "Wayback 2020-01-01", Date: day(2020, 1, 1)}
	l2 := &Layer{ID: 2, Title: "Wayback 2021-01-01", Date: day(2021, 1, 1)}
	l3 := &Layer{ID: 3, Title: "Wayback 2022-01-01", Date: day(2022, 1, 1)}
	l4 := &Layer{ID: 4, Title: "Wayback 2023-01-01", Date: day(2023, 1, 1)}

	source := &fakeLayers{
		// newest first, the way the capabilities document lists them
		layers: []*Layer{l4, l3, l2, l1},
		regions: map[int][]DateRegion{
			1: {{Date: day(2019, 5, 1), Contains: containsColumn(0)}, {Date: day(2018, 1, 1), Contains: never}},
			2: {{Date: day(2018, 1, 1), Contains: never}, {Date: day(2019, 5, 1), Contains: containsColumn(0)}},
			3: {{Date: day(2019, 5, 1), Contains: containsColumn(0)}, {Date: day(2021, 6, 1), Contains: always}},
			4: {{Date: day(2018, 1, 1), Contains: never}},
		},
	}

	res, err := Aggregate(context.Background(), &WaybackAdapter{Source: source}, area, 2)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{1, 2, 3, 4}, source.queried)

	var got [][]time.Time
	var layers []int
	for _, g := range res.Groups {
		layers = append(layers, g.Layer.ID)
		var dates []time.Time
		for _, grid := range g.Grids {
			dates = append(dates, grid.Date())
		}
		got = append(got, dates)
	}
	assert.Equal(t, []int{3, 1}, layers)
	if diff := cmp.Diff([][]time.Time{
		{day(2021, 6, 1), day(2019, 5, 1)},
		{day(2019, 5, 1)},
	}, got); diff != "" {
		t.Errorf("grid dates mismatch (-want +got):\n%s", diff)
	}

	g := res.Groups[1].Grids[0]
	assert.Equal(t, Available, g.Get(0, 0))
	assert.Equal(t, Available, g.Get(1, 0))
	assert.Equal(t, Unavailable, g.Get(0, 1))
	assert.Equal(t, Unavailable, g.Get(1, 1))

	assert.Equal(t, []time.Time{day(2021, 6, 1), day(2019, 5, 1)}, res.Dates())
	assert.Equal(t, common.Tile{Row: 1, Column: 0, Level: 2}, res.TileAt(1, 0))
}

func TestWaybackAllFalseDateIsDiscarded(t *testing.T) {
	r, err := region.FromCorners(orb.Point{-170, 10}, orb.Point{-10, 80})
	require.NoError(t, err)
	area := newArea(t, r, 2)

	source := &fakeLayers{
		layers:  []*Layer{{ID: 9, Title: "only", Date: day(2024, 2, 2)}},
		regions: map[int][]DateRegion{9: {{Date: day(2023, 1, 1), Contains: never}}},
	}
	res, err := Aggregate(context.Background(), &WaybackAdapter{Source: source}, area, 10)
	require.NoError(t, err)
	assert.True(t, res.Empty())
}

func TestWaybackLayerListFailure(t *testing.T) {
	r, err := region.FromCorners(orb.Point{-170, 10}, orb.Point{-10, 80})
	require.NoError(t, err)
	area := newArea(t, r, 2)

	boom := errors.New("capabilities unavailable")
	_, err = Aggregate(context.Background(), &WaybackAdapter{Source: &fakeLayers{err: boom}}, area, 1)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), common.DisplayNameEsriWayback)
}

func TestNewAdapterSelectsByKind(t *testing.T) {
	assert.IsType(t, &WaybackAdapter{}, NewAdapter(common.DateLayered, nil, &fakeLayers{}))
	assert.IsType(t, &KeyholeAdapter{}, NewAdapter(common.QuadtreeIndexed, fakeNodes{}, nil))
}
