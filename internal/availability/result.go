package availability

import (
	"slices"
	"time"

	"historical-imagery/internal/common"
)

// RegionGroup is the grids of one layer, newest capture first. Layer is nil
// for the quadtree archive.
type RegionGroup struct {
	Layer *Layer
	Grids []*Grid
}

// Result is the frozen output of Aggregate
type Result struct {
	Kind   common.ProviderKind
	Area   Area
	Groups []RegionGroup

	adapter Adapter
}

// NewResult wraps finished groups; adapter resolves grid cells back to tiles
func NewResult(adapter Adapter, area Area, groups []RegionGroup) *Result {
	return &Result{Kind: adapter.Kind(), Area: area, Groups: groups, adapter: adapter}
}

// Empty reports whether no capture date was found
func (r *Result) Empty() bool {
	for _, g := range r.Groups {
		if len(g.Grids) > 0 {
			return false
		}
	}
	return true
}

// Dates returns the distinct capture dates, newest first
func (r *Result) Dates() []time.Time {
	var dates []time.Time
	for _, g := range r.Groups {
		for _, grid := range g.Grids {
			dates = append(dates, grid.Date())
		}
	}
	slices.SortFunc(dates, func(a, b time.Time) int { return b.Compare(a) })
	return slices.CompactFunc(dates, time.Time.Equal)
}

// Grids returns every grid of every group, in group order
func (r *Result) Grids() []*Grid {
	var grids []*Grid
	for _, g := range r.Groups {
		grids = append(grids, g.Grids...)
	}
	return grids
}

// TileAt returns the tile addressed by a grid cell
func (r *Result) TileAt(row, col int) common.Tile {
	return r.adapter.TileAt(r.Area, row, col)
}

// Cell returns the grid cell of a tile
func (r *Result) Cell(t common.Tile) (int, int) {
	return r.adapter.Cell(r.Area, t)
}
