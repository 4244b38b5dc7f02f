package availability

import (
	"cmp"
	"context"
	"fmt"
	"log"
	"slices"
	"time"

	"historical-imagery/internal/common"
	"historical-imagery/internal/taskqueue"
)

type cell struct{ row, col int }

// merger owns every grid while aggregation runs. Only the goroutine ranging
// over the runner touches it.
type merger struct {
	adapter Adapter
	area    Area
	grids   map[*Layer]map[time.Time]*Grid
	layers  []*Layer
	queried map[cell]struct{}
}

func newMerger(adapter Adapter, area Area) *merger {
	return &merger{
		adapter: adapter,
		area:    area,
		grids:   make(map[*Layer]map[time.Time]*Grid),
		queried: make(map[cell]struct{}),
	}
}

// Aggregate runs every adapter task with at most concurrency in flight and
// merges the resulting facts into grids. The first failed task aborts the
// run; no partial result is returned.
func Aggregate(ctx context.Context, adapter Adapter, area Area, concurrency int) (*Result, error) {
	// cancelled on the first failure so tasks still in flight abort their I/O
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	kind := adapter.Kind()
	tasks, err := adapter.Tasks(ctx, area)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", kind.DisplayName(), err)
	}

	m := newMerger(adapter, area)
	done := 0
	for batch, err := range taskqueue.Run(ctx, concurrency, tasks) {
		if err != nil {
			return nil, fmt.Errorf("%s: %w", kind.DisplayName(), err)
		}
		m.merge(batch)
		done++
		if done%100 == 0 {
			log.Printf("[Availability] %d tasks merged", done)
		}
	}
	log.Printf("[Availability] %s: merged %d tasks", kind.DisplayName(), done)

	var groups []RegionGroup
	if kind == common.DateLayered {
		groups = m.finalizeLayers()
	} else {
		groups = m.finalizeTiles()
	}
	return NewResult(adapter, area, groups), nil
}

func (m *merger) grid(layer *Layer, date time.Time) *Grid {
	byDate, ok := m.grids[layer]
	if !ok {
		byDate = make(map[time.Time]*Grid)
		m.grids[layer] = byDate
		m.layers = append(m.layers, layer)
	}
	g, ok := byDate[date]
	if !ok {
		g = m.area.NewGrid(date)
		byDate[date] = g
	}
	return g
}

func (m *merger) merge(b Batch) {
	for _, t := range b.Queried {
		row, col := m.adapter.Cell(m.area, t)
		m.queried[cell{row, col}] = struct{}{}
	}
	for _, f := range b.Facts {
		g := m.grid(b.Layer, common.Day(f.Date))
		row, col := m.adapter.Cell(m.area, f.Tile)
		if f.Available {
			g.Set(row, col, Available)
		} else if g.Get(row, col) != Available {
			g.Set(row, col, Unavailable)
		}
	}
}

func sortedGrids(byDate map[time.Time]*Grid) []*Grid {
	grids := make([]*Grid, 0, len(byDate))
	for _, g := range byDate {
		grids = append(grids, g)
	}
	slices.SortFunc(grids, func(a, b *Grid) int {
		return b.Date().Compare(a.Date())
	})
	return grids
}

// finalizeTiles marks every queried cell still Unknown as Unavailable. Cells
// never queried stay Unknown because they lie outside the region.
func (m *merger) finalizeTiles() []RegionGroup {
	var grids []*Grid
	for _, layer := range m.layers {
		grids = append(grids, sortedGrids(m.grids[layer])...)
	}
	for _, g := range grids {
		for c := range m.queried {
			if g.Get(c.row, c.col) == Unknown {
				g.Set(c.row, c.col, Unavailable)
			}
		}
	}
	slices.SortStableFunc(grids, func(a, b *Grid) int {
		return b.Date().Compare(a.Date())
	})
	if len(grids) == 0 {
		return nil
	}
	return []RegionGroup{{Grids: grids}}
}

// finalizeLayers drops dates and layers without available cells, then drops
// every layer whose grids repeat an earlier layer's exactly.
func (m *merger) finalizeLayers() []RegionGroup {
	var groups []RegionGroup
	for _, layer := range m.layers {
		var grids []*Grid
		for _, g := range sortedGrids(m.grids[layer]) {
			if g.HasAvailable() {
				grids = append(grids, g)
			}
		}
		if len(grids) == 0 {
			continue
		}
		groups = append(groups, RegionGroup{Layer: layer, Grids: grids})
	}

	slices.SortFunc(groups, func(a, b RegionGroup) int {
		return cmp.Or(a.Layer.Date.Compare(b.Layer.Date), cmp.Compare(a.Layer.ID, b.Layer.ID))
	})

	kept := make([]RegionGroup, 0, len(groups))
	for _, g := range groups {
		dup := slices.ContainsFunc(kept, func(k RegionGroup) bool {
			return GridsEqual(k.Grids, g.Grids)
		})
		if dup {
			log.Printf("[Availability] Dropping layer %q: same imagery as an earlier release", g.Layer.Title)
			continue
		}
		kept = append(kept, g)
	}
	slices.Reverse(kept)
	return kept
}
