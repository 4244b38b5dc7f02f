package availability

import (
	"context"
	"fmt"
	"iter"
	"log"
	"slices"
	"time"

	"historical-imagery/internal/common"
	"historical-imagery/internal/taskqueue"
)

// DateRegion is the footprint of one capture date inside a layer
type DateRegion struct {
	Date     time.Time
	Contains func(common.Tile) bool
}

// LayerSource lists Wayback layers and the capture dates each one holds
// within an area.
type LayerSource interface {
	Layers(ctx context.Context) ([]*Layer, error)
	DateRegionsFor(ctx context.Context, layer *Layer, area Area) ([]DateRegion, error)
}

// WaybackAdapter queries the date-layered archive one layer at a time. Its
// grids are north-origin: row 0 is MinRow.
type WaybackAdapter struct {
	Source LayerSource
}

func (a *WaybackAdapter) Kind() common.ProviderKind {
	return common.DateLayered
}

func (a *WaybackAdapter) Tasks(ctx context.Context, area Area) (iter.Seq[taskqueue.Task[Batch]], error) {
	layers, err := a.Source.Layers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list layers: %w", err)
	}
	log.Printf("[Wayback] Querying %d layers", len(layers))

	// tiles are shared read-only by every layer task
	tiles := slices.Collect(area.Tiles())

	return func(yield func(taskqueue.Task[Batch]) bool) {
		for _, layer := range layers {
			if !yield(a.task(layer, area, tiles)) {
				return
			}
		}
	}, nil
}

func (a *WaybackAdapter) task(layer *Layer, area Area, tiles []common.Tile) taskqueue.Task[Batch] {
	return func(ctx context.Context) (Batch, error) {
		regions, err := a.Source.DateRegionsFor(ctx, layer, area)
		if err != nil {
			return Batch{}, fmt.Errorf("layer %q: %w", layer.Title, err)
		}
		facts := make([]common.DatedFact, 0, len(tiles)*len(regions))
		for _, tile := range tiles {
			for _, r := range regions {
				facts = append(facts, common.DatedFact{
					Date:      common.Day(r.Date),
					Tile:      tile,
					Available: r.Contains(tile),
				})
			}
		}
		return Batch{Layer: layer, Queried: tiles, Facts: facts}, nil
	}
}

func (a *WaybackAdapter) Cell(area Area, t common.Tile) (int, int) {
	return t.Row - area.Stats.MinRow, area.Stats.ColumnOffset(t.Column, area.Level)
}

func (a *WaybackAdapter) TileAt(area Area, row, col int) common.Tile {
	return common.Tile{Row: area.Stats.MinRow + row, Column: columnAt(area, col), Level: area.Level}
}
