package availability

import (
	"context"
	"fmt"
	"iter"
	"time"

	"historical-imagery/internal/common"
	"historical-imagery/internal/taskqueue"
)

// Node is a quadtree node carrying dated imagery
type Node interface {
	DatedTiles() []common.DatedTile
}

// NodeSource looks up the node of a tile. A nil node with a nil error means
// the archive has nothing for that tile.
type NodeSource interface {
	NodeFor(ctx context.Context, tile common.Tile) (Node, error)
}

// KeyholeAdapter queries the quadtree archive one tile at a time. Its grids are
// top-origin: row 0 is MaxRow.
type KeyholeAdapter struct {
	Source NodeSource
}

func (a *KeyholeAdapter) Kind() common.ProviderKind {
	return common.QuadtreeIndexed
}

func (a *KeyholeAdapter) Tasks(_ context.Context, area Area) (iter.Seq[taskqueue.Task[Batch]], error) {
	return func(yield func(taskqueue.Task[Batch]) bool) {
		for tile := range area.Tiles() {
			if !yield(a.task(tile)) {
				return
			}
		}
	}, nil
}

func (a *KeyholeAdapter) task(tile common.Tile) taskqueue.Task[Batch] {
	return func(ctx context.Context) (Batch, error) {
		node, err := a.Source.NodeFor(ctx, tile)
		if err != nil {
			return Batch{}, fmt.Errorf("tile %s: %w", tile, err)
		}
		return Batch{
			Queried: []common.Tile{tile},
			Facts:   nodeFacts(tile, node),
		}, nil
	}
}

// nodeFacts returns one fact per distinct date of node. Year 1 marks a
// snapshot without a recorded date.
func nodeFacts(tile common.Tile, node Node) []common.DatedFact {
	if node == nil {
		return nil
	}
	var facts []common.DatedFact
	seen := make(map[time.Time]bool)
	for _, dt := range node.DatedTiles() {
		if dt.Date.Year() == 1 {
			continue
		}
		day := common.Day(dt.Date)
		if seen[day] {
			continue
		}
		seen[day] = true
		facts = append(facts, common.DatedFact{Date: day, Tile: tile, Available: true})
	}
	return facts
}

func (a *KeyholeAdapter) Cell(area Area, t common.Tile) (int, int) {
	return area.Stats.MaxRow - t.Row, area.Stats.ColumnOffset(t.Column, area.Level)
}

func (a *KeyholeAdapter) TileAt(area Area, row, col int) common.Tile {
	return common.Tile{Row: area.Stats.MaxRow - row, Column: columnAt(area, col), Level: area.Level}
}
