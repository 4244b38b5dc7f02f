package availability

import (
	"context"
	"iter"
	"time"

	"historical-imagery/internal/common"
	"historical-imagery/internal/taskqueue"
)

// Layer is one Wayback release
type Layer struct {
	ID    int
	Title string
	Date  time.Time
}

// Batch is the output of one adapter task. Queried lists every tile the task
// looked at, whether or not it produced facts.
type Batch struct {
	Layer   *Layer
	Queried []common.Tile
	Facts   []common.DatedFact
}

// Adapter normalizes one archive into dated facts and fixes how tiles map to
// grid cells for that archive.
type Adapter interface {
	Kind() common.ProviderKind
	// Tasks returns the fetch tasks for area. Any setup query (such as listing
	// layers) happens here.
	Tasks(ctx context.Context, area Area) (iter.Seq[taskqueue.Task[Batch]], error)
	// Cell returns the grid position of t
	Cell(area Area, t common.Tile) (row, col int)
	// TileAt is the inverse of Cell
	TileAt(area Area, row, col int) common.Tile
}

// NewAdapter picks the adapter for kind
func NewAdapter(kind common.ProviderKind, nodes NodeSource, layers LayerSource) Adapter {
	if kind == common.DateLayered {
		return &WaybackAdapter{Source: layers}
	}
	return &KeyholeAdapter{Source: nodes}
}

func columnAt(area Area, col int) int {
	return common.Mod(area.Stats.MinColumn+col, common.TilesAtLevel(area.Level))
}
