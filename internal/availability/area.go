package availability

import (
	"fmt"
	"iter"
	"time"

	"historical-imagery/internal/common"
	"historical-imagery/internal/region"
)

// Area is a region resolved against one tile system at one level
type Area struct {
	Region *region.Region
	System region.TileSystem
	Level  int
	Stats  common.RegionStats
}

// NewArea computes the bounding stats of r at level
func NewArea(r *region.Region, sys region.TileSystem, level int) (Area, error) {
	stats, err := r.Stats(sys, level)
	if err != nil {
		return Area{}, fmt.Errorf("compute region stats at level %d: %w", level, err)
	}
	return Area{Region: r, System: sys, Level: level, Stats: stats}, nil
}

// Tiles lazily yields every tile covering the region
func (a Area) Tiles() iter.Seq[common.Tile] {
	return a.Region.Covering(a.System, a.Level)
}

// NewGrid returns an empty grid for date sized to the area
func (a Area) NewGrid(date time.Time) *Grid {
	return NewGrid(date, a.Stats.NumRows, a.Stats.NumColumns)
}
