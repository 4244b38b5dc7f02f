package common

import "fmt"

// Tile addresses one cell of a zoom-level partition of the earth.
// Column is always reduced into [0, 2^Level).
type Tile struct {
	Row    int
	Column int
	Level  int
}

func (t Tile) String() string {
	return fmt.Sprintf("%d/%d/%d", t.Level, t.Row, t.Column)
}

// TilesAtLevel returns 2^level
func TilesAtLevel(level int) int {
	return 1 << level
}

// Mod returns the non-negative remainder of a / n
func Mod(a, n int) int {
	r := a % n
	if r < 0 {
		r += n
	}
	return r
}

// RegionStats is the minimal tile-aligned bounding box of a region at a level.
// MinColumn is reduced into [0, 2^level); MaxColumn may run past 2^level-1 when
// the region crosses the antimeridian.
type RegionStats struct {
	MinRow     int
	MaxRow     int
	MinColumn  int
	MaxColumn  int
	NumRows    int
	NumColumns int
}

// ColumnOffset returns the column index of col relative to MinColumn
func (s RegionStats) ColumnOffset(col, level int) int {
	return Mod(col-s.MinColumn, TilesAtLevel(level))
}

// Contains reports whether t lies inside the bounding box
func (s RegionStats) Contains(t Tile) bool {
	return t.Row >= s.MinRow && t.Row <= s.MaxRow &&
		s.ColumnOffset(t.Column, t.Level) < s.NumColumns
}

// TileBounds accumulates row and (unwrapped) column extremes
type TileBounds struct {
	MinCol int
	MaxCol int
	MinRow int
	MaxRow int
	empty  bool
}

// NewTileBounds returns bounds that contain nothing yet
func NewTileBounds() TileBounds {
	return TileBounds{empty: true}
}

// Add grows the bounds to include row/col; col may be outside [0, 2^level)
func (tb *TileBounds) Add(row, col int) {
	if tb.empty {
		*tb = TileBounds{MinCol: col, MaxCol: col, MinRow: row, MaxRow: row}
		return
	}
	tb.MinCol = min(tb.MinCol, col)
	tb.MaxCol = max(tb.MaxCol, col)
	tb.MinRow = min(tb.MinRow, row)
	tb.MaxRow = max(tb.MaxRow, row)
}

// Empty reports whether nothing was added
func (tb TileBounds) Empty() bool {
	return tb.empty
}

// Cols returns the number of columns in the bounds
func (tb TileBounds) Cols() int {
	return tb.MaxCol - tb.MinCol + 1
}

// Rows returns the number of rows in the bounds
func (tb TileBounds) Rows() int {
	return tb.MaxRow - tb.MinRow + 1
}

// Stats converts the bounds into RegionStats at level
func (tb TileBounds) Stats(level int) (RegionStats, error) {
	if tb.empty {
		return RegionStats{}, fmt.Errorf("no tiles provided")
	}
	minCol := Mod(tb.MinCol, TilesAtLevel(level))
	return RegionStats{
		MinRow:     tb.MinRow,
		MaxRow:     tb.MaxRow,
		MinColumn:  minCol,
		MaxColumn:  minCol + tb.Cols() - 1,
		NumRows:    tb.Rows(),
		NumColumns: tb.Cols(),
	}, nil
}
