// Package availability turns archive query results into per-date tri-state
// grids aligned to a region's tile bounding box.
package availability

import (
	"fmt"
	"slices"
	"time"
)

// Availability is the state of one grid cell
type Availability uint8

const (
	// Unknown means the cell was never queried
	Unknown Availability = iota
	Unavailable
	Available
)

func (a Availability) String() string {
	switch a {
	case Available:
		return "available"
	case Unavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Grid is a dense rows x cols matrix of availability for one capture date
type Grid struct {
	date  time.Time
	rows  int
	cols  int
	cells []Availability
}

// NewGrid returns a grid with every cell Unknown
func NewGrid(date time.Time, rows, cols int) *Grid {
	return &Grid{
		date:  date,
		rows:  rows,
		cols:  cols,
		cells: make([]Availability, rows*cols),
	}
}

func (g *Grid) Date() time.Time { return g.date }
func (g *Grid) Rows() int       { return g.rows }
func (g *Grid) Columns() int    { return g.cols }

func (g *Grid) index(row, col int) int {
	if row < 0 || row >= g.rows || col < 0 || col >= g.cols {
		panic(fmt.Sprintf("availability: cell (%d, %d) outside %dx%d grid", row, col, g.rows, g.cols))
	}
	return row*g.cols + col
}

// Get returns the state at row, col
func (g *Grid) Get(row, col int) Availability {
	return g.cells[g.index(row, col)]
}

// Set stores the state at row, col
func (g *Grid) Set(row, col int, a Availability) {
	g.cells[g.index(row, col)] = a
}

// Equal reports whether both grids share date, dimensions and every cell
func (g *Grid) Equal(o *Grid) bool {
	if g == nil || o == nil {
		return g == o
	}
	return g.date.Equal(o.date) &&
		g.rows == o.rows &&
		g.cols == o.cols &&
		slices.Equal(g.cells, o.cells)
}

// HasAvailable reports whether any cell is Available
func (g *Grid) HasAvailable() bool {
	return slices.Contains(g.cells, Available)
}

// AvailableCount returns the number of Available cells
func (g *Grid) AvailableCount() int {
	n := 0
	for _, c := range g.cells {
		if c == Available {
			n++
		}
	}
	return n
}

// GridsEqual compares two ordered grid lists element by element
func GridsEqual(a, b []*Grid) bool {
	return slices.EqualFunc(a, b, (*Grid).Equal)
}
