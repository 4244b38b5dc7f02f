package googleearth

import (
	"fmt"

	"github.com/paulmach/orb"

	"historical-imagery/internal/common"
)

const MaxLevel = 30

// PlateCarree is the Google Earth tile system. Both axes span [-180, 180], so
// the globe only fills the middle half of the rows, and rows count from the
// south.
type PlateCarree struct{}

// Project returns the fractional column and row of a [lon, lat] point
func (PlateCarree) Project(p orb.Point, level int) (col, row float64) {
	n := float64(common.TilesAtLevel(level))
	return (p[0] + 180.0) / 360.0 * n, (p[1] + 180.0) / 360.0 * n
}

// Corners returns the closed counter-clockwise [lon, lat] ring of t
func (PlateCarree) Corners(t common.Tile) orb.Ring {
	west, south := degrees(t.Column, t.Level), degrees(t.Row, t.Level)
	east, north := degrees(t.Column+1, t.Level), degrees(t.Row+1, t.Level)
	return orb.Ring{
		{west, south},
		{east, south},
		{east, north},
		{west, north},
		{west, south},
	}
}

func degrees(rowCol, level int) float64 {
	return float64(rowCol)/float64(common.TilesAtLevel(level))*360.0 - 180.0
}

// Path returns the quadtree path of t. Quadrants are numbered
//
//	|-----|-----|
//	|  3  |  2  |
//	|-----|-----|
//	|  0  |  1  |
//	|-----|-----|
//
// and every path starts with the root quadrant '0'.
func Path(t common.Tile) (string, error) {
	if t.Level < 0 || t.Level > MaxLevel {
		return "", fmt.Errorf("level %d outside [0, %d]", t.Level, MaxLevel)
	}
	n := common.TilesAtLevel(t.Level)
	if t.Row < 0 || t.Row >= n || t.Column < 0 || t.Column >= n {
		return "", fmt.Errorf("tile %s out of range for level %d", t, t.Level)
	}

	chars := make([]byte, t.Level+1)
	r, c := t.Row, t.Column
	for i := t.Level; i >= 0; i-- {
		rowBit := r & 1
		colBit := c & 1
		r >>= 1
		c >>= 1
		chars[i] = byte((rowBit<<1)|(rowBit^colBit)) + '0'
	}
	return string(chars), nil
}

// subIndexMaxSize is the depth of the subtree held by one quadtree packet
const subIndexMaxSize = 4

// SubIndex returns the index of path's node inside the packet that holds it
func SubIndex(path string) int {
	if len(path) <= subIndexMaxSize {
		return rootSubIndex(path)
	}
	start := (len(path) - 1) / subIndexMaxSize * subIndexMaxSize
	return treeSubIndex(path[start:])
}

func rootSubIndex(path string) int {
	subIndex := 0
	for i := 1; i < len(path); i++ {
		subIndex *= subIndexMaxSize
		subIndex += int(path[i]-'0') + 1
	}
	return subIndex
}

func treeSubIndex(path string) int {
	return rootSubIndex(path) + int(path[0]-'0')*85 + 1
}

// traversal returns the paths of the packets visited between the root
// packet and the packet holding path
func traversal(path string) []string {
	var paths []string
	for end := subIndexMaxSize; end < len(path); end += subIndexMaxSize {
		paths = append(paths, path[:end])
	}
	return paths
}
