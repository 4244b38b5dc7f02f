package common

import "time"

// DatedTile is a tile together with one capture date reported for it
type DatedTile struct {
	Date time.Time
	Tile Tile
}

// DatedFact is the atomic observation produced by an archive adapter:
// whether Tile had imagery captured on Date.
type DatedFact struct {
	Date      time.Time
	Tile      Tile
	Available bool
}
