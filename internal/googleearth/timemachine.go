package googleearth

import (
	"context"
	"fmt"
	"log"
	"time"

	"historical-imagery/internal/common"
)

// Node is the ImageryHistory content of one quadtree node
type Node struct {
	Tile  common.Tile
	Path  string
	Dates []DatedTile
}

// DatedTile is a historical capture of a tile
type DatedTile struct {
	Date     time.Time
	Epoch    int // TimeMachine tile version for fetching this capture
	Provider int
	HexDate  string
}

// DatedTiles returns the capture dates in packet order
func (n *Node) DatedTiles() []common.DatedTile {
	out := make([]common.DatedTile, len(n.Dates))
	for i, d := range n.Dates {
		out[i] = common.DatedTile{Date: d.Date, Tile: n.Tile}
	}
	return out
}

// NodeFor walks the TimeMachine quadtree down to tile and returns its
// ImageryHistory dates. A nil node means the archive holds no history there.
func (c *Client) NodeFor(ctx context.Context, tile common.Tile) (*Node, error) {
	path, err := Path(tile)
	if err != nil {
		return nil, err
	}
	version, err := c.DBVersion(ctx)
	if err != nil {
		return nil, err
	}

	packet, err := c.fetchPacket(ctx, "0", version)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch root packet: %w", err)
	}

	for _, p := range traversal(path) {
		node := packet.Nodes[SubIndex(p)]
		if node == nil || node.CacheNodeEpoch == 0 {
			return nil, nil
		}
		packet, err = c.fetchPacket(ctx, p, node.CacheNodeEpoch)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch child packet at %s: %w", p, err)
		}
	}

	node := packet.Nodes[SubIndex(path)]
	if node == nil {
		return nil, nil
	}
	history := node.History()
	if history == nil {
		return nil, nil
	}

	n := &Node{Tile: tile, Path: path}
	for _, dt := range history.DatedTiles {
		date, ok := dt.Time()
		if !ok {
			continue
		}
		n.Dates = append(n.Dates, DatedTile{
			Date:     date,
			Epoch:    dt.Epoch,
			Provider: dt.Provider,
			HexDate:  fmt.Sprintf("%x", dt.Date),
		})
	}
	log.Printf("[TimeMachine] Tile %s: %d dated tiles", path, len(n.Dates))
	return n, nil
}
