package googleearth

import (
	"context"

	"historical-imagery/internal/availability"
	"historical-imagery/internal/common"
)

// NodeSource exposes the TimeMachine client to the aggregator
type NodeSource struct {
	Client *Client
}

func (s NodeSource) NodeFor(ctx context.Context, tile common.Tile) (availability.Node, error) {
	node, err := s.Client.NodeFor(ctx, tile)
	if err != nil || node == nil {
		return nil, err
	}
	return node, nil
}
