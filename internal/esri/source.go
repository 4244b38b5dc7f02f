package esri

import (
	"context"

	"historical-imagery/internal/availability"
)

// LayerSource exposes the Wayback client to the aggregator
type LayerSource struct {
	Client *Client
}

func (s LayerSource) Layers(ctx context.Context) ([]*availability.Layer, error) {
	layers, err := s.Client.GetLayers(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*availability.Layer, len(layers))
	for i, l := range layers {
		out[i] = &availability.Layer{ID: l.ID, Title: l.Title, Date: l.Date}
	}
	return out, nil
}

func (s LayerSource) DateRegionsFor(ctx context.Context, layer *availability.Layer, area availability.Area) ([]availability.DateRegion, error) {
	l, err := s.Client.GetLayerByID(ctx, layer.ID)
	if err != nil {
		return nil, err
	}
	regions, err := s.Client.DateRegions(ctx, l, area.Region.Bound(), area.Level)
	if err != nil {
		return nil, err
	}
	out := make([]availability.DateRegion, len(regions))
	for i, r := range regions {
		out[i] = availability.DateRegion{Date: r.Date, Contains: r.ContainsTile}
	}
	return out, nil
}
