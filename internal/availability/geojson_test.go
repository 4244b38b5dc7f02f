package availability_test

import (
	"bytes"
	"context"
	"math"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"historical-imagery/internal/availability"
	"historical-imagery/internal/common"
	"historical-imagery/internal/esri"
	"historical-imagery/internal/geometry"
	"historical-imagery/internal/region"
	"historical-imagery/internal/render"
)

// everywhere reports one capture date covering every tile of its layer
type everywhere struct {
	date time.Time
}

func (s everywhere) Layers(context.Context) ([]*availability.Layer, error) {
	return []*availability.Layer{{ID: 1, Title: "Wayback 2023-01-11", Date: time.Date(2023, 1, 11, 0, 0, 0, 0, time.UTC)}}, nil
}

func (s everywhere) DateRegionsFor(context.Context, *availability.Layer, availability.Area) ([]availability.DateRegion, error) {
	return []availability.DateRegion{{Date: s.date, Contains: func(common.Tile) bool { return true }}}, nil
}

func TestWaybackGeoJSONAcrossAntimeridian(t *testing.T) {
	r, err := region.FromCorners(orb.Point{179, 10}, orb.Point{-179, 20})
	require.NoError(t, err)
	area, err := availability.NewArea(r, esri.WebMercator{}, 3)
	require.NoError(t, err)
	require.Equal(t, 1, area.Stats.NumRows)
	require.Equal(t, 2, area.Stats.NumColumns)

	date := time.Date(2022, 8, 1, 0, 0, 0, 0, time.UTC)
	adapter := &availability.WaybackAdapter{Source: everywhere{date: date}}
	res, err := availability.Aggregate(context.Background(), adapter, area, 2)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, render.WriteGeoJSON(&buf, res, esri.WebMercator{}, geometry.Cascaded{}))
	fc, err := geojson.UnmarshalFeatureCollection(buf.Bytes())
	require.NoError(t, err)

	// the two tiles touch only across the antimeridian, so they stay apart
	require.Len(t, fc.Features, 2)
	var wests []float64
	for _, f := range fc.Features {
		assert.Equal(t, "2022-08-01", f.Properties.MustString("date"))
		b := f.Geometry.Bound()
		assert.InDelta(t, 45.0, b.Max[0]-b.Min[0], 1e-6)
		assert.GreaterOrEqual(t, b.Min[0], -180.0-1e-9)
		assert.LessOrEqual(t, b.Max[0], 180.0+1e-9)
		wests = append(wests, b.Min[0])
	}
	assert.ElementsMatch(t, []float64{135, -180}, roundAll(wests))
}

func roundAll(xs []float64) []float64 {
	out := make([]float64, len(xs))
	for i, x := range xs {
		out[i] = math.Round(x*1e6) / 1e6
	}
	return out
}
