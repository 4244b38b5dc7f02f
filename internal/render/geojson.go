package render

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"historical-imagery/internal/availability"
	"historical-imagery/internal/common"
	"historical-imagery/internal/geometry"
	"historical-imagery/internal/region"
)

type cellKey struct{ row, col int }

// FeatureCollection builds one feature per merged polygon per capture date,
// newest date first. Grids of different layers sharing a date are combined.
func FeatureCollection(res *availability.Result, sys region.TileSystem, u geometry.Unioner) (*geojson.FeatureCollection, error) {
	cells := make(map[time.Time]map[cellKey]struct{})
	for _, g := range res.Grids() {
		for row := range g.Rows() {
			for col := range g.Columns() {
				if g.Get(row, col) != availability.Available {
					continue
				}
				set, ok := cells[g.Date()]
				if !ok {
					set = make(map[cellKey]struct{})
					cells[g.Date()] = set
				}
				set[cellKey{row, col}] = struct{}{}
			}
		}
	}

	dates := make([]time.Time, 0, len(cells))
	for d := range cells {
		dates = append(dates, d)
	}
	slices.SortFunc(dates, func(a, b time.Time) int { return b.Compare(a) })

	fc := geojson.NewFeatureCollection()
	for _, date := range dates {
		keys := make([]cellKey, 0, len(cells[date]))
		for k := range cells[date] {
			keys = append(keys, k)
		}
		slices.SortFunc(keys, func(a, b cellKey) int {
			if a.row != b.row {
				return a.row - b.row
			}
			return a.col - b.col
		})

		polys := make([]orb.Polygon, 0, len(keys))
		for _, k := range keys {
			polys = append(polys, orb.Polygon{sys.Corners(res.TileAt(k.row, k.col))})
		}
		merged, err := u.Union(polys)
		if err != nil {
			return nil, fmt.Errorf("merge tiles for %s: %w", common.FormatISO8601(date), err)
		}
		for _, p := range merged {
			f := geojson.NewFeature(p)
			f.Properties["date"] = common.FormatISO8601(date)
			fc.Append(f)
		}
	}
	return fc, nil
}

// WriteGeoJSON encodes the merged availability of res to w
func WriteGeoJSON(w io.Writer, res *availability.Result, sys region.TileSystem, u geometry.Unioner) error {
	fc, err := FeatureCollection(res, sys, u)
	if err != nil {
		return err
	}
	data, err := json.Marshal(fc)
	if err != nil {
		return fmt.Errorf("encode geojson: %w", err)
	}
	_, err = w.Write(append(data, '\n'))
	return err
}
