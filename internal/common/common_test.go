package common

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProviderKind(t *testing.T) {
	tests := []struct {
		name string
		want ProviderKind
	}{
		{"google", QuadtreeIndexed},
		{" TM ", QuadtreeIndexed},
		{"google_earth", QuadtreeIndexed},
		{"esri", DateLayered},
		{"Wayback", DateLayered},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseProviderKind(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseProviderKind("bing")
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestValidateZoomForProvider(t *testing.T) {
	assert.NoError(t, ValidateZoomForProvider(23, DateLayered))
	assert.NoError(t, ValidateZoomForProvider(21, QuadtreeIndexed))
	assert.ErrorIs(t, ValidateZoomForProvider(22, QuadtreeIndexed), ErrZoomOutOfRange)
	assert.ErrorIs(t, ValidateZoomForProvider(0, DateLayered), ErrZoomOutOfRange)
	assert.ErrorIs(t, ValidateZoomForProvider(24, DateLayered), ErrZoomOutOfRange)
}

func TestDateFormats(t *testing.T) {
	d, err := ParseISO8601("2019-05-03")
	require.NoError(t, err)
	assert.Equal(t, "2019-05-03", FormatISO8601(d))
	assert.Equal(t, "May 03, 2019", FormatDisplay(d))

	_, err = ParseISO8601("")
	assert.Error(t, err)

	late := time.Date(2019, 5, 3, 23, 30, 0, 0, time.FixedZone("UTC-2", -2*3600))
	assert.Equal(t, time.Date(2019, 5, 4, 0, 0, 0, 0, time.UTC), Day(late))
}

func TestMod(t *testing.T) {
	assert.Equal(t, 3, Mod(-1, 4))
	assert.Equal(t, 0, Mod(8, 4))
	assert.Equal(t, 1, Mod(5, 4))
}

func TestTileBoundsAcrossAntimeridian(t *testing.T) {
	tb := NewTileBounds()
	assert.True(t, tb.Empty())
	_, err := tb.Stats(2)
	assert.Error(t, err)

	tb.Add(1, 3)
	tb.Add(2, 4)
	stats, err := tb.Stats(2)
	require.NoError(t, err)

	want := RegionStats{MinRow: 1, MaxRow: 2, MinColumn: 3, MaxColumn: 4, NumRows: 2, NumColumns: 2}
	if diff := cmp.Diff(want, stats); diff != "" {
		t.Errorf("stats mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, 1, stats.ColumnOffset(0, 2))
	assert.True(t, stats.Contains(Tile{Row: 1, Column: 0, Level: 2}))
	assert.False(t, stats.Contains(Tile{Row: 1, Column: 1, Level: 2}))
	assert.False(t, stats.Contains(Tile{Row: 3, Column: 3, Level: 2}))
}
