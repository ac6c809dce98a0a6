package chm

import (
	"errors"
	"testing"

	"github.com/alecthomas/assert/v2"
)

func newFlandersTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	dsmFS, dtmFS := flandersTestGrid.fsys(t)
	catalog, err := BuildFlandersCatalog(t.Context(), dsmFS, dtmFS)
	assert.NoError(t, err)
	return catalog
}

func TestResolve(t *testing.T) {
	catalog := newFlandersTestCatalog(t)
	for _, tc := range []struct {
		name     string
		point    Point
		expected TileID
		all      []TileID
	}{
		{
			name:     "interior",
			point:    Point{150000, 200000},
			expected: "07",
			all:      []TileID{"07"},
		},
		{
			name:     "shared_edge",
			point:    Point{166000, 200000},
			expected: "07",
			all:      []TileID{"07", "08"},
		},
		{
			name:     "shared_corner",
			point:    Point{166000, 210000},
			expected: "03",
			all:      []TileID{"03", "04", "07", "08"},
		},
		{
			name:     "outer_corner",
			point:    Point{70000, 230000},
			expected: "01",
			all:      []TileID{"01"},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			for range 10 {
				entry, err := catalog.Resolve(tc.point)
				assert.NoError(t, err)
				assert.Equal(t, tc.expected, entry.TileID)
			}
			var all []TileID
			for _, entry := range catalog.ResolveAll(tc.point) {
				all = append(all, entry.TileID)
			}
			assert.Equal(t, tc.all, all)
		})
	}
}

func TestResolveTileCentres(t *testing.T) {
	catalog := newFlandersTestCatalog(t)
	for _, entry := range catalog.Entries() {
		actual, err := catalog.Resolve(entry.Bounds.Center())
		assert.NoError(t, err)
		assert.Equal(t, entry.TileID, actual.TileID)
	}
}

func TestResolveOutOfCoverage(t *testing.T) {
	catalog := newFlandersTestCatalog(t)
	for _, point := range []Point{
		{0, 0},
		{69999.99, 200000},
		{150000, 230000.01},
		{180000, 20000}, // Inside the catalog's bounds, but not in a tile.
	} {
		entry, err := catalog.Resolve(point)
		assert.IsError(t, err, ErrPointOutOfCoverage)
		assert.Zero(t, entry)
		var pointOutOfCoverageErr *PointOutOfCoverageError
		assert.True(t, errors.As(err, &pointOutOfCoverageErr))
		assert.Equal(t, point, pointOutOfCoverageErr.Point)
		assert.Equal(t, 0, len(catalog.ResolveAll(point)))
	}
}
