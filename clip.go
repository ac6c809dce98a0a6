package chm

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

var errEmptyFootprint = errors.New("empty footprint")

// A ClippedRaster is a raster cropped and masked to a footprint. Data is
// band-major then row-major. Cells outside the footprint and cells with the
// source's no-data value are NaN.
type ClippedRaster struct {
	TileID    TileID
	Model     Model
	Bands     int
	Rows      int
	Cols      int
	Data      []float64
	Transform Affine
	NoData    float64
	HasNoData bool
}

// Shape returns r's shape as (bands, rows, cols).
func (r *ClippedRaster) Shape() [3]int {
	return [3]int{r.Bands, r.Rows, r.Cols}
}

// At returns the sample at (band, row, col).
func (r *ClippedRaster) At(band, row, col int) float64 {
	return r.Data[(band*r.Rows+row)*r.Cols+col]
}

// Bounds returns the extent covered by r.
func (r *ClippedRaster) Bounds() BoundingBox {
	return orb.MultiPoint{
		r.Transform.Apply(0, 0),
		r.Transform.Apply(float64(r.Cols), float64(r.Rows)),
	}.Bound()
}

// Clip opens the raster of entry selected by which, and clips it to
// footprint. The raster is closed before Clip returns.
func Clip(ctx context.Context, entry *TileEntry, footprint Footprint, which Model) (*ClippedRaster, error) {
	g, err := entry.Open(which)
	if err != nil {
		return nil, err
	}
	defer g.Close()

	clippedRaster, err := g.Clip(ctx, footprint)
	var footprintOutsideRasterErr *FootprintOutsideRasterError
	switch {
	case errors.As(err, &footprintOutsideRasterErr):
		footprintOutsideRasterErr.TileID = entry.TileID
		footprintOutsideRasterErr.Model = which
		return nil, footprintOutsideRasterErr
	case err != nil:
		return nil, fmt.Errorf("tile %s %s: %w", entry.TileID, which, err)
	}
	clippedRaster.TileID = entry.TileID
	clippedRaster.Model = which
	return clippedRaster, nil
}

// Clip crops g to the bounding box of footprint and masks out every pixel
// whose centre is not inside footprint. The crop window is the footprint's
// bounding box rounded outwards to whole pixels and intersected with the
// image.
func (g *GeoTIFF) Clip(ctx context.Context, footprint Footprint) (*ClippedRaster, error) {
	footprint = closeRings(footprint)
	if len(footprint) == 0 || len(footprint[0]) == 0 {
		return nil, errEmptyFootprint
	}
	footprintBounds := footprint.Bound()
	if !footprintBounds.Intersects(g.Bounds) {
		return nil, &FootprintOutsideRasterError{Bounds: footprintBounds}
	}

	col0, row0, col1, row1 := g.window(footprintBounds)
	if col0 >= col1 || row0 >= row1 {
		return nil, &FootprintOutsideRasterError{Bounds: footprintBounds}
	}
	cols, rows := col1-col0, row1-row0

	samples, err := g.ReadWindow(ctx, col0, row0, cols, rows)
	if err != nil {
		return nil, err
	}

	transform := g.Transform.Translate(col0, row0)
	for row := range rows {
		for col := range cols {
			center := transform.Apply(float64(col)+0.5, float64(row)+0.5)
			if !planar.PolygonContains(footprint, center) {
				samples[row*cols+col] = math.NaN()
			}
		}
	}

	return &ClippedRaster{
		Bands:     1,
		Rows:      rows,
		Cols:      cols,
		Data:      samples,
		Transform: transform,
		NoData:    g.NoData,
		HasNoData: g.HasNoData,
	}, nil
}

// window returns the pixel window [col0, col1) × [row0, row1) covering
// bounds, clamped to the image.
func (g *GeoTIFF) window(bounds BoundingBox) (col0, row0, col1, row1 int) {
	minCol, maxRow := g.Transform.Pixel(bounds.Min)
	maxCol, minRow := g.Transform.Pixel(bounds.Max)
	col0, col1 = int(math.Floor(minCol)), int(math.Ceil(maxCol))
	row0, row1 = int(math.Floor(minRow)), int(math.Ceil(maxRow))
	// A degenerate footprint still covers the pixel it lies in.
	if col1 == col0 {
		col1++
	}
	if row1 == row0 {
		row1++
	}
	return max(col0, 0), max(row0, 0), min(col1, g.Width), min(row1, g.Height)
}

// closeRings returns footprint with the first point of each ring repeated at
// its end where it is missing.
func closeRings(footprint Footprint) Footprint {
	var result Footprint
	for i, ring := range footprint {
		if len(ring) == 0 || ring.Closed() {
			continue
		}
		if result == nil {
			result = make(Footprint, len(footprint))
			copy(result, footprint)
		}
		closed := make(orb.Ring, len(ring), len(ring)+1)
		copy(closed, ring)
		result[i] = append(closed, ring[0])
	}
	if result == nil {
		return footprint
	}
	return result
}
