package chm

import (
	"math"
)

// A HeightDifferenceRaster is the cell-by-cell difference between a surface
// and a terrain raster. NaN marks cells without data in either input.
type HeightDifferenceRaster struct {
	TileID    TileID
	Bands     int
	Rows      int
	Cols      int
	Data      []float64
	Transform Affine
}

// HeightStats summarizes the valid cells of a HeightDifferenceRaster.
type HeightStats struct {
	Count int
	Min   float64
	Max   float64
	Mean  float64
}

// Difference returns surface minus terrain. The two rasters must have the
// same shape and transform, otherwise Difference returns a
// *MisalignedRastersError. Negative differences are preserved.
func Difference(surface, terrain *ClippedRaster) (*HeightDifferenceRaster, error) {
	if surface.Shape() != terrain.Shape() || surface.Transform != terrain.Transform ||
		len(surface.Data) != len(terrain.Data) {
		return nil, &MisalignedRastersError{
			SurfaceShape:     surface.Shape(),
			TerrainShape:     terrain.Shape(),
			SurfaceTransform: surface.Transform,
			TerrainTransform: terrain.Transform,
		}
	}

	data := make([]float64, len(surface.Data))
	for i, surfaceSample := range surface.Data {
		terrainSample := terrain.Data[i]
		if math.IsNaN(surfaceSample) || math.IsNaN(terrainSample) {
			data[i] = math.NaN()
			continue
		}
		data[i] = surfaceSample - terrainSample
	}

	return &HeightDifferenceRaster{
		TileID:    surface.TileID,
		Bands:     surface.Bands,
		Rows:      surface.Rows,
		Cols:      surface.Cols,
		Data:      data,
		Transform: surface.Transform,
	}, nil
}

// Shape returns r's shape as (bands, rows, cols).
func (r *HeightDifferenceRaster) Shape() [3]int {
	return [3]int{r.Bands, r.Rows, r.Cols}
}

// At returns the height difference at (band, row, col).
func (r *HeightDifferenceRaster) At(band, row, col int) float64 {
	return r.Data[(band*r.Rows+row)*r.Cols+col]
}

// Stats returns statistics over the non-NaN cells of r. If there are none,
// Min, Max, and Mean are NaN.
func (r *HeightDifferenceRaster) Stats() HeightStats {
	stats := HeightStats{
		Min: math.Inf(1),
		Max: math.Inf(-1),
	}
	var sum float64
	for _, sample := range r.Data {
		if math.IsNaN(sample) {
			continue
		}
		stats.Count++
		stats.Min = min(stats.Min, sample)
		stats.Max = max(stats.Max, sample)
		sum += sample
	}
	if stats.Count == 0 {
		return HeightStats{
			Min:  math.NaN(),
			Max:  math.NaN(),
			Mean: math.NaN(),
		}
	}
	stats.Mean = sum / float64(stats.Count)
	return stats
}
