package chm

import "math"

// A Grid is a georeferenced band-first raster.
type Grid interface {
	Shape() [3]int
	At(band, row, col int) float64
	PixelTransform() Affine
}

// InterpolateBilinear returns the bilinear interpolation of the first band of
// grid at each of points, using pixel centres as sample positions. The result
// is NaN where any sample that contributes to it is NaN or outside grid.
func InterpolateBilinear(grid Grid, points []Point) []float64 {
	shape := grid.Shape()
	rows, cols := shape[1], shape[2]
	sample := func(row, col int) float64 {
		if row < 0 || rows <= row || col < 0 || cols <= col {
			return math.NaN()
		}
		return grid.At(0, row, col)
	}

	transform := grid.PixelTransform()
	result := make([]float64, len(points))
	for i, point := range points {
		col, row := transform.Pixel(point)
		col -= 0.5
		row -= 0.5
		col0, row0 := math.Floor(col), math.Floor(row)
		dx, dy := col-col0, row-row0
		c0, r0 := int(col0), int(row0)
		var value float64
		for _, term := range []struct {
			row, col int
			weight   float64
		}{
			{r0, c0, (1 - dx) * (1 - dy)},
			{r0, c0 + 1, dx * (1 - dy)},
			{r0 + 1, c0, (1 - dx) * dy},
			{r0 + 1, c0 + 1, dx * dy},
		} {
			if term.weight == 0 {
				continue
			}
			value += term.weight * sample(term.row, term.col)
		}
		result[i] = value
	}
	return result
}

func (r *ClippedRaster) PixelTransform() Affine {
	return r.Transform
}

func (r *HeightDifferenceRaster) PixelTransform() Affine {
	return r.Transform
}
