package chm

import (
	"strconv"

	"github.com/paulmach/orb"
)

// A Point is a coordinate in the catalog's CRS.
type Point = orb.Point

// A Footprint is a building outline. The first ring is the outer boundary,
// any further rings are holes.
type Footprint = orb.Polygon

// A BoundingBox is an axis-aligned extent in the catalog's CRS. Containment
// is inclusive on both axes.
type BoundingBox = orb.Bound

// A Model selects one of the two elevation models of a tile.
type Model int

const (
	Surface Model = iota // Digital surface model, top of objects.
	Terrain              // Digital terrain model, bare ground.
)

func (m Model) String() string {
	switch m {
	case Surface:
		return "DSM"
	case Terrain:
		return "DTM"
	default:
		return "Model(" + strconv.Itoa(int(m)) + ")"
	}
}

// An Affine maps pixel coordinates to CRS coordinates:
//
//	x = A*col + B*row + C
//	y = D*col + E*row + F
type Affine struct {
	A, B, C float64
	D, E, F float64
}

// Apply returns the CRS coordinate of the pixel coordinate (col, row).
// Integer pixel coordinates address the top-left corner of a pixel.
func (a Affine) Apply(col, row float64) Point {
	return Point{
		a.A*col + a.B*row + a.C,
		a.D*col + a.E*row + a.F,
	}
}

// Pixel returns the pixel coordinate of p. It assumes that a has no rotation
// terms.
func (a Affine) Pixel(p Point) (col, row float64) {
	return (p[0] - a.C) / a.A, (p[1] - a.F) / a.E
}

// Translate returns a with its origin moved to the pixel (col, row).
func (a Affine) Translate(col, row int) Affine {
	origin := a.Apply(float64(col), float64(row))
	a.C, a.F = origin[0], origin[1]
	return a
}
