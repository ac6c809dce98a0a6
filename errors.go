package chm

import (
	"errors"
	"fmt"
)

var (
	ErrTileNaming             = errors.New("tile naming error")
	ErrCatalogInconsistency   = errors.New("catalog inconsistency")
	ErrPointOutOfCoverage     = errors.New("point out of coverage")
	ErrFootprintOutsideRaster = errors.New("footprint outside raster")
	ErrMisalignedRasters      = errors.New("misaligned rasters")
)

// A TileNamingError is returned when a raster filename does not follow the
// tile naming convention.
type TileNamingError struct {
	Path   string
	Reason string
}

func (e *TileNamingError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Path, ErrTileNaming, e.Reason)
}

func (e *TileNamingError) Is(target error) bool {
	return target == ErrTileNaming
}

// A CatalogInconsistencyError is returned when the surface and terrain
// collections do not describe the same grid.
type CatalogInconsistencyError struct {
	TileID TileID
	Reason string
}

func (e *CatalogInconsistencyError) Error() string {
	if e.TileID == "" {
		return fmt.Sprintf("%s: %s", ErrCatalogInconsistency, e.Reason)
	}
	return fmt.Sprintf("tile %s: %s: %s", e.TileID, ErrCatalogInconsistency, e.Reason)
}

func (e *CatalogInconsistencyError) Is(target error) bool {
	return target == ErrCatalogInconsistency
}

// A PointOutOfCoverageError is returned when no tile contains a point.
type PointOutOfCoverageError struct {
	Point Point
}

func (e *PointOutOfCoverageError) Error() string {
	return fmt.Sprintf("(%g, %g): %s", e.Point[0], e.Point[1], ErrPointOutOfCoverage)
}

func (e *PointOutOfCoverageError) Is(target error) bool {
	return target == ErrPointOutOfCoverage
}

// A FootprintOutsideRasterError is returned when a footprint does not
// intersect the extent of the raster it is clipped against.
type FootprintOutsideRasterError struct {
	TileID TileID
	Model  Model
	Bounds BoundingBox
}

func (e *FootprintOutsideRasterError) Error() string {
	return fmt.Sprintf("tile %s %s: footprint [%g %g %g %g]: %s",
		e.TileID, e.Model,
		e.Bounds.Min[0], e.Bounds.Min[1], e.Bounds.Max[0], e.Bounds.Max[1],
		ErrFootprintOutsideRaster)
}

func (e *FootprintOutsideRasterError) Is(target error) bool {
	return target == ErrFootprintOutsideRaster
}

// A MisalignedRastersError is returned when two rasters that should be
// co-registered differ in shape or transform.
type MisalignedRastersError struct {
	SurfaceShape     [3]int
	TerrainShape     [3]int
	SurfaceTransform Affine
	TerrainTransform Affine
}

func (e *MisalignedRastersError) Error() string {
	if e.SurfaceShape != e.TerrainShape {
		return fmt.Sprintf("%s: shape %v != %v", ErrMisalignedRasters, e.SurfaceShape, e.TerrainShape)
	}
	return fmt.Sprintf("%s: transform %v != %v", ErrMisalignedRasters, e.SurfaceTransform, e.TerrainTransform)
}

func (e *MisalignedRastersError) Is(target error) bool {
	return target == ErrMisalignedRasters
}
