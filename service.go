package chm

import (
	"context"
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/rs/zerolog"
	"github.com/twpayne/go-proj/v10"
)

var errNoGeocoder = errors.New("no geocoder")

// A Result is the height model of a building.
type Result struct {
	Point     Point
	Footprint Footprint
	Tile      *TileEntry
	Surface   *ClippedRaster
	Terrain   *ClippedRaster
	Height    *HeightDifferenceRaster

	// PointHeight is the height interpolated at Point, NaN if Point is not
	// surrounded by valid cells.
	PointHeight float64
}

// A Service computes building height models from a Catalog.
type Service struct {
	catalog  *Catalog
	geocoder Geocoder
	logger   zerolog.Logger
	pj       *proj.PJ
}

// A ServiceOption sets an option on a Service.
type ServiceOption func(*Service)

func WithGeocoder(geocoder Geocoder) ServiceOption {
	return func(s *Service) {
		s.geocoder = geocoder
	}
}

func WithServiceLogger(logger zerolog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService returns a new Service that reads rasters from catalog, which
// must be in Belgian Lambert 72.
func NewService(catalog *Catalog, options ...ServiceOption) (*Service, error) {
	s := &Service{
		catalog: catalog,
		logger:  zerolog.Nop(),
	}
	for _, option := range options {
		option(s)
	}
	pj, err := proj.NewCRSToCRS("epsg:4326", fmt.Sprintf("epsg:%d", Lambert72SRID), nil)
	if err != nil {
		return nil, err
	}
	s.pj = pj
	return s, nil
}

// Catalog returns s's catalog.
func (s *Service) Catalog() *Catalog {
	return s.catalog
}

// HeightModel geocodes address and returns the height model of the building
// there.
func (s *Service) HeightModel(ctx context.Context, address Address) (*Result, error) {
	if s.geocoder == nil {
		return nil, errNoGeocoder
	}
	location, err := s.geocoder.Geocode(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", address, err)
	}
	s.logger.Debug().
		Stringer("address", address).
		Floats64("point", location.Point[:]).
		Msg("geocoded address")
	return s.HeightModelAt(ctx, location.Point, location.Footprint)
}

// HeightModelAt returns the height model of footprint in the tile containing
// point. The tile is resolved before any raster is opened, so a point
// outside the catalog fails with a *PointOutOfCoverageError without I/O.
func (s *Service) HeightModelAt(ctx context.Context, point Point, footprint Footprint) (*Result, error) {
	tile, err := s.catalog.Resolve(point)
	if err != nil {
		s.logger.Debug().Err(err).Msg("resolve")
		return nil, err
	}
	logger := s.logger.With().Str("tile", string(tile.TileID)).Logger()

	surface, err := Clip(ctx, tile, footprint, Surface)
	if err != nil {
		logger.Debug().Err(err).Stringer("model", Surface).Msg("clip")
		return nil, err
	}
	terrain, err := Clip(ctx, tile, footprint, Terrain)
	if err != nil {
		logger.Debug().Err(err).Stringer("model", Terrain).Msg("clip")
		return nil, err
	}

	height, err := Difference(surface, terrain)
	if err != nil {
		logger.Error().Err(err).Msg("difference")
		return nil, err
	}
	shape := height.Shape()
	logger.Debug().
		Ints("shape", shape[:]).
		Msg("height model")

	return &Result{
		Point:     point,
		Footprint: footprint,
		Tile:      tile,
		Surface:   surface,
		Terrain:   terrain,
		Height:    height,

		PointHeight: InterpolateBilinear(height, []Point{point})[0],
	}, nil
}

// HeightModelWGS84 is like HeightModelAt but point and footprint are
// longitude/latitude coordinates.
func (s *Service) HeightModelWGS84(ctx context.Context, point Point, footprint Footprint) (*Result, error) {
	lambert72Point, lambert72Footprint, err := s.ToLambert72(point, footprint)
	if err != nil {
		return nil, err
	}
	return s.HeightModelAt(ctx, lambert72Point, lambert72Footprint)
}

// ToLambert72 converts point and footprint from longitude/latitude to
// Belgian Lambert 72.
func (s *Service) ToLambert72(point Point, footprint Footprint) (Point, Footprint, error) {
	n := 1
	for _, ring := range footprint {
		n += len(ring)
	}

	// EPSG:4326 is latitude first.
	coords := make([][]float64, 0, n)
	coords = append(coords, []float64{point[1], point[0]})
	for _, ring := range footprint {
		for _, p := range ring {
			coords = append(coords, []float64{p[1], p[0]})
		}
	}
	if err := s.pj.ForwardFloat64Slices(coords); err != nil {
		return Point{}, nil, err
	}

	lambert72Point := Point{coords[0][0], coords[0][1]}
	lambert72Footprint := make(Footprint, 0, len(footprint))
	i := 1
	for _, ring := range footprint {
		lambert72Ring := make(orb.Ring, 0, len(ring))
		for range ring {
			lambert72Ring = append(lambert72Ring, Point{coords[i][0], coords[i][1]})
			i++
		}
		lambert72Footprint = append(lambert72Footprint, lambert72Ring)
	}
	return lambert72Point, lambert72Footprint, nil
}
