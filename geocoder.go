package chm

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// An Address is a postal address.
type Address struct {
	Street     string
	Number     string
	PostalCode string
	Town       string
}

func (a Address) String() string {
	return fmt.Sprintf("%s %s, %s %s", a.Street, a.Number, a.PostalCode, a.Town)
}

// A Location is the position and building outline of an address, in the
// catalog's CRS.
type Location struct {
	Point     Point
	Footprint Footprint
}

// A Geocoder resolves addresses to locations.
type Geocoder interface {
	Geocode(ctx context.Context, address Address) (*Location, error)
}

// A GeocoderFunc is a function that implements Geocoder.
type GeocoderFunc func(ctx context.Context, address Address) (*Location, error)

func (f GeocoderFunc) Geocode(ctx context.Context, address Address) (*Location, error) {
	return f(ctx, address)
}

// A CachingGeocoder caches the successful results of another Geocoder.
type CachingGeocoder struct {
	geocoder Geocoder
	cache    *lru.Cache[Address, *Location]
}

// NewCachingGeocoder returns a Geocoder that remembers the last size
// successful results of geocoder. Errors are not cached.
func NewCachingGeocoder(geocoder Geocoder, size int) (*CachingGeocoder, error) {
	cache, err := lru.New[Address, *Location](size)
	if err != nil {
		return nil, err
	}
	return &CachingGeocoder{
		geocoder: geocoder,
		cache:    cache,
	}, nil
}

func (g *CachingGeocoder) Geocode(ctx context.Context, address Address) (*Location, error) {
	if location, ok := g.cache.Get(address); ok {
		geocodeCacheHits.Inc()
		return location, nil
	}
	geocodeCacheMisses.Inc()
	location, err := g.geocoder.Geocode(ctx, address)
	if err != nil {
		return nil, err
	}
	g.cache.Add(address, location)
	return location, nil
}
