package chm_test

import (
	"context"
	"errors"
	"testing"

	"github.com/alecthomas/assert/v2"

	"github.com/twpayne/go-chm"
)

func TestAddressString(t *testing.T) {
	address := chm.Address{
		Street:     "Grote Markt",
		Number:     "1",
		PostalCode: "2000",
		Town:       "Antwerpen",
	}
	assert.Equal(t, "Grote Markt 1, 2000 Antwerpen", address.String())
}

func TestCachingGeocoder(t *testing.T) {
	errNotFound := errors.New("not found")
	calls := make(map[chm.Address]int)
	geocoder := chm.GeocoderFunc(func(ctx context.Context, address chm.Address) (*chm.Location, error) {
		calls[address]++
		if address.Town == "Nergens" {
			return nil, errNotFound
		}
		return &chm.Location{
			Point: chm.Point{152000, 212000},
		}, nil
	})

	cachingGeocoder, err := chm.NewCachingGeocoder(geocoder, 1)
	assert.NoError(t, err)

	antwerpen := chm.Address{Street: "Grote Markt", Number: "1", PostalCode: "2000", Town: "Antwerpen"}
	gent := chm.Address{Street: "Korenmarkt", Number: "1", PostalCode: "9000", Town: "Gent"}
	nergens := chm.Address{Street: "Straat", Number: "1", PostalCode: "0000", Town: "Nergens"}

	first, err := cachingGeocoder.Geocode(t.Context(), antwerpen)
	assert.NoError(t, err)
	second, err := cachingGeocoder.Geocode(t.Context(), antwerpen)
	assert.NoError(t, err)
	assert.True(t, first == second)
	assert.Equal(t, 1, calls[antwerpen])

	// Errors are not cached.
	for range 2 {
		_, err := cachingGeocoder.Geocode(t.Context(), nergens)
		assert.IsError(t, err, errNotFound)
	}
	assert.Equal(t, 2, calls[nergens])

	// The cache holds a single address, so geocoding gent evicts antwerpen.
	_, err = cachingGeocoder.Geocode(t.Context(), gent)
	assert.NoError(t, err)
	_, err = cachingGeocoder.Geocode(t.Context(), antwerpen)
	assert.NoError(t, err)
	assert.Equal(t, 2, calls[antwerpen])
}

func TestNewCachingGeocoderInvalidSize(t *testing.T) {
	_, err := chm.NewCachingGeocoder(chm.GeocoderFunc(nil), 0)
	assert.Error(t, err)
}
