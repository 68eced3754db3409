package geocode

import (
	"context"

	"github.com/codr1/leaguely/internal/geo"
)

// StaticGeocoder resolves addresses from a fixed table keyed by normalized
// address. It serves demo mode when no geocoding service is configured.
type StaticGeocoder map[string]geo.Coordinate

func (s StaticGeocoder) Geocode(_ context.Context, address string) (geo.Coordinate, error) {
	key := NormalizeAddress(address)
	if key == "" {
		return geo.Coordinate{}, ErrEmptyAddress
	}
	coord, ok := s[key]
	if !ok {
		return geo.Coordinate{}, ErrAddressNotFound
	}
	return coord, nil
}

// DemoGeocoder knows a handful of New York area places.
func DemoGeocoder() StaticGeocoder {
	return StaticGeocoder{
		"new york, ny":     {Lat: 40.7128, Lon: -74.0060},
		"hoboken, nj":      {Lat: 40.7440, Lon: -74.0324},
		"jersey city, nj":  {Lat: 40.7178, Lon: -74.0431},
		"brooklyn, ny":     {Lat: 40.6782, Lon: -73.9442},
		"yonkers, ny":      {Lat: 40.9312, Lon: -73.8988},
		"central park, ny": {Lat: 40.7829, Lon: -73.9654},
		"newark, nj":       {Lat: 40.7357, Lon: -74.1724},
		"stamford, ct":     {Lat: 41.0534, Lon: -73.5387},
		"philadelphia, pa": {Lat: 39.9526, Lon: -75.1652},
		"white plains, ny": {Lat: 41.0340, Lon: -73.7629},
	}
}
