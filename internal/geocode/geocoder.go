// Package geocode resolves free-form addresses to coordinates.
package geocode

import (
	"context"
	"errors"
	"strings"

	"github.com/codr1/leaguely/internal/geo"
)

var (
	ErrAddressNotFound = errors.New("address not found")
	ErrEmptyAddress    = errors.New("address is required")
)

// Geocoder turns an address into a coordinate.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (geo.Coordinate, error)
}

// NormalizeAddress trims, collapses internal whitespace and lower-cases an
// address so equivalent inputs share a cache key.
func NormalizeAddress(address string) string {
	return strings.ToLower(strings.Join(strings.Fields(address), " "))
}
