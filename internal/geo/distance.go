// Package geo computes great-circle distances and orders league entities by
// proximity to a reference point.
package geo

import "math"

// EarthRadiusMiles is the mean Earth radius used for all distance math.
const EarthRadiusMiles = 3959

// Coordinate is an immutable latitude/longitude pair in degrees.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Valid reports whether both values are finite and inside geographic bounds.
func (c Coordinate) Valid() bool {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lon) || math.IsInf(c.Lat, 0) || math.IsInf(c.Lon, 0) {
		return false
	}
	return c.Lat >= -90 && c.Lat <= 90 && c.Lon >= -180 && c.Lon <= 180
}

// Locatable is any record that may carry a coordinate. The bool is false when
// the record has no location yet.
type Locatable interface {
	Coordinate() (Coordinate, bool)
}

// CalculateDistance returns the Haversine distance between a and b in miles,
// rounded to one decimal place (half away from zero).
// Inputs are not validated; out of range values produce whatever the math yields.
func CalculateDistance(a, b Coordinate) float64 {
	return RoundMiles(haversineMiles(a, b))
}

// RoundMiles rounds a distance to one decimal place.
func RoundMiles(miles float64) float64 {
	return math.Round(miles*10) / 10
}

func haversineMiles(a, b Coordinate) float64 {
	lat1 := toRadians(a.Lat)
	lat2 := toRadians(b.Lat)
	deltaLat := toRadians(b.Lat - a.Lat)
	deltaLon := toRadians(b.Lon - a.Lon)

	h := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*
			math.Sin(deltaLon/2)*math.Sin(deltaLon/2)

	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return EarthRadiusMiles * c
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
