package domain

import (
	"errors"
	"math"
)

var ErrInvalidCoordinates = errors.New("invalid coordinates")

// Immutable geographic coordinates (longitude, latitude).
// The order is significant for every distance computation; never swap.
type Coordinates struct {
	Lon float64
	Lat float64
}

// Return coordinates as [lon, lat] for GeoJSON and external API compatibility.
func (c Coordinates) CoordsToList() []float64 { return []float64{c.Lon, c.Lat} }

// Valid reports whether both components are finite and inside the WGS84 range.
func (c Coordinates) Valid() bool {
	if math.IsNaN(c.Lon) || math.IsNaN(c.Lat) || math.IsInf(c.Lon, 0) || math.IsInf(c.Lat, 0) {
		return false
	}
	return c.Lon >= -180 && c.Lon <= 180 && c.Lat >= -90 && c.Lat <= 90
}
