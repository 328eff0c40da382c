package ports

import (
	"context"
	"field-service-router/internal/domain"
)

// Resolves a street address to coordinates.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (domain.Coordinates, error)
}
