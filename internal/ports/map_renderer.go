package ports

import (
	"context"
	"field-service-router/internal/domain"
	"field-service-router/internal/mapview"
)

// Creates map sessions bound to a display container.
type MapRenderer interface {
	Initialize(ctx context.Context, container string) (MapSession, error)
}

// MapSession is owned by the caller that initialized it. It draws scenes and
// asks the operator to choose a slot for one pending appointment at a time.
type MapSession interface {
	Render(ctx context.Context, scene mapview.Scene) error
	ClearMarkers(ctx context.Context) error
	// SelectSlot blocks until the operator picks one of the candidates or
	// cancels. A nil slot with a nil error means cancelled.
	SelectSlot(ctx context.Context, appointmentID string, candidates []domain.TimeSlot) (*domain.TimeSlot, error)
	Dispose() error
}
