package ports

import (
	"context"
	"field-service-router/internal/domain"
	"time"
)

// Contract for answering free-time questions about a service day.
type AvailabilityProvider interface {
	// Return the free fragments of the day's fixed windows.
	GetAvailableTimeSlots(ctx context.Context, day time.Time, technicianID string) ([]domain.TimeSlot, error)
	// Report whether the proposed interval is free of confirmed appointments.
	IsTimeSlotAvailable(ctx context.Context, slot domain.TimeSlot) (bool, error)
}
