package ports

import (
	"context"
	"errors"
	"field-service-router/internal/domain"
)

var ErrNotFound = errors.New("not found")

// Port: a boundary for reading and updating appointment records.
type AppointmentRepository interface {
	// Retrieve every stored appointment.
	ListAppointments(ctx context.Context) ([]domain.Appointment, error)
	// Apply a partial update and return the updated record.
	// Returns ErrNotFound when the id is unknown.
	UpdateAppointment(ctx context.Context, id string, patch domain.AppointmentPatch) (domain.Appointment, error)
}

// Optional extension of AppointmentRepository that filters by day and status
// in the query layer instead of on the client.
type AppointmentQuerier interface {
	AppointmentRepository
	// Return appointments with the given status that belong to day (YYYY-MM-DD).
	ListAppointmentsByDate(ctx context.Context, day string, status domain.AppointmentStatus) ([]domain.Appointment, error)
}

// Full CRUD surface implemented by the concrete stores.
type AppointmentStore interface {
	AppointmentQuerier
	GetAppointment(ctx context.Context, id string) (domain.Appointment, error)
	CreateAppointment(ctx context.Context, a domain.Appointment) (domain.Appointment, error)
}
