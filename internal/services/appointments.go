package services

import (
	"context"
	"field-service-router/internal/domain"
	"field-service-router/internal/ports"
	"fmt"
	"time"
)

// listAppointmentsForDay returns the appointments of one status on one day.
//
// Filtering is pushed to the repository when it implements
// ports.AppointmentQuerier; otherwise the full list is filtered here. The day
// check is applied in both cases so a scheduled time always wins over the
// stored date.
func listAppointmentsForDay(
	ctx context.Context,
	repo ports.AppointmentRepository,
	day string,
	status domain.AppointmentStatus,
	loc *time.Location,
) ([]domain.Appointment, error) {
	var (
		all []domain.Appointment
		err error
	)

	if q, ok := repo.(ports.AppointmentQuerier); ok {
		all, err = q.ListAppointmentsByDate(ctx, day, status)
		if err != nil {
			return nil, fmt.Errorf("list appointments: date=%s status=%s: %w", day, status, err)
		}
	} else {
		all, err = repo.ListAppointments(ctx)
		if err != nil {
			return nil, fmt.Errorf("list appointments: %w", err)
		}
	}

	out := make([]domain.Appointment, 0, len(all))
	for _, a := range all {
		if a.Status == status && a.OnDay(day, loc) {
			out = append(out, a)
		}
	}
	return out, nil
}

// dayKey formats a day in the planning time zone.
func dayKey(day time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return day.In(loc).Format(domain.DayLayout)
}
