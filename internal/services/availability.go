package services

import (
	"context"
	"errors"
	"field-service-router/internal/domain"
	"field-service-router/internal/ports"
	"fmt"
	"sort"
	"time"
)

var ErrInvalidSlot = errors.New("invalid time slot")

// Interval is an occupied half-open span [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

// WorkingHours are the two fixed daily windows, as hours of the day.
type WorkingHours struct {
	MorningStart   int
	MorningEnd     int
	AfternoonStart int
	AfternoonEnd   int
}

func DefaultWorkingHours() WorkingHours {
	return WorkingHours{MorningStart: 9, MorningEnd: 12, AfternoonStart: 13, AfternoonEnd: 17}
}

type AvailabilityManager struct {
	repo     ports.AppointmentRepository
	hours    WorkingHours
	loc      *time.Location
	defaults domain.ServiceDefaults
}

func NewAvailabilityManager(
	repo ports.AppointmentRepository,
	hours WorkingHours,
	loc *time.Location,
	defaults domain.ServiceDefaults,
) *AvailabilityManager {
	if loc == nil {
		loc = time.UTC
	}
	return &AvailabilityManager{repo: repo, hours: hours, loc: loc, defaults: defaults}
}

// Windows returns the morning and afternoon windows of day in the manager's
// time zone.
func (m *AvailabilityManager) Windows(day time.Time, technicianID string) []domain.TimeSlot {
	d := day.In(m.loc)
	at := func(hour int) time.Time {
		return time.Date(d.Year(), d.Month(), d.Day(), hour, 0, 0, 0, m.loc)
	}
	return []domain.TimeSlot{
		{Start: at(m.hours.MorningStart), End: at(m.hours.MorningEnd), Period: domain.PeriodMorning, TechnicianID: technicianID},
		{Start: at(m.hours.AfternoonStart), End: at(m.hours.AfternoonEnd), Period: domain.PeriodAfternoon, TechnicianID: technicianID},
	}
}

// GetAvailableTimeSlots returns the free fragments of the day's windows,
// morning first. The result never overlaps a confirmed appointment.
func (m *AvailabilityManager) GetAvailableTimeSlots(ctx context.Context, day time.Time, technicianID string) ([]domain.TimeSlot, error) {
	occupied, err := m.occupiedIntervals(ctx, day, technicianID)
	if err != nil {
		return nil, fmt.Errorf("get available time slots: %w", err)
	}

	slots := []domain.TimeSlot{}
	for _, w := range m.Windows(day, technicianID) {
		if !w.Valid() {
			continue
		}
		slots = append(slots, FragmentWindow(w, occupied)...)
	}
	return slots, nil
}

// IsTimeSlotAvailable reports whether [slot.Start, slot.End) is free of every
// confirmed appointment on the slot's day.
func (m *AvailabilityManager) IsTimeSlotAvailable(ctx context.Context, slot domain.TimeSlot) (bool, error) {
	if !slot.Valid() {
		return false, fmt.Errorf("is time slot available: start=%s end=%s: %w", slot.Start, slot.End, ErrInvalidSlot)
	}

	occupied, err := m.occupiedIntervals(ctx, slot.Start, slot.TechnicianID)
	if err != nil {
		return false, fmt.Errorf("is time slot available: %w", err)
	}

	for _, iv := range occupied {
		if slot.Overlaps(iv.Start, iv.End) {
			return false, nil
		}
	}
	return true, nil
}

// occupiedIntervals collects [ScheduledAt, ScheduledAt+service) for the
// confirmed appointments of a day. Appointments without a technician block
// every technician's calendar.
func (m *AvailabilityManager) occupiedIntervals(ctx context.Context, day time.Time, technicianID string) ([]Interval, error) {
	appts, err := listAppointmentsForDay(ctx, m.repo, dayKey(day, m.loc), domain.StatusConfirmed, m.loc)
	if err != nil {
		return nil, err
	}

	out := make([]Interval, 0, len(appts))
	for _, a := range appts {
		if a.ScheduledAt == nil {
			continue
		}
		if technicianID != "" && a.TechnicianID != "" && a.TechnicianID != technicianID {
			continue
		}

		minutes := a.ServiceMinutes
		if minutes <= 0 {
			minutes = m.defaults.MinutesFor(a.ServiceType)
		}
		start := *a.ScheduledAt
		out = append(out, Interval{Start: start, End: start.Add(time.Duration(minutes) * time.Minute)})
	}
	return out, nil
}

// FragmentWindow subtracts occupied intervals from a window.
//
// Intervals overlapping the window are walked in start order (stable, so equal
// starts keep their input order) with a free-start cursor. Each interval either
// opens a fragment before it or is already behind the cursor; the cursor then
// moves to the interval's end. Zero-length fragments are never emitted.
func FragmentWindow(window domain.TimeSlot, occupied []Interval) []domain.TimeSlot {
	inside := make([]Interval, 0, len(occupied))
	for _, iv := range occupied {
		if iv.End.After(iv.Start) && window.Overlaps(iv.Start, iv.End) {
			inside = append(inside, iv)
		}
	}
	sort.SliceStable(inside, func(i, j int) bool {
		return inside[i].Start.Before(inside[j].Start)
	})

	fragments := []domain.TimeSlot{}
	emit := func(start, end time.Time) {
		if !start.Before(end) {
			return
		}
		fragments = append(fragments, domain.TimeSlot{
			Start:        start,
			End:          end,
			Period:       window.Period,
			TechnicianID: window.TechnicianID,
		})
	}

	cursor := window.Start
	for _, iv := range inside {
		if iv.Start.After(cursor) {
			emit(cursor, iv.Start)
		}
		if iv.End.After(cursor) {
			cursor = iv.End
		}
	}
	if cursor.Before(window.End) {
		emit(cursor, window.End)
	}

	return fragments
}
