package domain

import (
	"errors"
	"fmt"
	"time"
)

// DayLayout is the calendar-day format used for service dates.
const DayLayout = "2006-01-02"

var ErrNotPlannable = errors.New("appointment status is not plannable")

type AppointmentStatus string

const (
	StatusPending   AppointmentStatus = "pending"
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusCancelled AppointmentStatus = "cancelled"
	StatusCompleted AppointmentStatus = "completed"
)

// Represents an appointment record as stored by the appointment repository.
//
// Date is the requested service day (YYYY-MM-DD). ScheduledAt is only set
// once the appointment has been confirmed for a specific time. Coordinates
// are optional at rest and must be resolved before planning.
type Appointment struct {
	ID             string
	ClientName     string
	Address        string
	Coordinates    *Coordinates
	Status         AppointmentStatus
	Date           string
	ScheduledAt    *time.Time
	Urgent         bool
	ServiceType    ServiceType
	Priority       int
	ServiceMinutes int
	TechnicianID   string
}

// AppointmentPatch describes a partial update. Nil fields are left unchanged.
type AppointmentPatch struct {
	Status      *AppointmentStatus
	ScheduledAt *time.Time
	Date        *string
}

// ConfirmationPatch builds the patch persisted when a slot has been chosen.
// The service day is the calendar day of start in loc, so it matches OnDay.
func ConfirmationPatch(start time.Time, loc *time.Location) AppointmentPatch {
	if loc == nil {
		loc = time.UTC
	}
	status := StatusConfirmed
	at := start
	day := start.In(loc).Format(DayLayout)
	return AppointmentPatch{Status: &status, ScheduledAt: &at, Date: &day}
}

// Apply returns a copy of the appointment with the patch applied.
func (a Appointment) Apply(p AppointmentPatch) Appointment {
	if p.Status != nil {
		a.Status = *p.Status
	}
	if p.ScheduledAt != nil {
		at := *p.ScheduledAt
		a.ScheduledAt = &at
	}
	if p.Date != nil {
		a.Date = *p.Date
	}
	return a
}

// OnDay reports whether the appointment belongs to the given service day.
// A scheduled time wins over the stored date.
func (a Appointment) OnDay(day string, loc *time.Location) bool {
	if a.ScheduledAt != nil {
		if loc == nil {
			loc = time.UTC
		}
		return a.ScheduledAt.In(loc).Format(DayLayout) == day
	}
	return a.Date == day
}

// ToServicePoint maps a stored appointment into the strict planning shape.
// Only pending and confirmed appointments are plannable; confirmed ones must
// carry a scheduled time and every point must have valid coordinates.
func (a Appointment) ToServicePoint(defaults ServiceDefaults) (ServicePoint, error) {
	if a.Coordinates == nil || !a.Coordinates.Valid() {
		return ServicePoint{}, fmt.Errorf("appointment %s: %w", a.ID, ErrInvalidCoordinates)
	}

	serviceType := a.ServiceType
	if serviceType != ServicePickup {
		serviceType = ServiceInHome
	}

	minutes := a.ServiceMinutes
	if minutes <= 0 {
		minutes = defaults.MinutesFor(serviceType)
	}

	priority := a.Priority
	if priority <= 0 {
		priority = 1
	}
	if a.Urgent {
		priority *= 2
	}

	p := ServicePoint{
		ID:             a.ID,
		Coordinates:    *a.Coordinates,
		Address:        a.Address,
		ClientName:     a.ClientName,
		ServiceMinutes: minutes,
		Priority:       priority,
		ServiceType:    serviceType,
		Urgent:         a.Urgent,
		TechnicianID:   a.TechnicianID,
	}

	switch a.Status {
	case StatusConfirmed:
		if a.ScheduledAt == nil {
			return ServicePoint{}, fmt.Errorf("appointment %s: confirmed without scheduled time", a.ID)
		}
		at := *a.ScheduledAt
		p.Type = PointConfirmed
		p.ScheduledAt = &at
	case StatusPending:
		p.Type = PointPreAppointment
	default:
		return ServicePoint{}, fmt.Errorf("appointment %s status=%s: %w", a.ID, a.Status, ErrNotPlannable)
	}

	return p, nil
}
