package domain

import (
	"errors"
	"time"
)

var ErrAlreadyConfirmed = errors.New("service point already confirmed")

type PointType string

const (
	PointConfirmed      PointType = "confirmed"
	PointPreAppointment PointType = "pre-appointment"
)

type ServiceType string

const (
	ServiceInHome ServiceType = "in-home"
	ServicePickup ServiceType = "pickup"
)

// ServiceDefaults holds the on-site duration assumed for each service type
// when an appointment does not carry its own estimate.
type ServiceDefaults struct {
	InHomeMinutes int
	PickupMinutes int
}

func DefaultServiceDefaults() ServiceDefaults {
	return ServiceDefaults{InHomeMinutes: 40, PickupMinutes: 30}
}

func (d ServiceDefaults) MinutesFor(t ServiceType) int {
	if t == ServicePickup {
		return d.PickupMinutes
	}
	return d.InHomeMinutes
}

// Represents a single stop a technician has to visit during a service day.
//
// A confirmed point always carries ScheduledAt. A pre-appointment never does
// until Confirm is called, after which it is confirmed for the rest of the
// planning run.
type ServicePoint struct {
	ID             string
	Coordinates    Coordinates
	Address        string
	ClientName     string
	ServiceMinutes int
	Priority       int
	Type           PointType
	ServiceType    ServiceType
	Urgent         bool
	ScheduledAt    *time.Time
	TechnicianID   string
}

func (p ServicePoint) IsConfirmed() bool { return p.Type == PointConfirmed }

func (p ServicePoint) ServiceDuration() time.Duration {
	return time.Duration(p.ServiceMinutes) * time.Minute
}

// OccupiedInterval returns [ScheduledAt, ScheduledAt+service). ok is false
// when the point has no scheduled time and therefore occupies nothing.
func (p ServicePoint) OccupiedInterval() (start, end time.Time, ok bool) {
	if p.ScheduledAt == nil {
		return time.Time{}, time.Time{}, false
	}
	start = *p.ScheduledAt
	return start, start.Add(p.ServiceDuration()), true
}

// Confirm transitions a pre-appointment to confirmed at the given start.
// The point is returned by value; the receiver is left untouched.
func (p ServicePoint) Confirm(start time.Time) (ServicePoint, error) {
	if p.Type == PointConfirmed {
		return p, ErrAlreadyConfirmed
	}
	at := start
	p.Type = PointConfirmed
	p.ScheduledAt = &at
	return p, nil
}
