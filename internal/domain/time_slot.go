package domain

import "time"

// Period identifies the fixed daily window a TimeSlot was fragmented from.
type Period string

const (
	PeriodMorning   Period = "morning"
	PeriodAfternoon Period = "afternoon"
)

// Represents a contiguous interval of free time on a single calendar day.
// A TimeSlot is a value object; Start is always strictly before End.
type TimeSlot struct {
	Start        time.Time
	End          time.Time
	Period       Period
	TechnicianID string
}

func (s TimeSlot) Duration() time.Duration { return s.End.Sub(s.Start) }

func (s TimeSlot) Valid() bool { return s.Start.Before(s.End) }

// Overlaps uses the half-open interval test: a.start < b.end && b.start < a.end.
func (s TimeSlot) Overlaps(start, end time.Time) bool {
	return s.Start.Before(end) && start.Before(s.End)
}

// Contains reports whether [start, end) lies fully inside the slot.
func (s TimeSlot) Contains(start, end time.Time) bool {
	return !start.Before(s.Start) && !end.After(s.End)
}
