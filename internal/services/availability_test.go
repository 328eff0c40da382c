package services

import (
	"context"
	"errors"
	"field-service-router/internal/domain"
	"math/rand"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func confirmedAt(id string, start time.Time, minutes int) domain.Appointment {
	s := start
	return domain.Appointment{
		ID:             id,
		Status:         domain.StatusConfirmed,
		Date:           s.Format(domain.DayLayout),
		ScheduledAt:    &s,
		ServiceMinutes: minutes,
		Coordinates:    &DefaultCenter,
	}
}

func newManager(repo *memRepo) *AvailabilityManager {
	return NewAvailabilityManager(repo, DefaultWorkingHours(), time.UTC, domain.DefaultServiceDefaults())
}

func TestGetAvailableTimeSlotsFragmentsAroundConfirmed(t *testing.T) {
	// build test data
	inHome := confirmedAt("c1", at(10, 0), 0)
	inHome.ServiceType = domain.ServiceInHome
	repo := newMemRepo(
		inHome,
		domain.Appointment{ID: "p1", Status: domain.StatusPending, Date: "2026-03-02"},
		confirmedAt("other-day", at(10, 0).AddDate(0, 0, 1), 40),
	)

	// call the method under test
	slots, err := newManager(repo).GetAvailableTimeSlots(context.Background(), testDay, "")

	// verify behavior
	require.NoError(t, err)
	require.Len(t, slots, 3)
	assert.Equal(t, at(9, 0), slots[0].Start)
	assert.Equal(t, at(10, 0), slots[0].End)
	assert.Equal(t, at(10, 40), slots[1].Start)
	assert.Equal(t, at(12, 0), slots[1].End)
	assert.Equal(t, domain.PeriodMorning, slots[1].Period)
	assert.Equal(t, at(13, 0), slots[2].Start)
	assert.Equal(t, at(17, 0), slots[2].End)
	assert.Equal(t, domain.PeriodAfternoon, slots[2].Period)
}

func TestGetAvailableTimeSlotsIgnoresUnscheduledAndOtherTechnicians(t *testing.T) {
	noTime := domain.Appointment{ID: "c0", Status: domain.StatusConfirmed, Date: "2026-03-02"}
	other := confirmedAt("c1", at(9, 0), 60)
	other.TechnicianID = "tech-2"
	mine := confirmedAt("c2", at(14, 0), 60)
	mine.TechnicianID = "tech-1"

	slots, err := newManager(newMemRepo(noTime, other, mine)).GetAvailableTimeSlots(context.Background(), testDay, "tech-1")

	require.NoError(t, err)
	require.Len(t, slots, 3)
	assert.Equal(t, at(9, 0), slots[0].Start)
	assert.Equal(t, at(12, 0), slots[0].End)
	assert.Equal(t, at(13, 0), slots[1].Start)
	assert.Equal(t, at(14, 0), slots[1].End)
	assert.Equal(t, at(15, 0), slots[2].Start)
	for _, s := range slots {
		assert.Equal(t, "tech-1", s.TechnicianID)
	}
}

func TestGetAvailableTimeSlotsUsesQuerier(t *testing.T) {
	repo := &queryRepo{memRepo: newMemRepo(confirmedAt("c1", at(9, 0), 180))}

	slots, err := newManager(repo.memRepo).GetAvailableTimeSlots(context.Background(), testDay, "")
	require.NoError(t, err)
	assert.Len(t, slots, 1)

	m := NewAvailabilityManager(repo, DefaultWorkingHours(), time.UTC, domain.DefaultServiceDefaults())
	slots, err = m.GetAvailableTimeSlots(context.Background(), testDay, "")
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.Equal(t, at(13, 0), slots[0].Start)
	assert.Equal(t, []string{"2026-03-02/confirmed"}, repo.calls)
}

func TestGetAvailableTimeSlotsRepositoryError(t *testing.T) {
	repo := newMemRepo()
	repo.listErr = errors.New("db down")

	_, err := newManager(repo).GetAvailableTimeSlots(context.Background(), testDay, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
}

func TestFragmentWindowEdges(t *testing.T) {
	window := domain.TimeSlot{Start: at(9, 0), End: at(12, 0), Period: domain.PeriodMorning}

	tests := []struct {
		name     string
		occupied []Interval
		want     [][2]time.Time
	}{
		{
			name: "empty window stays whole",
			want: [][2]time.Time{{at(9, 0), at(12, 0)}},
		},
		{
			name:     "straddling start",
			occupied: []Interval{{at(8, 30), at(9, 30)}},
			want:     [][2]time.Time{{at(9, 30), at(12, 0)}},
		},
		{
			name:     "nested interval is skipped",
			occupied: []Interval{{at(10, 0), at(11, 0)}, {at(10, 30), at(10, 45)}},
			want:     [][2]time.Time{{at(9, 0), at(10, 0)}, {at(11, 0), at(12, 0)}},
		},
		{
			name:     "back to back leaves no zero fragment",
			occupied: []Interval{{at(10, 0), at(10, 30)}, {at(10, 30), at(11, 0)}},
			want:     [][2]time.Time{{at(9, 0), at(10, 0)}, {at(11, 0), at(12, 0)}},
		},
		{
			name:     "fully booked",
			occupied: []Interval{{at(9, 0), at(12, 0)}},
			want:     [][2]time.Time{},
		},
		{
			name:     "outside window ignored",
			occupied: []Interval{{at(12, 0), at(13, 0)}, {at(7, 0), at(9, 0)}},
			want:     [][2]time.Time{{at(9, 0), at(12, 0)}},
		},
		{
			name:     "unsorted input",
			occupied: []Interval{{at(11, 0), at(11, 30)}, {at(9, 30), at(10, 0)}},
			want:     [][2]time.Time{{at(9, 0), at(9, 30)}, {at(10, 0), at(11, 0)}, {at(11, 30), at(12, 0)}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FragmentWindow(window, tt.occupied)
			spans := make([][2]time.Time, 0, len(got))
			for _, s := range got {
				assert.True(t, s.Start.Before(s.End))
				assert.Equal(t, domain.PeriodMorning, s.Period)
				spans = append(spans, [2]time.Time{s.Start, s.End})
			}
			assert.Equal(t, tt.want, spans)
		})
	}
}

func TestFragmentWindowReconstructsWindow(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	window := domain.TimeSlot{Start: at(13, 0), End: at(17, 0), Period: domain.PeriodAfternoon}

	for round := 0; round < 200; round++ {
		// Random non-overlapping intervals on a 5-minute grid.
		var occupied []Interval
		cursor := 0
		for cursor < 240 {
			gap := rng.Intn(4) * 5
			length := (rng.Intn(8) + 1) * 5
			start := cursor + gap
			end := start + length
			if end > 240 {
				break
			}
			occupied = append(occupied, Interval{
				Start: window.Start.Add(time.Duration(start) * time.Minute),
				End:   window.Start.Add(time.Duration(end) * time.Minute),
			})
			cursor = end
		}
		rng.Shuffle(len(occupied), func(i, j int) { occupied[i], occupied[j] = occupied[j], occupied[i] })

		fragments := FragmentWindow(window, occupied)

		pieces := append([]Interval(nil), occupied...)
		for _, f := range fragments {
			for _, iv := range occupied {
				require.False(t, f.Overlaps(iv.Start, iv.End), "fragment overlaps occupied interval")
			}
			pieces = append(pieces, Interval{Start: f.Start, End: f.End})
		}
		sort.Slice(pieces, func(i, j int) bool { return pieces[i].Start.Before(pieces[j].Start) })

		require.NotEmpty(t, pieces)
		require.Equal(t, window.Start, pieces[0].Start)
		for i := 1; i < len(pieces); i++ {
			require.Equal(t, pieces[i-1].End, pieces[i].Start, "gap or overlap at piece %d", i)
		}
		require.Equal(t, window.End, pieces[len(pieces)-1].End)
	}
}

func TestIsTimeSlotAvailable(t *testing.T) {
	m := newManager(newMemRepo(confirmedAt("c1", at(10, 0), 40)))
	ctx := context.Background()

	ok, err := m.IsTimeSlotAvailable(ctx, domain.TimeSlot{Start: at(10, 30), End: at(11, 0)})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = m.IsTimeSlotAvailable(ctx, domain.TimeSlot{Start: at(10, 40), End: at(11, 20)})
	require.NoError(t, err)
	assert.True(t, ok, "touching the end of a confirmed visit is free")

	ok, err = m.IsTimeSlotAvailable(ctx, domain.TimeSlot{Start: at(9, 20), End: at(10, 0)})
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = m.IsTimeSlotAvailable(ctx, domain.TimeSlot{Start: at(11, 0), End: at(11, 0)})
	require.ErrorIs(t, err, ErrInvalidSlot)
}
