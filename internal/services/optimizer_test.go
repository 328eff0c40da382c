package services

import (
	"context"
	"errors"
	"field-service-router/internal/domain"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Along one meridian, haversine distance is linear in latitude.
const degPerKm = 180 / (math.Pi * earthRadiusKm)

func pointAt(id string, km float64) domain.ServicePoint {
	return domain.ServicePoint{
		ID:          id,
		Coordinates: domain.Coordinates{Lon: -46.6, Lat: -23.5 - km*degPerKm},
		Type:        domain.PointPreAppointment,
		Priority:    1,
	}
}

func confirmedPoint(id string, km float64, start time.Time, minutes int) domain.ServicePoint {
	p := pointAt(id, km)
	s := start
	p.Type = domain.PointConfirmed
	p.ScheduledAt = &s
	p.ServiceMinutes = minutes
	return p
}

func defaultSlots() []domain.TimeSlot {
	return []domain.TimeSlot{
		{Start: at(9, 0), End: at(12, 0), Period: domain.PeriodMorning},
		{Start: at(13, 0), End: at(17, 0), Period: domain.PeriodAfternoon},
	}
}

func TestEstimateTravelTime(t *testing.T) {
	p := NewPlanner(0)

	tests := []struct {
		km   float64
		want int
	}{
		{0, 0},
		{1, 2},
		{2.4, 5},
		{5, 10},
		{15, 30},
		{15.1, 31},
	}
	for _, tt := range tests {
		got, err := p.EstimateTravelTime(tt.km)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "km=%v", tt.km)
	}

	for _, bad := range []float64{math.NaN(), math.Inf(1), -1} {
		_, err := p.EstimateTravelTime(bad)
		require.ErrorIs(t, err, ErrInvalidDistance)
	}

	fast := NewPlanner(60)
	got, err := fast.EstimateTravelTime(15)
	require.NoError(t, err)
	assert.Equal(t, 15, got)
}

func TestFindBestInsertionEmptyRoute(t *testing.T) {
	// build test data
	p := NewPlanner(DefaultAverageSpeedKmh)
	point := pointAt("urgent", 3)
	point.Urgent = true
	point.Priority = 2
	point.ServiceMinutes = 40
	slots := defaultSlots()

	// call the method under test
	ins, ok := p.FindBestInsertion(point, nil, slots, testDay)

	// verify behavior
	require.True(t, ok)
	assert.Equal(t, 0, ins.Index)
	assert.Equal(t, 0.0, ins.AdditionalDistanceKm)
	assert.Equal(t, slots, ins.PossibleTimeSlots)
}

func TestPlanRouteInsertsIntoGapBetweenConfirmed(t *testing.T) {
	// Two confirmed visits 4.8 km apart with a 90 minute gap; the pending
	// pickup sits halfway and needs 30 minutes plus 5 minutes each way.
	p := NewPlanner(DefaultAverageSpeedKmh)
	first := confirmedPoint("first", 0, at(9, 0), 40)
	second := confirmedPoint("second", 4.8, at(11, 10), 40)
	mid := pointAt("mid", 2.4)
	mid.ServiceMinutes = 30

	slots := []domain.TimeSlot{
		{Start: at(9, 40), End: at(11, 10), Period: domain.PeriodMorning},
		{Start: at(11, 50), End: at(12, 0), Period: domain.PeriodMorning},
		{Start: at(13, 0), End: at(17, 0), Period: domain.PeriodAfternoon},
	}

	res := p.PlanRoute(testDay, []domain.ServicePoint{second, first}, []domain.ServicePoint{mid}, slots)

	assert.Equal(t, []string{"first", "mid", "second"}, ids(res.SuggestedRoute))
	assert.Empty(t, res.Unscheduled)
	require.Len(t, res.TimeSlotSuggestions["mid"], 1)
	got := res.TimeSlotSuggestions["mid"][0]
	assert.Equal(t, at(9, 45), got.Start)
	assert.Equal(t, at(11, 5), got.End)
	assert.Equal(t, domain.PeriodMorning, got.Period)
}

func TestPlanRouteDropsPointWithoutViableSlot(t *testing.T) {
	p := NewPlanner(DefaultAverageSpeedKmh)
	first := confirmedPoint("first", 0, at(9, 0), 40)
	tight := pointAt("tight", 1)
	tight.ServiceMinutes = 40

	slots := []domain.TimeSlot{{Start: at(9, 40), End: at(9, 50), Period: domain.PeriodMorning}}

	for i := 0; i <= 1; i++ {
		assert.Empty(t, p.FindViableTimeSlots(tight, []domain.ServicePoint{first}, i, slots, testDay))
	}

	res := p.PlanRoute(testDay, []domain.ServicePoint{first}, []domain.ServicePoint{tight}, slots)
	assert.Equal(t, []string{"first"}, ids(res.SuggestedRoute))
	assert.Equal(t, []string{"tight"}, res.Unscheduled)
	assert.NotContains(t, res.TimeSlotSuggestions, "tight")
	assert.False(t, res.Contains("tight"))
}

func TestFindBestInsertionSkipsCheaperInfeasibleIndex(t *testing.T) {
	// Index 0 and 1 tie on distance, but index 0 would have to finish before
	// the 09:00 visit and no slot allows that.
	p := NewPlanner(DefaultAverageSpeedKmh)
	first := confirmedPoint("first", 0, at(9, 0), 40)
	point := pointAt("p", 1)
	point.ServiceMinutes = 30

	ins, ok := p.FindBestInsertion(point, []domain.ServicePoint{first}, defaultSlots(), testDay)

	require.True(t, ok)
	assert.Equal(t, 1, ins.Index)
	require.Len(t, ins.PossibleTimeSlots, 2)
	assert.Equal(t, at(9, 42), ins.PossibleTimeSlots[0].Start, "40 min service plus 2 min travel")
	assert.Equal(t, at(13, 0), ins.PossibleTimeSlots[1].Start)
}

func TestFindBestInsertionTieKeepsLowestIndex(t *testing.T) {
	p := NewPlanner(DefaultAverageSpeedKmh)
	unscheduled := pointAt("x", 0)
	point := pointAt("p", 3)
	point.ServiceMinutes = 30

	ins, ok := p.FindBestInsertion(point, []domain.ServicePoint{unscheduled}, defaultSlots(), testDay)

	require.True(t, ok)
	assert.Equal(t, 0, ins.Index)
}

func TestFindBestInsertionNeverPicksNaN(t *testing.T) {
	p := NewPlanner(DefaultAverageSpeedKmh)
	first := confirmedPoint("first", 0, at(9, 0), 40)
	broken := domain.ServicePoint{ID: "broken", Coordinates: domain.Coordinates{Lon: math.NaN(), Lat: 0}, ServiceMinutes: 30}

	_, ok := p.FindBestInsertion(broken, []domain.ServicePoint{first}, defaultSlots(), testDay)
	assert.False(t, ok)

	res := p.PlanRoute(testDay, []domain.ServicePoint{first}, []domain.ServicePoint{broken}, defaultSlots())
	assert.Equal(t, []string{"broken"}, res.Unscheduled)
}

func TestFindViableTimeSlotsFailsClosedOnBadNeighbour(t *testing.T) {
	p := NewPlanner(DefaultAverageSpeedKmh)
	s := at(9, 0)
	bad := domain.ServicePoint{ID: "bad", Coordinates: domain.Coordinates{Lon: math.Inf(1)}, Type: domain.PointConfirmed, ScheduledAt: &s, ServiceMinutes: 30}
	point := pointAt("p", 1)
	point.ServiceMinutes = 30

	assert.Empty(t, p.FindViableTimeSlots(point, []domain.ServicePoint{bad}, 1, defaultSlots(), testDay))
	assert.Empty(t, p.FindViableTimeSlots(point, []domain.ServicePoint{bad}, 0, defaultSlots(), testDay))
}

func TestFindViableTimeSlotsIgnoresOtherDays(t *testing.T) {
	p := NewPlanner(DefaultAverageSpeedKmh)
	point := pointAt("p", 1)
	point.ServiceMinutes = 30
	tomorrow := domain.TimeSlot{Start: at(9, 0).AddDate(0, 0, 1), End: at(12, 0).AddDate(0, 0, 1)}

	assert.Empty(t, p.FindViableTimeSlots(point, nil, 0, []domain.TimeSlot{tomorrow}, testDay))
}

func TestPlanRouteIsDeterministicAndTotalsMatchRoute(t *testing.T) {
	// build test data
	p := NewPlanner(DefaultAverageSpeedKmh)
	confirmed := []domain.ServicePoint{
		confirmedPoint("c2", 6, at(14, 0), 40),
		confirmedPoint("c1", 0, at(9, 0), 40),
		{ID: "c-late", Coordinates: domain.Coordinates{Lon: -46.61, Lat: -23.52}, Type: domain.PointConfirmed, ServiceMinutes: 30},
	}
	var pending []domain.ServicePoint
	for i, km := range []float64{1, 3, 5, 7, 2.5} {
		pt := pointAt(string(rune('a'+i)), km)
		pt.ServiceMinutes = 30
		pt.Priority = i%3 + 1
		pending = append(pending, pt)
	}

	// call the method under test
	first := p.PlanRoute(testDay, confirmed, pending, defaultSlots())
	second := p.PlanRoute(testDay, confirmed, pending, defaultSlots())

	// verify behavior
	assert.Equal(t, first, second)
	assert.Equal(t, []string{"c1", "c2", "c-late"}, confirmedOrder(first.SuggestedRoute))

	sum := 0.0
	minutes := 0
	for i, pt := range first.SuggestedRoute {
		minutes += pt.ServiceMinutes
		if i == 0 {
			continue
		}
		d := CalculateDistance(first.SuggestedRoute[i-1].Coordinates, pt.Coordinates)
		sum += d
		travel, err := p.EstimateTravelTime(d)
		require.NoError(t, err)
		minutes += travel
	}
	assert.InDelta(t, sum, first.TotalDistanceKm, 1e-9)
	assert.Equal(t, minutes, first.TotalMinutes)
	assert.Equal(t, len(confirmed)+len(pending), len(first.SuggestedRoute)+len(first.Unscheduled))

	segs := p.Segments(first.SuggestedRoute)
	assert.Len(t, segs, len(first.SuggestedRoute)-1)
}

func TestSortConfirmedAndPending(t *testing.T) {
	late := confirmedPoint("late", 0, at(15, 0), 30)
	early := confirmedPoint("early", 0, at(9, 0), 30)
	noTime := domain.ServicePoint{ID: "none", Type: domain.PointConfirmed}
	same := confirmedPoint("same", 0, at(9, 0), 30)

	assert.Equal(t, []string{"early", "same", "late", "none"}, ids(SortConfirmed([]domain.ServicePoint{noTime, late, early, same})))

	low := domain.ServicePoint{ID: "low", Priority: 1}
	high := domain.ServicePoint{ID: "high", Priority: 4}
	tie := domain.ServicePoint{ID: "tie", Priority: 1}
	input := []domain.ServicePoint{low, high, tie}
	assert.Equal(t, []string{"high", "low", "tie"}, ids(SortPending(input)))
	assert.Equal(t, []string{"low", "high", "tie"}, ids(input), "input must not be reordered")
}

func TestCalculateOptimalRoute(t *testing.T) {
	repo := newMemRepo(confirmedAt("c1", at(10, 0), 40))
	avail := newManager(repo)
	opt := NewRouteOptimizer(avail, NewPlanner(DefaultAverageSpeedKmh), "")

	pending := pointAt("p", 1)
	pending.ServiceMinutes = 30
	res, err := opt.CalculateOptimalRoute(context.Background(), testDay, nil, []domain.ServicePoint{pending})

	require.NoError(t, err)
	require.Len(t, res.TimeSlotSuggestions["p"], 3)
	assert.Equal(t, at(10, 40), res.TimeSlotSuggestions["p"][1].Start)

	failing := NewRouteOptimizer(failingAvailability{err: errors.New("boom")}, NewPlanner(0), "")
	_, err = failing.CalculateOptimalRoute(context.Background(), testDay, nil, []domain.ServicePoint{pending})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func confirmedOrder(route []domain.ServicePoint) []string {
	var out []string
	for _, p := range route {
		if p.IsConfirmed() {
			out = append(out, p.ID)
		}
	}
	return out
}
