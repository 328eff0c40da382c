package services

import (
	"context"
	"errors"
	"field-service-router/internal/domain"
	"field-service-router/internal/ports"
	"fmt"
	"math"
	"sort"
	"time"
)

const DefaultAverageSpeedKmh = 30.0

var ErrInvalidDistance = errors.New("invalid distance")

// Insertion is the cheapest feasible position found for a pending point.
type Insertion struct {
	Index                int
	AdditionalDistanceKm float64
	PossibleTimeSlots    []domain.TimeSlot
}

// Planner holds the pure insertion heuristic. It performs no I/O and keeps no
// state between calls, so identical inputs always give identical routes.
type Planner struct {
	AverageSpeedKmh float64
}

func NewPlanner(averageSpeedKmh float64) Planner {
	if averageSpeedKmh <= 0 {
		averageSpeedKmh = DefaultAverageSpeedKmh
	}
	return Planner{AverageSpeedKmh: averageSpeedKmh}
}

// EstimateTravelTime converts a distance to whole minutes at the average speed,
// rounding up. Every travel time in the system is derived here.
func (p Planner) EstimateTravelTime(distanceKm float64) (int, error) {
	if math.IsNaN(distanceKm) || math.IsInf(distanceKm, 0) || distanceKm < 0 {
		return 0, fmt.Errorf("estimate travel time: distance=%v: %w", distanceKm, ErrInvalidDistance)
	}
	speed := p.AverageSpeedKmh
	if speed <= 0 {
		speed = DefaultAverageSpeedKmh
	}
	return int(math.Ceil(distanceKm / speed * 60)), nil
}

func (p Planner) travelBetween(from, to domain.ServicePoint) (time.Duration, error) {
	minutes, err := p.EstimateTravelTime(CalculateDistance(from.Coordinates, to.Coordinates))
	if err != nil {
		return 0, fmt.Errorf("travel %s -> %s: %w", from.ID, to.ID, err)
	}
	return time.Duration(minutes) * time.Minute, nil
}

// PlanRoute runs cheapest feasible insertion over in-memory inputs.
//
// Confirmed points form the backbone in time order and are never reordered.
// Pending points are inserted by descending priority; points with no feasible
// position go to Unscheduled. Totals are computed over the final route.
func (p Planner) PlanRoute(
	day time.Time,
	confirmed []domain.ServicePoint,
	pending []domain.ServicePoint,
	slots []domain.TimeSlot,
) *domain.RouteOptimizationResult {
	route := SortConfirmed(confirmed)
	suggestions := make(map[string][]domain.TimeSlot)
	unscheduled := []string{}

	for _, point := range SortPending(pending) {
		ins, ok := p.FindBestInsertion(point, route, slots, day)
		if !ok {
			unscheduled = append(unscheduled, point.ID)
			continue
		}

		route = append(route, domain.ServicePoint{})
		copy(route[ins.Index+1:], route[ins.Index:])
		route[ins.Index] = point

		suggestions[point.ID] = ins.PossibleTimeSlots
	}

	distance, minutes := p.RouteTotals(route)

	return &domain.RouteOptimizationResult{
		SuggestedRoute:      route,
		TimeSlotSuggestions: suggestions,
		Unscheduled:         unscheduled,
		TotalDistanceKm:     distance,
		TotalMinutes:        minutes,
	}
}

// FindBestInsertion tries every index 0..len(route) and keeps the lowest
// marginal distance among indices with at least one viable slot. Ties keep the
// lower index. Non-finite marginal distances are never chosen.
func (p Planner) FindBestInsertion(
	point domain.ServicePoint,
	route []domain.ServicePoint,
	slots []domain.TimeSlot,
	day time.Time,
) (Insertion, bool) {
	best := Insertion{Index: -1}
	bestDistance := math.Inf(1)

	for i := 0; i <= len(route); i++ {
		extra := MarginalDistance(point, route, i)
		if math.IsNaN(extra) || math.IsInf(extra, 0) {
			continue
		}
		if !(extra < bestDistance) {
			continue
		}

		viable := p.FindViableTimeSlots(point, route, i, slots, day)
		if len(viable) == 0 {
			continue
		}

		best = Insertion{Index: i, AdditionalDistanceKm: extra, PossibleTimeSlots: viable}
		bestDistance = extra
	}

	return best, best.Index >= 0
}

// MarginalDistance is the extra distance of inserting point at index.
func MarginalDistance(point domain.ServicePoint, route []domain.ServicePoint, index int) float64 {
	switch {
	case len(route) == 0:
		return 0
	case index == 0:
		return CalculateDistance(point.Coordinates, route[0].Coordinates)
	case index >= len(route):
		return CalculateDistance(route[len(route)-1].Coordinates, point.Coordinates)
	default:
		prev, next := route[index-1], route[index]
		return CalculateDistance(prev.Coordinates, point.Coordinates) +
			CalculateDistance(point.Coordinates, next.Coordinates) -
			CalculateDistance(prev.Coordinates, next.Coordinates)
	}
}

// FindViableTimeSlots returns the slots that can host point at index.
//
// A slot must be at least as long as the service. A scheduled predecessor
// pushes the earliest start to its end plus travel; a scheduled successor pulls
// the latest finish to its start minus travel. Viable slots are returned
// trimmed to that feasible sub-interval. Any travel computation error makes the
// index infeasible.
func (p Planner) FindViableTimeSlots(
	point domain.ServicePoint,
	route []domain.ServicePoint,
	index int,
	slots []domain.TimeSlot,
	day time.Time,
) []domain.TimeSlot {
	service := point.ServiceDuration()

	var earliest, latest time.Time
	hasEarliest, hasLatest := false, false

	if index > 0 && index-1 < len(route) {
		prev := route[index-1]
		if _, prevEnd, ok := prev.OccupiedInterval(); ok {
			travel, err := p.travelBetween(prev, point)
			if err != nil {
				return nil
			}
			earliest, hasEarliest = prevEnd.Add(travel), true
		}
	}

	if index >= 0 && index < len(route) {
		next := route[index]
		if next.ScheduledAt != nil {
			travel, err := p.travelBetween(point, next)
			if err != nil {
				return nil
			}
			latest, hasLatest = next.ScheduledAt.Add(-travel), true
		}
	}

	viable := []domain.TimeSlot{}
	for _, s := range slots {
		if !s.Valid() || s.Duration() < service || !sameDay(s.Start, day) {
			continue
		}

		start, end := s.Start, s.End
		if hasEarliest && earliest.After(start) {
			start = earliest
		}
		if hasLatest && latest.Before(end) {
			end = latest
		}
		if end.Sub(start) < service {
			continue
		}

		trimmed := s
		trimmed.Start, trimmed.End = start, end
		viable = append(viable, trimmed)
	}
	return viable
}

// Segments derives the legs of a route. Legs whose travel time cannot be
// computed carry zero minutes.
func (p Planner) Segments(route []domain.ServicePoint) []domain.RouteSegment {
	if len(route) < 2 {
		return []domain.RouteSegment{}
	}
	segs := make([]domain.RouteSegment, 0, len(route)-1)
	for i := 1; i < len(route); i++ {
		d := CalculateDistance(route[i-1].Coordinates, route[i].Coordinates)
		minutes, _ := p.EstimateTravelTime(d)
		segs = append(segs, domain.RouteSegment{From: route[i-1], To: route[i], DistanceKm: d, TravelMinutes: minutes})
	}
	return segs
}

// RouteTotals sums consecutive distances, and service plus travel minutes.
func (p Planner) RouteTotals(route []domain.ServicePoint) (float64, int) {
	distance := 0.0
	minutes := 0
	for _, pt := range route {
		minutes += pt.ServiceMinutes
	}
	for _, s := range p.Segments(route) {
		if !math.IsNaN(s.DistanceKm) {
			distance += s.DistanceKm
		}
		minutes += s.TravelMinutes
	}
	return distance, minutes
}

// SortConfirmed returns confirmed points ascending by scheduled time. Points
// without a time go last; equal times keep input order.
func SortConfirmed(points []domain.ServicePoint) []domain.ServicePoint {
	out := append([]domain.ServicePoint(nil), points...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].ScheduledAt, out[j].ScheduledAt
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.Before(*b)
		}
	})
	return out
}

// SortPending returns pending points by descending priority, stable.
func SortPending(points []domain.ServicePoint) []domain.ServicePoint {
	out := append([]domain.ServicePoint(nil), points...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority > out[j].Priority
	})
	return out
}

func sameDay(t, day time.Time) bool {
	t = t.In(day.Location())
	y1, m1, d1 := t.Date()
	y2, m2, d2 := day.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

// RouteOptimizer binds the planner to the day's free slots.
type RouteOptimizer struct {
	availability ports.AvailabilityProvider
	planner      Planner
	technicianID string
}

func NewRouteOptimizer(availability ports.AvailabilityProvider, planner Planner, technicianID string) *RouteOptimizer {
	return &RouteOptimizer{availability: availability, planner: planner, technicianID: technicianID}
}

func (o *RouteOptimizer) Planner() Planner { return o.planner }

// CalculateOptimalRoute fetches the day's free slots and plans the route.
func (o *RouteOptimizer) CalculateOptimalRoute(
	ctx context.Context,
	day time.Time,
	confirmed []domain.ServicePoint,
	pending []domain.ServicePoint,
) (*domain.RouteOptimizationResult, error) {
	slots, err := o.availability.GetAvailableTimeSlots(ctx, day, o.technicianID)
	if err != nil {
		return nil, fmt.Errorf("calculate optimal route: %w", err)
	}
	return o.planner.PlanRoute(day, confirmed, pending, slots), nil
}
