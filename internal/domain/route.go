package domain

// Represents the leg between two consecutive ServicePoints in a route.
// Segments are derived from a route and never persisted.
type RouteSegment struct {
	From          ServicePoint
	To            ServicePoint
	DistanceKm    float64
	TravelMinutes int
}

// Represents the outcome of one optimizer run over a set of points.
//
// SuggestedRoute keeps confirmed points in time order with pending points
// spliced in at their cheapest feasible position. Pending points that could
// not be placed are listed in Unscheduled and have no entry in
// TimeSlotSuggestions. Totals always describe the final route.
type RouteOptimizationResult struct {
	SuggestedRoute      []ServicePoint
	TimeSlotSuggestions map[string][]TimeSlot
	Unscheduled         []string
	TotalDistanceKm     float64
	TotalMinutes        int
}

// Contains reports whether the route includes a point with the given id.
func (r *RouteOptimizationResult) Contains(id string) bool {
	for _, p := range r.SuggestedRoute {
		if p.ID == id {
			return true
		}
	}
	return false
}
