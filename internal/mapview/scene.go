package mapview

import "field-service-router/internal/domain"

const (
	ColorUrgent         = "red"
	ColorConfirmed      = "green"
	ColorPreAppointment = "yellow"
)

// Marker is one stop drawn on the map. Number is the 1-based position in the
// suggested route, or 0 when the point was not routed.
type Marker struct {
	ID          string     `json:"id"`
	Number      int        `json:"number"`
	Label       string     `json:"label"`
	Address     string     `json:"address"`
	Type        string     `json:"type"`
	ServiceType string     `json:"service_type"`
	Color       string     `json:"color"`
	Coordinates [2]float64 `json:"coordinates"`
}

// Scene is everything a map widget needs to draw one cluster.
// Polyline points are [lon, lat] in route order.
type Scene struct {
	Markers  []Marker     `json:"markers"`
	Polyline [][2]float64 `json:"polyline"`
}

// MarkerColor picks the display colour of a point. Urgency wins over type.
func MarkerColor(p domain.ServicePoint) string {
	switch {
	case p.Urgent:
		return ColorUrgent
	case p.IsConfirmed():
		return ColorConfirmed
	default:
		return ColorPreAppointment
	}
}

// BuildScene lays out numbered markers and the connecting polyline.
// Routed points come first in route order, followed by the confirmed and
// pending points the route left out.
func BuildScene(confirmed, pending, route []domain.ServicePoint) Scene {
	scene := Scene{
		Markers:  make([]Marker, 0, len(confirmed)+len(pending)),
		Polyline: make([][2]float64, 0, len(route)),
	}

	seen := make(map[string]struct{}, len(route))
	for i, p := range route {
		seen[p.ID] = struct{}{}
		scene.Markers = append(scene.Markers, newMarker(p, i+1))
		scene.Polyline = append(scene.Polyline, [2]float64{p.Coordinates.Lon, p.Coordinates.Lat})
	}

	for _, group := range [][]domain.ServicePoint{confirmed, pending} {
		for _, p := range group {
			if _, ok := seen[p.ID]; ok {
				continue
			}
			seen[p.ID] = struct{}{}
			scene.Markers = append(scene.Markers, newMarker(p, 0))
		}
	}

	return scene
}

func newMarker(p domain.ServicePoint, number int) Marker {
	return Marker{
		ID:          p.ID,
		Number:      number,
		Label:       p.ClientName,
		Address:     p.Address,
		Type:        string(p.Type),
		ServiceType: string(p.ServiceType),
		Color:       MarkerColor(p),
		Coordinates: [2]float64{p.Coordinates.Lon, p.Coordinates.Lat},
	}
}
