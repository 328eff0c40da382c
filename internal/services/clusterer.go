package services

import (
	"field-service-router/internal/domain"
	"math"
)

const earthRadiusKm = 6371.0

const (
	DefaultGroupALimitKm   = 10.0
	DefaultGroupBLimitKm   = 25.0
	DefaultClusterRadiusKm = 5.0
)

// DefaultCenter is the reference point used for logistic bands (São Paulo, Sé).
var DefaultCenter = domain.Coordinates{Lon: -46.633308, Lat: -23.550520}

type LogisticGroup string

const (
	GroupA LogisticGroup = "A"
	GroupB LogisticGroup = "B"
	GroupC LogisticGroup = "C"
)

var groupOrder = []LogisticGroup{GroupA, GroupB, GroupC}

// CalculateDistance returns the haversine great-circle distance in kilometres.
// Every distance in the system goes through this function. Malformed input
// yields NaN, which callers treat as unusable.
func CalculateDistance(p1, p2 domain.Coordinates) float64 {
	lat1 := p1.Lat * math.Pi / 180
	lat2 := p2.Lat * math.Pi / 180
	dLat := (p2.Lat - p1.Lat) * math.Pi / 180
	dLon := (p2.Lon - p1.Lon) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKm * c
}

// Cluster is one non-empty partition produced by the clusterer.
type Cluster struct {
	Group  LogisticGroup
	Points []domain.ServicePoint
}

// Clusterer partitions points into distance bands around a fixed center.
//
// The partition is intentionally coarse: bands A/B/C only, no radius based
// splitting or merging.
type Clusterer struct {
	Center        domain.Coordinates
	GroupALimitKm float64
	GroupBLimitKm float64
}

func NewClusterer(center domain.Coordinates, groupALimitKm, groupBLimitKm float64) *Clusterer {
	if groupALimitKm <= 0 {
		groupALimitKm = DefaultGroupALimitKm
	}
	if groupBLimitKm <= 0 {
		groupBLimitKm = DefaultGroupBLimitKm
	}
	return &Clusterer{Center: center, GroupALimitKm: groupALimitKm, GroupBLimitKm: groupBLimitKm}
}

func (c *Clusterer) IdentifyLogisticGroup(coords domain.Coordinates) LogisticGroup {
	return c.LogisticGroupForDistance(CalculateDistance(c.Center, coords))
}

// LogisticGroupForDistance applies the band limits. Both limits are inclusive.
func (c *Clusterer) LogisticGroupForDistance(km float64) LogisticGroup {
	switch {
	case km <= c.GroupALimitKm:
		return GroupA
	case km <= c.GroupBLimitKm:
		return GroupB
	default:
		return GroupC
	}
}

// ClusterServicePoints returns up to three non-empty groups in A, B, C order.
// maxRadiusKm is accepted for interface stability and currently unused.
func (c *Clusterer) ClusterServicePoints(points []domain.ServicePoint, maxRadiusKm float64) [][]domain.ServicePoint {
	clusters := c.Partition(points)
	out := make([][]domain.ServicePoint, 0, len(clusters))
	for _, cl := range clusters {
		out = append(out, cl.Points)
	}
	return out
}

// Partition is ClusterServicePoints with the band label kept.
// Input order is preserved inside each cluster.
func (c *Clusterer) Partition(points []domain.ServicePoint) []Cluster {
	byGroup := make(map[LogisticGroup][]domain.ServicePoint, len(groupOrder))
	for _, p := range points {
		g := c.IdentifyLogisticGroup(p.Coordinates)
		byGroup[g] = append(byGroup[g], p)
	}

	clusters := make([]Cluster, 0, len(groupOrder))
	for _, g := range groupOrder {
		if len(byGroup[g]) == 0 {
			continue
		}
		clusters = append(clusters, Cluster{Group: g, Points: byGroup[g]})
	}
	return clusters
}
