package usecases

import (
	"time"

	"github.com/google/uuid"

	"github.com/samirrijal/surgemap/internal/core/domain"
	"github.com/samirrijal/surgemap/internal/pkg/geospatial"
)

// HospitalPoint pairs an assignment with its validated location.
type HospitalPoint struct {
	Assignment domain.Assignment
	Point      domain.ResolvedPoint
}

// SceneAggregator assembles resolved points and routes into a Scene.
type SceneAggregator struct {
	padding       float64
	defaultCenter domain.GeoPoint
	defaultZoom   int
	traffic       geospatial.Traffic
	now           func() time.Time
}

// NewSceneAggregator creates a SceneAggregator. padding (degrees) is added
// around the enclosing box; defaultCenter and defaultZoom frame empty scenes.
func NewSceneAggregator(padding float64, defaultCenter domain.GeoPoint, defaultZoom int) *SceneAggregator {
	return &SceneAggregator{
		padding:       padding,
		defaultCenter: defaultCenter,
		defaultZoom:   defaultZoom,
		traffic:       geospatial.TrafficNormal,
		now:           time.Now,
	}
}

// Empty returns a scene with nothing to draw and the default viewport.
func (a *SceneAggregator) Empty() domain.Scene {
	return domain.Scene{
		ID:          uuid.NewString(),
		Hospitals:   []domain.HospitalMarker{},
		Routes:      []domain.RouteGeometry{},
		Viewport:    domain.Viewport{Center: a.defaultCenter, Zoom: a.defaultZoom},
		GeneratedAt: a.now().UTC(),
	}
}

// Assemble builds the scene. routes is aligned with hospitals: routes[i] is
// the path to hospitals[i], nil (or missing) when none was obtained. Every
// hospital gets a marker whether or not it has a route.
func (a *SceneAggregator) Assemble(incident *domain.IncidentMarker, hospitals []HospitalPoint, routes []*domain.RouteGeometry) domain.Scene {
	if incident == nil && len(hospitals) == 0 {
		return a.Empty()
	}

	var bounds *domain.Bounds
	extend := func(p domain.GeoPoint) {
		if bounds == nil {
			b := domain.BoundsAround(p)
			bounds = &b
			return
		}
		b := bounds.Extend(p)
		bounds = &b
	}

	if incident != nil {
		extend(incident.Point.Point())
	}

	markers := make([]domain.HospitalMarker, 0, len(hospitals))
	ordered := make([]domain.RouteGeometry, 0, len(hospitals))
	for i, h := range hospitals {
		extend(h.Point.Point())

		var route domain.RouteGeometry
		hasRoute := i < len(routes) && routes[i] != nil
		if hasRoute {
			route = *routes[i]
			ordered = append(ordered, route)
		}

		m := domain.HospitalMarker{
			Assignment: h.Assignment,
			Point:      h.Point,
			HasRoute:   hasRoute,
		}
		m.DistanceKm, m.TravelMin = a.estimates(incident, h, route, hasRoute)
		markers = append(markers, m)
	}

	padded := bounds.Pad(a.padding)
	return domain.Scene{
		ID:          uuid.NewString(),
		Incident:    incident,
		Hospitals:   markers,
		Routes:      ordered,
		Viewport:    domain.Viewport{Bounds: &padded, Center: padded.Center(), Zoom: a.defaultZoom},
		GeneratedAt: a.now().UTC(),
	}
}

// estimates prefers the routing summary, then the backend's figures, then a
// straight-line estimate from the incident.
func (a *SceneAggregator) estimates(incident *domain.IncidentMarker, h HospitalPoint, route domain.RouteGeometry, hasRoute bool) (distanceKm, travelMin float64) {
	if hasRoute && route.DistanceKm != nil {
		distanceKm = *route.DistanceKm
	} else if h.Assignment.DistanceKm != nil {
		distanceKm = *h.Assignment.DistanceKm
	} else if incident != nil {
		distanceKm = geospatial.HaversineKm(incident.Point.Lat, incident.Point.Lon, h.Point.Lat, h.Point.Lon)
	}

	switch {
	case hasRoute && route.DurationMin != nil:
		travelMin = *route.DurationMin
	case h.Assignment.TravelMin != nil:
		travelMin = *h.Assignment.TravelMin
	case incident != nil:
		travelMin = geospatial.TravelMinutes(distanceKm, a.traffic)
	}
	return distanceKm, travelMin
}
