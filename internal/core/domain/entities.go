package domain

import (
	"math"
	"time"
)

// Incident is the reported emergency location.
type Incident struct {
	Name string   `json:"name"`
	Lat  *float64 `json:"lat,omitempty"`
	Lon  *float64 `json:"lon,omitempty"`
}

// Coordinates returns the incident's own coordinates if both are usable.
func (i Incident) Coordinates() (GeoPoint, bool) {
	return providedPoint(i.Lat, i.Lon)
}

// Assignment is a hospital allocated by the scoring backend. It is treated as
// immutable input.
type Assignment struct {
	HospitalID       string   `json:"hospital_id"`
	HospitalName     string   `json:"hospital_name"`
	Lat              *float64 `json:"lat,omitempty"`
	Lon              *float64 `json:"lon,omitempty"`
	AssignedCritical int      `json:"assigned_critical"`
	AssignedStable   int      `json:"assigned_stable"`
	DistanceKm       *float64 `json:"distance_km,omitempty"`
	TravelMin        *float64 `json:"travel_min,omitempty"`
}

// Coordinates returns the assignment's own coordinates if both are usable.
func (a Assignment) Coordinates() (GeoPoint, bool) {
	return providedPoint(a.Lat, a.Lon)
}

// Key identifies the hospital for hashing and logging. Falls back to the name
// when the backend did not send an ID.
func (a Assignment) Key() string {
	if a.HospitalID != "" {
		return a.HospitalID
	}
	return a.HospitalName
}

func providedPoint(lat, lon *float64) (GeoPoint, bool) {
	if lat == nil || lon == nil {
		return GeoPoint{}, false
	}
	if math.IsNaN(*lat) || math.IsNaN(*lon) || math.IsInf(*lat, 0) || math.IsInf(*lon, 0) {
		return GeoPoint{}, false
	}
	return GeoPoint{Lat: *lat, Lon: *lon}, true
}

// Plan is the upstream input envelope for one resolution cycle.
type Plan struct {
	Incident    Incident     `json:"incident"`
	Assignments []Assignment `json:"assignments"`
}

// Provenance records where a resolved coordinate came from.
type Provenance string

const (
	ProvenanceProvided Provenance = "provided"
	ProvenanceGeocoded Provenance = "geocoded"
	ProvenanceFallback Provenance = "fallback"
)

// ResolvedPoint is a coordinate tagged with its provenance.
type ResolvedPoint struct {
	Lat        float64    `json:"lat"`
	Lon        float64    `json:"lon"`
	Provenance Provenance `json:"provenance"`
}

// Point drops the provenance.
func (r ResolvedPoint) Point() GeoPoint {
	return GeoPoint{Lat: r.Lat, Lon: r.Lon}
}

// Candidate is the outcome of coordinate resolution before validation.
// OK is false when no coordinate could be produced.
type Candidate struct {
	Point ResolvedPoint
	OK    bool
	Err   error
}

// RouteGeometry is a drivable path from the incident to one hospital, in
// (lat, lon) order.
type RouteGeometry struct {
	HospitalID  string     `json:"hospital_id"`
	Path        []GeoPoint `json:"path"`
	DistanceKm  *float64   `json:"distance_km,omitempty"`
	DurationMin *float64   `json:"duration_min,omitempty"`
}

// IncidentMarker is the incident as drawn on the map.
type IncidentMarker struct {
	Name  string        `json:"name"`
	Point ResolvedPoint `json:"point"`
}

// HospitalMarker is an assignment with its resolved location and travel
// estimates.
type HospitalMarker struct {
	Assignment Assignment    `json:"assignment"`
	Point      ResolvedPoint `json:"point"`
	DistanceKm float64       `json:"distance_km"`
	TravelMin  float64       `json:"travel_min"`
	HasRoute   bool          `json:"has_route"`
}

// Viewport describes how the renderer should frame the scene.
type Viewport struct {
	Bounds *Bounds  `json:"bounds,omitempty"`
	Center GeoPoint `json:"center"`
	Zoom   int      `json:"zoom"`
}

// Scene is the renderable result of one resolution cycle.
type Scene struct {
	ID          string           `json:"id"`
	RunID       uint64           `json:"run_id"`
	Incident    *IncidentMarker  `json:"incident,omitempty"`
	Hospitals   []HospitalMarker `json:"hospitals"`
	Routes      []RouteGeometry  `json:"routes"`
	Viewport    Viewport         `json:"viewport"`
	GeneratedAt time.Time        `json:"generated_at"`
}

// Empty reports whether the scene has nothing to draw.
func (s *Scene) Empty() bool {
	return s == nil || (s.Incident == nil && len(s.Hospitals) == 0)
}

// SceneSummary is a compact listing entry for persisted scenes.
type SceneSummary struct {
	ID           string    `json:"id"`
	RunID        uint64    `json:"run_id"`
	IncidentName string    `json:"incident_name"`
	Hospitals    int       `json:"hospitals"`
	Routes       int       `json:"routes"`
	GeneratedAt  time.Time `json:"generated_at"`
}

// CycleState is a step of one resolution cycle.
type CycleState string

const (
	CycleIdle               CycleState = "idle"
	CycleResolvingIncident  CycleState = "resolving_incident"
	CycleResolvingHospitals CycleState = "resolving_hospitals"
	CycleFetchingRoutes     CycleState = "fetching_routes"
	CycleReady              CycleState = "ready"
)
