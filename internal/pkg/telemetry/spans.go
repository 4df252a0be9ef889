package telemetry

// Span names for the resolution cycle.
const (
	SpanCycle            = "scene.cycle"
	SpanResolveIncident  = "scene.resolve_incident"
	SpanResolveHospitals = "scene.resolve_hospitals"
	SpanFetchRoutes      = "scene.fetch_routes"
	SpanGeocode          = "provider.geocode"
	SpanRoute            = "provider.route"
	TracerName           = "github.com/samirrijal/surgemap"
)
