package ports

import (
	"context"

	"github.com/samirrijal/surgemap/internal/core/domain"
)

// Geocoder resolves free text to candidate coordinates, best match first.
// An empty result with a nil error means the provider found nothing.
type Geocoder interface {
	Geocode(ctx context.Context, query string) ([]domain.GeoPoint, error)
}

// Router returns a drivable path between two points in (lat, lon) order.
// The returned geometry has no HospitalID set.
type Router interface {
	Route(ctx context.Context, origin, destination domain.GeoPoint) (*domain.RouteGeometry, error)
}
