package usecases

import (
	"context"

	"github.com/samirrijal/surgemap/internal/core/domain"
)

// Location is a single resolved point together with the reason a fallback
// was used, if any.
type Location struct {
	Point    domain.ResolvedPoint `json:"point"`
	Fallback string               `json:"fallback_reason,omitempty"`
}

// LocationService resolves one named place outside of a scene cycle. It runs
// the same resolver and validator as the cycle so operators can check what a
// name will map to.
type LocationService struct {
	resolver  *CoordinateResolver
	validator *BoundsValidator
}

// NewLocationService creates a new LocationService.
func NewLocationService(resolver *CoordinateResolver, validator *BoundsValidator) *LocationService {
	return &LocationService{resolver: resolver, validator: validator}
}

// Resolve returns the in-region point for name, using lat/lon when both are
// given.
func (s *LocationService) Resolve(ctx context.Context, name string, lat, lon *float64) Location {
	cand := s.resolver.ResolveIncident(ctx, domain.Incident{Name: name, Lat: lat, Lon: lon})
	point, reason := s.validator.Validate(cand, name)

	loc := Location{Point: point}
	if reason != nil {
		loc.Fallback = domain.FailureKind(reason)
	}
	return loc
}

// Region returns the operational bounding box.
func (s *LocationService) Region() domain.Bounds { return s.validator.Region() }
