package usecases

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/samirrijal/surgemap/internal/core/domain"
	"github.com/samirrijal/surgemap/internal/core/ports"
	"github.com/samirrijal/surgemap/internal/pkg/metrics"
	"github.com/samirrijal/surgemap/internal/pkg/telemetry"
)

// RouteTarget is a hospital to route to.
type RouteTarget struct {
	HospitalID string
	Point      domain.ResolvedPoint
}

// RouteResult is the outcome of one route fetch. Route is nil when no path
// could be obtained; Err says why.
type RouteResult struct {
	HospitalID string
	Route      *domain.RouteGeometry
	Err        error
}

// RouteFetcher retrieves drivable paths from the routing provider.
type RouteFetcher struct {
	router        ports.Router
	timeout       time.Duration
	maxConcurrent int
	tolerance     float64
}

// NewRouteFetcher creates a RouteFetcher. timeout bounds every provider
// call, maxConcurrent caps outstanding calls, and tolerance (degrees) is the
// allowed gap between a path's endpoints and the requested points.
func NewRouteFetcher(router ports.Router, timeout time.Duration, maxConcurrent int, tolerance float64) *RouteFetcher {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &RouteFetcher{router: router, timeout: timeout, maxConcurrent: maxConcurrent, tolerance: tolerance}
}

// Fetch retrieves the route from origin to one hospital.
func (f *RouteFetcher) Fetch(ctx context.Context, origin domain.ResolvedPoint, target RouteTarget) (*domain.RouteGeometry, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	ctx, span := telemetry.Tracer().Start(ctx, telemetry.SpanRoute,
		trace.WithAttributes(attribute.String("hospital_id", target.HospitalID)))
	defer span.End()

	start := time.Now()
	route, err := f.router.Route(ctx, origin.Point(), target.Point.Point())
	metrics.RouteFetchDuration.Observe(time.Since(start).Seconds())

	if err == nil {
		err = f.check(route, origin, target.Point)
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			err = fmt.Errorf("%w: %w", domain.ErrProviderUnavailable, err)
		}
		span.RecordError(err)
		metrics.RouteFetches.WithLabelValues(domain.FailureKind(err)).Inc()
		return nil, fmt.Errorf("route to %s: %w", target.HospitalID, err)
	}

	metrics.RouteFetches.WithLabelValues("ok").Inc()

	out := &domain.RouteGeometry{
		HospitalID:  target.HospitalID,
		Path:        append([]domain.GeoPoint(nil), route.Path...),
		DistanceKm:  route.DistanceKm,
		DurationMin: route.DurationMin,
	}
	return out, nil
}

// FetchAll fetches routes to every target concurrently, never more than
// maxConcurrent at a time. Results are aligned with targets.
func (f *RouteFetcher) FetchAll(ctx context.Context, origin domain.ResolvedPoint, targets []RouteTarget) []RouteResult {
	results := make([]RouteResult, len(targets))

	var g errgroup.Group
	g.SetLimit(f.maxConcurrent)
	for i, t := range targets {
		g.Go(func() error {
			route, err := f.Fetch(ctx, origin, t)
			results[i] = RouteResult{HospitalID: t.HospitalID, Route: route, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (f *RouteFetcher) check(route *domain.RouteGeometry, origin, dest domain.ResolvedPoint) error {
	if route == nil || len(route.Path) == 0 {
		return domain.ErrNoResultFound
	}
	first, last := route.Path[0], route.Path[len(route.Path)-1]
	if !near(first, origin.Point(), f.tolerance) {
		return fmt.Errorf("%w: path starts at %.5f,%.5f", domain.ErrMalformedResponse, first.Lat, first.Lon)
	}
	if !near(last, dest.Point(), f.tolerance) {
		return fmt.Errorf("%w: path ends at %.5f,%.5f", domain.ErrMalformedResponse, last.Lat, last.Lon)
	}
	return nil
}

func near(a, b domain.GeoPoint, tolerance float64) bool {
	return math.Abs(a.Lat-b.Lat) <= tolerance && math.Abs(a.Lon-b.Lon) <= tolerance
}
