package usecases

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/samirrijal/surgemap/internal/core/domain"
	"github.com/samirrijal/surgemap/internal/core/ports"
	"github.com/samirrijal/surgemap/internal/pkg/metrics"
	"github.com/samirrijal/surgemap/internal/pkg/telemetry"
)

// CoordinateResolver turns a named entity into a candidate coordinate, using
// the entity's own coordinates when present and the geocoder otherwise.
type CoordinateResolver struct {
	geocoder ports.Geocoder
	cache    ports.CacheService
	cityHint string
	cacheTTL int // seconds
}

// NewCoordinateResolver creates a CoordinateResolver. cache may be nil.
func NewCoordinateResolver(geocoder ports.Geocoder, cache ports.CacheService, cityHint string, cacheTTL time.Duration) *CoordinateResolver {
	return &CoordinateResolver{
		geocoder: geocoder,
		cache:    cache,
		cityHint: strings.TrimSpace(cityHint),
		cacheTTL: int(cacheTTL.Seconds()),
	}
}

// ResolveIncident resolves the incident location.
func (r *CoordinateResolver) ResolveIncident(ctx context.Context, inc domain.Incident) domain.Candidate {
	if p, ok := inc.Coordinates(); ok {
		return provided(p)
	}
	return r.geocode(ctx, inc.Name)
}

// ResolveAssignment resolves a hospital location.
func (r *CoordinateResolver) ResolveAssignment(ctx context.Context, a domain.Assignment) domain.Candidate {
	if p, ok := a.Coordinates(); ok {
		return provided(p)
	}
	return r.geocode(ctx, a.HospitalName)
}

// Query builds the provider query for a name, appending the regional hint
// unless the name already mentions it.
func (r *CoordinateResolver) Query(name string) string {
	q := strings.TrimSpace(name)
	if q == "" || r.cityHint == "" {
		return q
	}
	city, _, _ := strings.Cut(r.cityHint, ",")
	if strings.Contains(strings.ToLower(q), strings.ToLower(strings.TrimSpace(city))) {
		return q
	}
	return q + ", " + r.cityHint
}

// Warm geocodes names ahead of a cycle so later lookups are served from the
// cache. At most concurrency lookups run at once. It returns how many names
// resolved; failures are left for the cycle to fall back on.
func (r *CoordinateResolver) Warm(ctx context.Context, names []string, concurrency int) int {
	if concurrency <= 0 {
		concurrency = 1
	}
	sem := semaphore.NewWeighted(int64(concurrency))
	results := make([]bool, len(names))

	for i, name := range names {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		go func(i int, name string) {
			defer sem.Release(1)
			results[i] = r.geocode(ctx, name).OK
		}(i, name)
	}
	// Wait for in-flight lookups.
	_ = sem.Acquire(context.WithoutCancel(ctx), int64(concurrency))

	resolved := 0
	for _, ok := range results {
		if ok {
			resolved++
		}
	}
	return resolved
}

func provided(p domain.GeoPoint) domain.Candidate {
	metrics.GeocodeRequests.WithLabelValues("provided").Inc()
	return domain.Candidate{
		Point: domain.ResolvedPoint{Lat: p.Lat, Lon: p.Lon, Provenance: domain.ProvenanceProvided},
		OK:    true,
	}
}

func (r *CoordinateResolver) geocode(ctx context.Context, name string) domain.Candidate {
	query := r.Query(name)
	if query == "" {
		metrics.GeocodeRequests.WithLabelValues("no_result").Inc()
		return domain.Candidate{Err: fmt.Errorf("empty name: %w", domain.ErrNoResultFound)}
	}

	cacheKey := "geocode:" + strings.ToLower(query)
	if r.cache != nil {
		if data, err := r.cache.Get(ctx, cacheKey); err == nil {
			var p domain.GeoPoint
			if err := json.Unmarshal(data, &p); err == nil {
				metrics.CacheHits.WithLabelValues("geocode").Inc()
				metrics.GeocodeRequests.WithLabelValues("cached").Inc()
				return geocoded(p)
			}
			_ = r.cache.Delete(ctx, cacheKey)
		}
		metrics.CacheMisses.WithLabelValues("geocode").Inc()
	}

	ctx, span := telemetry.Tracer().Start(ctx, telemetry.SpanGeocode,
		trace.WithAttributes(attribute.String("query", query)))
	defer span.End()

	candidates, err := r.geocoder.Geocode(ctx, query)
	if err != nil {
		span.RecordError(err)
		metrics.GeocodeRequests.WithLabelValues(domain.FailureKind(err)).Inc()
		slog.DebugContext(ctx, "geocode failed", "query", query, "error", err)
		return domain.Candidate{Err: fmt.Errorf("geocode %q: %w", query, err)}
	}
	if len(candidates) == 0 {
		metrics.GeocodeRequests.WithLabelValues("no_result").Inc()
		return domain.Candidate{Err: fmt.Errorf("geocode %q: %w", query, domain.ErrNoResultFound)}
	}

	first := candidates[0]
	metrics.GeocodeRequests.WithLabelValues("geocoded").Inc()

	if r.cache != nil {
		if data, err := json.Marshal(first); err == nil {
			_ = r.cache.Set(ctx, cacheKey, data, r.cacheTTL)
		}
	}

	return geocoded(first)
}

func geocoded(p domain.GeoPoint) domain.Candidate {
	return domain.Candidate{
		Point: domain.ResolvedPoint{Lat: p.Lat, Lon: p.Lon, Provenance: domain.ProvenanceGeocoded},
		OK:    true,
	}
}
