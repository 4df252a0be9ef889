package usecases_test

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/samirrijal/surgemap/internal/core/domain"
	"github.com/samirrijal/surgemap/internal/core/usecases"
)

// Mumbai operational box and defaults used across the tests.
var (
	mumbai = domain.Bounds{MinLat: 18.85, MinLon: 72.77, MaxLat: 19.30, MaxLon: 72.99}
	center = domain.GeoPoint{Lat: 19.076, Lon: 72.8777}
)

func ptr(v float64) *float64 { return &v }

// --- Mock Geocoder ---

type mockGeocoder struct {
	geocodeFn func(ctx context.Context, query string) ([]domain.GeoPoint, error)
	calls     atomic.Int32

	mu      sync.Mutex
	queries []string
}

func (m *mockGeocoder) Geocode(ctx context.Context, query string) ([]domain.GeoPoint, error) {
	m.calls.Add(1)
	m.mu.Lock()
	m.queries = append(m.queries, query)
	m.mu.Unlock()
	if m.geocodeFn != nil {
		return m.geocodeFn(ctx, query)
	}
	return nil, nil
}

// geocodeTable answers from a fixed query -> point table.
func geocodeTable(table map[string]domain.GeoPoint) func(context.Context, string) ([]domain.GeoPoint, error) {
	return func(_ context.Context, query string) ([]domain.GeoPoint, error) {
		if p, ok := table[query]; ok {
			return []domain.GeoPoint{p}, nil
		}
		return nil, nil
	}
}

// --- Mock Router ---

type mockRouter struct {
	routeFn func(ctx context.Context, origin, dest domain.GeoPoint) (*domain.RouteGeometry, error)
	calls   atomic.Int32
}

func (m *mockRouter) Route(ctx context.Context, origin, dest domain.GeoPoint) (*domain.RouteGeometry, error) {
	m.calls.Add(1)
	if m.routeFn != nil {
		return m.routeFn(ctx, origin, dest)
	}
	return straightRoute(origin, dest), nil
}

func straightRoute(origin, dest domain.GeoPoint) *domain.RouteGeometry {
	mid := domain.GeoPoint{Lat: (origin.Lat + dest.Lat) / 2, Lon: (origin.Lon + dest.Lon) / 2}
	return &domain.RouteGeometry{Path: []domain.GeoPoint{origin, mid, dest}}
}

// --- In-memory CacheService ---

type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemCache() *memCache { return &memCache{data: map[string][]byte{}} }

func (c *memCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return v, nil
}

func (c *memCache) Set(_ context.Context, key string, value []byte, _ int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *memCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

// --- Mock SceneRepository ---

type mockSceneRepo struct {
	mu     sync.Mutex
	saved  []*domain.Scene
	getFn  func(ctx context.Context, id string) (*domain.Scene, error)
	listFn func(ctx context.Context, offset, limit int) ([]domain.SceneSummary, int, error)
}

func (m *mockSceneRepo) Save(_ context.Context, scene *domain.Scene) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, scene)
	return nil
}

func (m *mockSceneRepo) GetByID(ctx context.Context, id string) (*domain.Scene, error) {
	if m.getFn != nil {
		return m.getFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (m *mockSceneRepo) List(ctx context.Context, offset, limit int) ([]domain.SceneSummary, int, error) {
	if m.listFn != nil {
		return m.listFn(ctx, offset, limit)
	}
	return nil, 0, nil
}

func (m *mockSceneRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.saved)
}

// --- Mock EventPublisher ---

type mockPublisher struct {
	mu     sync.Mutex
	scenes []*domain.Scene
}

func (m *mockPublisher) PublishSceneReady(_ context.Context, scene *domain.Scene) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scenes = append(m.scenes, scene)
	return nil
}

func (m *mockPublisher) PublishPlan(context.Context, *domain.Plan) error { return nil }

func (m *mockPublisher) published() []*domain.Scene {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*domain.Scene(nil), m.scenes...)
}

// --- Pipeline helpers ---

func newPipeline(geo *mockGeocoder, router *mockRouter, routeTimeout time.Duration) usecases.Pipeline {
	return usecases.Pipeline{
		Resolver:   usecases.NewCoordinateResolver(geo, nil, "Mumbai, India", time.Hour),
		Validator:  usecases.NewBoundsValidator(mumbai, center, 0.01),
		Routes:     usecases.NewRouteFetcher(router, routeTimeout, 4, 0.01),
		Aggregator: usecases.NewSceneAggregator(0.01, center, 12),
	}
}
