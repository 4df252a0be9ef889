package usecases_test

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/samirrijal/surgemap/internal/core/domain"
	"github.com/samirrijal/surgemap/internal/core/usecases"
)

var hinduja = domain.GeoPoint{Lat: 19.0333, Lon: 72.8383}

func bandraPlan() domain.Plan {
	return domain.Plan{
		Incident: domain.Incident{Name: "Bandra"},
		Assignments: []domain.Assignment{
			{HospitalID: "H1", HospitalName: "KEM Hospital", Lat: ptr(kem.Lat), Lon: ptr(kem.Lon), AssignedCritical: 3, AssignedStable: 5},
			{HospitalID: "H2", HospitalName: "Hinduja Hospital", AssignedCritical: 2, AssignedStable: 4},
		},
	}
}

func bandraGeocoder() *mockGeocoder {
	return &mockGeocoder{geocodeFn: geocodeTable(map[string]domain.GeoPoint{
		"Bandra, Mumbai, India":           bandra.Point(),
		"Hinduja Hospital, Mumbai, India": hinduja,
	})}
}

func TestSceneService_BandraScenario(t *testing.T) {
	geo := bandraGeocoder()
	router := &mockRouter{}
	repo := &mockSceneRepo{}
	pub := &mockPublisher{}
	svc := usecases.NewSceneService(newPipeline(geo, router, time.Second), repo, pub)

	scene, err := svc.Run(context.Background(), bandraPlan())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if scene.Incident == nil || scene.Incident.Point.Provenance != domain.ProvenanceGeocoded {
		t.Fatalf("expected geocoded incident, got %+v", scene.Incident)
	}
	if len(scene.Hospitals) != 2 {
		t.Fatalf("expected 2 hospitals, got %d", len(scene.Hospitals))
	}
	if scene.Hospitals[0].Point.Provenance != domain.ProvenanceProvided {
		t.Errorf("H1: expected provided, got %s", scene.Hospitals[0].Point.Provenance)
	}
	if scene.Hospitals[1].Point.Provenance != domain.ProvenanceGeocoded {
		t.Errorf("H2: expected geocoded, got %s", scene.Hospitals[1].Point.Provenance)
	}
	if len(scene.Routes) != 2 {
		t.Errorf("expected 2 routes, got %d", len(scene.Routes))
	}
	if n := router.calls.Load(); n > 2 {
		t.Errorf("expected at most 2 router calls, got %d", n)
	}
	if geo.calls.Load() != 2 {
		t.Errorf("expected 2 geocoder calls, got %d", geo.calls.Load())
	}

	b := scene.Viewport.Bounds
	if b == nil {
		t.Fatal("expected bounds")
	}
	for _, p := range []domain.GeoPoint{bandra.Point(), kem.Point(), hinduja} {
		if !b.Contains(p) {
			t.Errorf("bounds %+v miss %+v", *b, p)
		}
	}

	if svc.Current() != scene {
		t.Error("scene was not published")
	}
	if run, state := svc.State(); run != 1 || state != domain.CycleReady {
		t.Errorf("expected run 1 ready, got %d %s", run, state)
	}
	if repo.count() != 1 {
		t.Errorf("expected scene persisted once, got %d", repo.count())
	}
	if len(pub.published()) != 1 {
		t.Errorf("expected one scene event, got %d", len(pub.published()))
	}
}

func TestSceneService_SharedHospitalIDRoutesEndAtOwnMarker(t *testing.T) {
	svc := usecases.NewSceneService(newPipeline(bandraGeocoder(), &mockRouter{}, time.Second), nil, nil)

	plan := domain.Plan{
		Incident: domain.Incident{Name: "Bandra"},
		Assignments: []domain.Assignment{
			{HospitalID: "H1", HospitalName: "A", Lat: ptr(19.00), Lon: ptr(72.84)},
			{HospitalID: "H1", HospitalName: "B", Lat: ptr(19.20), Lon: ptr(72.95)},
		},
	}
	scene, err := svc.Run(context.Background(), plan)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(scene.Routes) != 2 {
		t.Fatalf("expected 2 routes, got %d", len(scene.Routes))
	}
	for i, h := range scene.Hospitals {
		path := scene.Routes[i].Path
		if end := path[len(path)-1]; end != h.Point.Point() {
			t.Errorf("%s: route ends at %+v, marker at %+v", h.Assignment.HospitalName, end, h.Point.Point())
		}
	}
}

func TestSceneService_RouteTimeoutKeepsMarker(t *testing.T) {
	geo := bandraGeocoder()
	router := &mockRouter{routeFn: func(ctx context.Context, o, d domain.GeoPoint) (*domain.RouteGeometry, error) {
		if d == hinduja {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return straightRoute(o, d), nil
	}}
	svc := usecases.NewSceneService(newPipeline(geo, router, 30*time.Millisecond), nil, nil)

	scene, err := svc.Run(context.Background(), bandraPlan())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(scene.Hospitals) != 2 {
		t.Fatalf("expected 2 markers, got %d", len(scene.Hospitals))
	}
	if len(scene.Routes) != 1 || scene.Routes[0].HospitalID != "H1" {
		t.Fatalf("expected only the H1 route, got %+v", scene.Routes)
	}
	h2 := scene.Hospitals[1]
	if h2.HasRoute {
		t.Error("H2 should have no route")
	}
	if h2.TravelMin <= 0 {
		t.Error("H2 should still carry a travel estimate")
	}
}

func TestSceneService_FallbacksStayInRegion(t *testing.T) {
	geo := &mockGeocoder{geocodeFn: func(_ context.Context, q string) ([]domain.GeoPoint, error) {
		switch q {
		case "Ruby Hall Clinic, Mumbai, India":
			return []domain.GeoPoint{{Lat: 18.5362, Lon: 73.8767}}, nil // Pune
		case "Bandra, Mumbai, India":
			return nil, domain.ErrProviderUnavailable
		}
		return nil, nil
	}}
	svc := usecases.NewSceneService(newPipeline(geo, &mockRouter{}, time.Second), nil, nil)

	scene, err := svc.Run(context.Background(), domain.Plan{
		Incident: domain.Incident{Name: "Bandra"},
		Assignments: []domain.Assignment{
			{HospitalID: "H1", HospitalName: "Ruby Hall Clinic"},
			{HospitalID: "H2", HospitalName: "Nowhere General"},
			{HospitalID: "H3", HospitalName: "Offshore", Lat: ptr(10.0), Lon: ptr(60.0)},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if scene.Incident.Point.Provenance != domain.ProvenanceFallback {
		t.Errorf("incident: expected fallback, got %s", scene.Incident.Point.Provenance)
	}
	for _, h := range scene.Hospitals {
		if h.Point.Provenance != domain.ProvenanceFallback {
			t.Errorf("%s: expected fallback, got %s", h.Assignment.HospitalID, h.Point.Provenance)
		}
		if !mumbai.Contains(h.Point.Point()) {
			t.Errorf("%s: %+v outside region", h.Assignment.HospitalID, h.Point)
		}
	}
	if scene.Hospitals[0].Point == scene.Hospitals[1].Point {
		t.Error("fallbacks for different hospitals should not coincide")
	}
}

func TestSceneService_EmptyAssignments(t *testing.T) {
	geo := &mockGeocoder{}
	router := &mockRouter{}
	repo := &mockSceneRepo{}
	svc := usecases.NewSceneService(newPipeline(geo, router, time.Second), repo, nil)

	scene, err := svc.Run(context.Background(), domain.Plan{Incident: domain.Incident{Name: "Bandra"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !scene.Empty() {
		t.Errorf("expected empty scene, got %+v", scene)
	}
	if scene.Viewport.Bounds != nil || scene.Viewport.Center != center || scene.Viewport.Zoom != 12 {
		t.Errorf("expected default viewport, got %+v", scene.Viewport)
	}
	if geo.calls.Load() != 0 || router.calls.Load() != 0 {
		t.Errorf("providers called for empty plan: geocode=%d route=%d", geo.calls.Load(), router.calls.Load())
	}
	if repo.count() != 0 {
		t.Error("empty scenes should not be persisted")
	}
	if svc.Current() != scene {
		t.Error("empty scene should replace the current one")
	}
}

func TestSceneService_SupersededCycleIsDiscarded(t *testing.T) {
	first := domain.GeoPoint{Lat: 19.10, Lon: 72.85}
	second := domain.GeoPoint{Lat: 19.00, Lon: 72.83}

	entered := make(chan struct{})
	var once sync.Once
	router := &mockRouter{routeFn: func(ctx context.Context, o, d domain.GeoPoint) (*domain.RouteGeometry, error) {
		if o == first {
			once.Do(func() { close(entered) })
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return straightRoute(o, d), nil
	}}
	pub := &mockPublisher{}
	svc := usecases.NewSceneService(newPipeline(&mockGeocoder{}, router, 5*time.Second), nil, pub)

	hospital := domain.Assignment{HospitalID: "H1", HospitalName: "KEM Hospital", Lat: ptr(kem.Lat), Lon: ptr(kem.Lon)}

	type result struct {
		scene *domain.Scene
		err   error
	}
	done := make(chan result, 1)
	go func() {
		s, err := svc.Run(context.Background(), domain.Plan{
			Incident:    domain.Incident{Name: "first", Lat: ptr(first.Lat), Lon: ptr(first.Lon)},
			Assignments: []domain.Assignment{hospital},
		})
		done <- result{s, err}
	}()

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("first cycle never reached the router")
	}

	latest, err := svc.Run(context.Background(), domain.Plan{
		Incident:    domain.Incident{Name: "second", Lat: ptr(second.Lat), Lon: ptr(second.Lon)},
		Assignments: []domain.Assignment{hospital},
	})
	if err != nil {
		t.Fatalf("second cycle: unexpected error: %v", err)
	}

	var stale result
	select {
	case stale = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("first cycle was not cancelled")
	}

	if !errors.Is(stale.err, domain.ErrCycleSuperseded) {
		t.Errorf("expected superseded, got %v", stale.err)
	}
	if svc.Current() != latest {
		t.Error("current scene should be the second cycle's")
	}
	if svc.Current().Incident.Name != "second" {
		t.Errorf("expected second incident, got %q", svc.Current().Incident.Name)
	}
	if run, _ := svc.State(); run != 2 {
		t.Errorf("expected run 2, got %d", run)
	}
	if n := len(pub.published()); n != 1 {
		t.Errorf("expected only the second scene to be published, got %d", n)
	}
}

func TestSceneService_Deterministic(t *testing.T) {
	plan := domain.Plan{
		Incident: domain.Incident{Name: "Bandra"},
		Assignments: []domain.Assignment{
			{HospitalID: "H1", HospitalName: "KEM Hospital", Lat: ptr(kem.Lat), Lon: ptr(kem.Lon)},
			{HospitalID: "H2", HospitalName: "Nowhere General"},
		},
	}

	run := func() *domain.Scene {
		svc := usecases.NewSceneService(newPipeline(bandraGeocoder(), &mockRouter{}, time.Second), nil, nil)
		s, err := svc.Run(context.Background(), plan)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		return s
	}

	a, b := run(), run()
	if !reflect.DeepEqual(a.Hospitals, b.Hospitals) {
		t.Error("hospital markers differ between identical runs")
	}
	if !reflect.DeepEqual(a.Routes, b.Routes) {
		t.Error("routes differ between identical runs")
	}
	if !reflect.DeepEqual(a.Viewport, b.Viewport) {
		t.Error("viewports differ between identical runs")
	}
}
