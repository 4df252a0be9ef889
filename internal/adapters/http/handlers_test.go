package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	handler "github.com/samirrijal/surgemap/internal/adapters/http"
	"github.com/samirrijal/surgemap/internal/core/domain"
	"github.com/samirrijal/surgemap/internal/core/usecases"
)

var (
	mumbai = domain.Bounds{MinLat: 18.85, MinLon: 72.77, MaxLat: 19.30, MaxLon: 72.99}
	center = domain.GeoPoint{Lat: 19.076, Lon: 72.8777}

	places = map[string]domain.GeoPoint{
		"Bandra West":       {Lat: 19.0596, Lon: 72.8295},
		"Lilavati Hospital": {Lat: 19.0510, Lon: 72.8286},
		"Hinduja Hospital":  {Lat: 19.0330, Lon: 72.8397},
	}
)

// ---- Mock providers and repositories ----

type mockGeocoder struct{}

func (mockGeocoder) Geocode(_ context.Context, query string) ([]domain.GeoPoint, error) {
	name := strings.TrimSuffix(query, ", Mumbai, India")
	if p, ok := places[name]; ok {
		return []domain.GeoPoint{p}, nil
	}
	return nil, nil
}

type mockRouter struct{}

func (mockRouter) Route(_ context.Context, o, d domain.GeoPoint) (*domain.RouteGeometry, error) {
	return &domain.RouteGeometry{Path: []domain.GeoPoint{o, d}}, nil
}

type mockSceneRepo struct {
	mu     sync.Mutex
	scenes []domain.Scene
}

func (m *mockSceneRepo) Save(_ context.Context, s *domain.Scene) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scenes = append(m.scenes, *s)
	return nil
}

func (m *mockSceneRepo) GetByID(_ context.Context, id string) (*domain.Scene, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.scenes {
		if m.scenes[i].ID == id {
			s := m.scenes[i]
			return &s, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockSceneRepo) List(_ context.Context, offset, limit int) ([]domain.SceneSummary, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.SceneSummary{}
	for i := len(m.scenes) - 1 - offset; i >= 0 && len(out) < limit; i-- {
		s := m.scenes[i]
		out = append(out, domain.SceneSummary{ID: s.ID, RunID: s.RunID, Hospitals: len(s.Hospitals), Routes: len(s.Routes), GeneratedAt: s.GeneratedAt})
	}
	return out, len(m.scenes), nil
}

// ---- Test helpers ----

func setupApp(deps *handler.Dependencies) *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	handler.SetupRoutes(app, deps)
	return app
}

func makeDeps(opts ...func(*handler.Dependencies)) *handler.Dependencies {
	resolver := usecases.NewCoordinateResolver(mockGeocoder{}, nil, "Mumbai, India", time.Hour)
	validator := usecases.NewBoundsValidator(mumbai, center, 0.01)
	pipeline := usecases.Pipeline{
		Resolver:   resolver,
		Validator:  validator,
		Routes:     usecases.NewRouteFetcher(mockRouter{}, time.Second, 4, 0.01),
		Aggregator: usecases.NewSceneAggregator(0.01, center, 12),
	}
	d := &handler.Dependencies{
		Scenes:    usecases.NewSceneService(pipeline, nil, nil),
		Locations: usecases.NewLocationService(resolver, validator),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// withHistory backs both the cycle and the history endpoints with repo.
func withHistory(repo *mockSceneRepo) func(*handler.Dependencies) {
	return func(d *handler.Dependencies) {
		resolver := usecases.NewCoordinateResolver(mockGeocoder{}, nil, "Mumbai, India", time.Hour)
		pipeline := usecases.Pipeline{
			Resolver:   resolver,
			Validator:  usecases.NewBoundsValidator(mumbai, center, 0.01),
			Routes:     usecases.NewRouteFetcher(mockRouter{}, time.Second, 4, 0.01),
			Aggregator: usecases.NewSceneAggregator(0.01, center, 12),
		}
		d.Scenes = usecases.NewSceneService(pipeline, repo, nil)
		d.History = usecases.NewHistoryService(repo, nil)
	}
}

const bandraPlan = `{
  "incident": {"name": "Bandra West"},
  "assignments": [
    {"hospital_id": "h1", "hospital_name": "Lilavati Hospital", "assigned_critical": 3, "assigned_stable": 5},
    {"hospital_id": "h2", "hospital_name": "Hinduja Hospital", "assigned_critical": 2, "assigned_stable": 4}
  ]
}`

func doPost(t *testing.T, app *fiber.App, path, body string) (int, []byte, string) {
	t.Helper()
	req := httptest.NewRequest("POST", path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	return resp.StatusCode, readBody(t, resp.Body), resp.Header.Get("X-Run-ID")
}

func doGet(t *testing.T, app *fiber.App, path string) (int, []byte) {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest("GET", path, nil), -1)
	if err != nil {
		t.Fatal(err)
	}
	return resp.StatusCode, readBody(t, resp.Body)
}

func readBody(t *testing.T, body io.Reader) []byte {
	t.Helper()
	b, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return b
}

func errorCode(t *testing.T, body []byte) string {
	t.Helper()
	var apiErr handler.APIError
	if err := json.Unmarshal(body, &apiErr); err != nil {
		t.Fatalf("decode error body %q: %v", body, err)
	}
	return apiErr.Code
}

// ---- Scene cycle tests ----

func TestRunScene_Bandra(t *testing.T) {
	app := setupApp(makeDeps())

	status, body, runID := doPost(t, app, "/v1/scenes", bandraPlan)
	if status != 200 {
		t.Fatalf("expected 200, got %d: %s", status, body)
	}
	if runID != "1" {
		t.Errorf("expected X-Run-ID 1, got %q", runID)
	}

	var scene domain.Scene
	if err := json.Unmarshal(body, &scene); err != nil {
		t.Fatal(err)
	}
	if scene.Incident == nil || scene.Incident.Point.Provenance != domain.ProvenanceGeocoded {
		t.Fatalf("expected geocoded incident, got %+v", scene.Incident)
	}
	if len(scene.Hospitals) != 2 {
		t.Errorf("expected 2 hospitals, got %d", len(scene.Hospitals))
	}
	if len(scene.Routes) != 2 {
		t.Errorf("expected 2 routes, got %d", len(scene.Routes))
	}
	if scene.Viewport.Bounds == nil {
		t.Error("expected viewport bounds")
	}
}

func TestRunScene_InvalidBody(t *testing.T) {
	app := setupApp(makeDeps())

	status, body, _ := doPost(t, app, "/v1/scenes", "{not json")
	if status != 400 {
		t.Fatalf("expected 400, got %d", status)
	}
	if code := errorCode(t, body); code != "bad_request" {
		t.Errorf("expected bad_request, got %s", code)
	}
}

func TestRunScene_Validation(t *testing.T) {
	cases := map[string]string{
		"lat without lon":  `{"incident":{"name":"x","lat":19.0},"assignments":[]}`,
		"unnamed hospital": `{"incident":{"name":"x"},"assignments":[{"assigned_critical":1}]}`,
		"name too long":    `{"incident":{"name":"` + strings.Repeat("a", 201) + `"},"assignments":[]}`,
	}
	for name, plan := range cases {
		t.Run(name, func(t *testing.T) {
			app := setupApp(makeDeps())
			status, _, _ := doPost(t, app, "/v1/scenes", plan)
			if status != 400 {
				t.Errorf("expected 400, got %d", status)
			}
		})
	}
}

func TestRunScene_EmptyAssignments(t *testing.T) {
	app := setupApp(makeDeps())

	status, body, _ := doPost(t, app, "/v1/scenes", `{"incident":{"name":"Bandra West"},"assignments":[]}`)
	if status != 200 {
		t.Fatalf("expected 200, got %d", status)
	}
	var scene domain.Scene
	json.Unmarshal(body, &scene)
	if !scene.Empty() {
		t.Errorf("expected empty scene, got %+v", scene)
	}
	if scene.Viewport.Center != center || scene.Viewport.Zoom != 12 {
		t.Errorf("expected default viewport, got %+v", scene.Viewport)
	}
}

func TestCurrentScene(t *testing.T) {
	app := setupApp(makeDeps())

	if status, _ := doGet(t, app, "/v1/scenes/current"); status != 404 {
		t.Fatalf("expected 404 before any cycle, got %d", status)
	}

	doPost(t, app, "/v1/scenes", bandraPlan)

	resp, err := app.Test(httptest.NewRequest("GET", "/v1/scenes/current", nil), -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("X-Cycle-State"); got != string(domain.CycleReady) {
		t.Errorf("expected cycle state ready, got %q", got)
	}
	if got := resp.Header.Get("Cache-Control"); got != "no-cache" {
		t.Errorf("expected no-cache, got %q", got)
	}

	etag := resp.Header.Get("ETag")
	if etag == "" {
		t.Fatal("expected ETag header")
	}
	req := httptest.NewRequest("GET", "/v1/scenes/current", nil)
	req.Header.Set("If-None-Match", `"other", `+etag)
	resp, _ = app.Test(req, -1)
	if resp.StatusCode != 304 {
		t.Errorf("expected 304 for matching ETag, got %d", resp.StatusCode)
	}
}

func TestGetScene_CurrentFromMemory(t *testing.T) {
	app := setupApp(makeDeps())

	_, body, _ := doPost(t, app, "/v1/scenes", bandraPlan)
	var scene domain.Scene
	json.Unmarshal(body, &scene)

	status, body := doGet(t, app, "/v1/scenes/"+scene.ID)
	if status != 200 {
		t.Fatalf("expected 200, got %d", status)
	}
	var got domain.Scene
	json.Unmarshal(body, &got)
	if got.ID != scene.ID {
		t.Errorf("expected scene %s, got %s", scene.ID, got.ID)
	}

	if status, _ := doGet(t, app, "/v1/scenes/unknown"); status != 404 {
		t.Errorf("expected 404 without history, got %d", status)
	}
}

func TestScenes_History(t *testing.T) {
	repo := &mockSceneRepo{}
	app := setupApp(makeDeps(withHistory(repo)))

	_, first, _ := doPost(t, app, "/v1/scenes", bandraPlan)
	doPost(t, app, "/v1/scenes", bandraPlan)

	if n := len(repo.scenes); n != 2 {
		t.Fatalf("expected 2 persisted scenes, got %d", n)
	}

	resp, err := app.Test(httptest.NewRequest("GET", "/v1/scenes?limit=1", nil), -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if link := resp.Header.Get("Link"); !strings.Contains(link, `rel="next"`) {
		t.Errorf("expected next link, got %q", link)
	}

	var page struct {
		Data       []domain.SceneSummary `json:"data"`
		Pagination handler.Pagination    `json:"pagination"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		t.Fatal(err)
	}
	if page.Pagination.Total != 2 || len(page.Data) != 1 {
		t.Fatalf("expected 1 of 2 summaries, got %d of %d", len(page.Data), page.Pagination.Total)
	}
	if page.Data[0].RunID != 2 {
		t.Errorf("expected newest run first, got run %d", page.Data[0].RunID)
	}

	// The first scene is no longer current and must come from history.
	var old domain.Scene
	json.Unmarshal(first, &old)
	status, _ := doGet(t, app, "/v1/scenes/"+old.ID)
	if status != 200 {
		t.Errorf("expected 200 for persisted scene, got %d", status)
	}
	if status, _ := doGet(t, app, "/v1/scenes/missing"); status != 404 {
		t.Errorf("expected 404, got %d", status)
	}
}

func TestListScenes_Unconfigured(t *testing.T) {
	app := setupApp(makeDeps())

	status, body := doGet(t, app, "/v1/scenes")
	if status != 503 {
		t.Fatalf("expected 503, got %d", status)
	}
	if code := errorCode(t, body); code != "unavailable" {
		t.Errorf("expected unavailable, got %s", code)
	}
}

// ---- Resolve tests ----

type resolveResponse struct {
	Name     string            `json:"name"`
	Location usecases.Location `json:"location"`
	Region   domain.Bounds     `json:"region"`
}

func TestResolve(t *testing.T) {
	app := setupApp(makeDeps())

	t.Run("geocoded", func(t *testing.T) {
		status, body := doGet(t, app, "/v1/resolve?name=Hinduja+Hospital")
		if status != 200 {
			t.Fatalf("expected 200, got %d", status)
		}
		var r resolveResponse
		json.Unmarshal(body, &r)
		if r.Location.Point.Provenance != domain.ProvenanceGeocoded {
			t.Errorf("expected geocoded, got %s", r.Location.Point.Provenance)
		}
		if r.Region != mumbai {
			t.Errorf("expected region %+v, got %+v", mumbai, r.Region)
		}
	})

	t.Run("unknown name falls back inside region", func(t *testing.T) {
		status, body := doGet(t, app, "/v1/resolve?name=Nowhere")
		if status != 200 {
			t.Fatalf("expected 200, got %d", status)
		}
		var r resolveResponse
		json.Unmarshal(body, &r)
		if r.Location.Point.Provenance != domain.ProvenanceFallback {
			t.Errorf("expected fallback, got %s", r.Location.Point.Provenance)
		}
		if r.Location.Fallback != "no_result" {
			t.Errorf("expected no_result reason, got %q", r.Location.Fallback)
		}
		if !mumbai.Contains(r.Location.Point.Point()) {
			t.Errorf("fallback %+v outside region", r.Location.Point)
		}
	})

	t.Run("provided coordinates", func(t *testing.T) {
		status, body := doGet(t, app, "/v1/resolve?lat=19.05&lon=72.83")
		if status != 200 {
			t.Fatalf("expected 200, got %d", status)
		}
		var r resolveResponse
		json.Unmarshal(body, &r)
		if r.Location.Point.Provenance != domain.ProvenanceProvided {
			t.Errorf("expected provided, got %s", r.Location.Point.Provenance)
		}
	})

	for _, q := range []string{"", "?lat=19.05", "?name=x&lat=abc&lon=72.8"} {
		if status, _ := doGet(t, app, "/v1/resolve"+q); status != 400 {
			t.Errorf("query %q: expected 400, got %d", q, status)
		}
	}
}

// ---- Health / GraphQL ----

func TestHealth(t *testing.T) {
	app := setupApp(makeDeps())

	status, body := doGet(t, app, "/v1/health")
	if status != 200 {
		t.Fatalf("expected 200, got %d", status)
	}
	var h struct {
		Status string `json:"status"`
		Cycle  struct {
			RunID uint64 `json:"run_id"`
			State string `json:"state"`
		} `json:"cycle"`
	}
	json.Unmarshal(body, &h)
	if h.Status != "healthy" || h.Cycle.State != string(domain.CycleIdle) {
		t.Errorf("unexpected health payload: %s", body)
	}
}

func TestReady_NoDatabase(t *testing.T) {
	app := setupApp(makeDeps())

	if status, _ := doGet(t, app, "/v1/ready"); status != 503 {
		t.Errorf("expected 503 without database, got %d", status)
	}
}

func TestGraphQL(t *testing.T) {
	app := setupApp(makeDeps())
	doPost(t, app, "/v1/scenes", bandraPlan)

	status, body, _ := doPost(t, app, "/graphql", `{"query":"{ scene { run_id hospitals { assignment { hospital_id } has_route } } }"}`)
	if status != 200 {
		t.Fatalf("expected 200, got %d", status)
	}

	var result struct {
		Data struct {
			Scene struct {
				RunID     int `json:"run_id"`
				Hospitals []struct {
					HasRoute bool `json:"has_route"`
				} `json:"hospitals"`
			} `json:"scene"`
		} `json:"data"`
		Errors []interface{} `json:"errors"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatal(err)
	}
	if len(result.Errors) > 0 {
		t.Fatalf("unexpected errors: %v", result.Errors)
	}
	if result.Data.Scene.RunID != 1 || len(result.Data.Scene.Hospitals) != 2 {
		t.Errorf("unexpected scene: %s", body)
	}

	if status, _, _ := doPost(t, app, "/graphql", `{"query":""}`); status != 400 {
		t.Errorf("expected 400 for empty query, got %d", status)
	}
}

func TestSecurityHeaders(t *testing.T) {
	app := setupApp(makeDeps())

	resp, _ := app.Test(httptest.NewRequest("GET", "/v1/health", nil), -1)
	if resp.Header.Get("X-Content-Type-Options") != "nosniff" {
		t.Error("missing X-Content-Type-Options")
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID")
	}
}
