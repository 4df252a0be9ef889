package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/samirrijal/surgemap/internal/core/domain"
	"github.com/samirrijal/surgemap/internal/core/ports"
	"github.com/samirrijal/surgemap/internal/pkg/metrics"
	"github.com/samirrijal/surgemap/internal/pkg/telemetry"
)

const persistTimeout = 5 * time.Second

// Pipeline bundles the resolution components a SceneService drives.
type Pipeline struct {
	Resolver   *CoordinateResolver
	Validator  *BoundsValidator
	Routes     *RouteFetcher
	Aggregator *SceneAggregator
}

// published is the current scene tagged with the run that produced it.
type published struct {
	runID uint64
	scene *domain.Scene
}

type cycleStatus struct {
	runID uint64
	state domain.CycleState
}

// SceneService runs resolution cycles and owns the current scene. Each call
// to Run starts a new cycle with a fresh run id; a cycle overtaken by a newer
// one has its context cancelled and its result discarded.
type SceneService struct {
	pipeline  Pipeline
	scenes    ports.SceneRepository
	publisher ports.EventPublisher

	runs    atomic.Uint64
	current atomic.Pointer[published]
	status  atomic.Pointer[cycleStatus]

	mu           sync.Mutex
	cancelActive context.CancelFunc
}

// NewSceneService creates a new SceneService. scenes and publisher may be nil.
func NewSceneService(p Pipeline, scenes ports.SceneRepository, publisher ports.EventPublisher) *SceneService {
	s := &SceneService{pipeline: p, scenes: scenes, publisher: publisher}
	s.status.Store(&cycleStatus{state: domain.CycleIdle})
	return s
}

// Current returns the published scene, or nil before the first cycle.
func (s *SceneService) Current() *domain.Scene {
	if p := s.current.Load(); p != nil {
		return p.scene
	}
	return nil
}

// State returns the most recent cycle's run id and state.
func (s *SceneService) State() (uint64, domain.CycleState) {
	st := s.status.Load()
	return st.runID, st.state
}

// Run executes one resolution cycle for plan. It always produces a scene;
// the error is non-nil only when the scene was discarded because a newer
// cycle started (domain.ErrCycleSuperseded).
func (s *SceneService) Run(ctx context.Context, plan domain.Plan) (*domain.Scene, error) {
	runID := s.runs.Add(1)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.activate(cancel)

	start := time.Now()
	defer func() { metrics.CycleDuration.Observe(time.Since(start).Seconds()) }()

	ctx, span := telemetry.Tracer().Start(ctx, telemetry.SpanCycle,
		trace.WithAttributes(
			attribute.Int64("run_id", int64(runID)),
			attribute.Int("assignments", len(plan.Assignments)),
		))
	defer span.End()

	log := slog.Default().With("run_id", runID)
	s.setState(runID, domain.CycleIdle)

	if len(plan.Assignments) == 0 {
		log.InfoContext(ctx, "empty assignment list, clearing scene")
		scene := s.pipeline.Aggregator.Empty()
		scene.RunID = runID
		s.setState(runID, domain.CycleReady)
		return s.publish(ctx, log, &scene)
	}

	s.setState(runID, domain.CycleResolvingIncident)
	incident := s.resolveIncident(ctx, log, plan.Incident)

	s.setState(runID, domain.CycleResolvingHospitals)
	hospitals := s.resolveHospitals(ctx, log, plan.Assignments)

	s.setState(runID, domain.CycleFetchingRoutes)
	routes := s.fetchRoutes(ctx, log, incident.Point, hospitals)

	scene := s.pipeline.Aggregator.Assemble(incident, hospitals, routes)
	scene.RunID = runID
	s.setState(runID, domain.CycleReady)

	log.InfoContext(ctx, "cycle complete",
		"hospitals", len(scene.Hospitals),
		"routes", len(scene.Routes),
		"elapsed", time.Since(start).String(),
	)
	return s.publish(ctx, log, &scene)
}

// activate cancels the previous cycle and records cancel as the active one.
func (s *SceneService) activate(cancel context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelActive != nil {
		s.cancelActive()
	}
	s.cancelActive = cancel
}

func (s *SceneService) setState(runID uint64, state domain.CycleState) {
	if s.runs.Load() != runID {
		return
	}
	s.status.Store(&cycleStatus{runID: runID, state: state})
}

func (s *SceneService) resolveIncident(ctx context.Context, log *slog.Logger, inc domain.Incident) *domain.IncidentMarker {
	ctx, span := telemetry.Tracer().Start(ctx, telemetry.SpanResolveIncident)
	defer span.End()

	key := inc.Name
	if key == "" {
		key = "incident"
	}
	cand := s.pipeline.Resolver.ResolveIncident(ctx, inc)
	point := s.validate(ctx, log, "incident", key, cand)
	return &domain.IncidentMarker{Name: inc.Name, Point: point}
}

func (s *SceneService) resolveHospitals(ctx context.Context, log *slog.Logger, assignments []domain.Assignment) []HospitalPoint {
	ctx, span := telemetry.Tracer().Start(ctx, telemetry.SpanResolveHospitals)
	defer span.End()

	out := make([]HospitalPoint, len(assignments))

	var g errgroup.Group
	for i, a := range assignments {
		g.Go(func() error {
			cand := s.pipeline.Resolver.ResolveAssignment(ctx, a)
			out[i] = HospitalPoint{Assignment: a, Point: s.validate(ctx, log, "hospital", a.Key(), cand)}
			return nil
		})
	}
	_ = g.Wait()

	return out
}

func (s *SceneService) validate(ctx context.Context, log *slog.Logger, entity, key string, cand domain.Candidate) domain.ResolvedPoint {
	point, reason := s.pipeline.Validator.Validate(cand, key)
	if reason != nil {
		kind := domain.FailureKind(reason)
		metrics.Fallbacks.WithLabelValues(entity, kind).Inc()
		log.WarnContext(ctx, "using fallback location",
			"entity", entity,
			"key", key,
			"reason", kind,
			"error", reason,
		)
	}
	return point
}

func (s *SceneService) fetchRoutes(ctx context.Context, log *slog.Logger, origin domain.ResolvedPoint, hospitals []HospitalPoint) []*domain.RouteGeometry {
	ctx, span := telemetry.Tracer().Start(ctx, telemetry.SpanFetchRoutes)
	defer span.End()

	targets := make([]RouteTarget, len(hospitals))
	for i, h := range hospitals {
		targets[i] = RouteTarget{HospitalID: h.Assignment.Key(), Point: h.Point}
	}

	results := s.pipeline.Routes.FetchAll(ctx, origin, targets)

	// Aligned by index so hospitals sharing an id keep their own paths.
	routes := make([]*domain.RouteGeometry, len(results))
	for i, r := range results {
		if r.Route == nil {
			log.WarnContext(ctx, "no route for hospital",
				"hospital_id", r.HospitalID,
				"reason", domain.FailureKind(r.Err),
				"error", r.Err,
			)
			continue
		}
		routes[i] = r.Route
	}
	return routes
}

// publish installs scene as the current one if its run is still the newest.
func (s *SceneService) publish(ctx context.Context, log *slog.Logger, scene *domain.Scene) (*domain.Scene, error) {
	next := &published{runID: scene.RunID, scene: scene}
	for {
		if s.runs.Load() != scene.RunID {
			return s.discard(ctx, log, scene)
		}
		cur := s.current.Load()
		if cur != nil && cur.runID >= scene.RunID {
			return s.discard(ctx, log, scene)
		}
		if s.current.CompareAndSwap(cur, next) {
			break
		}
	}

	outcome := "published"
	if scene.Empty() {
		outcome = "empty"
	}
	metrics.Cycles.WithLabelValues(outcome).Inc()

	// The cycle context may be cancelled by a newer run right after
	// publication; side effects use a detached context.
	sideCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	if s.scenes != nil && !scene.Empty() {
		if err := s.scenes.Save(sideCtx, scene); err != nil {
			log.WarnContext(ctx, "persist scene failed", "scene_id", scene.ID, "error", err)
		}
	}
	if s.publisher != nil {
		if err := s.publisher.PublishSceneReady(sideCtx, scene); err != nil {
			log.WarnContext(ctx, "publish scene failed", "scene_id", scene.ID, "error", err)
		}
	}

	return scene, nil
}

func (s *SceneService) discard(ctx context.Context, log *slog.Logger, scene *domain.Scene) (*domain.Scene, error) {
	metrics.Cycles.WithLabelValues("superseded").Inc()
	active := s.runs.Load()
	log.InfoContext(ctx, "discarding stale scene", "active_run_id", active)
	return scene, fmt.Errorf("run %d (active %d): %w", scene.RunID, active, domain.ErrCycleSuperseded)
}
