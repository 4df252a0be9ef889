package workflows

import (
	"context"
	"errors"
	"log/slog"

	"github.com/samirrijal/surgemap/internal/core/domain"
	"github.com/samirrijal/surgemap/internal/core/usecases"
)

// warmConcurrency bounds parallel geocoder lookups while warming.
const warmConcurrency = 4

// CycleResult is what a scene workflow reports back to its caller.
type CycleResult struct {
	SceneID    string
	RunID      uint64
	Hospitals  int
	Routes     int
	Fallbacks  int
	Superseded bool
}

// SceneActivities holds the activity implementations for the scene workflow.
type SceneActivities struct {
	Scenes   *usecases.SceneService
	Resolver *usecases.CoordinateResolver
}

// WarmGeocodes pre-resolves the plan's place names into the geocode cache and
// returns how many resolved.
func (a *SceneActivities) WarmGeocodes(ctx context.Context, plan domain.Plan) (int, error) {
	names := PlanNames(plan)
	if len(names) == 0 {
		return 0, nil
	}
	n := a.Resolver.Warm(ctx, names, warmConcurrency)
	slog.InfoContext(ctx, "geocodes warmed", "names", len(names), "resolved", n)
	return n, nil
}

// RunCycle runs one resolution cycle. A superseded cycle is a normal outcome
// and is reported in the result rather than as an error, so Temporal does not
// retry it.
func (a *SceneActivities) RunCycle(ctx context.Context, plan domain.Plan) (CycleResult, error) {
	scene, err := a.Scenes.Run(ctx, plan)
	if err != nil && !errors.Is(err, domain.ErrCycleSuperseded) {
		return CycleResult{}, err
	}

	res := CycleResult{
		SceneID:    scene.ID,
		RunID:      scene.RunID,
		Hospitals:  len(scene.Hospitals),
		Routes:     len(scene.Routes),
		Superseded: err != nil,
	}
	if scene.Incident != nil && scene.Incident.Point.Provenance == domain.ProvenanceFallback {
		res.Fallbacks++
	}
	for _, h := range scene.Hospitals {
		if h.Point.Provenance == domain.ProvenanceFallback {
			res.Fallbacks++
		}
	}
	return res, nil
}

// PlanNames lists the names in plan that would need geocoding, skipping
// entities that carry their own coordinates.
func PlanNames(plan domain.Plan) []string {
	var names []string
	if _, ok := plan.Incident.Coordinates(); !ok && plan.Incident.Name != "" {
		names = append(names, plan.Incident.Name)
	}
	for _, a := range plan.Assignments {
		if _, ok := a.Coordinates(); !ok && a.HospitalName != "" {
			names = append(names, a.HospitalName)
		}
	}
	return names
}
