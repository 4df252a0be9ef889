package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/samirrijal/surgemap/internal/core/domain"
)

// SceneInput is the input for the scene workflow.
type SceneInput struct {
	Plan domain.Plan
	// Warm geocodes every place name before the cycle starts.
	Warm bool
}

// SceneWorkflow resolves a plan into a published scene. Warming is best
// effort; the cycle itself never fails on provider errors, so only
// infrastructure failures are retried.
func SceneWorkflow(ctx workflow.Context, input SceneInput) (CycleResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting scene workflow", "assignments", len(input.Plan.Assignments))

	if input.Warm && len(input.Plan.Assignments) > 0 {
		warmCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
			StartToCloseTimeout: 30 * time.Second,
			RetryPolicy: &temporal.RetryPolicy{
				MaximumAttempts: 2,
			},
		})
		var warmed int
		if err := workflow.ExecuteActivity(warmCtx, "WarmGeocodes", input.Plan).Get(warmCtx, &warmed); err != nil {
			logger.Warn("geocode warm-up failed, continuing", "error", err)
		}
	}

	cycleCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 60 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 3,
		},
	})

	var result CycleResult
	if err := workflow.ExecuteActivity(cycleCtx, "RunCycle", input.Plan).Get(cycleCtx, &result); err != nil {
		return CycleResult{}, err
	}

	if result.Superseded {
		logger.Info("Cycle superseded by a newer plan", "runID", result.RunID)
	} else {
		logger.Info("Scene published", "sceneID", result.SceneID, "runID", result.RunID, "fallbacks", result.Fallbacks)
	}
	return result, nil
}
