package main

import (
	"context"
	"encoding/json"
	"log"
	"log/slog"
	"os"
	"time"

	"go.temporal.io/sdk/client"

	natsadapter "github.com/samirrijal/surgemap/internal/adapters/nats"
	"github.com/samirrijal/surgemap/internal/core/domain"
	"github.com/samirrijal/surgemap/internal/pkg/config"
	"github.com/samirrijal/surgemap/internal/pkg/logging"
	"github.com/samirrijal/surgemap/internal/workflows"
)

// submit hands a plan file to the cycle runners, either on the JetStream
// plan queue (default) or as a Temporal workflow.
//
//	submit plan.json [nats|temporal]
func main() {
	if len(os.Args) < 2 {
		log.Fatal("usage: submit <plan.json> [nats|temporal]")
	}
	via := "nats"
	if len(os.Args) > 2 {
		via = os.Args[2]
	}

	cfg, err := config.Load("surgemap-submit")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup(cfg.Telemetry.ServiceName, cfg.Log.Level, cfg.Log.Format)

	data, err := os.ReadFile(os.Args[1])
	if err != nil {
		log.Fatalf("read plan: %v", err)
	}
	var plan domain.Plan
	if err := json.Unmarshal(data, &plan); err != nil {
		log.Fatalf("parse plan: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	switch via {
	case "nats":
		pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
		if err != nil {
			log.Fatalf("nats: %v", err)
		}
		defer pub.Close()
		if err := pub.PublishPlan(ctx, &plan); err != nil {
			log.Fatalf("publish plan: %v", err)
		}
		slog.Info("plan queued", "subject", natsadapter.PlanSubject(plan.Incident.Name))

	case "temporal":
		c, err := client.Dial(client.Options{
			HostPort:  cfg.Temporal.HostPort,
			Namespace: cfg.Temporal.Namespace,
		})
		if err != nil {
			log.Fatalf("temporal client: %v", err)
		}
		defer c.Close()

		run, err := c.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
			TaskQueue: cfg.Temporal.TaskQueue,
		}, workflows.SceneWorkflow, workflows.SceneInput{Plan: plan, Warm: true})
		if err != nil {
			log.Fatalf("start workflow: %v", err)
		}

		var res workflows.CycleResult
		if err := run.Get(ctx, &res); err != nil {
			log.Fatalf("workflow %s: %v", run.GetID(), err)
		}
		slog.Info("scene workflow finished",
			"workflow_id", run.GetID(),
			"scene_id", res.SceneID,
			"run_id", res.RunID,
			"fallbacks", res.Fallbacks,
			"superseded", res.Superseded,
		)

	default:
		log.Fatalf("unknown transport %q (want nats or temporal)", via)
	}
}
