package main

import (
	"context"
	"log"
	"log/slog"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	natsadapter "github.com/samirrijal/surgemap/internal/adapters/nats"
	"github.com/samirrijal/surgemap/internal/adapters/postgres"
	"github.com/samirrijal/surgemap/internal/bootstrap"
	"github.com/samirrijal/surgemap/internal/core/ports"
	"github.com/samirrijal/surgemap/internal/core/usecases"
	"github.com/samirrijal/surgemap/internal/pkg/config"
	"github.com/samirrijal/surgemap/internal/pkg/logging"
	"github.com/samirrijal/surgemap/internal/workflows"
)

// resolver is the Temporal worker for scene workflows.
func main() {
	cfg, err := config.Load("surgemap-resolver")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup(cfg.Telemetry.ServiceName, cfg.Log.Level, cfg.Log.Format)

	ctx := context.Background()

	db, err := bootstrap.Database(ctx, cfg)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	cache, valkeyCache := bootstrap.Cache(cfg)
	if valkeyCache != nil {
		defer valkeyCache.Close()
	}

	var publisher ports.EventPublisher
	if pub, err := natsadapter.NewPublisher(cfg.NATS.URL); err != nil {
		slog.Warn("nats unavailable, scenes will not be broadcast", "error", err)
	} else {
		defer pub.Close()
		publisher = pub
	}

	resolver := bootstrap.Resolver(cfg, bootstrap.Geocoder(cfg), cache)
	scenes := usecases.NewSceneService(
		bootstrap.Pipeline(cfg, resolver, bootstrap.Router(cfg)),
		postgres.NewSceneRepo(db),
		publisher,
	)

	c, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
	})
	if err != nil {
		log.Fatalf("temporal client: %v", err)
	}
	defer c.Close()

	w := worker.New(c, cfg.Temporal.TaskQueue, worker.Options{})
	w.RegisterWorkflow(workflows.SceneWorkflow)
	w.RegisterActivity(&workflows.SceneActivities{
		Scenes:   scenes,
		Resolver: resolver,
	})

	slog.Info("resolver worker started", "task_queue", cfg.Temporal.TaskQueue)
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatalf("worker: %v", err)
	}
}
