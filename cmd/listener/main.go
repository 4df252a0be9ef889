package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	natsadapter "github.com/samirrijal/surgemap/internal/adapters/nats"
	"github.com/samirrijal/surgemap/internal/adapters/postgres"
	"github.com/samirrijal/surgemap/internal/bootstrap"
	"github.com/samirrijal/surgemap/internal/core/domain"
	"github.com/samirrijal/surgemap/internal/core/ports"
	"github.com/samirrijal/surgemap/internal/core/usecases"
	"github.com/samirrijal/surgemap/internal/pkg/config"
	"github.com/samirrijal/surgemap/internal/pkg/logging"
	"github.com/samirrijal/surgemap/internal/pkg/telemetry"
)

// listener consumes plans from JetStream and runs a resolution cycle for
// each. The subscription handler receives one message at a time, so cycles
// run back to back in delivery order and the newest plan's scene is current
// once the backlog drains.
func main() {
	cfg, err := config.Load("surgemap-listener")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup(cfg.Telemetry.ServiceName, cfg.Log.Level, cfg.Log.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.TempoAddr)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	db, err := bootstrap.Database(ctx, cfg)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	cache, valkeyCache := bootstrap.Cache(cfg)
	if valkeyCache != nil {
		defer valkeyCache.Close()
	}

	// The publisher also declares the streams the subscriber binds to.
	pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		log.Fatalf("nats publisher: %v", err)
	}
	defer pub.Close()

	sub, err := natsadapter.NewSubscriber(cfg.NATS.URL)
	if err != nil {
		log.Fatalf("nats subscriber: %v", err)
	}
	defer sub.Close()

	resolver := bootstrap.Resolver(cfg, bootstrap.Geocoder(cfg), cache)
	scenes := usecases.NewSceneService(
		bootstrap.Pipeline(cfg, resolver, bootstrap.Router(cfg)),
		postgres.NewSceneRepo(db),
		pub,
	)

	if err := consumePlans(ctx, sub, scenes); err != nil {
		log.Fatalf("subscribe plans: %v", err)
	}

	slog.Info("listener started", "subject", natsadapter.SubjectPlans)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutting down", "signal", sig.String())
}

// consumePlans runs a cycle for every delivered plan, waiting for each to
// finish before returning. The returned error decides redelivery; a
// superseded cycle (only possible when scenes is shared with another
// caller) is passed through for the subscriber to ack.
func consumePlans(ctx context.Context, plans ports.EventSubscriber, scenes *usecases.SceneService) error {
	return plans.SubscribePlans(ctx, func(ctx context.Context, plan *domain.Plan) error {
		scene, err := scenes.Run(ctx, *plan)
		switch {
		case errors.Is(err, domain.ErrCycleSuperseded):
			slog.Info("plan superseded", "incident", plan.Incident.Name, "error", err)
		case err != nil:
			slog.Error("plan failed", "incident", plan.Incident.Name, "error", err)
		default:
			slog.Info("plan processed", "incident", plan.Incident.Name,
				"scene_id", scene.ID, "run_id", scene.RunID, "hospitals", len(scene.Hospitals))
		}
		return err
	})
}
