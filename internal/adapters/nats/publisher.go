package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/surgemap/internal/core/domain"
)

// Subjects used on the bus.
const (
	SubjectSceneReady = "surge.scene.ready"
	SubjectPlans      = "surge.plans.>"
	plansPrefix       = "surge.plans."
)

// Publisher implements ports.EventPublisher using NATS JetStream.
type Publisher struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// NewPublisher connects to NATS and enables JetStream.
func NewPublisher(url string) (*Publisher, error) {
	conn, err := RawConn(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	// Ensure streams exist
	streams := []nats.StreamConfig{
		{
			Name:      "SURGE_PLANS",
			Subjects:  []string{SubjectPlans},
			Retention: nats.WorkQueuePolicy,
			MaxAge:    1 * time.Hour,
			Storage:   nats.FileStorage,
		},
		{
			Name:      "SURGE_SCENES",
			Subjects:  []string{"surge.scene.>"},
			Retention: nats.InterestPolicy,
			MaxAge:    24 * time.Hour,
			Storage:   nats.FileStorage,
		},
	}

	for _, cfg := range streams {
		if _, err := js.AddStream(&cfg); err != nil {
			// Stream may already exist, try update
			if _, err := js.UpdateStream(&cfg); err != nil {
				return nil, fmt.Errorf("ensure stream %s: %w", cfg.Name, err)
			}
		}
	}

	return &Publisher{conn: conn, js: js}, nil
}

// PublishSceneReady announces a freshly published scene. WebSocket relays
// pick it up from the same subject.
func (p *Publisher) PublishSceneReady(ctx context.Context, scene *domain.Scene) error {
	data, err := json.Marshal(scene)
	if err != nil {
		return err
	}
	_, err = p.js.Publish(SubjectSceneReady, data, nats.Context(ctx))
	return err
}

// PublishPlan enqueues a plan for the listener.
func (p *Publisher) PublishPlan(ctx context.Context, plan *domain.Plan) error {
	data, err := json.Marshal(plan)
	if err != nil {
		return err
	}
	_, err = p.js.Publish(PlanSubject(plan.Incident.Name), data, nats.Context(ctx))
	return err
}

// PlanSubject returns the subject a plan for the named incident goes to.
func PlanSubject(incident string) string {
	token := strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\n', '\r':
			return '_'
		}
		return r
	}, strings.ToLower(strings.TrimSpace(incident)))
	if token == "" {
		token = "unnamed"
	}
	return plansPrefix + token
}

// Close drains and closes the connection.
func (p *Publisher) Close() {
	_ = p.conn.Drain()
}

// RawConn creates a plain NATS connection for subscribing (e.g. WebSocket relay).
func RawConn(url string) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.Name("surgemap"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
}
