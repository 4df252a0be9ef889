package ports

import (
	"context"

	"github.com/samirrijal/surgemap/internal/core/domain"
)

// EventPublisher publishes domain events to a message broker.
type EventPublisher interface {
	PublishSceneReady(ctx context.Context, scene *domain.Scene) error
	PublishPlan(ctx context.Context, plan *domain.Plan) error
}

// EventSubscriber subscribes to domain events from a message broker.
type EventSubscriber interface {
	SubscribePlans(ctx context.Context, handler func(ctx context.Context, plan *domain.Plan) error) error
}

// CacheService provides read-through caching.
type CacheService interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	Delete(ctx context.Context, key string) error
}
