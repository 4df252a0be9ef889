package ports

import (
	"context"

	"github.com/samirrijal/surgemap/internal/core/domain"
)

// SceneRepository persists published scenes.
type SceneRepository interface {
	Save(ctx context.Context, scene *domain.Scene) error
	GetByID(ctx context.Context, id string) (*domain.Scene, error)
	// List returns summaries newest first, along with the total count.
	List(ctx context.Context, offset, limit int) ([]domain.SceneSummary, int, error)
}
