package usecases

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/samirrijal/surgemap/internal/core/domain"
	"github.com/samirrijal/surgemap/internal/core/ports"
	"github.com/samirrijal/surgemap/internal/pkg/metrics"
)

// HistoryService reads previously published scenes.
type HistoryService struct {
	scenes ports.SceneRepository
	cache  ports.CacheService
}

// NewHistoryService creates a new HistoryService. cache may be nil.
func NewHistoryService(scenes ports.SceneRepository, cache ports.CacheService) *HistoryService {
	return &HistoryService{scenes: scenes, cache: cache}
}

// List returns scene summaries newest first and the total count.
func (s *HistoryService) List(ctx context.Context, offset, limit int) ([]domain.SceneSummary, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.scenes.List(ctx, offset, limit)
}

// GetByID returns a single persisted scene. Scenes are immutable once
// stored, so they are cached for longer than geocodes.
func (s *HistoryService) GetByID(ctx context.Context, id string) (*domain.Scene, error) {
	if id == "" {
		return nil, fmt.Errorf("scene id must not be empty")
	}

	cacheKey := "scenes:id:" + id
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, cacheKey); err == nil {
			var scene domain.Scene
			if err := json.Unmarshal(data, &scene); err == nil {
				metrics.CacheHits.WithLabelValues("scene").Inc()
				return &scene, nil
			}
		}
		metrics.CacheMisses.WithLabelValues("scene").Inc()
	}

	scene, err := s.scenes.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if data, err := json.Marshal(scene); err == nil {
			_ = s.cache.Set(ctx, cacheKey, data, 3600)
		}
	}

	return scene, nil
}
