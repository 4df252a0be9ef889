package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/samirrijal/surgemap/internal/core/domain"
)

// SceneRepo implements ports.SceneRepository. The full scene is stored as
// JSONB next to a few columns used for listing.
type SceneRepo struct {
	db *DB
}

func NewSceneRepo(db *DB) *SceneRepo {
	return &SceneRepo{db: db}
}

func (r *SceneRepo) Save(ctx context.Context, scene *domain.Scene) error {
	payload, err := json.Marshal(scene)
	if err != nil {
		return fmt.Errorf("encode scene: %w", err)
	}

	incident := ""
	if scene.Incident != nil {
		incident = scene.Incident.Name
	}

	_, err = r.db.Pool.Exec(ctx, `
		INSERT INTO scenes (id, run_id, incident_name, hospitals, routes, payload, generated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`, scene.ID, int64(scene.RunID), incident, len(scene.Hospitals), len(scene.Routes), payload, scene.GeneratedAt)
	return err
}

func (r *SceneRepo) GetByID(ctx context.Context, id string) (*domain.Scene, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrNotFound
	}

	var payload []byte
	err := r.db.Pool.QueryRow(ctx, `SELECT payload FROM scenes WHERE id = $1`, id).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}

	var scene domain.Scene
	if err := json.Unmarshal(payload, &scene); err != nil {
		return nil, fmt.Errorf("decode scene %s: %w", id, err)
	}
	return &scene, nil
}

func (r *SceneRepo) List(ctx context.Context, offset, limit int) ([]domain.SceneSummary, int, error) {
	var total int
	if err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM scenes`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.Pool.Query(ctx, `
		SELECT id::text, run_id, incident_name, hospitals, routes, generated_at
		FROM scenes
		ORDER BY generated_at DESC, run_id DESC
		OFFSET $1 LIMIT $2
	`, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	summaries := []domain.SceneSummary{}
	for rows.Next() {
		var s domain.SceneSummary
		var runID int64
		if err := rows.Scan(&s.ID, &runID, &s.IncidentName, &s.Hospitals, &s.Routes, &s.GeneratedAt); err != nil {
			return nil, 0, err
		}
		s.RunID = uint64(runID)
		summaries = append(summaries, s)
	}
	return summaries, total, rows.Err()
}
