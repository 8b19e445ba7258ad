// Package exercise serves the exercise directory and live search procedures.
package exercise

import (
	"context"
	"database/sql"
	"fmt"

	"exbuddy/internal/models"

	"github.com/lib/pq"
)

const listDirectoryQuery = `
	SELECT e.id, e.name, COALESCE(e.media, ''),
	       COALESCE(array_agg(s.id ORDER BY s.created_at) FILTER (WHERE s.id IS NOT NULL), '{}')
	FROM exercises e
	LEFT JOIN exercise_sets s ON s.exercise_id = e.id
	GROUP BY e.id, e.name, e.media
	ORDER BY e.name`

// Repository reads the canonical directory from Postgres.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

var _ models.ExerciseRepository = (*Repository)(nil)

func (r *Repository) ListDirectory(ctx context.Context) ([]models.Exercise, error) {
	rows, err := r.db.QueryContext(ctx, listDirectoryQuery)
	if err != nil {
		return nil, fmt.Errorf("list exercises: %w", err)
	}
	defer rows.Close()

	out := []models.Exercise{}
	for rows.Next() {
		var ex models.Exercise
		var sets pq.StringArray
		if err := rows.Scan(&ex.ID, &ex.Name, &ex.Media, &sets); err != nil {
			return nil, fmt.Errorf("scan exercise: %w", err)
		}
		ex.SetIDs = []string(sets)
		if ex.SetIDs == nil {
			ex.SetIDs = []string{}
		}
		out = append(out, ex)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate exercises: %w", err)
	}
	return out, nil
}
