package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/trial-subjects-api/internal/models"
)

// CenterRepository provides lookups for centers.
type CenterRepository struct {
	db *sqlx.DB
}

// NewCenterRepository creates a new repository instance.
func NewCenterRepository(db *sqlx.DB) *CenterRepository {
	return &CenterRepository{db: db}
}

// FindByID returns a center by identifier.
func (r *CenterRepository) FindByID(ctx context.Context, id string) (*models.Center, error) {
	const query = `SELECT id, name FROM centers WHERE id = $1`
	var center models.Center
	if err := r.db.GetContext(ctx, &center, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find center: %w", err)
	}
	return &center, nil
}

// ListByIDs returns the centers among ids ordered by name.
func (r *CenterRepository) ListByIDs(ctx context.Context, ids []string) ([]models.Center, error) {
	if len(ids) == 0 {
		return []models.Center{}, nil
	}
	const query = `SELECT id, name FROM centers WHERE id = ANY($1) ORDER BY name ASC, id ASC`
	var centers []models.Center
	if err := r.db.SelectContext(ctx, &centers, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("list centers: %w", err)
	}
	return centers, nil
}
