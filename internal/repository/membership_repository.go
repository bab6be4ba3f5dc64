package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// MembershipRepository reads the user ↔ center join table.
type MembershipRepository struct {
	db *sqlx.DB
}

// NewMembershipRepository creates a new repository instance.
func NewMembershipRepository(db *sqlx.DB) *MembershipRepository {
	return &MembershipRepository{db: db}
}

// UserExists reports whether a user row exists. Identifiers that are not
// UUIDs cannot match a row and never reach the database.
func (r *MembershipRepository) UserExists(ctx context.Context, userID string) (bool, error) {
	if !isUUID(userID) {
		return false, nil
	}
	const query = `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, userID); err != nil {
		return false, fmt.Errorf("check user: %w", err)
	}
	return exists, nil
}

// ListCenterIDs returns the centers the user is a member of.
func (r *MembershipRepository) ListCenterIDs(ctx context.Context, userID string) ([]string, error) {
	if !isUUID(userID) {
		return []string{}, nil
	}
	const query = `SELECT center_id FROM user_centers WHERE user_id = $1 ORDER BY center_id`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, userID); err != nil {
		return nil, fmt.Errorf("list user centers: %w", err)
	}
	return ids, nil
}

// isUUID keeps malformed identifiers away from uuid columns, where Postgres
// would reject the cast instead of matching nothing.
func isUUID(value string) bool {
	_, err := uuid.Parse(value)
	return err == nil
}
