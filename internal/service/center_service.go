package service

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/noah-isme/trial-subjects-api/internal/models"
	appErrors "github.com/noah-isme/trial-subjects-api/pkg/errors"
)

type centerRepository interface {
	FindByID(ctx context.Context, id string) (*models.Center, error)
	ListByIDs(ctx context.Context, ids []string) ([]models.Center, error)
}

// CenterService exposes read access to the centers in a caller's scope.
type CenterService struct {
	repo   centerRepository
	scopes scopeResolver
	logger *zap.Logger
}

// NewCenterService constructs a CenterService.
func NewCenterService(repo centerRepository, scopes scopeResolver, logger *zap.Logger) *CenterService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CenterService{repo: repo, scopes: scopes, logger: logger}
}

// List returns the centers in the caller's scope ordered by name.
func (s *CenterService) List(ctx context.Context, userID string) ([]models.Center, error) {
	scope, err := s.scopes.ResolveScope(ctx, userID)
	if err != nil {
		return nil, err
	}
	if scope.Empty() {
		return []models.Center{}, nil
	}
	centers, err := s.repo.ListByIDs(ctx, scope.IDs())
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list centers")
	}
	return centers, nil
}

// Get returns a center the caller is a member of.
func (s *CenterService) Get(ctx context.Context, centerID, userID string) (*models.Center, error) {
	center, err := s.repo.FindByID(ctx, centerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "center not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load center")
	}
	scope, err := s.scopes.ResolveScope(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !scope.Contains(center.ID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "center is outside your access scope")
	}
	return center, nil
}
