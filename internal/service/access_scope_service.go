package service

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/noah-isme/trial-subjects-api/pkg/errors"
)

const scopeCachePrefix = "scope:"

// AccessScope is the set of centers a user may act upon.
type AccessScope struct {
	centers map[string]struct{}
}

// NewAccessScope builds a scope from center identifiers.
func NewAccessScope(centerIDs ...string) AccessScope {
	centers := make(map[string]struct{}, len(centerIDs))
	for _, id := range centerIDs {
		if id == "" {
			continue
		}
		centers[id] = struct{}{}
	}
	return AccessScope{centers: centers}
}

// Contains reports whether centerID is inside the scope.
func (s AccessScope) Contains(centerID string) bool {
	_, ok := s.centers[centerID]
	return ok
}

// Empty reports whether the user has no center memberships.
func (s AccessScope) Empty() bool { return len(s.centers) == 0 }

// IDs returns the center identifiers in sorted order.
func (s AccessScope) IDs() []string {
	ids := make([]string, 0, len(s.centers))
	for id := range s.centers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

type membershipRepository interface {
	UserExists(ctx context.Context, userID string) (bool, error)
	ListCenterIDs(ctx context.Context, userID string) ([]string, error)
}

// AccessScopeService resolves user memberships into access scopes.
type AccessScopeService struct {
	repo   membershipRepository
	cache  *CacheService
	ttl    time.Duration
	logger *zap.Logger
}

// NewAccessScopeService constructs the resolver. cache may be nil.
func NewAccessScopeService(repo membershipRepository, cache *CacheService, ttl time.Duration, logger *zap.Logger) *AccessScopeService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccessScopeService{repo: repo, cache: cache, ttl: ttl, logger: logger}
}

// ResolveScope returns the centers userID is a member of. A user without
// memberships gets an empty scope; an unknown user is NotFound.
func (s *AccessScopeService) ResolveScope(ctx context.Context, userID string) (AccessScope, error) {
	if userID == "" {
		return AccessScope{}, appErrors.Clone(appErrors.ErrUnauthorized, "missing user identity")
	}

	exists, err := s.repo.UserExists(ctx, userID)
	if err != nil {
		return AccessScope{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	if !exists {
		return AccessScope{}, appErrors.Clone(appErrors.ErrNotFound, "user not found")
	}

	// Only memberships are cached; identity is checked on every call.
	var cached []string
	if hit, _ := s.cache.Get(ctx, scopeCacheKey(userID), &cached); hit {
		return NewAccessScope(cached...), nil
	}

	ids, err := s.repo.ListCenterIDs(ctx, userID)
	if err != nil {
		return AccessScope{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve access scope")
	}
	scope := NewAccessScope(ids...)

	_ = s.cache.Set(ctx, scopeCacheKey(userID), scope.IDs(), s.ttl)
	return scope, nil
}

// Invalidate drops the cached scope of userID.
func (s *AccessScopeService) Invalidate(ctx context.Context, userID string) error {
	return s.cache.Delete(ctx, scopeCacheKey(userID))
}

func scopeCacheKey(userID string) string {
	return scopeCachePrefix + userID
}
