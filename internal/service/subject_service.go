package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/trial-subjects-api/internal/dto"
	"github.com/noah-isme/trial-subjects-api/internal/models"
	"github.com/noah-isme/trial-subjects-api/internal/repository"
	appErrors "github.com/noah-isme/trial-subjects-api/pkg/errors"
)

type subjectRepository interface {
	ListByCenters(ctx context.Context, centerIDs []string) ([]models.Subject, error)
	FindByID(ctx context.Context, id string) (*models.Subject, error)
	ExistsByNumber(ctx context.Context, number string, excludeID string) (bool, error)
	CreateWithAudit(ctx context.Context, subject *models.Subject, entry *models.AuditLog) error
	UpdateWithAudit(ctx context.Context, subject *models.Subject, entry *models.AuditLog) error
	DeleteWithAudit(ctx context.Context, id string, entry *models.AuditLog) error
}

type centerFinder interface {
	FindByID(ctx context.Context, id string) (*models.Center, error)
}

type scopeResolver interface {
	ResolveScope(ctx context.Context, userID string) (AccessScope, error)
}

// SubjectService handles subject workflows scoped by the caller's centers.
type SubjectService struct {
	repo      subjectRepository
	centers   centerFinder
	scopes    scopeResolver
	validator *validator.Validate
	metrics   *MetricsService
	logger    *zap.Logger
}

// NewSubjectService creates a new subject service.
func NewSubjectService(repo subjectRepository, centers centerFinder, scopes scopeResolver, validate *validator.Validate, metrics *MetricsService, logger *zap.Logger) *SubjectService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	registerSubjectValidations(validate)
	return &SubjectService{repo: repo, centers: centers, scopes: scopes, validator: validate, metrics: metrics, logger: logger}
}

// List returns the subjects of every center in the caller's scope ordered by number.
func (s *SubjectService) List(ctx context.Context, userID string) ([]models.Subject, error) {
	scope, err := s.scopes.ResolveScope(ctx, userID)
	if err != nil {
		return nil, err
	}
	if scope.Empty() {
		return []models.Subject{}, nil
	}

	subjects, err := s.repo.ListByCenters(ctx, scope.IDs())
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list subjects")
	}
	return subjects, nil
}

// Get returns a subject with its center joined.
func (s *SubjectService) Get(ctx context.Context, id, userID string) (*models.Subject, error) {
	subject, _, err := s.loadScoped(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	return subject, nil
}

// Create registers a new subject and appends its CREATE entry.
func (s *SubjectService) Create(ctx context.Context, req dto.CreateSubjectRequest, userID string) (*models.Subject, error) {
	req.Number = strings.TrimSpace(req.Number)
	req.Name = strings.TrimSpace(req.Name)
	req.CenterID = strings.TrimSpace(req.CenterID)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid subject payload")
	}
	birthDate, err := models.ParseDate(req.BirthDate)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid birth date")
	}

	scope, err := s.scopes.ResolveScope(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !scope.Contains(req.CenterID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "center is outside your access scope")
	}
	center, err := s.findCenter(ctx, req.CenterID)
	if err != nil {
		return nil, err
	}
	if err := s.ensureNumberAvailable(ctx, req.Number, ""); err != nil {
		return nil, err
	}

	subject := &models.Subject{
		ID:        uuid.NewString(),
		Number:    req.Number,
		Name:      req.Name,
		BirthDate: birthDate,
		CenterID:  center.ID,
		Center:    center,
	}
	entry := &models.AuditLog{
		UserID: &userID,
		Action: models.AuditActionCreate,
		Diff:   creationDiff(ctx, *subject, s.resolveCenter),
	}

	if err := s.repo.CreateWithAudit(ctx, subject, entry); err != nil {
		if errors.Is(err, repository.ErrDuplicateSubjectNumber) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "subject number already exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create subject")
	}
	s.metrics.RecordAuditEntry(entry.Action)

	s.logger.Info("subject created", zap.String("subject_id", subject.ID), zap.String("center_id", subject.CenterID), zap.String("user_id", userID))
	return subject, nil
}

// Update applies the fields present in req. When nothing changes no audit entry is written.
func (s *SubjectService) Update(ctx context.Context, id string, req dto.UpdateSubjectRequest, userID string) (*models.Subject, error) {
	if nulls := req.NullFields(); len(nulls) > 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("fields cannot be null: %s", strings.Join(nulls, ", ")))
	}
	patch := req.Patch()
	trimPtr(patch.Number)
	trimPtr(patch.Name)
	trimPtr(patch.CenterID)
	if err := s.validator.Struct(patch); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid subject payload")
	}

	current, scope, err := s.loadScoped(ctx, id, userID)
	if err != nil {
		return nil, err
	}

	updated := *current
	if patch.Number != nil {
		updated.Number = *patch.Number
	}
	if patch.Name != nil {
		updated.Name = *patch.Name
	}
	if patch.BirthDate != nil {
		birthDate, err := models.ParseDate(*patch.BirthDate)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid birth date")
		}
		updated.BirthDate = birthDate
	}
	if patch.CenterID != nil && *patch.CenterID != current.CenterID {
		if !scope.Contains(*patch.CenterID) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "center is outside your access scope")
		}
		center, err := s.findCenter(ctx, *patch.CenterID)
		if err != nil {
			return nil, err
		}
		updated.CenterID = center.ID
		updated.Center = center
	}

	diff := DiffSubjects(ctx, *current, updated, s.resolveCenter)
	if diff.Empty() {
		return current, nil
	}
	if _, changed := diff.Changes[models.FieldNumber]; changed {
		if err := s.ensureNumberAvailable(ctx, updated.Number, current.ID); err != nil {
			return nil, err
		}
	}

	entry := &models.AuditLog{UserID: &userID, Action: models.AuditActionUpdate, Diff: diff}
	if err := s.repo.UpdateWithAudit(ctx, &updated, entry); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicateSubjectNumber):
			return nil, appErrors.Clone(appErrors.ErrConflict, "subject number already exists")
		case errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update subject")
	}
	s.metrics.RecordAuditEntry(entry.Action)

	s.logger.Info("subject updated", zap.String("subject_id", updated.ID), zap.Strings("fields", diff.Fields()), zap.String("user_id", userID))
	return &updated, nil
}

// Delete removes a subject. Its history stays reachable through the audit log.
func (s *SubjectService) Delete(ctx context.Context, id, userID string) error {
	current, _, err := s.loadScoped(ctx, id, userID)
	if err != nil {
		return err
	}

	entry := &models.AuditLog{
		UserID: &userID,
		Action: models.AuditActionDelete,
		Diff:   deletionDiff(ctx, *current, s.resolveCenter),
	}
	if err := s.repo.DeleteWithAudit(ctx, current.ID, entry); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete subject")
	}
	s.metrics.RecordAuditEntry(entry.Action)

	s.logger.Info("subject deleted", zap.String("subject_id", current.ID), zap.String("user_id", userID))
	return nil
}

// loadScoped fetches the subject first so a missing subject is NotFound
// regardless of scope, then checks the caller's access.
func (s *SubjectService) loadScoped(ctx context.Context, id, userID string) (*models.Subject, AccessScope, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, AccessScope{}, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
	}
	subject, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, AccessScope{}, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return nil, AccessScope{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}

	scope, err := s.scopes.ResolveScope(ctx, userID)
	if err != nil {
		return nil, AccessScope{}, err
	}
	if !scope.Contains(subject.CenterID) {
		return nil, AccessScope{}, appErrors.Clone(appErrors.ErrForbidden, "subject is outside your access scope")
	}
	return subject, scope, nil
}

func (s *SubjectService) findCenter(ctx context.Context, id string) (*models.Center, error) {
	center, err := s.centers.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "center not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load center")
	}
	return center, nil
}

func (s *SubjectService) ensureNumberAvailable(ctx context.Context, number, excludeID string) error {
	exists, err := s.repo.ExistsByNumber(ctx, number, excludeID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check subject number")
	}
	if exists {
		return appErrors.Clone(appErrors.ErrConflict, "subject number already exists")
	}
	return nil
}

func (s *SubjectService) resolveCenter(ctx context.Context, id string) models.CenterRef {
	center, err := s.centers.FindByID(ctx, id)
	if err != nil || center == nil {
		s.logger.Warn("center lookup failed while building diff", zap.String("center_id", id), zap.Error(err))
		return models.CenterRef{ID: id, Name: UnknownCenterName}
	}
	return models.CenterRef{ID: center.ID, Name: center.Name}
}

func trimPtr(v *string) {
	if v != nil {
		*v = strings.TrimSpace(*v)
	}
}
