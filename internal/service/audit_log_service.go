package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/trial-subjects-api/internal/dto"
	"github.com/noah-isme/trial-subjects-api/internal/models"
	appErrors "github.com/noah-isme/trial-subjects-api/pkg/errors"
	"github.com/noah-isme/trial-subjects-api/pkg/export"
)

type auditLogRepository interface {
	FindSubjectIDByNumber(ctx context.Context, number string) (string, error)
	ListBySubject(ctx context.Context, subjectID string) ([]models.AuditLog, error)
}

type auditSubjectRepository interface {
	FindByID(ctx context.Context, id string) (*models.Subject, error)
	FindByNumber(ctx context.Context, number string) (*models.Subject, error)
}

type documentRenderer interface {
	Render(data export.Dataset) ([]byte, error)
	ContentType() string
}

var auditExportHeaders = []string{"timestamp", "action", "user_id", "field", "old", "new"}

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// AuditLogConfig tunes audit history features.
type AuditLogConfig struct {
	ExportEnabled bool
}

// AuditLogService resolves subject histories by identifier or number.
type AuditLogService struct {
	logs      auditLogRepository
	subjects  auditSubjectRepository
	scopes    scopeResolver
	renderers map[dto.AuditExportFormat]documentRenderer
	cfg       AuditLogConfig
	logger    *zap.Logger
}

// NewAuditLogService constructs the service. Formats missing from renderers
// fall back to the pkg/export defaults.
func NewAuditLogService(logs auditLogRepository, subjects auditSubjectRepository, scopes scopeResolver, cfg AuditLogConfig, logger *zap.Logger, renderers map[dto.AuditExportFormat]documentRenderer) *AuditLogService {
	if logger == nil {
		logger = zap.NewNop()
	}
	all := map[dto.AuditExportFormat]documentRenderer{
		dto.AuditExportCSV:  export.NewCSVExporter(),
		dto.AuditExportPDF:  export.NewPDFExporter(),
		dto.AuditExportXLSX: export.NewXLSXExporter(),
	}
	for format, r := range renderers {
		if r != nil {
			all[format] = r
		}
	}
	return &AuditLogService{logs: logs, subjects: subjects, scopes: scopes, renderers: all, cfg: cfg, logger: logger}
}

// FindAuditLogs returns the history of the subject addressed by key, newest
// first. Deleted subjects are recovered through the numbers recorded in their
// history. An unresolvable key yields an empty slice.
func (s *AuditLogService) FindAuditLogs(ctx context.Context, key dto.AuditLookupKey, userID string) ([]models.AuditLog, error) {
	if strings.TrimSpace(key.Value) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "subject identifier or number is required")
	}

	subjectID, live, err := s.resolveSubject(ctx, key)
	if err != nil {
		return nil, err
	}
	if subjectID == "" {
		return []models.AuditLog{}, nil
	}

	entries, err := s.logs.ListBySubject(ctx, subjectID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load audit logs")
	}
	if live == nil && len(entries) == 0 {
		return []models.AuditLog{}, nil
	}

	scope, err := s.scopes.ResolveScope(ctx, userID)
	if err != nil {
		return nil, err
	}
	centerID, known := owningCenter(live, entries)
	if !known || !scope.Contains(centerID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "subject history is outside your access scope")
	}
	return entries, nil
}

// ExportAuditLogs renders the history returned by FindAuditLogs, one row per field change.
func (s *AuditLogService) ExportAuditLogs(ctx context.Context, key dto.AuditLookupKey, userID string, format dto.AuditExportFormat) (*dto.AuditExport, error) {
	if !s.cfg.ExportEnabled {
		return nil, appErrors.ErrExportDisabled
	}
	format = dto.AuditExportFormat(strings.ToLower(string(format)))
	if format == "" {
		format = dto.AuditExportCSV
	}
	renderer, ok := s.renderers[format]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv, pdf or xlsx")
	}

	entries, err := s.FindAuditLogs(ctx, key, userID)
	if err != nil {
		return nil, err
	}

	data, err := renderer.Render(auditDataset(key, entries))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render audit export")
	}

	s.logger.Info("audit history exported", zap.String("key", key.Value), zap.String("format", string(format)), zap.Int("entries", len(entries)))
	return &dto.AuditExport{
		Filename:    fmt.Sprintf("audit-%s.%s", unsafeFilenameChars.ReplaceAllString(key.Value, "_"), format),
		ContentType: renderer.ContentType(),
		Data:        data,
	}, nil
}

func (s *AuditLogService) resolveSubject(ctx context.Context, key dto.AuditLookupKey) (string, *models.Subject, error) {
	switch key.Kind {
	case dto.ByIdentifier:
		live, err := s.subjects.FindByID(ctx, key.Value)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return key.Value, nil, nil
			}
			return "", nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
		}
		return live.ID, live, nil
	case dto.ByNumber:
		live, err := s.subjects.FindByNumber(ctx, key.Value)
		if err == nil {
			return live.ID, live, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return "", nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
		}
		subjectID, err := s.logs.FindSubjectIDByNumber(ctx, key.Value)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return "", nil, nil
			}
			return "", nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to search audit logs")
		}
		return subjectID, nil, nil
	default:
		return "", nil, appErrors.Clone(appErrors.ErrValidation, "unknown lookup key")
	}
}

// owningCenter returns the live subject's center, or the most recent center
// recorded in its history. entries must be ordered newest first.
func owningCenter(live *models.Subject, entries []models.AuditLog) (string, bool) {
	if live != nil {
		return live.CenterID, true
	}
	for _, entry := range entries {
		if center, ok := entry.Diff.Center(); ok {
			return center.ID, true
		}
	}
	return "", false
}

func auditDataset(key dto.AuditLookupKey, entries []models.AuditLog) export.Dataset {
	dataset := export.Dataset{
		Title:   "Audit history " + key.Value,
		Headers: auditExportHeaders,
		Rows:    make([]map[string]string, 0, len(entries)),
	}
	for _, entry := range entries {
		base := map[string]string{
			"timestamp": entry.CreatedAt.UTC().Format(time.RFC3339),
			"action":    string(entry.Action),
			"user_id":   derefString(entry.UserID),
		}
		for _, field := range entry.Diff.Fields() {
			row := make(map[string]string, len(auditExportHeaders))
			for k, v := range base {
				row[k] = v
			}
			row["field"] = field
			row["old"], row["new"] = describeChange(entry.Diff.Changes[field])
			dataset.Rows = append(dataset.Rows, row)
		}
	}
	return dataset
}

func describeChange(change models.FieldChange) (string, string) {
	switch c := change.(type) {
	case models.ScalarChange:
		return derefString(c.Old), derefString(c.New)
	case models.RelationChange:
		return describeCenter(c.Old), describeCenter(c.New)
	default:
		return "", ""
	}
}

func describeCenter(ref *models.CenterRef) string {
	if ref == nil {
		return ""
	}
	return fmt.Sprintf("%s (%s)", ref.Name, ref.ID)
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
