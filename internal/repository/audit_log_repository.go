package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/trial-subjects-api/internal/models"
)

const auditLogColumns = `id, subject_id, user_id, action, diff, created_at`

// AuditLogRepository reads the append-only audit trail. Writes happen inside
// SubjectRepository transactions.
type AuditLogRepository struct {
	db *sqlx.DB
}

// NewAuditLogRepository constructs the repository.
func NewAuditLogRepository(db *sqlx.DB) *AuditLogRepository {
	return &AuditLogRepository{db: db}
}

// FindSubjectIDByNumber recovers the subject id from the earliest entry that
// recorded number, either as a flat value or as the new side of a change.
func (r *AuditLogRepository) FindSubjectIDByNumber(ctx context.Context, number string) (string, error) {
	const query = `SELECT COALESCE(subject_id::text, diff->>'subjectId') AS subject_id
FROM audit_logs
WHERE (diff->>'number' = $1 OR diff->'number'->>'new' = $1)
	AND COALESCE(subject_id::text, diff->>'subjectId') IS NOT NULL
ORDER BY created_at ASC
LIMIT 1`

	var subjectID string
	if err := r.db.GetContext(ctx, &subjectID, query, number); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", err
		}
		return "", fmt.Errorf("find audit subject by number: %w", err)
	}
	return subjectID, nil
}

// ListBySubject returns entries referencing the subject directly or through the
// subjectId embedded in their diff, newest first. The uuid column and the
// diff text are bound separately so the subject_id index stays usable.
func (r *AuditLogRepository) ListBySubject(ctx context.Context, subjectID string) ([]models.AuditLog, error) {
	id, err := uuid.Parse(subjectID)
	if err != nil {
		return []models.AuditLog{}, nil
	}
	query := `SELECT ` + auditLogColumns + `
FROM audit_logs
WHERE subject_id = $1 OR diff->>'subjectId' = $2
ORDER BY created_at DESC, id DESC`

	var logs []models.AuditLog
	if err := r.db.SelectContext(ctx, &logs, query, id.String(), id.String()); err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}
	if logs == nil {
		logs = []models.AuditLog{}
	}
	return logs, nil
}

func insertAuditLog(ctx context.Context, ext sqlx.ExtContext, entry *models.AuditLog) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO audit_logs (id, subject_id, user_id, action, diff, created_at) VALUES (:id, :subject_id, :user_id, :action, :diff, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, ext, query, entry); err != nil {
		return fmt.Errorf("create audit log: %w", err)
	}
	return nil
}
