package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/trial-subjects-api/internal/models"
)

// ErrDuplicateSubjectNumber is returned when the subjects number constraint rejects a write.
var ErrDuplicateSubjectNumber = errors.New("subject number already exists")

const (
	subjectNumberConstraint = "subjects_number_key"
	pqUniqueViolation       = "23505"
)

const subjectSelect = `SELECT s.id, s.number, s.name, s.birth_date, s.center_id, s.created_at, s.updated_at, c.name AS center_name
FROM subjects s
JOIN centers c ON c.id = s.center_id`

type subjectRow struct {
	models.Subject
	CenterName string `db:"center_name"`
}

func (r subjectRow) toModel() models.Subject {
	subject := r.Subject
	subject.Center = &models.Center{ID: subject.CenterID, Name: r.CenterName}
	return subject
}

// SubjectRepository handles persistence for subjects. Every write goes through a
// transaction that also appends the matching audit entry.
type SubjectRepository struct {
	db *sqlx.DB
}

// NewSubjectRepository creates a new repository instance.
func NewSubjectRepository(db *sqlx.DB) *SubjectRepository {
	return &SubjectRepository{db: db}
}

// ListByCenters returns subjects owned by the given centers ordered by number (byte order).
func (r *SubjectRepository) ListByCenters(ctx context.Context, centerIDs []string) ([]models.Subject, error) {
	if len(centerIDs) == 0 {
		return []models.Subject{}, nil
	}
	query := subjectSelect + `
WHERE s.center_id = ANY($1)
ORDER BY s.number COLLATE "C" ASC`

	var rows []subjectRow
	if err := r.db.SelectContext(ctx, &rows, query, pq.Array(centerIDs)); err != nil {
		return nil, fmt.Errorf("list subjects: %w", err)
	}
	subjects := make([]models.Subject, 0, len(rows))
	for _, row := range rows {
		subjects = append(subjects, row.toModel())
	}
	return subjects, nil
}

// FindByID returns a subject with its center joined.
func (r *SubjectRepository) FindByID(ctx context.Context, id string) (*models.Subject, error) {
	return r.findOne(ctx, subjectSelect+"\nWHERE s.id = $1", id)
}

// FindByNumber returns the live subject carrying number.
func (r *SubjectRepository) FindByNumber(ctx context.Context, number string) (*models.Subject, error) {
	return r.findOne(ctx, subjectSelect+"\nWHERE s.number = $1", number)
}

func (r *SubjectRepository) findOne(ctx context.Context, query string, arg string) (*models.Subject, error) {
	var row subjectRow
	if err := r.db.GetContext(ctx, &row, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find subject: %w", err)
	}
	subject := row.toModel()
	return &subject, nil
}

// ExistsByNumber checks uniqueness of the subject number.
func (r *SubjectRepository) ExistsByNumber(ctx context.Context, number string, excludeID string) (bool, error) {
	query := "SELECT 1 FROM subjects WHERE number = $1"
	args := []interface{}{number}
	if excludeID != "" {
		query += " AND id <> $2"
		args = append(args, excludeID)
	}

	var exists int
	if err := r.db.GetContext(ctx, &exists, query+" LIMIT 1", args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check subject number: %w", err)
	}
	return true, nil
}

// CreateWithAudit inserts the subject and its CREATE entry atomically.
func (r *SubjectRepository) CreateWithAudit(ctx context.Context, subject *models.Subject, entry *models.AuditLog) (err error) {
	if subject.ID == "" {
		subject.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if subject.CreatedAt.IsZero() {
		subject.CreatedAt = now
	}
	subject.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create subject: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const query = `INSERT INTO subjects (id, number, name, birth_date, center_id, created_at, updated_at) VALUES (:id, :number, :name, :birth_date, :center_id, :created_at, :updated_at)`
	if _, err = tx.NamedExecContext(ctx, query, subject); err != nil {
		return mapSubjectWriteError("create subject", err)
	}

	entry.SubjectID = &subject.ID
	if entry.Diff.SubjectID == "" {
		entry.Diff.SubjectID = subject.ID
	}
	if err = insertAuditLog(ctx, tx, entry); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create subject: %w", err)
	}
	return nil
}

// UpdateWithAudit persists the subject and appends its UPDATE entry atomically.
func (r *SubjectRepository) UpdateWithAudit(ctx context.Context, subject *models.Subject, entry *models.AuditLog) (err error) {
	subject.UpdatedAt = time.Now().UTC()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update subject: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const query = `UPDATE subjects SET number = :number, name = :name, birth_date = :birth_date, center_id = :center_id, updated_at = :updated_at WHERE id = :id`
	res, err := tx.NamedExecContext(ctx, query, subject)
	if err != nil {
		return mapSubjectWriteError("update subject", err)
	}
	if err = expectOneRow(res); err != nil {
		return err
	}

	entry.SubjectID = &subject.ID
	if err = insertAuditLog(ctx, tx, entry); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit update subject: %w", err)
	}
	return nil
}

// DeleteWithAudit appends the DELETE entry and removes the subject atomically.
// Existing entries keep the subject id inside their diff payload.
func (r *SubjectRepository) DeleteWithAudit(ctx context.Context, id string, entry *models.AuditLog) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete subject: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	entry.SubjectID = &id
	if err = insertAuditLog(ctx, tx, entry); err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM subjects WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete subject: %w", err)
	}
	if err = expectOneRow(res); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit delete subject: %w", err)
	}
	return nil
}

func expectOneRow(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func mapSubjectWriteError(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation {
		if pqErr.Constraint == "" || pqErr.Constraint == subjectNumberConstraint {
			return ErrDuplicateSubjectNumber
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
