package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/noah-isme/trial-subjects-api/internal/models"
	"github.com/noah-isme/trial-subjects-api/internal/repository"
	appErrors "github.com/noah-isme/trial-subjects-api/pkg/errors"
)

// memoryStore keeps subjects and their audit trail together so writes can
// be applied atomically the way the SQL repository does.
type memoryStore struct {
	subjects map[string]models.Subject
	centers  map[string]models.Center
	logs     []models.AuditLog
	clock    time.Time

	auditErr       error
	skipUniqueness bool
}

func newMemoryStore(centers ...models.Center) *memoryStore {
	store := &memoryStore{
		subjects: map[string]models.Subject{},
		centers:  map[string]models.Center{},
		clock:    time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
	}
	for _, c := range centers {
		store.centers[c.ID] = c
	}
	return store
}

func (m *memoryStore) tick() time.Time {
	m.clock = m.clock.Add(time.Minute)
	return m.clock
}

func (m *memoryStore) withCenter(s models.Subject) models.Subject {
	if c, ok := m.centers[s.CenterID]; ok {
		center := c
		s.Center = &center
	}
	return s
}

func (m *memoryStore) ListByCenters(ctx context.Context, centerIDs []string) ([]models.Subject, error) {
	allowed := map[string]bool{}
	for _, id := range centerIDs {
		allowed[id] = true
	}
	out := []models.Subject{}
	for _, s := range m.subjects {
		if allowed[s.CenterID] {
			out = append(out, m.withCenter(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (m *memoryStore) FindByID(ctx context.Context, id string) (*models.Subject, error) {
	s, ok := m.subjects[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	s = m.withCenter(s)
	return &s, nil
}

func (m *memoryStore) FindByNumber(ctx context.Context, number string) (*models.Subject, error) {
	for _, s := range m.subjects {
		if s.Number == number {
			s = m.withCenter(s)
			return &s, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memoryStore) ExistsByNumber(ctx context.Context, number string, excludeID string) (bool, error) {
	if m.skipUniqueness {
		return false, nil
	}
	return m.numberTaken(number, excludeID), nil
}

func (m *memoryStore) numberTaken(number, excludeID string) bool {
	for id, s := range m.subjects {
		if s.Number == number && id != excludeID {
			return true
		}
	}
	return false
}

func (m *memoryStore) CreateWithAudit(ctx context.Context, subject *models.Subject, entry *models.AuditLog) error {
	if m.numberTaken(subject.Number, "") {
		return repository.ErrDuplicateSubjectNumber
	}
	if m.auditErr != nil {
		return m.auditErr
	}
	now := m.tick()
	subject.CreatedAt, subject.UpdatedAt = now, now
	stored := *subject
	stored.Center = nil
	m.subjects[subject.ID] = stored
	m.appendLog(subject.ID, entry, now)
	return nil
}

func (m *memoryStore) UpdateWithAudit(ctx context.Context, subject *models.Subject, entry *models.AuditLog) error {
	if _, ok := m.subjects[subject.ID]; !ok {
		return sql.ErrNoRows
	}
	if m.numberTaken(subject.Number, subject.ID) {
		return repository.ErrDuplicateSubjectNumber
	}
	if m.auditErr != nil {
		return m.auditErr
	}
	now := m.tick()
	subject.UpdatedAt = now
	stored := *subject
	stored.Center = nil
	m.subjects[subject.ID] = stored
	m.appendLog(subject.ID, entry, now)
	return nil
}

func (m *memoryStore) DeleteWithAudit(ctx context.Context, id string, entry *models.AuditLog) error {
	if _, ok := m.subjects[id]; !ok {
		return sql.ErrNoRows
	}
	if m.auditErr != nil {
		return m.auditErr
	}
	m.appendLog(id, entry, m.tick())
	delete(m.subjects, id)
	// ON DELETE SET NULL
	for i := range m.logs {
		if m.logs[i].SubjectID != nil && *m.logs[i].SubjectID == id {
			m.logs[i].SubjectID = nil
		}
	}
	return nil
}

// appendLog stores a copy that went through the JSON column round trip.
func (m *memoryStore) appendLog(subjectID string, entry *models.AuditLog, at time.Time) {
	id := subjectID
	entry.SubjectID = &id
	entry.ID = at.Format(time.RFC3339Nano)
	entry.CreatedAt = at
	if entry.Diff.SubjectID == "" {
		entry.Diff.SubjectID = subjectID
	}
	payload, _ := json.Marshal(entry.Diff)
	stored := *entry
	stored.Diff = models.Diff{}
	_ = stored.Diff.Scan(payload)
	m.logs = append(m.logs, stored)
}

// auditView exposes the audit queries of memoryStore.
type auditView struct{ store *memoryStore }

func (a auditView) FindSubjectIDByNumber(ctx context.Context, number string) (string, error) {
	for _, entry := range a.store.logs {
		change, ok := entry.Diff.Scalar(models.FieldNumber)
		if !ok || change.New == nil || *change.New != number {
			continue
		}
		if entry.SubjectID != nil {
			return *entry.SubjectID, nil
		}
		if entry.Diff.SubjectID != "" {
			return entry.Diff.SubjectID, nil
		}
	}
	return "", sql.ErrNoRows
}

func (a auditView) ListBySubject(ctx context.Context, subjectID string) ([]models.AuditLog, error) {
	out := []models.AuditLog{}
	for _, entry := range a.store.logs {
		if (entry.SubjectID != nil && *entry.SubjectID == subjectID) || entry.Diff.SubjectID == subjectID {
			out = append(out, entry)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// centerView exposes center lookups of memoryStore.
type centerView struct {
	store *memoryStore
	err   error
}

func (c centerView) FindByID(ctx context.Context, id string) (*models.Center, error) {
	if c.err != nil {
		return nil, c.err
	}
	center, ok := c.store.centers[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &center, nil
}

func (c centerView) ListByIDs(ctx context.Context, ids []string) ([]models.Center, error) {
	out := []models.Center{}
	for _, id := range ids {
		if center, ok := c.store.centers[id]; ok {
			out = append(out, center)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

type stubMemberships struct {
	users   map[string][]string
	err     error
	lookups int
}

func (s *stubMemberships) UserExists(ctx context.Context, userID string) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	_, ok := s.users[userID]
	return ok, nil
}

func (s *stubMemberships) ListCenterIDs(ctx context.Context, userID string) ([]string, error) {
	s.lookups++
	if s.err != nil {
		return nil, s.err
	}
	return s.users[userID], nil
}

type stubScopes struct {
	scopes map[string]AccessScope
}

func (s stubScopes) ResolveScope(ctx context.Context, userID string) (AccessScope, error) {
	scope, ok := s.scopes[userID]
	if !ok {
		return AccessScope{}, appErrors.Clone(appErrors.ErrNotFound, "user not found")
	}
	return scope, nil
}

type memoryCache struct {
	entries map[string][]byte
	deleted []string
	getErr  error
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: map[string][]byte{}}
}

func (c *memoryCache) Get(ctx context.Context, key string, dest interface{}) error {
	if c.getErr != nil {
		return c.getErr
	}
	raw, ok := c.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (c *memoryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.entries[key] = raw
	return nil
}

func (c *memoryCache) Delete(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		delete(c.entries, key)
		c.deleted = append(c.deleted, key)
	}
	return nil
}

var errBoom = errors.New("boom")
