package service

import (
	"context"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/trial-subjects-api/internal/dto"
	"github.com/noah-isme/trial-subjects-api/internal/models"
	appErrors "github.com/noah-isme/trial-subjects-api/pkg/errors"
)

const (
	investigatorID = "u-investigator"
	outsiderID     = "u-outsider"
	loneUserID     = "u-lone"
)

type subjectFixture struct {
	store *memoryStore
	svc   *SubjectService
}

func newSubjectFixture(t *testing.T) *subjectFixture {
	t.Helper()
	store := newMemoryStore(
		models.Center{ID: "C1", Name: "Berlin"},
		models.Center{ID: "C2", Name: "Paris"},
		models.Center{ID: "C3", Name: "Rome"},
	)
	scopes := stubScopes{scopes: map[string]AccessScope{
		investigatorID: NewAccessScope("C1", "C2"),
		outsiderID:     NewAccessScope("C3"),
		loneUserID:     NewAccessScope(),
	}}
	svc := NewSubjectService(store, centerView{store: store}, scopes, validator.New(), NewMetricsService(), zap.NewNop())
	return &subjectFixture{store: store, svc: svc}
}

func (f *subjectFixture) create(t *testing.T, number, name, centerID string) *models.Subject {
	t.Helper()
	subject, err := f.svc.Create(context.Background(), dto.CreateSubjectRequest{
		Number:    number,
		Name:      name,
		BirthDate: "1990-01-15",
		CenterID:  centerID,
	}, investigatorID)
	require.NoError(t, err)
	return subject
}

func assertErrorCode(t *testing.T, err error, target *appErrors.Error) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, target.Code, appErrors.FromError(err).Code, err.Error())
}

func TestSubjectServiceCreateThenRenameScenario(t *testing.T) {
	f := newSubjectFixture(t)
	ctx := context.Background()

	created := f.create(t, "SUB-001", "John Doe", "C1")
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "SUB-001", created.Number)
	assert.Equal(t, "Berlin", created.Center.Name)
	require.Len(t, f.store.logs, 1)

	createEntry := f.store.logs[0]
	assert.Equal(t, models.AuditActionCreate, createEntry.Action)
	assert.Equal(t, investigatorID, *createEntry.UserID)
	assert.Equal(t, created.ID, createEntry.Diff.SubjectID)
	assert.Len(t, createEntry.Diff.Fields(), 4)
	center, ok := createEntry.Diff.Center()
	require.True(t, ok)
	assert.Equal(t, models.CenterRef{ID: "C1", Name: "Berlin"}, *center)

	updated, err := f.svc.Update(ctx, created.ID, dto.UpdateSubjectRequest{Name: dto.Some("Jane Doe")}, investigatorID)
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", updated.Name)

	require.Len(t, f.store.logs, 2)
	updateEntry := f.store.logs[1]
	assert.Equal(t, models.AuditActionUpdate, updateEntry.Action)
	assert.Equal(t, []string{models.FieldName}, updateEntry.Diff.Fields())
	change, ok := updateEntry.Diff.Scalar(models.FieldName)
	require.True(t, ok)
	assert.Equal(t, "John Doe", *change.Old)
	assert.Equal(t, "Jane Doe", *change.New)

	stored, err := f.svc.Get(ctx, created.ID, investigatorID)
	require.NoError(t, err)
	assert.Equal(t, "SUB-001", stored.Number)
	assert.Equal(t, "1990-01-15", stored.BirthDate.String())
	assert.Equal(t, "C1", stored.CenterID)
	assert.Equal(t, "Jane Doe", stored.Name)
}

func TestSubjectServiceListEmptyScope(t *testing.T) {
	f := newSubjectFixture(t)
	f.create(t, "SUB-001", "John Doe", "C1")

	subjects, err := f.svc.List(context.Background(), loneUserID)
	require.NoError(t, err)
	assert.NotNil(t, subjects)
	assert.Empty(t, subjects)
}

func TestSubjectServiceListFiltersByScopeAndOrdersByNumber(t *testing.T) {
	f := newSubjectFixture(t)
	f.create(t, "SUB-003", "Carol", "C2")
	f.create(t, "SUB-001", "Alice", "C1")
	f.create(t, "SUB-002", "Bob", "C1")
	f.store.centers["C3"] = models.Center{ID: "C3", Name: "Rome"}
	f.store.subjects["foreign"] = models.Subject{ID: "foreign", Number: "SUB-000", Name: "Dan", CenterID: "C3"}

	subjects, err := f.svc.List(context.Background(), investigatorID)
	require.NoError(t, err)
	require.Len(t, subjects, 3)
	assert.Equal(t, []string{"SUB-001", "SUB-002", "SUB-003"}, []string{subjects[0].Number, subjects[1].Number, subjects[2].Number})
}

func TestSubjectServiceGetOutsideScopeIsForbidden(t *testing.T) {
	f := newSubjectFixture(t)
	created := f.create(t, "SUB-001", "John Doe", "C1")

	_, err := f.svc.Get(context.Background(), created.ID, outsiderID)
	assertErrorCode(t, err, appErrors.ErrForbidden)
}

func TestSubjectServiceGetMissingIsNotFound(t *testing.T) {
	f := newSubjectFixture(t)

	_, err := f.svc.Get(context.Background(), "5f0c2a57-8d1e-4b7c-9a55-2d7f1e0b6c11", investigatorID)
	assertErrorCode(t, err, appErrors.ErrNotFound)

	_, err = f.svc.Get(context.Background(), "not-a-uuid", investigatorID)
	assertErrorCode(t, err, appErrors.ErrNotFound)
}

func TestSubjectServiceCreateDuplicateNumberAcrossCenters(t *testing.T) {
	f := newSubjectFixture(t)
	f.create(t, "SUB-001", "John Doe", "C1")

	_, err := f.svc.Create(context.Background(), dto.CreateSubjectRequest{
		Number: "SUB-001", Name: "Other", BirthDate: "1985-06-01", CenterID: "C2",
	}, investigatorID)
	assertErrorCode(t, err, appErrors.ErrConflict)
	assert.Len(t, f.store.logs, 1)
}

func TestSubjectServiceCreateStorageRaceIsConflict(t *testing.T) {
	f := newSubjectFixture(t)
	f.create(t, "SUB-001", "John Doe", "C1")
	f.store.skipUniqueness = true

	_, err := f.svc.Create(context.Background(), dto.CreateSubjectRequest{
		Number: "SUB-001", Name: "Other", BirthDate: "1985-06-01", CenterID: "C1",
	}, investigatorID)
	assertErrorCode(t, err, appErrors.ErrConflict)
}

func TestSubjectServiceCreateOutsideScope(t *testing.T) {
	f := newSubjectFixture(t)

	_, err := f.svc.Create(context.Background(), dto.CreateSubjectRequest{
		Number: "SUB-001", Name: "John Doe", BirthDate: "1990-01-15", CenterID: "C3",
	}, investigatorID)
	assertErrorCode(t, err, appErrors.ErrForbidden)
	assert.Empty(t, f.store.subjects)
}

func TestSubjectServiceCreateValidation(t *testing.T) {
	f := newSubjectFixture(t)
	cases := []dto.CreateSubjectRequest{
		{Number: "S1", Name: "John", BirthDate: "1990-01-15", CenterID: "C1"},
		{Number: "SUB 001", Name: "John", BirthDate: "1990-01-15", CenterID: "C1"},
		{Number: "SUB-001", Name: "   ", BirthDate: "1990-01-15", CenterID: "C1"},
		{Number: "SUB-001", Name: "John", BirthDate: "15/01/1990", CenterID: "C1"},
		{Number: "SUB-001", Name: "John", BirthDate: "1990-01-15"},
	}
	for _, req := range cases {
		_, err := f.svc.Create(context.Background(), req, investigatorID)
		assertErrorCode(t, err, appErrors.ErrValidation)
	}
	assert.Empty(t, f.store.logs)
}

func TestSubjectServiceCreateAuditFailureLeavesNothing(t *testing.T) {
	f := newSubjectFixture(t)
	f.store.auditErr = errBoom

	_, err := f.svc.Create(context.Background(), dto.CreateSubjectRequest{
		Number: "SUB-001", Name: "John Doe", BirthDate: "1990-01-15", CenterID: "C1",
	}, investigatorID)
	assertErrorCode(t, err, appErrors.ErrInternal)
	assert.Empty(t, f.store.subjects)
	assert.Empty(t, f.store.logs)
}

func TestSubjectServiceUpdateWithoutChangesWritesNoEntry(t *testing.T) {
	f := newSubjectFixture(t)
	created := f.create(t, "SUB-001", "John Doe", "C1")

	subject, err := f.svc.Update(context.Background(), created.ID, dto.UpdateSubjectRequest{
		Name:      dto.Some("John Doe"),
		BirthDate: dto.Some("1990-01-15"),
		CenterID:  dto.Some("C1"),
	}, investigatorID)
	require.NoError(t, err)
	assert.Equal(t, "John Doe", subject.Name)
	assert.Len(t, f.store.logs, 1)
}

func TestSubjectServiceUpdateCenterEmbedsBothCenters(t *testing.T) {
	f := newSubjectFixture(t)
	created := f.create(t, "SUB-001", "John Doe", "C1")

	updated, err := f.svc.Update(context.Background(), created.ID, dto.UpdateSubjectRequest{CenterID: dto.Some("C2")}, investigatorID)
	require.NoError(t, err)
	assert.Equal(t, "C2", updated.CenterID)
	assert.Equal(t, "Paris", updated.Center.Name)

	entry := f.store.logs[len(f.store.logs)-1]
	change, ok := entry.Diff.Relation(models.FieldCenterID)
	require.True(t, ok)
	assert.Equal(t, models.CenterRef{ID: "C1", Name: "Berlin"}, *change.Old)
	assert.Equal(t, models.CenterRef{ID: "C2", Name: "Paris"}, *change.New)
}

func TestSubjectServiceUpdateCenterOutsideScope(t *testing.T) {
	f := newSubjectFixture(t)
	created := f.create(t, "SUB-001", "John Doe", "C1")

	_, err := f.svc.Update(context.Background(), created.ID, dto.UpdateSubjectRequest{CenterID: dto.Some("C3")}, investigatorID)
	assertErrorCode(t, err, appErrors.ErrForbidden)
	assert.Equal(t, "C1", f.store.subjects[created.ID].CenterID)
}

func TestSubjectServiceUpdateNullFieldIsValidationError(t *testing.T) {
	f := newSubjectFixture(t)
	created := f.create(t, "SUB-001", "John Doe", "C1")

	_, err := f.svc.Update(context.Background(), created.ID, dto.UpdateSubjectRequest{Name: dto.Optional[string]{Set: true, Null: true}}, investigatorID)
	assertErrorCode(t, err, appErrors.ErrValidation)
	assert.Contains(t, err.Error(), "name")
}

func TestSubjectServiceUpdateNumberCollision(t *testing.T) {
	f := newSubjectFixture(t)
	f.create(t, "SUB-001", "John Doe", "C1")
	second := f.create(t, "SUB-002", "Jane Roe", "C2")

	_, err := f.svc.Update(context.Background(), second.ID, dto.UpdateSubjectRequest{Number: dto.Some("SUB-001")}, investigatorID)
	assertErrorCode(t, err, appErrors.ErrConflict)
	assert.Equal(t, "SUB-002", f.store.subjects[second.ID].Number)
	assert.Len(t, f.store.logs, 2)
}

func TestSubjectServiceUpdateOutsideScope(t *testing.T) {
	f := newSubjectFixture(t)
	created := f.create(t, "SUB-001", "John Doe", "C1")

	_, err := f.svc.Update(context.Background(), created.ID, dto.UpdateSubjectRequest{Name: dto.Some("X")}, outsiderID)
	assertErrorCode(t, err, appErrors.ErrForbidden)
	assert.Equal(t, "John Doe", f.store.subjects[created.ID].Name)
}

func TestSubjectServiceDeleteRecordsFinalState(t *testing.T) {
	f := newSubjectFixture(t)
	created := f.create(t, "SUB-001", "John Doe", "C1")

	require.NoError(t, f.svc.Delete(context.Background(), created.ID, investigatorID))
	assert.Empty(t, f.store.subjects)

	entry := f.store.logs[len(f.store.logs)-1]
	assert.Equal(t, models.AuditActionDelete, entry.Action)
	assert.Nil(t, entry.SubjectID)
	assert.Equal(t, created.ID, entry.Diff.SubjectID)
	number, ok := entry.Diff.Scalar(models.FieldNumber)
	require.True(t, ok)
	assert.Equal(t, "SUB-001", *number.Old)

	_, err := f.svc.Get(context.Background(), created.ID, investigatorID)
	assertErrorCode(t, err, appErrors.ErrNotFound)
}

func TestSubjectServiceResolveCenterFallsBackToUnknown(t *testing.T) {
	store := newMemoryStore()
	svc := NewSubjectService(store, centerView{store: store, err: errBoom}, stubScopes{}, nil, nil, nil)

	ref := svc.resolveCenter(context.Background(), "C1")
	assert.Equal(t, models.CenterRef{ID: "C1", Name: UnknownCenterName}, ref)
}
