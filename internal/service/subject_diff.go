package service

import (
	"context"

	"github.com/noah-isme/trial-subjects-api/internal/models"
)

// UnknownCenterName is recorded when a center referenced by a diff cannot be loaded.
const UnknownCenterName = "Unknown"

// CenterResolver returns the denormalised center for id. Implementations must
// not fail; they substitute UnknownCenterName instead.
type CenterResolver func(ctx context.Context, id string) models.CenterRef

// DiffSubjects compares two versions of a subject field by field. Values are
// compared in their canonical string form, so birth dates compare as YYYY-MM-DD.
// A centerId change resolves both centers through resolve unless the subject
// already carries the joined center.
func DiffSubjects(ctx context.Context, before, after models.Subject, resolve CenterResolver) models.Diff {
	diff := models.NewDiff(before.ID)

	scalars := []struct {
		field    string
		old, new string
	}{
		{models.FieldNumber, before.Number, after.Number},
		{models.FieldName, before.Name, after.Name},
		{models.FieldBirthDate, before.BirthDate.String(), after.BirthDate.String()},
	}
	for _, f := range scalars {
		if f.old == f.new {
			continue
		}
		diff.Set(f.field, models.ScalarChange{Old: stringPtr(f.old), New: stringPtr(f.new)})
	}

	if before.CenterID != after.CenterID {
		oldRef := centerRef(ctx, before, resolve)
		newRef := centerRef(ctx, after, resolve)
		diff.Set(models.FieldCenterID, models.RelationChange{Old: &oldRef, New: &newRef})
	}

	return diff
}

// creationDiff records the full initial field set of subject.
func creationDiff(ctx context.Context, subject models.Subject, resolve CenterResolver) models.Diff {
	diff := models.NewDiff(subject.ID)
	diff.Set(models.FieldNumber, models.ScalarChange{New: stringPtr(subject.Number)})
	diff.Set(models.FieldName, models.ScalarChange{New: stringPtr(subject.Name)})
	diff.Set(models.FieldBirthDate, models.ScalarChange{New: stringPtr(subject.BirthDate.String())})
	center := centerRef(ctx, subject, resolve)
	diff.Set(models.FieldCenterID, models.RelationChange{New: &center})
	return diff
}

// deletionDiff records the final field set of subject.
func deletionDiff(ctx context.Context, subject models.Subject, resolve CenterResolver) models.Diff {
	diff := models.NewDiff(subject.ID)
	diff.Set(models.FieldNumber, models.ScalarChange{Old: stringPtr(subject.Number)})
	diff.Set(models.FieldName, models.ScalarChange{Old: stringPtr(subject.Name)})
	diff.Set(models.FieldBirthDate, models.ScalarChange{Old: stringPtr(subject.BirthDate.String())})
	center := centerRef(ctx, subject, resolve)
	diff.Set(models.FieldCenterID, models.RelationChange{Old: &center})
	return diff
}

func centerRef(ctx context.Context, subject models.Subject, resolve CenterResolver) models.CenterRef {
	if subject.Center != nil && subject.Center.ID == subject.CenterID && subject.Center.Name != "" {
		return models.CenterRef{ID: subject.Center.ID, Name: subject.Center.Name}
	}
	if resolve == nil {
		return models.CenterRef{ID: subject.CenterID, Name: UnknownCenterName}
	}
	return resolve(ctx, subject.CenterID)
}

func stringPtr(v string) *string {
	return &v
}
