package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(v string) *string { return &v }

func TestDiffMarshalShapes(t *testing.T) {
	diff := NewDiff("subject-1")
	diff.Set(FieldName, ScalarChange{Old: strPtr("John Doe"), New: strPtr("Jane Doe")})
	diff.Set(FieldCenterID, RelationChange{
		Old: &CenterRef{ID: "C1", Name: "Berlin"},
		New: &CenterRef{ID: "C2", Name: "Paris"},
	})

	payload, err := json.Marshal(diff)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"subjectId": "subject-1",
		"name": {"old": "John Doe", "new": "Jane Doe"},
		"centerId": {"old": {"id": "C1", "name": "Berlin"}, "new": {"id": "C2", "name": "Paris"}}
	}`, string(payload))
}

func TestDiffUnmarshalReconstructsVariants(t *testing.T) {
	raw := `{
		"subjectId": "subject-1",
		"number": {"old": null, "new": "SUB-001"},
		"birthDate": {"old": "1990-01-15", "new": "1991-02-01"},
		"centerId": {"old": null, "new": {"id": "C1", "name": "Berlin"}}
	}`

	var diff Diff
	require.NoError(t, json.Unmarshal([]byte(raw), &diff))
	assert.Equal(t, "subject-1", diff.SubjectID)
	assert.Equal(t, []string{FieldBirthDate, FieldCenterID, FieldNumber}, diff.Fields())

	number, ok := diff.Scalar(FieldNumber)
	require.True(t, ok)
	assert.Nil(t, number.Old)
	assert.Equal(t, "SUB-001", *number.New)

	center, ok := diff.Relation(FieldCenterID)
	require.True(t, ok)
	assert.Nil(t, center.Old)
	assert.Equal(t, CenterRef{ID: "C1", Name: "Berlin"}, *center.New)
}

func TestDiffUnmarshalFlatValues(t *testing.T) {
	var diff Diff
	require.NoError(t, diff.Scan([]byte(`{"subjectId":"subject-9","number":"SUB-009","name":"Legacy"}`)))

	assert.Equal(t, "subject-9", diff.SubjectID)
	number, ok := diff.Scalar(FieldNumber)
	require.True(t, ok)
	assert.Nil(t, number.Old)
	assert.Equal(t, "SUB-009", *number.New)
}

func TestDiffCenterFallsBackToOldSide(t *testing.T) {
	diff := NewDiff("subject-1")
	_, ok := diff.Center()
	assert.False(t, ok)

	diff.Set(FieldCenterID, RelationChange{Old: &CenterRef{ID: "C1", Name: "Berlin"}})
	center, ok := diff.Center()
	require.True(t, ok)
	assert.Equal(t, "C1", center.ID)
}

func TestDiffValueRoundTripsThroughScan(t *testing.T) {
	diff := NewDiff("subject-1")
	diff.Set(FieldName, ScalarChange{Old: strPtr("A"), New: strPtr("B")})

	value, err := diff.Value()
	require.NoError(t, err)

	var scanned Diff
	require.NoError(t, scanned.Scan(value))
	assert.Equal(t, diff, scanned)
}
