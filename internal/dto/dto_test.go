package dto

import (
	"encoding/json"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateSubjectRequestTracksPresence(t *testing.T) {
	var req UpdateSubjectRequest
	require.NoError(t, json.Unmarshal([]byte(`{"name":"Jane Doe","centerId":null}`), &req))

	assert.True(t, req.Name.Present())
	assert.Equal(t, "Jane Doe", req.Name.Value)
	assert.False(t, req.Number.Set)
	assert.False(t, req.BirthDate.Set)
	assert.True(t, req.CenterID.Set)
	assert.True(t, req.CenterID.Null)

	nulls := req.NullFields()
	sort.Strings(nulls)
	assert.Equal(t, []string{"centerId"}, nulls)

	patch := req.Patch()
	require.NotNil(t, patch.Name)
	assert.Equal(t, "Jane Doe", *patch.Name)
	assert.Nil(t, patch.Number)
	assert.Nil(t, patch.CenterID)
}

func TestParseAuditLookupKey(t *testing.T) {
	key := ParseAuditLookupKey("3F2504E0-4F89-11D3-9A0C-0305E82C3301")
	assert.Equal(t, ByIdentifier, key.Kind)
	assert.Equal(t, "3f2504e0-4f89-11d3-9a0c-0305e82c3301", key.Value)

	key = ParseAuditLookupKey(" SUB-001 ")
	assert.Equal(t, ByNumber, key.Kind)
	assert.Equal(t, "SUB-001", key.Value)

	// uuid.Parse accepts the urn and braced forms; only the canonical shape is an identifier.
	key = ParseAuditLookupKey("{3f2504e0-4f89-11d3-9a0c-0305e82c3301}")
	assert.Equal(t, ByNumber, key.Kind)
}
