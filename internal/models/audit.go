package models

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// AuditAction tags what happened to a subject.
type AuditAction string

const (
	AuditActionCreate AuditAction = "CREATE"
	AuditActionUpdate AuditAction = "UPDATE"
	AuditActionDelete AuditAction = "DELETE"
)

// Diff field names, shared with the subject JSON representation.
const (
	FieldSubjectID = "subjectId"
	FieldNumber    = "number"
	FieldName      = "name"
	FieldBirthDate = "birthDate"
	FieldCenterID  = "centerId"
)

// AuditLog is an immutable record of a subject change.
type AuditLog struct {
	ID        string      `db:"id" json:"id"`
	SubjectID *string     `db:"subject_id" json:"subjectId"`
	UserID    *string     `db:"user_id" json:"userId"`
	Action    AuditAction `db:"action" json:"action"`
	Diff      Diff        `db:"diff" json:"diff"`
	CreatedAt time.Time   `db:"created_at" json:"createdAt"`
}

// ChangeKind discriminates FieldChange variants.
type ChangeKind string

const (
	ChangeKindScalar   ChangeKind = "scalar"
	ChangeKindRelation ChangeKind = "relation"
)

// FieldChange is either a ScalarChange or a RelationChange.
type FieldChange interface {
	Kind() ChangeKind
}

// ScalarChange records a plain value transition. A nil side means the value did not exist.
type ScalarChange struct {
	Old *string `json:"old"`
	New *string `json:"new"`
}

// Kind implements FieldChange.
func (ScalarChange) Kind() ChangeKind { return ChangeKindScalar }

// CenterRef is the denormalised center embedded in relational changes.
type CenterRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// RelationChange records a reference transition with the referenced records resolved.
type RelationChange struct {
	Old *CenterRef `json:"old"`
	New *CenterRef `json:"new"`
}

// Kind implements FieldChange.
func (RelationChange) Kind() ChangeKind { return ChangeKindRelation }

// Diff maps field names to their change. SubjectID is embedded so history
// survives the subject reference being nulled.
type Diff struct {
	SubjectID string
	Changes   map[string]FieldChange
}

// NewDiff returns an empty diff bound to a subject.
func NewDiff(subjectID string) Diff {
	return Diff{SubjectID: subjectID, Changes: map[string]FieldChange{}}
}

// Set records the change for field.
func (d *Diff) Set(field string, change FieldChange) {
	if d.Changes == nil {
		d.Changes = map[string]FieldChange{}
	}
	d.Changes[field] = change
}

// Empty reports whether no field changed.
func (d Diff) Empty() bool { return len(d.Changes) == 0 }

// Fields returns the changed field names in sorted order.
func (d Diff) Fields() []string {
	fields := make([]string, 0, len(d.Changes))
	for field := range d.Changes {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return fields
}

// Scalar returns the scalar change for field.
func (d Diff) Scalar(field string) (ScalarChange, bool) {
	change, ok := d.Changes[field].(ScalarChange)
	return change, ok
}

// Relation returns the relational change for field.
func (d Diff) Relation(field string) (RelationChange, bool) {
	change, ok := d.Changes[field].(RelationChange)
	return change, ok
}

// Center returns the center the entry leaves the subject in, falling back to
// the previous center for deletions.
func (d Diff) Center() (*CenterRef, bool) {
	change, ok := d.Relation(FieldCenterID)
	if !ok {
		return nil, false
	}
	if change.New != nil {
		return change.New, true
	}
	if change.Old != nil {
		return change.Old, true
	}
	return nil, false
}

// MarshalJSON renders the diff as {field:{old,new}, ..., subjectId:"id"}.
func (d Diff) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(d.Changes)+1)
	for field, change := range d.Changes {
		out[field] = change
	}
	if d.SubjectID != "" {
		out[FieldSubjectID] = d.SubjectID
	}
	return json.Marshal(out)
}

// UnmarshalJSON reconstructs the tagged union from stored payloads, including
// flat legacy values.
func (d *Diff) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode diff: %w", err)
	}
	result := Diff{Changes: make(map[string]FieldChange, len(raw))}
	for field, value := range raw {
		change, err := decodeChange(value)
		if err != nil {
			return fmt.Errorf("decode diff field %s: %w", field, err)
		}
		if field == FieldSubjectID {
			if scalar, ok := change.(ScalarChange); ok {
				result.SubjectID = deref(firstNonNil(scalar.New, scalar.Old))
			}
			continue
		}
		result.Changes[field] = change
	}
	*d = result
	return nil
}

// Scan implements sql.Scanner for JSONB columns.
func (d *Diff) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*d = Diff{Changes: map[string]FieldChange{}}
		return nil
	case []byte:
		return d.UnmarshalJSON(v)
	case string:
		return d.UnmarshalJSON([]byte(v))
	default:
		return fmt.Errorf("unsupported diff source %T", src)
	}
}

// Value implements driver.Valuer. The payload is sent as text so lib/pq does
// not encode it as bytea.
func (d Diff) Value() (driver.Value, error) {
	payload, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	return string(payload), nil
}

func decodeChange(raw json.RawMessage) (FieldChange, error) {
	trimmed := bytes.TrimSpace(raw)
	if !isObject(trimmed) {
		value, err := decodeScalar(trimmed)
		if err != nil {
			return nil, err
		}
		return ScalarChange{New: value}, nil
	}

	var pair struct {
		Old json.RawMessage `json:"old"`
		New json.RawMessage `json:"new"`
	}
	if err := json.Unmarshal(trimmed, &pair); err != nil {
		return nil, err
	}

	if isObject(bytes.TrimSpace(pair.Old)) || isObject(bytes.TrimSpace(pair.New)) {
		var change RelationChange
		if err := json.Unmarshal(trimmed, &change); err != nil {
			return nil, err
		}
		return change, nil
	}

	oldValue, err := decodeScalar(pair.Old)
	if err != nil {
		return nil, err
	}
	newValue, err := decodeScalar(pair.New)
	if err != nil {
		return nil, err
	}
	return ScalarChange{Old: oldValue, New: newValue}, nil
}

func decodeScalar(raw json.RawMessage) (*string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var value interface{}
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, err
	}
	switch v := value.(type) {
	case string:
		return &v, nil
	default:
		s := fmt.Sprint(v)
		return &s, nil
	}
}

func isObject(raw []byte) bool {
	return len(raw) > 0 && raw[0] == '{'
}

func firstNonNil(values ...*string) *string {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
