package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the canonical calendar date representation.
const DateLayout = "2006-01-02"

// Subject is a clinical-trial participant record owned by a center.
type Subject struct {
	ID        string    `db:"id" json:"id"`
	Number    string    `db:"number" json:"number"`
	Name      string    `db:"name" json:"name"`
	BirthDate Date      `db:"birth_date" json:"birthDate"`
	CenterID  string    `db:"center_id" json:"centerId"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
	Center    *Center   `db:"-" json:"center,omitempty"`
}

// Date is a calendar date without a time-of-day or zone component.
type Date struct {
	value time.Time
}

// NewDate truncates t to its calendar date.
func NewDate(t time.Time) Date {
	if t.IsZero() {
		return Date{}
	}
	y, m, d := t.Date()
	return Date{value: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(raw string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(raw))
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", raw, err)
	}
	return NewDate(t), nil
}

// MustParseDate is ParseDate for literals known to be valid.
func MustParseDate(raw string) Date {
	d, err := ParseDate(raw)
	if err != nil {
		panic(err)
	}
	return d
}

// Time returns the date at midnight UTC.
func (d Date) Time() time.Time { return d.value }

// IsZero reports whether the date is unset.
func (d Date) IsZero() bool { return d.value.IsZero() }

// String returns the canonical YYYY-MM-DD form, or "" when unset.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.value.Format(DateLayout)
}

// Equal compares dates by their canonical form.
func (d Date) Equal(other Date) bool { return d.String() == other.String() }

// MarshalJSON implements json.Marshaler.
func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Date) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*d = Date{}
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseDate(raw)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Scan implements sql.Scanner.
func (d *Date) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*d = Date{}
		return nil
	case time.Time:
		*d = NewDate(v)
		return nil
	case []byte:
		return d.scanString(string(v))
	case string:
		return d.scanString(v)
	default:
		return fmt.Errorf("unsupported date source %T", src)
	}
}

func (d *Date) scanString(raw string) error {
	if len(raw) > len(DateLayout) {
		raw = raw[:len(DateLayout)]
	}
	parsed, err := ParseDate(raw)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Value implements driver.Valuer.
func (d Date) Value() (driver.Value, error) {
	if d.IsZero() {
		return nil, nil
	}
	return d.String(), nil
}
