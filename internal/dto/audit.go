package dto

import (
	"strings"

	"github.com/google/uuid"
)

// AuditLookupKind tells how an audit history lookup key should be resolved.
type AuditLookupKind int

const (
	ByIdentifier AuditLookupKind = iota + 1
	ByNumber
)

// AuditLookupKey is either a subject identifier or a subject number.
type AuditLookupKey struct {
	Kind  AuditLookupKind
	Value string
}

// SubjectIdentifier builds a key addressing a subject by id.
func SubjectIdentifier(id string) AuditLookupKey {
	return AuditLookupKey{Kind: ByIdentifier, Value: id}
}

// SubjectNumber builds a key addressing a subject by its number.
func SubjectNumber(number string) AuditLookupKey {
	return AuditLookupKey{Kind: ByNumber, Value: number}
}

// ParseAuditLookupKey treats UUID-shaped input as an identifier and anything else as a number.
func ParseAuditLookupKey(raw string) AuditLookupKey {
	raw = strings.TrimSpace(raw)
	if id, err := uuid.Parse(raw); err == nil && len(raw) == 36 {
		return SubjectIdentifier(id.String())
	}
	return SubjectNumber(raw)
}

// AuditExportFormat enumerates supported audit history export encodings.
type AuditExportFormat string

const (
	AuditExportCSV  AuditExportFormat = "csv"
	AuditExportPDF  AuditExportFormat = "pdf"
	AuditExportXLSX AuditExportFormat = "xlsx"
)

// AuditExport is a rendered audit history file.
type AuditExport struct {
	Filename    string
	ContentType string
	Data        []byte
}
