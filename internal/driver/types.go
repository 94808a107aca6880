package driver

import (
	"fmt"

	"github.com/mkrishnan-dev/datasync/internal/watermark"
)

// Entity is a logical table to synchronize.
type Entity struct {
	// Name uniquely identifies the entity in configuration, the watermark
	// store and cascade rules.
	Name string

	// SourceTable and TargetTable name the physical tables. TargetTable
	// defaults to SourceTable when empty.
	SourceTable string
	TargetTable string

	// Columns optionally restricts the synchronized columns. Empty means
	// all columns of the source table.
	Columns []string

	// PrimaryKey lists the key columns used for upserts and as the
	// secondary ordering key for watermark fetches.
	PrimaryKey []string

	// WatermarkColumn is the monotonically ordered change-detection
	// column. Empty means the entity supports full loads only.
	WatermarkColumn string

	// WatermarkType describes how watermark values compare.
	WatermarkType watermark.Type
}

// Source returns the source table name.
func (e *Entity) Source() string {
	return e.SourceTable
}

// Target returns the target table name, defaulting to the source table.
func (e *Entity) Target() string {
	if e.TargetTable != "" {
		return e.TargetTable
	}
	return e.SourceTable
}

// FullLoadOnly reports whether the entity lacks a watermark column and
// therefore can only be synchronized with truncate-and-reload semantics.
func (e *Entity) FullLoadOnly() bool {
	return e.WatermarkColumn == ""
}

// Validate checks that the entity definition is internally consistent and
// that every identifier in it is safe to interpolate into SQL.
func (e *Entity) Validate() error {
	if e.Name == "" {
		return fmt.Errorf("entity name is required")
	}
	if e.SourceTable == "" {
		return fmt.Errorf("entity %s: source table is required", e.Name)
	}
	idents := []string{e.SourceTable}
	if e.TargetTable != "" {
		idents = append(idents, e.TargetTable)
	}
	idents = append(idents, e.Columns...)
	idents = append(idents, e.PrimaryKey...)
	if e.WatermarkColumn != "" {
		idents = append(idents, e.WatermarkColumn)
		if e.WatermarkType != watermark.TypeTimestamp && e.WatermarkType != watermark.TypeInteger {
			return fmt.Errorf("entity %s: invalid watermark type %q", e.Name, e.WatermarkType)
		}
		if len(e.PrimaryKey) == 0 {
			return fmt.Errorf("entity %s: incremental sync requires a primary key", e.Name)
		}
	}
	for _, ident := range idents {
		if err := ValidateIdentifier(ident); err != nil {
			return fmt.Errorf("entity %s: %w", e.Name, err)
		}
	}
	return nil
}

// ValidateIdentifier checks if a database identifier (table or column name)
// is safe to use in SQL queries. Returns an error if the identifier contains
// potentially dangerous characters that could enable SQL injection.
//
// Valid identifiers:
// - Start with letter or underscore
// - Contain only letters, digits, underscores, and spaces
// - Maximum length of 128 characters
// - Not empty
func ValidateIdentifier(name string) error {
	if name == "" {
		return fmt.Errorf("identifier cannot be empty")
	}

	if len(name) > 128 {
		return fmt.Errorf("identifier too long: %d characters (max 128)", len(name))
	}

	first := rune(name[0])
	if !isValidIdentifierStart(first) {
		return fmt.Errorf("identifier must start with letter or underscore: %q", name)
	}

	for i, r := range name {
		if i == 0 {
			continue
		}
		if !isValidIdentifierChar(r) {
			return fmt.Errorf("identifier contains invalid character %q at position %d: %q", r, i, name)
		}
	}

	return nil
}

func isValidIdentifierStart(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r == '_'
}

func isValidIdentifierChar(r rune) bool {
	return isValidIdentifierStart(r) ||
		(r >= '0' && r <= '9') ||
		r == ' ' // SQL Server allows spaces in identifiers
}
