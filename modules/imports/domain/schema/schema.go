package schema

import (
	"context"
	"fmt"
	"strings"

	"github.com/iota-uz/sheet-importer/pkg/serrors"
)

// Metadata columns written by the pipeline ahead of every data column.
const (
	ColImportedAt     = "__ImportedAt"
	ColSourceFileName = "__SourceFileName"
	ColRowNumber      = "__RowNumber"
	ColRowHash        = "__RowHash"
)

// MetaColumns in insert order.
var MetaColumns = []string{ColImportedAt, ColSourceFileName, ColRowNumber, ColRowHash}

func IsMeta(name string) bool {
	return strings.HasPrefix(name, "__")
}

var ErrMetadataUnavailable = serrors.NewError("METADATA_UNAVAILABLE", "destination column metadata unavailable", "Errors.MetadataUnavailable")

type Kind int

const (
	Text Kind = iota
	Integer
	BigInt
	Decimal
	Timestamp
	VarChar
	Char
	Bool
)

func (k Kind) String() string {
	switch k {
	case Integer:
		return "integer"
	case BigInt:
		return "bigint"
	case Decimal:
		return "decimal"
	case Timestamp:
		return "timestamp"
	case VarChar:
		return "varchar"
	case Char:
		return "char"
	case Bool:
		return "bool"
	default:
		return "text"
	}
}

// IsString reports whether values of this kind are stored as text.
func (k Kind) IsString() bool {
	return k == Text || k == VarChar || k == Char
}

const (
	DefaultPrecision = 18
	DefaultScale     = 2
	// Unbounded marks MAX / unlimited character columns.
	Unbounded = -1
)

type ColumnMetadata struct {
	Name     string
	DataType string
	Kind     Kind
	// MaxLength is Unbounded for MAX columns and 0 when not applicable.
	MaxLength int
	Precision int
	Scale     int
	Nullable  bool
	Ordinal   int
}

// TableRef is a schema-qualified destination table.
type TableRef struct {
	Schema string
	Table  string
}

func (t TableRef) String() string {
	if t.Schema == "" {
		return t.Table
	}
	return t.Schema + "." + t.Table
}

func (t TableRef) IsZero() bool {
	return t.Table == ""
}

type Introspector interface {
	// Columns returns the table columns ordered by ordinal position. Any
	// failure, including a missing table, wraps ErrMetadataUnavailable.
	Columns(ctx context.Context, ref TableRef) ([]ColumnMetadata, error)
}

// Unavailable wraps cause as ErrMetadataUnavailable for ref.
func Unavailable(ref TableRef, cause error) error {
	if cause == nil {
		return fmt.Errorf("%w: %s has no columns", ErrMetadataUnavailable, ref)
	}
	return fmt.Errorf("%w: %s: %w", ErrMetadataUnavailable, ref, cause)
}

// Map returns the destination columns whose names appear in sheetCols, in
// spreadsheet order. Metadata columns are never mapped from a sheet.
func Map(sheetCols []string, dest []ColumnMetadata) []ColumnMetadata {
	byName := make(map[string]ColumnMetadata, len(dest))
	for _, c := range dest {
		byName[c.Name] = c
	}
	out := make([]ColumnMetadata, 0, len(sheetCols))
	seen := make(map[string]struct{}, len(sheetCols))
	for _, name := range sheetCols {
		if IsMeta(name) {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		if c, ok := byName[name]; ok {
			out = append(out, c)
			seen[name] = struct{}{}
		}
	}
	return out
}

func Names(cols []ColumnMetadata) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.Name
	}
	return out
}
