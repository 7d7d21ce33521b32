package destination

import (
	"context"
	"time"

	"github.com/iota-uz/sheet-importer/modules/imports/domain/schema"
)

// TypedRow is one coerced spreadsheet row ready for insertion. Values are
// aligned with the insert columns passed alongside it.
type TypedRow struct {
	ImportedAt     time.Time
	SourceFileName string
	RowNumber      int
	Fingerprint    string
	Values         []any
}

// Args returns the metadata values followed by the data values, matching
// schema.MetaColumns + insert columns.
func (r TypedRow) Args() []any {
	out := make([]any, 0, len(schema.MetaColumns)+len(r.Values))
	out = append(out, r.ImportedAt, r.SourceFileName, r.RowNumber, r.Fingerprint)
	return append(out, r.Values...)
}

// InsertColumns prefixes the metadata columns to the data column names.
func InsertColumns(cols []schema.ColumnMetadata) []string {
	out := make([]string, 0, len(schema.MetaColumns)+len(cols))
	out = append(out, schema.MetaColumns...)
	return append(out, schema.Names(cols)...)
}

// Destination is a relational store able to absorb re-imported rows.
// InsertChunk must silently skip rows whose __RowHash already exists.
type Destination interface {
	schema.Introspector
	CountBySource(ctx context.Context, ref schema.TableRef, sourceFileName string) (int64, error)
	InsertChunk(ctx context.Context, ref schema.TableRef, cols []schema.ColumnMetadata, rows []TypedRow) error
	// Note describes how duplicates are absorbed; it is echoed in results.
	Note() string
}
