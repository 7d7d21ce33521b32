package destination

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iota-uz/sheet-importer/modules/imports/domain/schema"
)

func TestTypedRow_ArgsPrefixMetadata(t *testing.T) {
	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	row := TypedRow{ImportedAt: at, SourceFileName: "f.xlsx", RowNumber: 3, Fingerprint: "abc", Values: []any{"x", 1.5}}

	require.Equal(t, []any{at, "f.xlsx", 3, "abc", "x", 1.5}, row.Args())
}

func TestInsertColumns(t *testing.T) {
	cols := []schema.ColumnMetadata{{Name: "A"}, {Name: "B"}}
	require.Equal(t, []string{"__ImportedAt", "__SourceFileName", "__RowNumber", "__RowHash", "A", "B"}, InsertColumns(cols))
}
