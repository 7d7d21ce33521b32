package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iota-uz/sheet-importer/modules/imports/domain/schema"
)

func TestOf_MatchesJoinedSHA256(t *testing.T) {
	sum := sha256.Sum256([]byte("a|12|"))
	require.Equal(t, hex.EncodeToString(sum[:]), Of([]any{" a ", 12.0, nil}))
}

func TestOf_IgnoresSurroundingWhitespace(t *testing.T) {
	require.Equal(t, Of([]any{"x", "y"}), Of([]any{"  x", "y\t"}))
	require.NotEqual(t, Of([]any{"x", "y"}), Of([]any{"y", "x"}))
}

func TestRow_DependsOnlyOnMappedColumns(t *testing.T) {
	cols := []schema.ColumnMetadata{{Name: "A"}, {Name: "B"}}
	r1 := map[string]any{"A": "1", "B": 2.5, "Unmapped": "foo"}
	r2 := map[string]any{"A": "1", "B": 2.5, "Unmapped": "bar"}

	require.Equal(t, Row(r1, cols), Row(r2, cols))
	require.Len(t, Row(r1, cols), 64)
	require.Equal(t, Of([]any{"1", 2.5}), Row(r1, cols))
}

func TestRow_IgnoresSpreadsheetColumnOrder(t *testing.T) {
	dest := []schema.ColumnMetadata{
		{Name: "Operacion", Ordinal: 5},
		{Name: "Monto", Ordinal: 6},
		{Name: "Fecha", Ordinal: 7},
	}
	row := map[string]any{"Operacion": 1001.0, "Monto": "1.234,56", "Fecha": "12/01/2025"}

	first := Row(row, schema.Map([]string{"Fecha", "Monto", "Operacion"}, dest))
	second := Row(row, schema.Map([]string{"Monto", "Operacion", "Fecha"}, dest))

	require.Equal(t, first, second)
	require.Equal(t, Of([]any{1001.0, "1.234,56", "12/01/2025"}), first)
}

func TestRow_OrdersByNameWithoutOrdinals(t *testing.T) {
	row := map[string]any{"A": "1", "B": "2"}
	ab := Row(row, []schema.ColumnMetadata{{Name: "A"}, {Name: "B"}})
	ba := Row(row, []schema.ColumnMetadata{{Name: "B"}, {Name: "A"}})
	require.Equal(t, ab, ba)
}
