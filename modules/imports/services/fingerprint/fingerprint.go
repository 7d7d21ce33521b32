// Package fingerprint derives the content identity of a spreadsheet row.
package fingerprint

import (
	"cmp"
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"strings"

	"github.com/iota-uz/sheet-importer/modules/imports/domain/schema"
	"github.com/iota-uz/sheet-importer/modules/imports/services/coercion"
)

// Of hashes the trimmed string forms of values joined by "|".
func Of(values []any) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strings.TrimSpace(coercion.Stringify(v))
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

// Row hashes the raw cells of row for the insert columns. Cells are taken in
// destination ordinal order, then by name, so the spreadsheet's column order
// does not change the result.
func Row(row map[string]any, cols []schema.ColumnMetadata) string {
	ordered := slices.Clone(cols)
	slices.SortStableFunc(ordered, func(a, b schema.ColumnMetadata) int {
		return cmp.Or(cmp.Compare(a.Ordinal, b.Ordinal), cmp.Compare(a.Name, b.Name))
	})
	values := make([]any, len(ordered))
	for i, c := range ordered {
		values[i] = row[c.Name]
	}
	return Of(values)
}
