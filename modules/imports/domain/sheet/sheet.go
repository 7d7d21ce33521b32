package sheet

import "context"

// RawRow maps a header to the cell value: string, float64, int64, bool,
// time.Time or nil.
type RawRow map[string]any

// Sheet is the first worksheet of an uploaded workbook. Columns keeps header
// order; Rows excludes the header and fully empty rows.
type Sheet struct {
	Columns []string
	Rows    []RawRow
}

type Reader interface {
	Read(ctx context.Context, path string) (*Sheet, error)
}
