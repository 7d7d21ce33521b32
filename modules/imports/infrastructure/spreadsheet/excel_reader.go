// Package spreadsheet reads the first worksheet of an uploaded workbook.
package spreadsheet

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/xuri/excelize/v2"

	"github.com/iota-uz/sheet-importer/modules/imports/domain/sheet"
)

var ErrNoSheets = errors.New("workbook has no sheets")

// builtinDateFormats are the built-in number format ids that render dates or
// times, including the locale-specific ranges.
var builtinDateFormats = map[int]bool{
	14: true, 15: true, 16: true, 17: true, 18: true, 19: true, 20: true, 21: true, 22: true,
	27: true, 28: true, 29: true, 30: true, 31: true, 32: true, 33: true, 34: true, 35: true, 36: true,
	45: true, 46: true, 47: true,
	50: true, 51: true, 52: true, 53: true, 54: true, 55: true, 56: true, 57: true, 58: true,
}

type ExcelReader struct{}

func NewExcelReader() *ExcelReader {
	return &ExcelReader{}
}

// Read returns the header and data rows of the first sheet. Numeric cells
// become float64, date-formatted cells time.Time and empty cells nil.
func (r *ExcelReader) Read(ctx context.Context, path string) (*sheet.Sheet, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "open workbook")
	}
	defer f.Close()

	name := f.GetSheetName(0)
	if name == "" {
		list := f.GetSheetList()
		if len(list) == 0 {
			return nil, ErrNoSheets
		}
		name = list[0]
	}

	grid, err := f.GetRows(name, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, errors.Wrapf(err, "read sheet %q", name)
	}
	if len(grid) == 0 {
		return &sheet.Sheet{}, nil
	}

	header := grid[0]
	var (
		columns []string
		index   []int
	)
	seen := make(map[string]struct{}, len(header))
	for i, h := range header {
		if strings.TrimSpace(h) == "" {
			continue
		}
		if _, dup := seen[h]; dup {
			continue
		}
		seen[h] = struct{}{}
		columns = append(columns, h)
		index = append(index, i)
	}

	c := &cells{file: f, sheet: name, dateStyles: make(map[int]bool)}
	out := &sheet.Sheet{Columns: columns}
	for ri, cols := range grid[1:] {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row := make(sheet.RawRow, len(columns))
		empty := true
		for j, ci := range index {
			var raw string
			if ci < len(cols) {
				raw = cols[ci]
			}
			v, err := c.value(ci+1, ri+2, raw)
			if err != nil {
				return nil, err
			}
			if v != nil {
				empty = false
			}
			row[columns[j]] = v
		}
		if !empty {
			out.Rows = append(out.Rows, row)
		}
	}
	return out, nil
}

type cells struct {
	file       *excelize.File
	sheet      string
	dateStyles map[int]bool
}

func (c *cells) value(col, row int, raw string) (any, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	axis, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return nil, err
	}
	typ, err := c.file.GetCellType(c.sheet, axis)
	if err != nil {
		return nil, errors.Wrapf(err, "cell %s", axis)
	}
	switch typ {
	case excelize.CellTypeBool:
		if b, err := strconv.ParseBool(raw); err == nil {
			return b, nil
		}
		return raw, nil
	case excelize.CellTypeUnset, excelize.CellTypeNumber, excelize.CellTypeDate:
		n, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return raw, nil
		}
		isDate, err := c.isDate(axis)
		if err != nil {
			return nil, err
		}
		if isDate || typ == excelize.CellTypeDate {
			if t, err := excelize.ExcelDateToTime(n, false); err == nil {
				t = t.Round(time.Second)
				return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.Local), nil
			}
		}
		return n, nil
	default:
		return raw, nil
	}
}

func (c *cells) isDate(axis string) (bool, error) {
	id, err := c.file.GetCellStyle(c.sheet, axis)
	if err != nil {
		return false, errors.Wrapf(err, "style of %s", axis)
	}
	if known, ok := c.dateStyles[id]; ok {
		return known, nil
	}
	style, err := c.file.GetStyle(id)
	if err != nil {
		return false, errors.Wrapf(err, "style %d", id)
	}
	isDate := builtinDateFormats[style.NumFmt]
	if style.CustomNumFmt != nil {
		isDate = isDateFormat(*style.CustomNumFmt)
	}
	c.dateStyles[id] = isDate
	return isDate, nil
}

// isDateFormat reports whether a custom number format renders a date or time.
// Quoted literals, escaped characters and bracketed sections are ignored.
func isDateFormat(format string) bool {
	var (
		b        strings.Builder
		quoted   bool
		bracket  bool
		escaping bool
	)
	for _, r := range format {
		switch {
		case escaping:
			escaping = false
		case r == '\\':
			escaping = true
		case r == '"':
			quoted = !quoted
		case quoted:
		case r == '[':
			bracket = true
		case r == ']':
			bracket = false
		case bracket:
		default:
			b.WriteRune(r)
		}
	}
	clean := strings.ToLower(b.String())
	if strings.Contains(clean, "general") {
		return false
	}
	return strings.ContainsAny(clean, "dmyhs")
}
