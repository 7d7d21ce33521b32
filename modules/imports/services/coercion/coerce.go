// Package coercion turns raw spreadsheet cells into values typed for the
// destination column. Nothing here returns errors: a value that cannot be
// represented becomes NULL and the caller is told so.
package coercion

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iota-uz/sheet-importer/modules/imports/domain/schema"
)

// IsEmpty reports nil and blank strings.
func IsEmpty(raw any) bool {
	switch v := raw.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	default:
		return false
	}
}

// Stringify renders a raw cell the way it is stored in text columns and fed
// to the row fingerprint.
func Stringify(raw any) string {
	switch v := raw.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case int64:
		return strconv.FormatInt(v, 10)
	case int:
		return strconv.Itoa(v)
	case bool:
		return strconv.FormatBool(v)
	case time.Time:
		return v.Format(timeText)
	case decimal.Decimal:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// Coerce converts raw for col. The second result is false only when a
// non-empty raw value had to become nil.
func Coerce(col schema.ColumnMetadata, raw any) (any, bool) {
	if IsEmpty(raw) {
		return nil, true
	}
	var (
		v  any
		ok bool
	)
	switch col.Kind {
	case schema.Integer:
		v, ok = ParseInt(raw, 32)
	case schema.BigInt:
		v, ok = ParseInt(raw, 64)
	case schema.Decimal:
		v, ok = coerceDecimal(col, raw)
	case schema.Timestamp:
		v, ok = coerceTimestamp(raw)
	case schema.Bool:
		v, ok = ParseBool(raw)
	default:
		return Stringify(raw), true
	}
	if !ok {
		return nil, false
	}
	return v, true
}

func coerceDecimal(col schema.ColumnMetadata, raw any) (decimal.Decimal, bool) {
	d, ok := toDecimal(raw)
	if !ok {
		return decimal.Decimal{}, false
	}
	if col.Scale >= 0 {
		d = d.Round(int32(col.Scale))
	}
	if !fitsPrecision(d, col.Precision, col.Scale) {
		return decimal.Decimal{}, false
	}
	return d, true
}

func coerceTimestamp(raw any) (time.Time, bool) {
	switch v := raw.(type) {
	case time.Time:
		if v.IsZero() {
			return time.Time{}, false
		}
		return localFields(v), true
	case float64:
		return FromSerial(v)
	case int64:
		return FromSerial(float64(v))
	case int:
		return FromSerial(float64(v))
	case string:
		return ParseTimestamp(v)
	default:
		return time.Time{}, false
	}
}

// ParseBool accepts booleans, 0/1 and the words true/false, si/sí/no, yes.
func ParseBool(raw any) (bool, bool) {
	switch v := raw.(type) {
	case bool:
		return v, true
	case float64:
		return numericBool(v)
	case int64:
		return numericBool(float64(v))
	case int:
		return numericBool(float64(v))
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "1", "si", "sí", "yes":
			return true, true
		case "false", "0", "no":
			return false, true
		}
	}
	return false, false
}

func numericBool(f float64) (bool, bool) {
	switch f {
	case 1:
		return true, true
	case 0:
		return false, true
	default:
		return false, false
	}
}
