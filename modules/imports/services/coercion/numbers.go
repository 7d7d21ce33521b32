package coercion

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/unicode/norm"
)

var minusReplacer = strings.NewReplacer(
	"\u2212", "-", // minus sign
	"\u2012", "-", // figure dash
	"\u2013", "-", // en dash
	"\u2014", "-", // em dash
	"\ufe63", "-",
	"\uff0d", "-",
	"\u00a0", " ", // nbsp
	"\u202f", " ",
)

// ParseDecimal parses a human-formatted number the way Argentine and US
// spreadsheets write them: "1.234,56", "1,234.56", "(1.234,56)", "1.234,56-",
// "$ 2230,50". It reports false when nothing numeric remains.
func ParseDecimal(raw string) (decimal.Decimal, bool) {
	s := minusReplacer.Replace(norm.NFKC.String(raw))
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Decimal{}, false
	}

	negative := false
	if strings.Contains(s, "(") && strings.Contains(s, ")") {
		negative = true
	}
	if strings.HasSuffix(s, "-") {
		negative = true
		s = strings.TrimSpace(strings.TrimSuffix(s, "-"))
	}

	s = strings.Map(func(r rune) rune {
		switch {
		case r >= '0' && r <= '9', r == ',', r == '.', r == '-':
			return r
		case r == ' ':
			return r
		default:
			return -1
		}
	}, s)
	s = strings.TrimSpace(s)
	if s == "" || s == "-" {
		return decimal.Decimal{}, false
	}
	if strings.HasPrefix(s, "-") {
		negative = true
		s = strings.TrimLeft(s, "- ")
	}
	if strings.Contains(s, "-") {
		return decimal.Decimal{}, false
	}
	s = strings.ReplaceAll(s, " ", "")

	s = normalizeSeparators(s)
	if s == "" || s == "." {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, false
	}
	if negative {
		d = d.Neg()
	}
	return d, true
}

// normalizeSeparators rewrites s so that '.' is the only decimal separator.
// With both separators present the right-most one is the decimal point. A
// lone comma is a decimal point. A separator repeated more than once is
// digit grouping.
func normalizeSeparators(s string) string {
	commas := strings.Count(s, ",")
	dots := strings.Count(s, ".")
	switch {
	case commas > 0 && dots > 0:
		if strings.LastIndex(s, ",") > strings.LastIndex(s, ".") {
			s = strings.ReplaceAll(s, ".", "")
			return strings.Replace(s, ",", ".", 1)
		}
		return strings.ReplaceAll(s, ",", "")
	case commas > 1:
		return strings.ReplaceAll(s, ",", "")
	case commas == 1:
		return strings.Replace(s, ",", ".", 1)
	case dots > 1:
		return strings.ReplaceAll(s, ".", "")
	default:
		return s
	}
}

// ParseInt parses raw as a whole number truncated toward zero and reports
// false when it does not fit in a signed integer of the given bit size.
func ParseInt(raw any, bits int) (int64, bool) {
	var d decimal.Decimal
	switch v := raw.(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, false
		}
		d = decimal.NewFromFloat(math.Trunc(v))
	case float32:
		return ParseInt(float64(v), bits)
	case int64:
		d = decimal.NewFromInt(v)
	case int:
		d = decimal.NewFromInt(int64(v))
	case int32:
		d = decimal.NewFromInt(int64(v))
	case decimal.Decimal:
		d = v
	case string:
		parsed, ok := ParseDecimal(v)
		if !ok {
			return 0, false
		}
		d = parsed
	default:
		return 0, false
	}

	d = d.Truncate(0)
	lo := decimal.NewFromInt(-1 << (bits - 1))
	hi := decimal.NewFromInt(1<<(bits-1) - 1)
	if bits >= 64 {
		lo = decimal.NewFromInt(math.MinInt64)
		hi = decimal.NewFromInt(math.MaxInt64)
	}
	if d.LessThan(lo) || d.GreaterThan(hi) {
		return 0, false
	}
	return d.IntPart(), true
}

// toDecimal converts numeric and textual raw values.
func toDecimal(raw any) (decimal.Decimal, bool) {
	switch v := raw.(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return decimal.Decimal{}, false
		}
		return decimal.NewFromFloat(v), true
	case float32:
		return toDecimal(float64(v))
	case int64:
		return decimal.NewFromInt(v), true
	case int:
		return decimal.NewFromInt(int64(v)), true
	case decimal.Decimal:
		return v, true
	case string:
		return ParseDecimal(v)
	default:
		return decimal.Decimal{}, false
	}
}

// fitsPrecision reports whether d has at most precision-scale integer digits.
func fitsPrecision(d decimal.Decimal, precision, scale int) bool {
	if precision <= 0 || scale < 0 || scale > precision {
		return true
	}
	intPart := d.Abs().Truncate(0)
	if intPart.IsZero() {
		return true
	}
	return len(intPart.String()) <= precision-scale
}
