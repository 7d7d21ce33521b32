package coercion

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	// Largest serial a spreadsheet accepts (9999-12-31).
	maxSerial = 2958465
	timeText  = "2006-01-02 15:04:05"
)

var (
	dayFirst  = regexp.MustCompile(`^(\d{1,2})[/-](\d{1,2})[/-](\d{4})(?:[ T]+(\d{1,2}):(\d{2})(?::(\d{2}))?)?$`)
	yearFirst = regexp.MustCompile(`^(\d{4})[/-](\d{1,2})[/-](\d{1,2})(?:[ T]+(\d{1,2}):(\d{2})(?::(\d{2}))?)?$`)

	fallbackLayouts = []string{
		time.RFC3339,
		time.RFC1123Z,
		time.RFC1123,
		"2006-01-02T15:04:05",
		"Jan 2, 2006",
		"January 2, 2006",
		"2 Jan 2006",
	}
)

// serialEpoch is day 0 of the spreadsheet date system. It sits two days
// before 1900-01-01 because of the fictitious 1900-02-29.
func serialEpoch() time.Time {
	return time.Date(1899, time.December, 30, 0, 0, 0, 0, time.Local)
}

// FromSerial converts a spreadsheet serial day count to local time, rounding
// the time of day to the second.
func FromSerial(serial float64) (time.Time, bool) {
	if math.IsNaN(serial) || serial < 0 || serial >= maxSerial+1 {
		return time.Time{}, false
	}
	days := math.Floor(serial)
	secs := int(math.Round((serial - days) * 86400))
	if secs >= 86400 {
		days++
		secs -= 86400
	}
	base := serialEpoch().AddDate(0, 0, int(days))
	return time.Date(base.Year(), base.Month(), base.Day(), 0, 0, secs, 0, time.Local), true
}

// localFields keeps the wall clock of t in time.Local, dropping sub-seconds.
func localFields(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.Local)
}

// ParseTimestamp accepts dd/mm/yyyy and yyyy-mm-dd forms with an optional
// hh:mm[:ss], then a handful of generic layouts. Calendar-invalid dates fail.
// A zone offset in the text is dropped; the written wall clock is kept.
func ParseTimestamp(raw string) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, false
	}
	if m := dayFirst.FindStringSubmatch(s); m != nil {
		return buildDate(m[3], m[2], m[1], m[4], m[5], m[6])
	}
	if m := yearFirst.FindStringSubmatch(s); m != nil {
		return buildDate(m[1], m[2], m[3], m[4], m[5], m[6])
	}
	for _, layout := range fallbackLayouts {
		t, err := time.ParseInLocation(layout, s, time.Local)
		if err == nil {
			return localFields(t), true
		}
	}
	return time.Time{}, false
}

func buildDate(year, month, day, hour, minute, second string) (time.Time, bool) {
	y, _ := strconv.Atoi(year)
	mo, _ := strconv.Atoi(month)
	d, _ := strconv.Atoi(day)
	h, mi, sec := atoiOr0(hour), atoiOr0(minute), atoiOr0(second)

	if mo < 1 || mo > 12 || d < 1 || h > 23 || mi > 59 || sec > 59 {
		return time.Time{}, false
	}
	t := time.Date(y, time.Month(mo), d, h, mi, sec, 0, time.Local)
	if t.Day() != d || int(t.Month()) != mo {
		return time.Time{}, false
	}
	return t, true
}

func atoiOr0(s string) int {
	if s == "" {
		return 0
	}
	n, _ := strconv.Atoi(s)
	return n
}
