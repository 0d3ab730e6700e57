package generic

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// =============================================================================
// TEMPORAL VALUE RESOLVER - Heterogeneous cell values -> comparable instants
// =============================================================================

const (
	DateOnlyLayout = "02/01/2006"
	DateTimeLayout = "02/01/2006 15:04"

	secondsPerDay = 24 * 60 * 60
)

// Day-first patterns, tried in order. The first tier that parses wins.
var dayFirstLayouts = [][]string{
	{"2/1/2006 3:04 PM", "2/1/2006 3:04:05 PM", "2/1/2006 3:04PM"},
	{"2/1/2006 15:04", "2/1/2006 15:04:05"},
	{"2/1/2006"},
}

// Fallback layouts for strings that are not day-first, roughly what a locale
// date parser accepts.
var fallbackLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02 15:04:05",
	"2006/01/02",
	"2 Jan 2006 15:04",
	"2 Jan 2006",
	"2 January 2006",
	"2-Jan-2006",
	"Jan 2, 2006 15:04",
	"Jan 2, 2006",
	"January 2, 2006",
	"Jan 2 2006",
	"Mon Jan 2 2006",
	"Mon, 02 Jan 2006 15:04:05 MST",
	// Month-first slash dates only reach here when day-first fails, so an
	// ambiguous 02/01 still reads as 2 January.
	"1/2/2006 3:04 PM",
	"1/2/2006 15:04",
	"1/2/2006 15:04:05",
	"1/2/2006",
}

var clockPattern = regexp.MustCompile(`^(\d{1,2}):(\d{2})(?::(\d{2}))?\s*([AP]M)?$`)

// TemporalResolver parses cell values in a fixed calendar. Location is the
// host calendar: spreadsheet serials and zone-less strings are placed in it.
type TemporalResolver struct {
	Location *time.Location
}

// UTC is the resolver used by the package-level helpers.
var UTC = TemporalResolver{Location: time.UTC}

// NewTemporalResolver returns a resolver for loc (UTC when nil).
func NewTemporalResolver(loc *time.Location) TemporalResolver {
	if loc == nil {
		loc = time.UTC
	}
	return TemporalResolver{Location: loc}
}

func (r TemporalResolver) loc() *time.Location {
	if r.Location == nil {
		return time.UTC
	}
	return r.Location
}

// ParseInstant resolves a cell value to an instant.
//
//   - nil or blank          -> absent
//   - time.Time             -> returned as-is (zero time is absent)
//   - number                -> spreadsheet serial, day 1 = 1899-12-31
//   - string                -> DD/MM/YYYY with 12h time, with 24h time, date
//     only, then the fallback layouts
//   - anything else         -> absent
func (r TemporalResolver) ParseInstant(v any) (time.Time, bool) {
	switch val := v.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		return val, !val.IsZero()
	case *time.Time:
		if val == nil || val.IsZero() {
			return time.Time{}, false
		}
		return *val, true
	case float64:
		return r.FromSerial(val)
	case float32:
		return r.FromSerial(float64(val))
	case int:
		return r.FromSerial(float64(val))
	case int64:
		return r.FromSerial(float64(val))
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return time.Time{}, false
		}
		return r.FromSerial(f)
	case string:
		return r.parseString(val)
	default:
		return time.Time{}, false
	}
}

// FromSerial converts a spreadsheet day serial. The fraction is the time of
// day, rounded to the second; a fraction within half a second of midnight
// rounds to the whole day so float drift never shifts the date.
func (r TemporalResolver) FromSerial(serial float64) (time.Time, bool) {
	if math.IsNaN(serial) || math.IsInf(serial, 0) || serial <= 0 {
		return time.Time{}, false
	}
	days := math.Floor(serial)
	secs := math.Round((serial - days) * secondsPerDay)
	if secs >= secondsPerDay {
		days++
		secs = 0
	}
	base := time.Date(1899, time.December, 30, 0, 0, 0, 0, r.loc())
	return base.AddDate(0, 0, int(days)).Add(time.Duration(secs) * time.Second), true
}

func (r TemporalResolver) parseString(s string) (time.Time, bool) {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return time.Time{}, false
	}
	upper := strings.ToUpper(s)
	for _, tier := range dayFirstLayouts {
		for _, layout := range tier {
			if t, err := time.ParseInLocation(layout, upper, r.loc()); err == nil {
				return t, true
			}
		}
	}
	for _, layout := range fallbackLayouts {
		if t, err := time.ParseInLocation(layout, s, r.loc()); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// CombineDateTime resolves a date cell and, when the clock cell holds a
// recognizable time (12h, 24h or a day fraction), replaces the time of day.
// A missing or unreadable clock leaves the date's own time untouched.
func (r TemporalResolver) CombineDateTime(date any, clock any) (time.Time, bool) {
	d, ok := r.ParseInstant(date)
	if !ok {
		return time.Time{}, false
	}
	h, m, sec, ok := parseClock(clock)
	if !ok {
		return d, true
	}
	return time.Date(d.Year(), d.Month(), d.Day(), h, m, sec, 0, d.Location()), true
}

// ParseInstant resolves v in UTC.
func ParseInstant(v any) (time.Time, bool) { return UTC.ParseInstant(v) }

// CombineDateTime resolves a date and clock pair in UTC.
func CombineDateTime(date, clock any) (time.Time, bool) { return UTC.CombineDateTime(date, clock) }

// =============================================================================
// FORMATTING - Never fails, falls back to the raw value
// =============================================================================

// FormatDateOnly renders v as DD/MM/YYYY in the resolver's calendar, or
// returns v as text if it does not parse.
func (r TemporalResolver) FormatDateOnly(v any) string {
	if t, ok := r.ParseInstant(v); ok {
		return t.Format(DateOnlyLayout)
	}
	return Text(v)
}

// FormatDateOnly renders v as DD/MM/YYYY in UTC.
func FormatDateOnly(v any) string { return UTC.FormatDateOnly(v) }

// FormatDateTime renders v as DD/MM/YYYY HH:MM (24h), or returns v as text if
// it does not parse.
func FormatDateTime(v any) string {
	if t, ok := v.(time.Time); ok {
		if t.IsZero() {
			return ""
		}
		return t.Format(DateTimeLayout)
	}
	if t, ok := ParseInstant(v); ok {
		return t.Format(DateTimeLayout)
	}
	return Text(v)
}

// FormatInstant renders t date-only when it sits exactly on midnight and with
// the clock otherwise.
func FormatInstant(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 {
		return t.Format(DateOnlyLayout)
	}
	return t.Format(DateTimeLayout)
}

// FormatClockTime normalizes a bare time token ("9:05 PM", "7:30", 0.25) to
// zero-padded 24h HH:MM. Unrecognized input is returned as text.
func FormatClockTime(v any) string {
	h, m, _, ok := parseClock(v)
	if !ok {
		return Text(v)
	}
	return fmt.Sprintf("%02d:%02d", h, m)
}

func parseClock(v any) (hour, minute, second int, ok bool) {
	switch val := v.(type) {
	case nil:
		return 0, 0, 0, false
	case time.Time:
		if val.IsZero() {
			return 0, 0, 0, false
		}
		return val.Hour(), val.Minute(), val.Second(), true
	case float64:
		return clockFromFraction(val)
	case float32:
		return clockFromFraction(float64(val))
	case int:
		return clockFromFraction(float64(val))
	case int64:
		return clockFromFraction(float64(val))
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return 0, 0, 0, false
		}
		return clockFromFraction(f)
	}

	s := strings.ToUpper(strings.TrimSpace(Text(v)))
	match := clockPattern.FindStringSubmatch(s)
	if match == nil {
		return 0, 0, 0, false
	}
	hour, _ = strconv.Atoi(match[1])
	minute, _ = strconv.Atoi(match[2])
	if match[3] != "" {
		second, _ = strconv.Atoi(match[3])
	}
	if minute > 59 || second > 59 {
		return 0, 0, 0, false
	}
	switch match[4] {
	case "AM", "PM":
		if hour < 1 || hour > 12 {
			return 0, 0, 0, false
		}
		hour %= 12
		if match[4] == "PM" {
			hour += 12
		}
	default:
		if hour > 23 {
			return 0, 0, 0, false
		}
	}
	return hour, minute, second, true
}

// clockFromFraction reads a day fraction in [0,1) as a time of day.
func clockFromFraction(f float64) (hour, minute, second int, ok bool) {
	if f < 0 || f >= 1 || math.IsNaN(f) {
		return 0, 0, 0, false
	}
	secs := int(math.Round(f * secondsPerDay))
	if secs >= secondsPerDay {
		secs = secondsPerDay - 1
	}
	return secs / 3600, (secs % 3600) / 60, secs % 60, true
}

// =============================================================================
// CALENDAR HELPERS
// =============================================================================

// StartOfDay truncates t to midnight in its own location.
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// EndOfDay returns 23:59:59.999 on t's calendar day.
func EndOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, int(999*time.Millisecond), t.Location())
}

// SameDay reports whether a and b fall on the same calendar date.
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
