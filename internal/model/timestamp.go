package model

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// TimeKind tags the representation a Timestamp was read in.
type TimeKind int

const (
	// KindFloating is a wall clock without a zone.
	KindFloating TimeKind = iota
	// KindUTC is an absolute instant ("Z" suffix).
	KindUTC
	// KindZoned is a wall clock qualified by a TZID parameter.
	KindZoned
	// KindDate is a date without time of day (VALUE=DATE).
	KindDate
)

func (k TimeKind) String() string {
	switch k {
	case KindFloating:
		return "floating"
	case KindUTC:
		return "utc"
	case KindZoned:
		return "zoned"
	case KindDate:
		return "date"
	default:
		return fmt.Sprintf("TimeKind(%d)", int(k))
	}
}

const (
	layoutDate     = "20060102"
	layoutFloating = "20060102T150405"
	layoutUTC      = "20060102T150405Z"

	minYear = 0
	maxYear = 9999
)

// Timestamp is one DATE or DATE-TIME value.
//
// For floating, zoned and date values Wall holds the wall clock in time.UTC,
// used only as a neutral carrier. For KindUTC values Wall is the instant.
type Timestamp struct {
	Kind TimeKind
	Wall time.Time
	TZID string
}

func Floating(wall time.Time) Timestamp {
	return Timestamp{Kind: KindFloating, Wall: asCarrier(wall)}
}

func UTC(t time.Time) Timestamp {
	return Timestamp{Kind: KindUTC, Wall: t.UTC()}
}

func Zoned(wall time.Time, tzid string) Timestamp {
	return Timestamp{Kind: KindZoned, Wall: asCarrier(wall), TZID: tzid}
}

func Date(year int, month time.Month, day int) Timestamp {
	return Timestamp{Kind: KindDate, Wall: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// asCarrier keeps the wall clock fields of t and drops its location.
func asCarrier(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

// Clone returns a copy of t, or nil for a nil receiver.
func (t *Timestamp) Clone() *Timestamp {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

// Instant resolves t to an absolute instant. Floating, zoned and date values
// are interpreted as wall clock in loc; a nil loc means time.Local.
func (t Timestamp) Instant(loc *time.Location) time.Time {
	if t.Kind == KindUTC {
		return t.Wall
	}
	if loc == nil {
		loc = time.Local
	}
	w := t.Wall
	return time.Date(w.Year(), w.Month(), w.Day(), w.Hour(), w.Minute(), w.Second(), w.Nanosecond(), loc)
}

// LocalDate returns the calendar date of t in loc at midnight.
func (t Timestamp) LocalDate(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	in := t.Instant(loc).In(loc)
	return time.Date(in.Year(), in.Month(), in.Day(), 0, 0, 0, 0, loc)
}

// Shift moves t by hours. Date values, a zero offset, and shifts that would
// leave the representable range return t unchanged.
func (t Timestamp) Shift(hours int64) Timestamp {
	if hours == 0 || t.Kind == KindDate {
		return t
	}
	if hours > math.MaxInt64/int64(time.Hour) || hours < math.MinInt64/int64(time.Hour) {
		return t
	}
	shifted := t.Wall.Add(time.Duration(hours) * time.Hour)
	if y := shifted.Year(); y < minYear || y > maxYear {
		return t
	}
	if (hours > 0) != shifted.After(t.Wall) {
		return t
	}
	out := t
	out.Wall = shifted
	return out
}

// WithWall returns t with its wall clock replaced, keeping kind and zone.
func (t Timestamp) WithWall(wall time.Time) Timestamp {
	out := t
	if t.Kind == KindUTC {
		out.Wall = wall.UTC()
	} else {
		out.Wall = asCarrier(wall)
	}
	return out
}

// Value renders the iCalendar text value of t.
func (t Timestamp) Value() string {
	switch t.Kind {
	case KindDate:
		return t.Wall.Format(layoutDate)
	case KindUTC:
		return t.Wall.UTC().Format(layoutUTC)
	default:
		return t.Wall.Format(layoutFloating)
	}
}

// Params renders the property parameters that t's kind requires.
func (t Timestamp) Params() map[string][]string {
	switch t.Kind {
	case KindDate:
		return map[string][]string{"VALUE": {"DATE"}}
	case KindZoned:
		return map[string][]string{"TZID": {t.TZID}}
	default:
		return nil
	}
}

var ErrEmptyTimestamp = errors.New("empty date-time value")

// ParseTimestamp reads a DATE or DATE-TIME value with its parameters.
func ParseTimestamp(value string, params map[string][]string) (Timestamp, error) {
	v := strings.TrimSpace(value)
	if v == "" {
		return Timestamp{}, ErrEmptyTimestamp
	}

	isDate := !strings.Contains(v, "T")
	if vs := paramValue(params, "VALUE"); strings.EqualFold(vs, "DATE") {
		isDate = true
	}
	if isDate {
		d, err := time.ParseInLocation(layoutDate, v, time.UTC)
		if err != nil {
			return Timestamp{}, fmt.Errorf("parse date %q: %w", v, err)
		}
		return Timestamp{Kind: KindDate, Wall: d}, nil
	}

	if strings.HasSuffix(v, "Z") || strings.HasSuffix(v, "z") {
		u, err := time.ParseInLocation(layoutUTC, strings.ToUpper(v), time.UTC)
		if err != nil {
			return Timestamp{}, fmt.Errorf("parse utc date-time %q: %w", v, err)
		}
		return Timestamp{Kind: KindUTC, Wall: u}, nil
	}

	w, err := time.ParseInLocation(layoutFloating, v, time.UTC)
	if err != nil {
		return Timestamp{}, fmt.Errorf("parse date-time %q: %w", v, err)
	}
	if tzid := paramValue(params, "TZID"); tzid != "" {
		return Timestamp{Kind: KindZoned, Wall: w, TZID: tzid}, nil
	}
	return Timestamp{Kind: KindFloating, Wall: w}, nil
}

func paramValue(params map[string][]string, key string) string {
	for k, vs := range params {
		if strings.EqualFold(k, key) && len(vs) > 0 {
			return vs[0]
		}
	}
	return ""
}
