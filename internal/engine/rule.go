package engine

import (
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	"icalmerge/internal/model"
)

// Rule is a parsed RRULE value. Only FREQ, BYDAY, UNTIL and COUNT are interpreted;
// every part is kept in order so String reproduces unknown keys verbatim.
type Rule struct {
	parts []rulePart
}

type rulePart struct {
	key   string
	value string
	raw   string // original text, used when the part has no '='
}

var dayCodes = map[string]rrule.Weekday{
	"MO": rrule.MO,
	"TU": rrule.TU,
	"WE": rrule.WE,
	"TH": rrule.TH,
	"FR": rrule.FR,
	"SA": rrule.SA,
	"SU": rrule.SU,
}

// ParseRule splits a rule like "FREQ=WEEKLY;BYDAY=MO,WE;X-FOO=1". It never
// fails; malformed parts are carried through untouched.
func ParseRule(s string) Rule {
	s = strings.TrimPrefix(strings.TrimSpace(s), "RRULE:")
	var r Rule
	if s == "" {
		return r
	}
	for _, part := range strings.Split(s, ";") {
		if part == "" {
			continue
		}
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			r.parts = append(r.parts, rulePart{raw: part})
			continue
		}
		r.parts = append(r.parts, rulePart{key: strings.ToUpper(strings.TrimSpace(k)), value: v})
	}
	return r
}

// Get returns the value of key.
func (r Rule) Get(key string) (string, bool) {
	key = strings.ToUpper(key)
	for _, p := range r.parts {
		if p.key == key {
			return p.value, true
		}
	}
	return "", false
}

// Set returns a copy of r with key replaced in place, or appended when absent.
func (r Rule) Set(key, value string) Rule {
	key = strings.ToUpper(key)
	out := Rule{parts: append([]rulePart(nil), r.parts...)}
	for i, p := range out.parts {
		if p.key == key {
			out.parts[i].value = value
			return out
		}
	}
	out.parts = append(out.parts, rulePart{key: key, value: value})
	return out
}

// Delete returns a copy of r without key.
func (r Rule) Delete(key string) Rule {
	key = strings.ToUpper(key)
	out := Rule{parts: make([]rulePart, 0, len(r.parts))}
	for _, p := range r.parts {
		if p.key != key {
			out.parts = append(out.parts, p)
		}
	}
	return out
}

func (r Rule) String() string {
	parts := make([]string, 0, len(r.parts))
	for _, p := range r.parts {
		if p.key == "" {
			parts = append(parts, p.raw)
			continue
		}
		parts = append(parts, p.key+"="+p.value)
	}
	return strings.Join(parts, ";")
}

// Freq returns the interpreted FREQ value.
func (r Rule) Freq() (rrule.Frequency, bool) {
	v, ok := r.Get("FREQ")
	if !ok {
		return 0, false
	}
	f, err := rrule.StrToFreq(strings.ToUpper(strings.TrimSpace(v)))
	if err != nil {
		return 0, false
	}
	return f, true
}

// Weekly reports whether FREQ=WEEKLY.
func (r Rule) Weekly() bool {
	f, ok := r.Freq()
	return ok && f == rrule.WEEKLY
}

// ByDay returns the weekdays listed in BYDAY, in order and without
// duplicates. Ordinal prefixes ("1MO", "-1FR") are ignored.
func (r Rule) ByDay() []time.Weekday {
	v, ok := r.Get("BYDAY")
	if !ok {
		return nil
	}
	seen := make(map[time.Weekday]bool)
	var out []time.Weekday
	for _, code := range strings.Split(v, ",") {
		code = strings.ToUpper(strings.TrimSpace(code))
		if len(code) < 2 {
			continue
		}
		wd, ok := dayCodes[code[len(code)-2:]]
		if !ok {
			continue
		}
		day := toTimeWeekday(wd)
		if !seen[day] {
			seen[day] = true
			out = append(out, day)
		}
	}
	return out
}

// toTimeWeekday converts rrule's Monday-based numbering to time.Weekday.
func toTimeWeekday(wd rrule.Weekday) time.Weekday {
	return time.Weekday((wd.Day() + 1) % 7)
}

// Until resolves UNTIL to an instant. Floating and date values are read in loc.
func (r Rule) Until(loc *time.Location) (time.Time, bool) {
	v, ok := r.Get("UNTIL")
	if !ok {
		return time.Time{}, false
	}
	ts, err := model.ParseTimestamp(v, nil)
	if err != nil {
		return time.Time{}, false
	}
	if ts.Kind == model.KindDate {
		// A date UNTIL includes the whole day.
		return ts.Instant(loc).AddDate(0, 0, 1).Add(-time.Second), true
	}
	return ts.Instant(loc), true
}

// CountEnd returns the last occurrence of a COUNT-bounded rule starting at
// dtstart. It reports false when the rule has no COUNT or rrule-go cannot
// read it.
func (r Rule) CountEnd(dtstart time.Time) (time.Time, bool) {
	if _, ok := r.Get("COUNT"); !ok {
		return time.Time{}, false
	}
	opt, err := rrule.StrToROptionInLocation(r.String(), dtstart.Location())
	if err != nil {
		return time.Time{}, false
	}
	opt.Dtstart = dtstart
	rr, err := rrule.NewRRule(*opt)
	if err != nil {
		return time.Time{}, false
	}
	all := rr.All()
	if len(all) == 0 {
		return time.Time{}, false
	}
	return all[len(all)-1], true
}
