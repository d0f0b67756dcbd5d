package engine

import (
	"errors"
	"sort"
	"strings"
	"time"

	appLog "icalmerge/internal/log"
	"icalmerge/internal/model"
)

// defaultMaxOccurrencesPerEvent caps a single expansion.
const defaultMaxOccurrencesPerEvent = 5000

// Window is an inclusive time range [Start, End].
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t lies in the window, bounds included.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// ExpandConfig controls how recurrence expansion is performed.
type ExpandConfig struct {
	Window Window

	// Location resolves floating and zoned values; nil means time.Local.
	Location *time.Location

	// MaxOccurrencesPerEvent is a safety cap. If zero,
	// defaultMaxOccurrencesPerEvent is used.
	MaxOccurrencesPerEvent int
}

// Expand produces the concrete occurrences of a recurring event within
// cfg.Window.
//
//   - Non-weekly rules are not expanded: the event is returned as is when its
//     own start lies in the window, otherwise nothing is returned.
//   - Weekly rules step each BYDAY weekday (default: the start's weekday) in
//     7-day increments from the first matching date on or after the window
//     start, applying the original time of day and duration.
//   - Occurrences before the event's own start, after UNTIL or the last COUNT
//     occurrence, or on an EXDATE are skipped.
//
// Every occurrence is a non-recurring copy with a fresh UID.
func Expand(ev *model.Event, cfg ExpandConfig) []*model.Event {
	if ev.Start == nil || !ev.Recurring() {
		return []*model.Event{ev}
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	maxOcc := cfg.MaxOccurrencesPerEvent
	if maxOcc <= 0 {
		maxOcc = defaultMaxOccurrencesPerEvent
	}

	rule := ParseRule(ev.RRule)
	origStart := ev.Start.Instant(loc)

	if !rule.Weekly() {
		if cfg.Window.Contains(origStart) {
			return []*model.Event{ev}
		}
		return nil
	}

	days := rule.ByDay()
	frame := wallFrame(*ev.Start, loc)
	if len(days) == 0 {
		days = []time.Weekday{ev.Start.Wall.Weekday()}
	}

	until, hasUntil := rule.Until(loc)
	if end, ok := rule.CountEnd(origStart); ok && (!hasUntil || end.Before(until)) {
		until, hasUntil = end, true
	}
	exdates := exceptionDates(ev, loc)

	firstDate := midnight(frame(cfg.Window.Start))
	lastDate := midnight(frame(cfg.Window.End))
	w := ev.Start.Wall

	out := make([]*model.Event, 0)
	for _, wd := range days {
		offset := (int(wd) - int(firstDate.Weekday()) + 7) % 7
		for d := firstDate.AddDate(0, 0, offset); !d.After(lastDate); d = d.AddDate(0, 0, 7) {
			wall := time.Date(d.Year(), d.Month(), d.Day(), w.Hour(), w.Minute(), w.Second(), w.Nanosecond(), time.UTC)
			start := ev.Start.WithWall(wall)
			inst := start.Instant(loc)

			if !cfg.Window.Contains(inst) || inst.Before(origStart) {
				continue
			}
			if hasUntil && inst.After(until) {
				break
			}
			if isExcluded(inst, start, exdates, loc) {
				continue
			}
			out = append(out, occurrence(ev, start, loc))
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Start.Instant(loc).Before(out[j].Start.Instant(loc))
	})

	if len(out) > maxOcc {
		appLog.Error("expand: truncated occurrences for UID due to cap",
			errors.New("max occurrences reached"),
			"uid", ev.UID,
			"cap", maxOcc,
		)
		out = out[:maxOcc]
	}
	return out
}

// ExpandAll replaces every recurring event of cal by its occurrences in the
// window. Non-recurring events and other components pass through.
//
// An override (an event with a RECURRENCE-ID) of an expanded weekly master
// takes the place of the occurrence it names: that occurrence is dropped and
// the override is detached from the series with a fresh UID.
func ExpandAll(cal *model.Calendar, cfg ExpandConfig) *model.Calendar {
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}

	masters := make(map[string]bool)
	overridden := make(map[string][]exdate)
	for _, ev := range cal.Events() {
		if ev.UID == "" {
			continue
		}
		if ev.Recurring() {
			if ev.Start != nil && ParseRule(ev.RRule).Weekly() {
				masters[ev.UID] = true
			}
			continue
		}
		overridden[ev.UID] = append(overridden[ev.UID], instantsOf(ev.ExtraValues("RECURRENCE-ID"), loc)...)
	}

	out := &model.Calendar{Components: make([]model.Component, 0, len(cal.Components))}
	for _, comp := range cal.Components {
		switch c := comp.(type) {
		case *model.Event:
			if !c.Recurring() {
				if masters[c.UID] && recurrenceID(c) != "" {
					out.Components = append(out.Components, detach(c))
					continue
				}
				out.Components = append(out.Components, c)
				continue
			}
			for _, occ := range Expand(c, cfg) {
				if masters[c.UID] && isExcluded(occ.Start.Instant(loc), *occ.Start, overridden[c.UID], loc) {
					continue
				}
				out.Components = append(out.Components, occ)
			}
		case *model.Opaque:
			out.Components = append(out.Components, c)
		}
	}
	return out
}

// detach turns an override into a standalone event.
func detach(ev *model.Event) *model.Event {
	out := ev.Clone()
	out.UID = newUID()
	extra := out.Extra[:0]
	for _, p := range out.Extra {
		if p.Name != "RECURRENCE-ID" {
			extra = append(extra, p)
		}
	}
	out.Extra = extra
	return out
}

// wallFrame returns a function mapping an instant into the frame the event's
// wall clock lives in: UTC for absolute values, loc otherwise. The result
// is expressed on the time.UTC carrier used by model.Timestamp.
func wallFrame(start model.Timestamp, loc *time.Location) func(time.Time) time.Time {
	if start.Kind == model.KindUTC {
		return func(t time.Time) time.Time { return t.UTC() }
	}
	return func(t time.Time) time.Time {
		in := t.In(loc)
		return time.Date(in.Year(), in.Month(), in.Day(), in.Hour(), in.Minute(), in.Second(), in.Nanosecond(), time.UTC)
	}
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func occurrence(ev *model.Event, start model.Timestamp, loc *time.Location) *model.Event {
	occ := ev.Clone()
	occ.RRule = ""
	occ.UID = newUID()
	occ.Start = &start

	if ev.End != nil {
		end := occurrenceEnd(*ev.Start, *ev.End, start, loc)
		occ.End = &end
	}

	extra := occ.Extra[:0]
	for _, p := range occ.Extra {
		if !recurrenceProps[p.Name] {
			extra = append(extra, p)
		}
	}
	occ.Extra = extra
	return occ
}

// occurrenceEnd keeps the original duration. When start and end share a
// frame the duration is taken on the wall clock so DST transitions and
// date-only values keep their shape.
func occurrenceEnd(origStart, origEnd, start model.Timestamp, loc *time.Location) model.Timestamp {
	if (origStart.Kind == model.KindUTC) == (origEnd.Kind == model.KindUTC) {
		d := origEnd.Wall.Sub(origStart.Wall)
		if d < 0 {
			d = 0
		}
		return origEnd.WithWall(start.Wall.Add(d))
	}

	d := origEnd.Instant(loc).Sub(origStart.Instant(loc))
	if d < 0 {
		d = 0
	}
	endAt := start.Instant(loc).Add(d)
	if origEnd.Kind == model.KindUTC {
		return origEnd.WithWall(endAt)
	}
	return origEnd.WithWall(endAt.In(loc))
}

type exdate struct {
	at     time.Time
	isDate bool
}

func exceptionDates(ev *model.Event, loc *time.Location) []exdate {
	return instantsOf(ev.ExtraValues("EXDATE"), loc)
}

// instantsOf reads the comma-separated date or date-time values of props.
// Unreadable values are skipped.
func instantsOf(props []model.Property, loc *time.Location) []exdate {
	var out []exdate
	for _, p := range props {
		for _, part := range strings.Split(p.Value, ",") {
			ts, err := model.ParseTimestamp(part, p.Params)
			if err != nil {
				continue
			}
			out = append(out, exdate{at: ts.Instant(loc), isDate: ts.Kind == model.KindDate})
		}
	}
	return out
}

func isExcluded(inst time.Time, start model.Timestamp, exdates []exdate, loc *time.Location) bool {
	for _, ex := range exdates {
		if ex.isDate {
			if start.LocalDate(loc).Equal(ex.at) {
				return true
			}
			continue
		}
		if inst.Equal(ex.at) {
			return true
		}
	}
	return false
}
