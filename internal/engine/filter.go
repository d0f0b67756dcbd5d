package engine

import (
	"time"

	"icalmerge/internal/model"
)

// Lookback limits for recurring events in FilterFuture.
const (
	DefaultLookbackDays = 90
	StrictLookbackDays  = 1
)

// FilterOptions configures FilterFuture. Now and Location are explicit so the
// filter never reads the wall clock itself.
type FilterOptions struct {
	Now      time.Time
	Location *time.Location
	// Days is the horizon length: horizon = today + Days.
	Days int
	// Strict shrinks the recurring-event lookback to StrictLookbackDays.
	Strict bool
}

// Horizon returns today's midnight and the horizon's end of day in loc.
func (o FilterOptions) Horizon() (today, horizonEnd time.Time) {
	loc := o.location()
	now := o.Now.In(loc)
	today = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	h := today.AddDate(0, 0, o.Days)
	horizonEnd = time.Date(h.Year(), h.Month(), h.Day(), 23, 59, 59, 0, loc)
	return today, horizonEnd
}

func (o FilterOptions) location() *time.Location {
	if o.Location == nil {
		return time.Local
	}
	return o.Location
}

func (o FilterOptions) lookbackDays() int {
	if o.Strict {
		return StrictLookbackDays
	}
	return DefaultLookbackDays
}

// FilterFuture drops events outside [today, today+Days].
//
//   - Single events are kept when their start date lies in [today, horizon].
//   - Recurring events are kept when their original start date lies in
//     [today-lookback, horizon]; their UNTIL is then capped at the horizon's
//     end of day, appended when absent.
//   - Events without a start and non-event components are always kept.
func FilterFuture(cal *model.Calendar, opts FilterOptions) *model.Calendar {
	loc := opts.location()
	today, horizonEnd := opts.Horizon()
	horizon := time.Date(horizonEnd.Year(), horizonEnd.Month(), horizonEnd.Day(), 0, 0, 0, 0, loc)
	earliestRecurring := today.AddDate(0, 0, -opts.lookbackDays())

	out := &model.Calendar{Components: make([]model.Component, 0, len(cal.Components))}
	for _, comp := range cal.Components {
		switch c := comp.(type) {
		case *model.Opaque:
			out.Components = append(out.Components, c)
		case *model.Event:
			if c.Start == nil {
				out.Components = append(out.Components, c)
				continue
			}
			d := c.Start.LocalDate(loc)
			if !c.Recurring() {
				if inDateRange(d, today, horizon) {
					out.Components = append(out.Components, c)
				}
				continue
			}
			if inDateRange(d, earliestRecurring, horizon) {
				out.Components = append(out.Components, capUntil(c, horizonEnd, loc))
			}
		}
	}
	return out
}

func inDateRange(d, from, to time.Time) bool {
	return !d.Before(from) && !d.After(to)
}

// capUntil returns ev with UNTIL set to horizonEnd unless the rule already
// ends on or before it. A COUNT that runs past the horizon is replaced by
// the UNTIL. Other rule parts keep their text and order.
func capUntil(ev *model.Event, horizonEnd time.Time, loc *time.Location) *model.Event {
	rule := ParseRule(ev.RRule)
	if until, ok := rule.Until(loc); ok && !until.After(horizonEnd) {
		return ev
	}
	if _, ok := rule.Get("COUNT"); ok {
		if end, ok := rule.CountEnd(ev.Start.Instant(loc)); ok && !end.After(horizonEnd) {
			return ev
		}
		rule = rule.Delete("COUNT")
	}

	var value string
	switch ev.Start.Kind {
	case model.KindDate:
		value = horizonEnd.Format("20060102")
	case model.KindFloating:
		value = horizonEnd.Format("20060102T150405")
	default:
		value = horizonEnd.UTC().Format("20060102T150405Z")
	}

	out := ev.Clone()
	out.RRule = rule.Set("UNTIL", value).String()
	return out
}
