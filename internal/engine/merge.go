package engine

import (
	"sort"
	"time"

	"icalmerge/internal/model"
)

// MergeTolerance is the largest gap between two slots that still merges them.
const MergeTolerance = 5 * time.Minute

// overlaps reports whether next must be folded into cur. Slots are sorted by
// start, so only next.Start against cur.End needs checking: they either
// overlap or touch directly, or the gap is below MergeTolerance.
func overlaps(cur, next model.Slot) bool {
	if !next.Start.After(cur.End) {
		return true
	}
	return next.Start.Sub(cur.End) < MergeTolerance
}

// MergeSlots returns the minimal set of slots covering the same time as
// slots such that no two overlap or lie within MergeTolerance of each other.
// The result is ascending by start; each merged slot takes its identity from
// its earliest-starting constituent. Bounds of mixed DATE and DATE-TIME
// blocks are aligned by alignBounds.
func MergeSlots(slots []model.Slot) []model.Slot {
	if len(slots) == 0 {
		return nil
	}

	sorted := append([]model.Slot(nil), slots...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Start.Before(sorted[j].Start)
	})

	out := make([]model.Slot, 0, len(sorted))
	cur := sorted[0]
	for _, next := range sorted[1:] {
		if !overlaps(cur, next) {
			out = append(out, alignBounds(cur))
			cur = next
			continue
		}
		if next.Start.Before(cur.Start) {
			cur.Start, cur.StartTS = next.Start, next.StartTS
		}
		if next.End.After(cur.End) {
			cur.End, cur.EndTS = next.End, next.EndTS
		}
	}
	return append(out, alignBounds(cur))
}

// alignBounds makes both bounds of s DATE or both DATE-TIME. A DATE bound
// paired with a DATE-TIME becomes midnight in the other bound's form.
func alignBounds(s model.Slot) model.Slot {
	startDate := s.StartTS.Kind == model.KindDate
	endDate := s.EndTS.Kind == model.KindDate
	switch {
	case startDate && !endDate:
		s.StartTS = promoteDate(s.StartTS, s.Start, s.EndTS)
	case endDate && !startDate:
		s.EndTS = promoteDate(s.EndTS, s.End, s.StartTS)
	}
	return s
}

func promoteDate(ts model.Timestamp, instant time.Time, like model.Timestamp) model.Timestamp {
	switch like.Kind {
	case model.KindUTC:
		return model.UTC(instant)
	case model.KindZoned:
		return model.Zoned(ts.Wall, like.TZID)
	default:
		return model.Floating(ts.Wall)
	}
}

// SlotOf resolves ev to a slot. It fails for recurring events, events
// without both start and end, and events ending before they start.
func SlotOf(ev *model.Event, loc *time.Location) (model.Slot, bool) {
	if ev.Recurring() || ev.Start == nil || ev.End == nil {
		return model.Slot{}, false
	}
	start := ev.Start.Instant(loc)
	end := ev.End.Instant(loc)
	if end.Before(start) {
		return model.Slot{}, false
	}
	return model.Slot{
		Start:   start,
		End:     end,
		StartTS: *ev.Start,
		EndTS:   *ev.End,
		Event:   ev,
	}, true
}

// MergeOverlapping folds the overlapping single events of cal into blocks.
//
// Output order: non-event components, then events that cannot be resolved
// to a slot, each in their original order, then the merged blocks ascending
// by start.
func MergeOverlapping(cal *model.Calendar, loc *time.Location) *model.Calendar {
	out := &model.Calendar{Components: make([]model.Component, 0, len(cal.Components))}
	var passthrough []model.Component
	var slots []model.Slot

	for _, comp := range cal.Components {
		switch c := comp.(type) {
		case *model.Event:
			if s, ok := SlotOf(c, loc); ok {
				slots = append(slots, s)
				continue
			}
			passthrough = append(passthrough, c)
		case *model.Opaque:
			out.Components = append(out.Components, c)
		}
	}
	out.Components = append(out.Components, passthrough...)

	for _, s := range MergeSlots(slots) {
		ev := s.Event.Clone()
		start, end := s.StartTS, s.EndTS
		ev.Start = &start
		ev.End = &end
		out.Components = append(out.Components, EnsureUID(ev))
	}
	return out
}
