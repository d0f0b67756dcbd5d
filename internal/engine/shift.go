package engine

import "icalmerge/internal/model"

// ShiftEvent moves the start, end and creation timestamps of ev by hours.
//
// A zero offset returns ev itself. Otherwise a copy is returned: floating and
// zoned values shift their wall clock (the TZID is kept, not reinterpreted),
// UTC values shift the instant, and date-only values are left alone. A value
// whose shift would leave the representable range keeps its original value.
func ShiftEvent(ev *model.Event, hours int64) *model.Event {
	if hours == 0 {
		return ev
	}

	out := ev.Clone()
	out.Start = shiftPtr(ev.Start, hours)
	out.End = shiftPtr(ev.End, hours)
	out.Stamp = shiftPtr(ev.Stamp, hours)
	out.Created = shiftPtr(ev.Created, hours)
	return out
}

func shiftPtr(ts *model.Timestamp, hours int64) *model.Timestamp {
	if ts == nil {
		return nil
	}
	s := ts.Shift(hours)
	return &s
}

// ShiftComponents applies ShiftEvent to every event of comps. Non-event
// components pass through unchanged.
func ShiftComponents(comps []model.Component, hours int64) []model.Component {
	if hours == 0 {
		return comps
	}

	out := make([]model.Component, len(comps))
	for i, comp := range comps {
		switch c := comp.(type) {
		case *model.Event:
			out[i] = ShiftEvent(c, hours)
		case *model.Opaque:
			out[i] = c
		}
	}
	return out
}
