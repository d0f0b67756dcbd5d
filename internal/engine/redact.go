package engine

import "icalmerge/internal/model"

// Placeholder summaries used by RedactEvent.
const (
	LabelBlocked   = "Blocked"
	LabelTentative = "Tentative"
	LabelCancelled = "Cancelled"
)

// recurrenceProps are the Extra properties kept by RedactEvent besides RRULE.
var recurrenceProps = map[string]bool{
	"EXDATE":        true,
	"RDATE":         true,
	"RECURRENCE-ID": true,
}

// RedactLabel returns the placeholder summary for status.
func RedactLabel(status model.Status) string {
	switch status {
	case model.StatusTentative:
		return LabelTentative
	case model.StatusCancelled:
		return LabelCancelled
	default:
		return LabelBlocked
	}
}

// RedactEvent returns a new event that keeps only start, end, status, uid
// (synthesized when absent) and recurrence metadata. The summary becomes a
// placeholder derived from the status.
func RedactEvent(ev *model.Event) *model.Event {
	out := &model.Event{
		UID:     ev.UID,
		Status:  ev.Status,
		Summary: RedactLabel(ev.Status),
		Start:   ev.Start.Clone(),
		End:     ev.End.Clone(),
		RRule:   ev.RRule,
	}
	for _, p := range ev.Extra {
		if recurrenceProps[p.Name] {
			out.Extra = append(out.Extra, p.Clone())
		}
	}
	return EnsureUID(out)
}

// Redact applies RedactEvent to every event of cal; other components pass
// through unchanged.
func Redact(cal *model.Calendar) *model.Calendar {
	out := &model.Calendar{Components: make([]model.Component, 0, len(cal.Components))}
	for _, comp := range cal.Components {
		switch c := comp.(type) {
		case *model.Event:
			out.Components = append(out.Components, RedactEvent(c))
		case *model.Opaque:
			out.Components = append(out.Components, c)
		}
	}
	return out
}
