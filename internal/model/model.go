package model

import "time"

// Status is the iCalendar STATUS of an event.
type Status string

const (
	StatusNone      Status = ""
	StatusConfirmed Status = "CONFIRMED"
	StatusTentative Status = "TENTATIVE"
	StatusCancelled Status = "CANCELLED"
)

// Property is a single iCalendar content line kept verbatim.
type Property struct {
	Name   string
	Params map[string][]string
	Value  string
}

// Clone returns a deep copy of p.
func (p Property) Clone() Property {
	out := Property{Name: p.Name, Value: p.Value}
	if p.Params != nil {
		out.Params = make(map[string][]string, len(p.Params))
		for k, v := range p.Params {
			out.Params[k] = append([]string(nil), v...)
		}
	}
	return out
}

// Component is either an *Event or an *Opaque. The set is closed: stages
// switch on the concrete type and treat anything else as a programming error.
type Component interface {
	component()
}

// Event is a normalized VEVENT.
type Event struct {
	UID     string
	Summary string
	Status  Status

	Start   *Timestamp
	End     *Timestamp
	Stamp   *Timestamp // DTSTAMP
	Created *Timestamp // CREATED

	// RRule is the raw rule text without the "RRULE:" prefix.
	RRule string

	// Extra holds every other property in source order.
	Extra []Property

	// Children holds nested components such as VALARM.
	Children []*Opaque
}

func (*Event) component() {}

// Recurring reports whether the event carries a recurrence rule.
func (e *Event) Recurring() bool {
	return e.RRule != ""
}

// Clone returns a deep copy of e.
func (e *Event) Clone() *Event {
	out := *e
	out.Start = e.Start.Clone()
	out.End = e.End.Clone()
	out.Stamp = e.Stamp.Clone()
	out.Created = e.Created.Clone()
	if e.Extra != nil {
		out.Extra = make([]Property, len(e.Extra))
		for i, p := range e.Extra {
			out.Extra[i] = p.Clone()
		}
	}
	if e.Children != nil {
		out.Children = append([]*Opaque(nil), e.Children...)
	}
	return &out
}

// ExtraValues returns every Extra property with the given name.
func (e *Event) ExtraValues(name string) []Property {
	var out []Property
	for _, p := range e.Extra {
		if p.Name == name {
			out = append(out, p)
		}
	}
	return out
}

// Opaque is a component the engine does not interpret (VTIMEZONE, VTODO,
// VALARM, ...). Raw is the parser's native value and is rendered back as is.
type Opaque struct {
	Name string
	Raw  any
}

func (*Opaque) component() {}

// Calendar is an unordered sequence of components.
type Calendar struct {
	Components []Component
}

// Events returns the events of c in order.
func (c *Calendar) Events() []*Event {
	out := make([]*Event, 0, len(c.Components))
	for _, comp := range c.Components {
		if ev, ok := comp.(*Event); ok {
			out = append(out, ev)
		}
	}
	return out
}

// Slot is a resolved time span used for overlap computations. StartTS and
// EndTS are the source representations of Start and End; Event is the
// constituent that lends the slot its identity.
type Slot struct {
	Start   time.Time
	End     time.Time
	StartTS Timestamp
	EndTS   Timestamp
	Event   *Event
}
