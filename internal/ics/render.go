package ics

import (
	"fmt"

	ical "github.com/arran4/golang-ical"

	"icalmerge/internal/model"
)

const (
	propUID      = "UID"
	propSummary  = "SUMMARY"
	propStatus   = "STATUS"
	propDtStart  = "DTSTART"
	propDtEnd    = "DTEND"
	propDtStamp  = "DTSTAMP"
	propCreated  = "CREATED"
	propRRule    = "RRULE"
	productIDVal = "-//icalmerge//icalmerge//EN"
)

// Render serializes cal to iCalendar text.
func Render(cal *model.Calendar) (string, error) {
	out := ical.NewCalendar()
	out.SetProductId(productIDVal)

	for _, comp := range cal.Components {
		switch c := comp.(type) {
		case *model.Event:
			ve, err := renderEvent(c)
			if err != nil {
				return "", err
			}
			out.Components = append(out.Components, ve)
		case *model.Opaque:
			raw, ok := c.Raw.(ical.Component)
			if !ok {
				return "", fmt.Errorf("render: opaque %s has no native component", c.Name)
			}
			out.Components = append(out.Components, raw)
		default:
			return "", fmt.Errorf("render: unexpected component %T", comp)
		}
	}

	return out.Serialize(), nil
}

func renderEvent(ev *model.Event) (*ical.VEvent, error) {
	ve := &ical.VEvent{}
	add := func(name, value string, params map[string][]string) {
		ve.Properties = append(ve.Properties, ical.IANAProperty{
			BaseProperty: ical.BaseProperty{
				IANAToken:      name,
				ICalParameters: params,
				Value:          value,
			},
		})
	}
	addTime := func(name string, ts *model.Timestamp) {
		if ts != nil {
			add(name, ts.Value(), ts.Params())
		}
	}

	if ev.UID != "" {
		add(propUID, ev.UID, nil)
	}
	addTime(propDtStamp, ev.Stamp)
	addTime(propCreated, ev.Created)
	addTime(propDtStart, ev.Start)
	addTime(propDtEnd, ev.End)
	if ev.Summary != "" {
		add(propSummary, ev.Summary, nil)
	}
	if ev.Status != model.StatusNone {
		add(propStatus, string(ev.Status), nil)
	}
	if ev.RRule != "" {
		add(propRRule, ev.RRule, nil)
	}
	for _, p := range ev.Extra {
		add(p.Name, p.Value, copyParams(p.Params))
	}

	for _, child := range ev.Children {
		raw, ok := child.Raw.(ical.Component)
		if !ok {
			return nil, fmt.Errorf("render: event %s child %s has no native component", ev.UID, child.Name)
		}
		ve.Components = append(ve.Components, raw)
	}
	return ve, nil
}
