package ics

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	ical "github.com/arran4/golang-ical"

	appLog "icalmerge/internal/log"
	"icalmerge/internal/model"
)

// ErrMalformedCalendar is wrapped by every ParseError.
var ErrMalformedCalendar = errors.New("malformed calendar")

// ParseError reports an ICS payload that could not be parsed.
type ParseError struct {
	Source Source
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s (%s): %v", e.Source.ID, RedactURL(e.Source.URL), e.Err)
}

func (e *ParseError) Unwrap() []error {
	return []error{ErrMalformedCalendar, e.Err}
}

// Parse converts a single ICS payload into the calendar model.
//
//   - VEVENTs become *model.Event; DTSTART/DTEND/DTSTAMP/CREATED values that
//     cannot be read are kept verbatim in Extra.
//   - every other component is wrapped in *model.Opaque and rendered back
//     unchanged.
//   - calendar-level properties (PRODID, X-WR-CALNAME, ...) are dropped.
func Parse(src Source, body []byte) (*model.Calendar, error) {
	if err := validateICalFormat(body); err != nil {
		return nil, &ParseError{Source: src, Err: err}
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		appLog.Error("ics parse failed", err, "id", src.ID, "url", RedactURL(src.URL))
		return nil, &ParseError{Source: src, Err: err}
	}

	out := &model.Calendar{Components: make([]model.Component, 0, len(cal.Components))}
	events := 0
	for _, comp := range cal.Components {
		if ve, ok := comp.(*ical.VEvent); ok {
			out.Components = append(out.Components, parseVEvent(ve))
			events++
			continue
		}
		out.Components = append(out.Components, &model.Opaque{Name: componentName(comp), Raw: comp})
	}

	appLog.Debug("ics parse completed", "id", src.ID, "url", RedactURL(src.URL),
		"event_count", events, "component_count", len(out.Components))
	return out, nil
}

func validateICalFormat(body []byte) error {
	trimmed := bytes.TrimSpace(bytes.TrimPrefix(body, []byte("\xef\xbb\xbf")))
	if len(trimmed) == 0 {
		return errors.New("empty ICS body")
	}

	upper := strings.ToUpper(string(trimmed[:min(len(trimmed), 64)]))
	if strings.HasPrefix(upper, "<!DOCTYPE") || strings.HasPrefix(upper, "<HTML") {
		return errors.New("received HTML instead of iCalendar data")
	}
	if !strings.HasPrefix(upper, "BEGIN:VCALENDAR") {
		return fmt.Errorf("expected BEGIN:VCALENDAR, got %q", firstLine(string(trimmed)))
	}
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexAny(s, "\r\n"); i >= 0 {
		s = s[:i]
	}
	if len(s) > 80 {
		s = s[:80]
	}
	return s
}

func parseVEvent(ve *ical.VEvent) *model.Event {
	ev := &model.Event{}

	for _, p := range ve.Properties {
		name := strings.ToUpper(p.IANAToken)
		switch name {
		case propUID:
			ev.UID = p.Value
			continue
		case propSummary:
			ev.Summary = p.Value
			continue
		case propStatus:
			ev.Status = model.Status(strings.ToUpper(strings.TrimSpace(p.Value)))
			continue
		case propRRule:
			if ev.RRule == "" {
				ev.RRule = strings.TrimSpace(p.Value)
				continue
			}
		case propDtStart, propDtEnd, propDtStamp, propCreated:
			if ts, err := model.ParseTimestamp(p.Value, p.ICalParameters); err == nil {
				assignTimestamp(ev, name, ts)
				continue
			}
		}
		ev.Extra = append(ev.Extra, model.Property{
			Name:   name,
			Params: copyParams(p.ICalParameters),
			Value:  p.Value,
		})
	}

	for _, child := range ve.Components {
		ev.Children = append(ev.Children, &model.Opaque{Name: componentName(child), Raw: child})
	}
	return ev
}

func assignTimestamp(ev *model.Event, name string, ts model.Timestamp) {
	switch name {
	case propDtStart:
		ev.Start = &ts
	case propDtEnd:
		ev.End = &ts
	case propDtStamp:
		ev.Stamp = &ts
	case propCreated:
		ev.Created = &ts
	}
}

func copyParams(in map[string][]string) map[string][]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string][]string, len(in))
	for k, v := range in {
		out[k] = append([]string(nil), v...)
	}
	return out
}

func componentName(c ical.Component) string {
	switch c.(type) {
	case *ical.VEvent:
		return "VEVENT"
	case *ical.VTimezone:
		return "VTIMEZONE"
	case *ical.VTodo:
		return "VTODO"
	case *ical.VJournal:
		return "VJOURNAL"
	case *ical.VAlarm:
		return "VALARM"
	default:
		return "X-COMPONENT"
	}
}
