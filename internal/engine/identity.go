package engine

import (
	"github.com/google/uuid"

	"icalmerge/internal/model"
)

// newUID is swapped in tests that need stable identities.
var newUID = func() string {
	return uuid.NewString()
}

// EnsureUID gives ev a synthesized UID when it has none.
func EnsureUID(ev *model.Event) *model.Event {
	if ev.UID == "" {
		ev.UID = newUID()
	}
	return ev
}

// recurrenceID returns the RECURRENCE-ID value of ev, or "" for a series
// master or a single event.
func recurrenceID(ev *model.Event) string {
	for _, p := range ev.Extra {
		if p.Name == "RECURRENCE-ID" {
			return p.Value
		}
	}
	return ""
}

func identityKey(ev *model.Event) string {
	return ev.UID + "\x00" + recurrenceID(ev)
}

// EnsureUIDs makes every event identity in cal unique. Events without a UID
// and repeats of an identity already seen get a fresh UID. An override shares
// its master's UID and is told apart by its RECURRENCE-ID.
func EnsureUIDs(cal *model.Calendar) *model.Calendar {
	seen := make(map[string]bool)
	for _, comp := range cal.Components {
		ev, ok := comp.(*model.Event)
		if !ok {
			continue
		}
		EnsureUID(ev)
		if seen[identityKey(ev)] {
			ev.UID = newUID()
		}
		seen[identityKey(ev)] = true
	}
	return cal
}

// separateSources renames the UIDs a source shares with an earlier source.
// Each repeated UID maps to one fresh UID per source, so a series and its
// overrides stay together.
func separateSources(sources [][]model.Component) {
	taken := make(map[string]bool)
	for _, comps := range sources {
		renamed := make(map[string]string)
		var own []string
		for _, comp := range comps {
			ev, ok := comp.(*model.Event)
			if !ok || ev.UID == "" {
				continue
			}
			if taken[ev.UID] {
				fresh, ok := renamed[ev.UID]
				if !ok {
					fresh = newUID()
					renamed[ev.UID] = fresh
				}
				ev.UID = fresh
			}
			own = append(own, ev.UID)
		}
		for _, uid := range own {
			taken[uid] = true
		}
	}
}
