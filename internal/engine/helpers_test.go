package engine

import (
	"fmt"
	"testing"
	"time"

	"icalmerge/internal/model"
)

func at(y int, m time.Month, d, h, min int) time.Time {
	return time.Date(y, m, d, h, min, 0, 0, time.UTC)
}

func floating(t time.Time) *model.Timestamp {
	ts := model.Floating(t)
	return &ts
}

func single(uid string, start, end time.Time) *model.Event {
	return &model.Event{
		UID:     uid,
		Summary: uid,
		Start:   floating(start),
		End:     floating(end),
	}
}

func calendarOf(comps ...model.Component) *model.Calendar {
	return &model.Calendar{Components: comps}
}

// stableUIDs makes newUID return "uid-1", "uid-2", ... for the test.
func stableUIDs(t *testing.T) {
	t.Helper()
	prev := newUID
	n := 0
	newUID = func() string {
		n++
		return fmt.Sprintf("uid-%d", n)
	}
	t.Cleanup(func() { newUID = prev })
}
