package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"icalmerge/internal/model"
)

func TestRedactLabel(t *testing.T) {
	assert.Equal(t, LabelBlocked, RedactLabel(model.StatusNone))
	assert.Equal(t, LabelBlocked, RedactLabel(model.StatusConfirmed))
	assert.Equal(t, LabelTentative, RedactLabel(model.StatusTentative))
	assert.Equal(t, LabelCancelled, RedactLabel(model.StatusCancelled))
}

func TestRedactEvent(t *testing.T) {
	stamp := model.UTC(at(2024, 1, 1, 0, 0))
	ev := single("secret@corp", at(2024, 1, 10, 10, 0), at(2024, 1, 10, 11, 0))
	ev.Summary = "Board meeting"
	ev.Status = model.StatusTentative
	ev.Stamp = &stamp
	ev.RRule = "FREQ=WEEKLY"
	ev.Extra = []model.Property{
		{Name: "LOCATION", Value: "HQ"},
		{Name: "DESCRIPTION", Value: "quarterly numbers"},
		{Name: "ATTENDEE", Value: "mailto:ceo@corp"},
		{Name: "EXDATE", Value: "20240117T100000"},
	}
	ev.Children = []*model.Opaque{{Name: "VALARM"}}

	out := RedactEvent(ev)
	assert.Equal(t, "secret@corp", out.UID)
	assert.Equal(t, LabelTentative, out.Summary)
	assert.Equal(t, model.StatusTentative, out.Status)
	assert.Equal(t, ev.Start, out.Start)
	assert.Equal(t, ev.End, out.End)
	assert.Equal(t, "FREQ=WEEKLY", out.RRule)
	assert.Nil(t, out.Stamp)
	assert.Empty(t, out.Children)
	assert.Equal(t, []model.Property{{Name: "EXDATE", Value: "20240117T100000"}}, out.Extra)

	// The input keeps its details.
	assert.Equal(t, "Board meeting", ev.Summary)
	assert.Len(t, ev.Extra, 4)
}

func TestRedactEvent_SynthesizesUID(t *testing.T) {
	stableUIDs(t)
	out := RedactEvent(&model.Event{Start: floating(at(2024, 1, 10, 10, 0))})
	assert.Equal(t, "uid-1", out.UID)
	assert.Equal(t, LabelBlocked, out.Summary)
}

func TestRedact(t *testing.T) {
	tz := &model.Opaque{Name: "VTIMEZONE"}
	ev := single("a", at(2024, 1, 10, 10, 0), at(2024, 1, 10, 11, 0))

	got := Redact(calendarOf(tz, ev))
	require.Len(t, got.Components, 2)
	assert.Same(t, tz, got.Components[0])
	assert.Equal(t, LabelBlocked, got.Components[1].(*model.Event).Summary)
}
