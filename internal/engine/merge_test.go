package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"icalmerge/internal/model"
)

type span struct{ start, end time.Time }

func spansOf(cal *model.Calendar) []span {
	var out []span
	for _, ev := range cal.Events() {
		out = append(out, span{ev.Start.Wall, ev.End.Wall})
	}
	return out
}

func TestMergeOverlapping(t *testing.T) {
	day := func(h, m int) time.Time { return at(2024, 1, 10, h, m) }

	tests := []struct {
		name   string
		events []*model.Event
		want   []span
	}{
		{
			name: "overlap",
			events: []*model.Event{
				single("a", day(10, 0), day(12, 0)),
				single("b", day(11, 0), day(13, 0)),
			},
			want: []span{{day(10, 0), day(13, 0)}},
		},
		{
			name: "gap below tolerance",
			events: []*model.Event{
				single("a", day(10, 0), day(12, 0)),
				single("b", day(12, 2), day(14, 0)),
			},
			want: []span{{day(10, 0), day(14, 0)}},
		},
		{
			name: "gap equal to tolerance",
			events: []*model.Event{
				single("a", day(10, 0), day(12, 0)),
				single("b", day(12, 5), day(13, 0)),
			},
			want: []span{{day(10, 0), day(12, 0)}, {day(12, 5), day(13, 0)}},
		},
		{
			name: "touching",
			events: []*model.Event{
				single("a", day(9, 0), day(10, 0)),
				single("b", day(10, 0), day(11, 0)),
			},
			want: []span{{day(9, 0), day(11, 0)}},
		},
		{
			name: "nested and chained",
			events: []*model.Event{
				single("d", day(15, 0), day(17, 0)),
				single("a", day(10, 0), day(18, 0)),
				single("b", day(11, 0), day(12, 0)),
				single("c", day(13, 0), day(14, 0)),
			},
			want: []span{{day(10, 0), day(18, 0)}},
		},
		{
			name: "disjoint unsorted",
			events: []*model.Event{
				single("b", day(14, 0), day(15, 0)),
				single("a", day(10, 0), day(11, 0)),
			},
			want: []span{{day(10, 0), day(11, 0)}, {day(14, 0), day(15, 0)}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			comps := make([]model.Component, len(tt.events))
			for i, ev := range tt.events {
				comps[i] = ev
			}
			got := MergeOverlapping(calendarOf(comps...), time.UTC)
			assert.Equal(t, tt.want, spansOf(got))
		})
	}
}

func TestMergeOverlapping_Identity(t *testing.T) {
	a := single("a", at(2024, 1, 10, 10, 0), at(2024, 1, 10, 12, 0))
	a.Status = model.StatusTentative
	b := single("b", at(2024, 1, 10, 11, 0), at(2024, 1, 10, 15, 0))

	got := MergeOverlapping(calendarOf(b, a), time.UTC).Events()
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].UID)
	assert.Equal(t, model.StatusTentative, got[0].Status)
	assert.Equal(t, at(2024, 1, 10, 15, 0), got[0].End.Wall)

	// Inputs keep their own bounds.
	assert.Equal(t, at(2024, 1, 10, 12, 0), a.End.Wall)
}

func TestMergeOverlapping_Idempotent(t *testing.T) {
	cal := calendarOf(
		single("a", at(2024, 1, 10, 10, 0), at(2024, 1, 10, 12, 0)),
		single("b", at(2024, 1, 10, 11, 0), at(2024, 1, 10, 13, 0)),
		single("c", at(2024, 1, 10, 16, 0), at(2024, 1, 10, 17, 0)),
	)

	once := MergeOverlapping(cal, time.UTC)
	twice := MergeOverlapping(once, time.UTC)
	assert.Equal(t, spansOf(once), spansOf(twice))
}

func TestMergeOverlapping_Passthrough(t *testing.T) {
	tz := &model.Opaque{Name: "VTIMEZONE"}
	recurring := single("r", at(2024, 1, 10, 10, 0), at(2024, 1, 10, 11, 0))
	recurring.RRule = "FREQ=WEEKLY"
	noEnd := &model.Event{UID: "n", Start: floating(at(2024, 1, 10, 10, 30))}
	a := single("a", at(2024, 1, 10, 10, 0), at(2024, 1, 10, 12, 0))

	got := MergeOverlapping(calendarOf(recurring, a, tz, noEnd), time.UTC)
	require.Len(t, got.Components, 4)
	assert.Same(t, tz, got.Components[0])
	assert.Same(t, recurring, got.Components[1])
	assert.Same(t, noEnd, got.Components[2])
	assert.Equal(t, "a", got.Components[3].(*model.Event).UID)
}

func TestMergeOverlapping_MixedKinds(t *testing.T) {
	utcStart := model.UTC(at(2024, 1, 10, 9, 0))
	utcEnd := model.UTC(at(2024, 1, 10, 10, 30))
	u := &model.Event{UID: "u", Start: &utcStart, End: &utcEnd}

	// Floating 10:00 to 11:00 in UTC+1 is 09:00 to 10:00 UTC.
	loc := time.FixedZone("UTC+1", 3600)
	f := single("f", at(2024, 1, 10, 10, 0), at(2024, 1, 10, 11, 0))

	got := MergeOverlapping(calendarOf(u, f), loc).Events()
	require.Len(t, got, 1)
	assert.Equal(t, "u", got[0].UID)
	assert.Equal(t, model.KindUTC, got[0].End.Kind)
	assert.Equal(t, at(2024, 1, 10, 10, 30), got[0].End.Wall)
}

func TestMergeOverlapping_DateWithDateTime(t *testing.T) {
	dayStart := model.Date(2024, time.January, 10)
	dayEnd := model.Date(2024, time.January, 11)
	allDay := &model.Event{UID: "all-day", Start: &dayStart, End: &dayEnd}
	late := single("late", at(2024, 1, 10, 23, 0), at(2024, 1, 11, 1, 0))

	got := MergeOverlapping(calendarOf(allDay, late), time.UTC).Events()
	require.Len(t, got, 1)
	assert.Equal(t, "all-day", got[0].UID)
	assert.Equal(t, model.KindFloating, got[0].Start.Kind)
	assert.Equal(t, at(2024, 1, 10, 0, 0), got[0].Start.Wall)
	assert.Equal(t, model.KindFloating, got[0].End.Kind)
	assert.Equal(t, at(2024, 1, 11, 1, 0), got[0].End.Wall)
	assert.Equal(t, model.KindDate, allDay.Start.Kind)
}

func TestAlignBounds(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*3600)
	date := model.Date(2024, time.January, 10)
	utcEnd := model.UTC(at(2024, 1, 10, 12, 0))
	zonedEnd := model.Zoned(at(2024, 1, 10, 14, 0), "Europe/Athens")
	dateEnd := model.Date(2024, time.January, 11)
	floatStart := model.Floating(at(2024, 1, 9, 22, 0))

	s := alignBounds(model.Slot{Start: date.Instant(loc), StartTS: date, EndTS: utcEnd})
	assert.Equal(t, model.UTC(at(2024, 1, 9, 22, 0)), s.StartTS)

	s = alignBounds(model.Slot{Start: date.Instant(loc), StartTS: date, EndTS: zonedEnd})
	assert.Equal(t, model.Zoned(at(2024, 1, 10, 0, 0), "Europe/Athens"), s.StartTS)

	s = alignBounds(model.Slot{StartTS: floatStart, End: dateEnd.Instant(loc), EndTS: dateEnd})
	assert.Equal(t, model.Floating(at(2024, 1, 11, 0, 0)), s.EndTS)

	s = alignBounds(model.Slot{StartTS: date, EndTS: dateEnd})
	assert.Equal(t, date, s.StartTS)
	assert.Equal(t, dateEnd, s.EndTS)
}

func TestMergeSlots_Empty(t *testing.T) {
	assert.Empty(t, MergeSlots(nil))
}
