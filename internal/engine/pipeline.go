package engine

import (
	"context"
	"time"

	"icalmerge/internal/ics"
	appLog "icalmerge/internal/log"
	"icalmerge/internal/metrics"
	"icalmerge/internal/model"
)

// Options selects the stages of a build.
type Options struct {
	Sources []ics.Source
	// Offsets holds per-source hour shifts; see OffsetFor.
	Offsets []int64

	HideDetails      bool
	MergeOverlapping bool
	// FutureDays enables the future-window filter when non-nil.
	FutureDays *int
	Strict     bool

	// Location resolves floating and zoned values; nil means time.Local.
	Location *time.Location
}

// Pipeline runs a full fetch, transform and render cycle.
type Pipeline struct {
	opts    Options
	orch    *Orchestrator
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewPipeline returns a Pipeline fetching through f. m may be nil.
func NewPipeline(opts Options, f Fetcher, m *metrics.Metrics) *Pipeline {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	return &Pipeline{
		opts:    opts,
		orch:    NewOrchestrator(f, m),
		metrics: m,
		now:     time.Now,
	}
}

// BuildCalendar produces the merged calendar model.
//
// Stage order: fetch and shift, future filter, redaction, then expansion and
// merging of overlapping events inside the filter window. Merging needs a
// window; without FutureDays recurring events are left unexpanded and only
// single events are merged.
func (p *Pipeline) BuildCalendar(ctx context.Context) (*model.Calendar, error) {
	cal, err := p.orch.Merge(ctx, p.opts.Sources, p.opts.Offsets)
	if err != nil {
		return nil, err
	}

	loc := p.opts.Location
	var window *Window
	if p.opts.FutureDays != nil {
		fo := FilterOptions{
			Now:      p.now(),
			Location: loc,
			Days:     *p.opts.FutureDays,
			Strict:   p.opts.Strict,
		}
		cal = FilterFuture(cal, fo)
		today, horizonEnd := fo.Horizon()
		window = &Window{Start: today, End: horizonEnd}
	}

	if p.opts.HideDetails {
		cal = Redact(cal)
	}

	if p.opts.MergeOverlapping {
		if window != nil {
			cal = ExpandAll(cal, ExpandConfig{Window: *window, Location: loc})
		}
		cal = MergeOverlapping(cal, loc)
	}

	return EnsureUIDs(cal), nil
}

// Build produces the rendered iCalendar text.
func (p *Pipeline) Build(ctx context.Context) (out string, err error) {
	started := time.Now()
	events := 0
	defer func() {
		d := time.Since(started)
		p.metrics.ObserveBuild(err, d, events)
		if err != nil {
			appLog.Error("calendar build failed", err, "duration", d.String())
			return
		}
		appLog.Info("calendar built",
			"sources", len(p.opts.Sources),
			"events", events,
			"duration", d.String(),
		)
	}()

	cal, err := p.BuildCalendar(ctx)
	if err != nil {
		return "", err
	}
	events = len(cal.Events())
	return ics.Render(cal)
}
