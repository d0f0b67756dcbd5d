package engine

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"icalmerge/internal/ics"
	appLog "icalmerge/internal/log"
	"icalmerge/internal/metrics"
	"icalmerge/internal/model"
)

// Fetcher retrieves the raw body of a source.
type Fetcher interface {
	Fetch(ctx context.Context, src ics.Source) ([]byte, error)
}

// Orchestrator fetches all sources concurrently and concatenates their
// shifted components in source order.
type Orchestrator struct {
	fetcher Fetcher
	metrics *metrics.Metrics
}

// NewOrchestrator returns an Orchestrator using f. m may be nil.
func NewOrchestrator(f Fetcher, m *metrics.Metrics) *Orchestrator {
	return &Orchestrator{fetcher: f, metrics: m}
}

// OffsetFor returns the hour offset of the i-th source: offsets[i] when
// present, else the last offset, else 0.
func OffsetFor(i int, offsets []int64) int64 {
	switch {
	case len(offsets) == 0:
		return 0
	case i < len(offsets):
		return offsets[i]
	default:
		return offsets[len(offsets)-1]
	}
}

// Merge fetches, parses and shifts every source. The first failure cancels
// the remaining fetches and is returned; no partial calendar is produced.
// UIDs repeated from an earlier source are renamed, see separateSources.
func (o *Orchestrator) Merge(ctx context.Context, sources []ics.Source, offsets []int64) (*model.Calendar, error) {
	results := make([][]model.Component, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	for i, src := range sources {
		g.Go(func() error {
			comps, err := o.load(gctx, src)
			if err != nil {
				return err
			}
			results[i] = ShiftComponents(comps, OffsetFor(i, offsets))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	separateSources(results)

	n := 0
	for _, r := range results {
		n += len(r)
	}
	out := &model.Calendar{Components: make([]model.Component, 0, n)}
	for _, r := range results {
		out.Components = append(out.Components, r...)
	}
	return out, nil
}

func (o *Orchestrator) load(ctx context.Context, src ics.Source) (comps []model.Component, err error) {
	started := time.Now()
	defer func() {
		o.metrics.ObserveFetch(src.ID, err, time.Since(started))
	}()

	body, err := o.fetcher.Fetch(ctx, src)
	if err != nil {
		return nil, err
	}
	cal, err := ics.Parse(src, body)
	if err != nil {
		return nil, err
	}

	appLog.Debug("source loaded",
		"source", src.ID,
		"components", len(cal.Components),
		"duration", time.Since(started).String(),
	)
	return cal.Components, nil
}
