package engine

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/gffdb/gffdb/pkg/aggregate"
	"github.com/gffdb/gffdb/pkg/gff"
	"github.com/gffdb/gffdb/pkg/match"
	"github.com/gffdb/gffdb/pkg/storage"
)

// FeaturesRequest describes one retrieval.
type FeaturesRequest struct {
	// Segment is the coordinate frame to query, usually from
	// Engine.Segment. When nil, Name/Class resolve one; when those are
	// empty too the query is unrestricted.
	Segment *gff.Segment
	Name    string
	Class   string

	// Start and Stop restrict the window: relative to the segment's
	// frame when one is in play, absolute otherwise. Both zero means the
	// whole segment (or whole database). Inverted bounds are swapped.
	Start int64
	Stop  int64

	Policy storage.RangePolicy

	// Types are "method:source" patterns; empty matches everything.
	Types []string

	// Merge enables the disaggregation/aggregation passes. Without it
	// raw primitive features are returned, still filtered by Types.
	Merge bool
}

// queryPlan is the per-retrieval state derived from a request before the
// backend is consulted.
type queryPlan struct {
	query   storage.RangeQuery
	matcher *match.Matcher

	// pipeline is the narrowed aggregator pipeline, nil when merging is
	// off. empty flags a composite request that expanded to no primitive
	// types and therefore returns nothing.
	pipeline *aggregate.Pipeline
	empty    bool
}

func (e *Engine) plan(ctx context.Context, req FeaturesRequest, stream bool) (*queryPlan, error) {
	patterns := match.Parse(req.Types)

	matcher, err := e.matchers.Get(patterns)
	if err != nil {
		return nil, err
	}

	plan := &queryPlan{matcher: matcher}

	effective := patterns
	if req.Merge {
		pipeline, expanded := e.pipeline.ForRequest(patterns)
		plan.pipeline = pipeline
		if len(patterns) > 0 {
			effective = expanded
			if len(expanded) == 0 {
				plan.empty = true
				return plan, nil
			}
		}
	}

	seg := req.Segment
	if seg == nil && req.Name != "" {
		resolved, err := e.resolver.Resolve(ctx, req.Name, req.Class)
		if err != nil {
			return nil, err
		}
		seg = &resolved
	}

	start, stop := req.Start, req.Stop
	if start > stop {
		start, stop = stop, start
	}
	if seg != nil {
		if start == 0 && stop == 0 {
			start, stop = seg.Start, seg.Stop
		} else {
			sub := seg.SubRange(start, stop)
			start, stop = sub.Start, sub.Stop
		}
		plan.query.Ref = seg.Ref
	}

	plan.query.Policy = req.Policy
	plan.query.Start = start
	plan.query.Stop = stop
	plan.query.Types = match.StorageFilters(effective)
	plan.query.Stream = stream
	return plan, nil
}

// Features runs a batch retrieval: the full candidate set is
// materialized, aggregated globally by group identity, then filtered
// through the predicate built from the originally requested types.
func (e *Engine) Features(ctx context.Context, req FeaturesRequest) ([]*gff.Feature, error) {
	ctx, span := tracer.Start(ctx, "engine.Features", trace.WithAttributes(
		attribute.String("landmark", req.Name),
		attribute.Bool("merge", req.Merge),
	))
	defer span.End()

	plan, err := e.plan(ctx, req, false)
	if err != nil {
		return nil, err
	}
	if plan.empty {
		return nil, nil
	}

	it, err := e.datastore.FetchRange(ctx, plan.query)
	if err != nil {
		return nil, err
	}
	records, err := storage.Drain(ctx, it)
	if err != nil {
		return nil, err
	}

	mat := newMaterializer(true)
	features := make([]*gff.Feature, 0, len(records))
	for _, r := range records {
		features = append(features, mat.feature(r))
	}

	if plan.pipeline == nil {
		var out []*gff.Feature
		for _, f := range features {
			if plan.matcher.MatchFeature(f) {
				out = append(out, f)
			}
		}
		return out, nil
	}

	return aggregateAll(features, plan.pipeline, plan.matcher)
}

// aggregateAll groups the whole candidate set by group identity, hands
// each run to the pipeline, and filters every candidate through the
// original predicate. Groups keep first-seen order; ungrouped features
// stay in place as their own runs.
func aggregateAll(features []*gff.Feature, pipeline *aggregate.Pipeline, matcher *match.Matcher) ([]*gff.Feature, error) {
	type slot struct {
		single *gff.Feature
		run    []*gff.Feature
	}

	var slots []*slot
	runs := make(map[gff.GroupKey]*slot)
	for _, f := range features {
		if f.Group == nil {
			slots = append(slots, &slot{single: f})
			continue
		}
		key := f.Group.Key()
		s, ok := runs[key]
		if !ok {
			s = &slot{}
			runs[key] = s
			slots = append(slots, s)
		}
		s.run = append(s.run, f)
	}

	var out []*gff.Feature
	keep := func(candidates []*gff.Feature) {
		for _, f := range candidates {
			if matcher.MatchFeature(f) {
				out = append(out, f)
			}
		}
	}

	for _, s := range slots {
		if s.single != nil {
			keep([]*gff.Feature{s.single})
			continue
		}
		candidates, claimed, err := pipeline.Aggregate(s.run)
		if err != nil {
			return nil, err
		}
		if claimed {
			keep(candidates)
		} else {
			keep(s.run)
		}
	}
	return out, nil
}

// StreamFeatures runs a lazy retrieval backed directly by the storage
// cursor. Aggregation looks back one group run at a time, so an
// aggregator that needs non-adjacent grouping will see such a group as
// separate runs; batch Features has no such restriction. The iterator
// must be stopped (or drained) to release the cursor.
func (e *Engine) StreamFeatures(ctx context.Context, req FeaturesRequest) (storage.Iterator[*gff.Feature], error) {
	ctx, span := tracer.Start(ctx, "engine.StreamFeatures", trace.WithAttributes(
		attribute.String("landmark", req.Name),
		attribute.Bool("merge", req.Merge),
	))
	defer span.End()

	plan, err := e.plan(ctx, req, true)
	if err != nil {
		return nil, err
	}
	if plan.empty {
		return storage.NewStaticIterator[*gff.Feature](nil), nil
	}

	records, err := e.datastore.FetchRange(ctx, plan.query)
	if err != nil {
		return nil, err
	}

	return &featureIterator{
		records:  records,
		mat:      newMaterializer(false),
		pipeline: plan.pipeline,
		matcher:  plan.matcher,
	}, nil
}

// featureIterator adapts a raw record cursor into a feature sequence,
// flushing one group run at a time.
type featureIterator struct {
	records  storage.RecordIterator
	mat      *materializer
	pipeline *aggregate.Pipeline
	matcher  *match.Matcher

	run     []*gff.Feature
	pending []*gff.Feature
	done    bool
}

var _ storage.Iterator[*gff.Feature] = (*featureIterator)(nil)

func (i *featureIterator) Next(ctx context.Context) (*gff.Feature, error) {
	for {
		if len(i.pending) > 0 {
			next := i.pending[0]
			i.pending = i.pending[1:]
			return next, nil
		}
		if i.done {
			return nil, storage.ErrIteratorDone
		}

		record, err := i.records.Next(ctx)
		if err != nil {
			if !errors.Is(err, storage.ErrIteratorDone) {
				return nil, err
			}
			i.done = true
			i.records.Stop()
			if err := i.flush(); err != nil {
				return nil, err
			}
			continue
		}

		f := i.mat.feature(record)
		if f.Group == nil {
			// an ungrouped record is its own run; flush anything pending
			// first to keep delivery order
			if err := i.flush(); err != nil {
				return nil, err
			}
			if i.matcher.MatchFeature(f) {
				i.pending = append(i.pending, f)
			}
			continue
		}

		if len(i.run) > 0 && !i.run[0].Group.Equal(f.Group) {
			if err := i.flush(); err != nil {
				return nil, err
			}
		}
		i.run = append(i.run, f)
	}
}

// flush hands the accumulated run to the pipeline and queues the
// surviving candidates.
func (i *featureIterator) flush() error {
	if len(i.run) == 0 {
		return nil
	}
	run := i.run
	i.run = nil

	candidates := run
	if i.pipeline != nil {
		aggregated, claimed, err := i.pipeline.Aggregate(run)
		if err != nil {
			return err
		}
		if claimed {
			candidates = aggregated
		}
	}
	for _, f := range candidates {
		if i.matcher.MatchFeature(f) {
			i.pending = append(i.pending, f)
		}
	}
	return nil
}

func (i *featureIterator) Stop() {
	i.done = true
	i.records.Stop()
}
