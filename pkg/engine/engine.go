// Package engine is the retrieval orchestrator. It expands requested
// types through the aggregator pipeline, issues range queries against a
// storage backend, materializes raw records into features with shared
// group identity, runs the aggregation pass, and filters results through
// the compiled type matcher.
package engine

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/gffdb/gffdb/pkg/aggregate"
	"github.com/gffdb/gffdb/pkg/coords"
	"github.com/gffdb/gffdb/pkg/gff"
	"github.com/gffdb/gffdb/pkg/logger"
	"github.com/gffdb/gffdb/pkg/match"
	"github.com/gffdb/gffdb/pkg/storage"
)

var tracer = otel.Tracer("gffdb/pkg/engine")

// ErrInvalidRange is returned when a requested window fails basic sanity
// after normalization, e.g. a derived segment with non-positive length.
var ErrInvalidRange = errors.New("invalid range")

const defaultMatcherCacheSize = 1000

// Engine ties the retrieval components together over one storage
// backend. It is safe for concurrent retrievals: the pipeline and
// matcher cache are read-mostly after setup, and all per-retrieval state
// is call-scoped.
type Engine struct {
	datastore storage.Backend
	resolver  *coords.Resolver
	pipeline  *aggregate.Pipeline
	matchers  *match.Cache
	logger    logger.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used for aggregation warnings.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithPipeline replaces the default aggregator pipeline
// (transcript, coding, alignment) wholesale.
func WithPipeline(p *aggregate.Pipeline) Option {
	return func(e *Engine) {
		e.pipeline = p
	}
}

// WithMatcherCacheSize bounds the compiled-matcher cache.
func WithMatcherCacheSize(entries int64) Option {
	return func(e *Engine) {
		e.matchers = match.NewCache(entries)
	}
}

// New builds an Engine over the backend. The backend's lifetime belongs
// to the caller; Close releases only the engine's own resources.
func New(datastore storage.Backend, opts ...Option) *Engine {
	e := &Engine{
		datastore: datastore,
		resolver:  coords.NewResolver(datastore),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = logger.NewNoopLogger()
	}
	if e.pipeline == nil {
		e.pipeline = aggregate.NewPipeline(aggregate.WithLogger(e.logger))
		e.pipeline.Add(aggregate.Transcript(), aggregate.Coding(), aggregate.Alignment())
	}
	if e.matchers == nil {
		e.matchers = match.NewCache(defaultMatcherCacheSize)
	}
	return e
}

// Pipeline exposes the aggregator pipeline for registration of
// additional aggregators.
func (e *Engine) Pipeline() *aggregate.Pipeline {
	return e.pipeline
}

// Close releases the engine's caches. The storage backend is not closed.
func (e *Engine) Close() {
	e.matchers.Close()
}

// SegmentRequest describes a coordinate frame to construct. The frame is
// anchored on the named landmark; a sub-frame is derived from Offset and
// Length (0-based, used when Length > 0) or from Start and Stop (1-based
// relative, both zero meaning the whole landmark span).
type SegmentRequest struct {
	Name  string
	Class string

	Start int64
	Stop  int64

	Offset int64
	Length int64

	// Absolute anchors the frame in the reference sequence's native
	// orientation instead of the landmark's own strand.
	Absolute bool
}

// Segment resolves a landmark into a coordinate frame.
func (e *Engine) Segment(ctx context.Context, req SegmentRequest) (gff.Segment, error) {
	ctx, span := tracer.Start(ctx, "engine.Segment", trace.WithAttributes(
		attribute.String("landmark", req.Name),
		attribute.String("class", req.Class),
	))
	defer span.End()

	seg, err := e.resolver.Resolve(ctx, req.Name, req.Class)
	if err != nil {
		return gff.Segment{}, err
	}
	if req.Absolute {
		seg.Strand = gff.StrandForward
	}

	switch {
	case req.Length != 0:
		sub, err := seg.SubOffset(req.Offset, req.Length)
		if err != nil {
			return gff.Segment{}, fmt.Errorf("%w: %v", ErrInvalidRange, err)
		}
		seg = sub
	case req.Start != 0 || req.Stop != 0:
		seg = seg.SubRange(req.Start, req.Stop)
	}

	if seg.Length() <= 0 {
		return gff.Segment{}, fmt.Errorf("%w: %s spans no bases", ErrInvalidRange, seg)
	}
	return seg, nil
}

// TypesRequest restricts a type enumeration to a landmark window. The
// zero value enumerates the whole database.
type TypesRequest struct {
	Name  string
	Class string
	Start int64
	Stop  int64
}

// Types lists the distinct feature types with occurrence counts,
// optionally restricted to a landmark window.
func (e *Engine) Types(ctx context.Context, req TypesRequest) ([]storage.TypeCount, error) {
	ctx, span := tracer.Start(ctx, "engine.Types")
	defer span.End()

	var filter storage.TypesFilter
	if req.Name != "" {
		seg, err := e.Segment(ctx, SegmentRequest{
			Name:  req.Name,
			Class: req.Class,
			Start: req.Start,
			Stop:  req.Stop,
		})
		if err != nil {
			return nil, err
		}
		filter = storage.TypesFilter{Ref: seg.Ref, Start: seg.Start, Stop: seg.Stop}
	}
	return e.datastore.EnumerateTypes(ctx, filter)
}

// FeaturesByGroup fetches the raw features of one composite object by
// its group identity, bypassing range queries and aggregation.
func (e *Engine) FeaturesByGroup(ctx context.Context, class, name string) ([]*gff.Feature, error) {
	ctx, span := tracer.Start(ctx, "engine.FeaturesByGroup", trace.WithAttributes(
		attribute.String("group", class+":"+name),
	))
	defer span.End()

	it, err := e.datastore.FetchGroup(ctx, class, name)
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
	return features, nil
}

// materializer converts raw records into features. With caching enabled,
// records carrying the same (class, name, target span) within one
// retrieval share a single *Group instance; streaming retrievals run
// uncached so memory stays bounded.
type materializer struct {
	arena map[gff.GroupKey]*gff.Group
}

func newMaterializer(cached bool) *materializer {
	m := &materializer{}
	if cached {
		m.arena = make(map[gff.GroupKey]*gff.Group)
	}
	return m
}

func (m *materializer) group(r *storage.Record) *gff.Group {
	if !r.Grouped() {
		return nil
	}
	fresh := func() *gff.Group {
		return &gff.Group{
			Class:       r.GroupClass,
			Name:        r.GroupName,
			TargetStart: r.TargetStart,
			TargetStop:  r.TargetStop,
		}
	}
	if m.arena == nil {
		return fresh()
	}
	key := r.GroupKey()
	if g, ok := m.arena[key]; ok {
		return g
	}
	g := fresh()
	m.arena[key] = g
	return g
}

func (m *materializer) feature(r *storage.Record) *gff.Feature {
	return &gff.Feature{
		ID:          r.ID,
		Ref:         r.Ref,
		Start:       r.Start,
		Stop:        r.Stop,
		Type:        r.Type(),
		Score:       r.Score,
		Strand:      r.Strand,
		Phase:       r.Phase,
		Group:       m.group(r),
		TargetStart: r.TargetStart,
		TargetStop:  r.TargetStop,
	}
}
