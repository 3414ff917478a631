// Package aggregate reassembles flat annotation records into composite
// features. Aggregators are two-sided: they expand a requested composite
// type into the primitive types actually stored (disaggregation), and
// collapse a run of same-group primitive features into composite
// features (aggregation).
package aggregate

import (
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/gffdb/gffdb/pkg/gff"
	"github.com/gffdb/gffdb/pkg/logger"
	"github.com/gffdb/gffdb/pkg/match"
)

// Result is the outcome of one aggregation attempt over a group run.
type Result struct {
	// Composites are the assembled features.
	Composites []*gff.Feature

	// Remainder holds the run's features the aggregator did not consume;
	// they stay eligible for the caller's type filter as-is.
	Remainder []*gff.Feature
}

// Aggregator is one named aggregation policy.
type Aggregator interface {
	Name() string

	// Disaggregate may replace a requested type pattern with the
	// primitive patterns it is assembled from. It returns false when the
	// pattern is not recognized.
	Disaggregate(req match.TypePattern) ([]match.TypePattern, bool)

	// Aggregate inspects a run of features sharing one group and returns
	// a non-nil Result when it claims the run, nil to decline. An error
	// aborts the whole retrieval.
	Aggregate(run []*gff.Feature) (*Result, error)
}

// Pipeline is a mutable ordered list of aggregators. Disaggregation
// consults aggregators in registration order; aggregation consults them
// in reverse registration order, so higher-level composites registered
// later run first on each run. Safe for concurrent readers once set up.
type Pipeline struct {
	mu          sync.RWMutex
	aggregators []Aggregator
	logger      logger.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger used for aggregator-conflict warnings.
func WithLogger(l logger.Logger) Option {
	return func(p *Pipeline) {
		p.logger = l
	}
}

func NewPipeline(opts ...Option) *Pipeline {
	p := &Pipeline{}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = logger.NewNoopLogger()
	}
	return p
}

// Add appends aggregators to the pipeline.
func (p *Pipeline) Add(aggregators ...Aggregator) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.aggregators = append(p.aggregators, aggregators...)
}

// Names returns the registered aggregator names in registration order.
func (p *Pipeline) Names() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	names := make([]string, 0, len(p.aggregators))
	for _, a := range p.aggregators {
		names = append(names, a.Name())
	}
	return names
}

func (p *Pipeline) snapshot() []Aggregator {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]Aggregator(nil), p.aggregators...)
}

// Disaggregate expands requested type patterns into the primitive
// patterns sent to storage. Each pattern is claimed by at most one
// aggregator (registration order); unrecognized patterns pass through
// unchanged. The result is deduplicated, order preserved. A composite
// that expands to nothing simply contributes nothing.
func (p *Pipeline) Disaggregate(patterns []match.TypePattern) []match.TypePattern {
	_, expanded := p.ForRequest(patterns)
	return expanded
}

// ForRequest narrows the pipeline to the aggregators that claimed one of
// the requested patterns, so a request for "exon" does not have its exon
// runs consumed by a transcript assembler. It returns the narrowed
// pipeline and the expanded primitive patterns. An empty pattern list
// keeps every aggregator active and expands to nothing.
func (p *Pipeline) ForRequest(patterns []match.TypePattern) (*Pipeline, []match.TypePattern) {
	aggregators := p.snapshot()

	if len(patterns) == 0 {
		sub := &Pipeline{aggregators: aggregators, logger: p.logger}
		return sub, nil
	}

	var expanded []match.TypePattern
	seen := make(map[string]struct{})
	add := func(pat match.TypePattern) {
		key := strings.ToLower(pat.String())
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		expanded = append(expanded, pat)
	}

	active := make(map[int]struct{})
	for _, pat := range patterns {
		claimed := false
		for i, a := range aggregators {
			parts, ok := a.Disaggregate(pat)
			if !ok {
				continue
			}
			claimed = true
			active[i] = struct{}{}
			for _, part := range parts {
				add(part)
			}
			break
		}
		if !claimed {
			add(pat)
		}
	}

	sub := &Pipeline{logger: p.logger}
	for i, a := range aggregators {
		if _, ok := active[i]; ok {
			sub.aggregators = append(sub.aggregators, a)
		}
	}
	return sub, expanded
}

// Aggregate hands a same-group run to every aggregator in reverse
// registration order. The first non-nil result wins; later aggregators
// are still consulted so conflicts can be detected, reported as a
// warning, and discarded. The returned slice holds the winning
// composites followed by the unconsumed remainder, with claimed
// reporting whether any aggregator took the run.
func (p *Pipeline) Aggregate(run []*gff.Feature) (candidates []*gff.Feature, claimed bool, err error) {
	if len(run) == 0 {
		return nil, false, nil
	}

	aggregators := p.snapshot()

	var winner Aggregator
	var result *Result
	for i := len(aggregators) - 1; i >= 0; i-- {
		a := aggregators[i]
		res, err := a.Aggregate(run)
		if err != nil {
			return nil, false, fmt.Errorf("aggregator %q: %w", a.Name(), err)
		}
		if res == nil {
			continue
		}
		if winner != nil {
			p.logger.Warn("aggregator conflict: group run claimed twice, keeping first result",
				zap.String("group", run[0].Group.String()),
				zap.String("kept", winner.Name()),
				zap.String("discarded", a.Name()),
			)
			continue
		}
		winner, result = a, res
	}

	if winner == nil {
		return nil, false, nil
	}

	candidates = append(candidates, result.Composites...)
	candidates = append(candidates, result.Remainder...)
	return candidates, true, nil
}
