package aggregate

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/gffdb/gffdb/pkg/gff"
	"github.com/gffdb/gffdb/pkg/match"
)

// PartsAggregator assembles a composite method out of a fixed set of
// primitive part methods. It covers the common aggregation policies
// (transcript, coding, alignment); bespoke policies implement
// [Aggregator] directly.
type PartsAggregator struct {
	name  string
	parts []string
}

var _ Aggregator = (*PartsAggregator)(nil)

// NewPartsAggregator builds an aggregator that answers to the composite
// method name and assembles it from features whose method is one of parts.
func NewPartsAggregator(name string, parts ...string) *PartsAggregator {
	return &PartsAggregator{name: name, parts: parts}
}

func (a *PartsAggregator) Name() string {
	return a.name
}

// Disaggregate replaces a request for the composite method with one
// pattern per part, carrying the requested source through.
func (a *PartsAggregator) Disaggregate(req match.TypePattern) ([]match.TypePattern, bool) {
	if !strings.EqualFold(req.Method, a.name) {
		return nil, false
	}
	parts := make([]match.TypePattern, 0, len(a.parts))
	for _, part := range a.parts {
		parts = append(parts, match.TypePattern{Method: part, Source: req.Source})
	}
	return parts, true
}

func (a *PartsAggregator) isPart(method string) bool {
	for _, part := range a.parts {
		if strings.EqualFold(part, method) {
			return true
		}
	}
	return false
}

// Aggregate collapses the run's part features into one composite
// spanning their minimum start to maximum stop. Features of other
// methods are returned as remainder. Declines when the run holds no
// part features.
func (a *PartsAggregator) Aggregate(run []*gff.Feature) (*Result, error) {
	var matched, remainder []*gff.Feature
	for _, f := range run {
		if a.isPart(f.Type.Method) {
			matched = append(matched, f)
		} else {
			remainder = append(remainder, f)
		}
	}
	if len(matched) == 0 {
		return nil, nil
	}

	composite := &gff.Feature{
		Ref:    matched[0].Ref,
		Start:  matched[0].Start,
		Stop:   matched[0].Stop,
		Type:   gff.Type{Method: a.name, Source: matched[0].Type.Source},
		Strand: matched[0].Strand,
		Group:  matched[0].Group,
	}
	for _, f := range matched[1:] {
		if f.Ref != composite.Ref {
			return nil, fmt.Errorf("group %s spans references %s and %s", f.Group, composite.Ref, f.Ref)
		}
		if f.Start < composite.Start {
			composite.Start = f.Start
		}
		if f.Stop > composite.Stop {
			composite.Stop = f.Stop
		}
		if f.Strand != composite.Strand {
			composite.Strand = gff.StrandNone
		}
	}

	// Alignment groups carry a target span; surface it on the composite.
	if g := composite.Group; g != nil {
		composite.TargetStart = g.TargetStart
		composite.TargetStop = g.TargetStop
	}

	return &Result{Composites: []*gff.Feature{composite}, Remainder: remainder}, nil
}

// Transcript assembles exon/intron/CDS/UTR runs into transcript features.
func Transcript() Aggregator {
	return NewPartsAggregator("transcript", "exon", "intron", "CDS", "UTR")
}

// Coding assembles CDS runs into coding features.
func Coding() Aggregator {
	return NewPartsAggregator("coding", "CDS")
}

// Alignment assembles similarity/HSP runs into alignment features,
// carrying the group's target span.
func Alignment() Aggregator {
	return NewPartsAggregator("alignment", "similarity", "HSP")
}

type noneAggregator struct{}

func (noneAggregator) Name() string { return "none" }

func (noneAggregator) Disaggregate(match.TypePattern) ([]match.TypePattern, bool) {
	return nil, false
}

func (noneAggregator) Aggregate([]*gff.Feature) (*Result, error) {
	return nil, nil
}

// None never claims anything. Configuring a pipeline with only None
// disables aggregation while keeping the pipeline wiring in place.
func None() Aggregator {
	return noneAggregator{}
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]func() Aggregator)
)

// Register makes a named aggregator constructor available to
// New. It panics when the name is already taken.
func Register(name string, constructor func() Aggregator) {
	registryMu.Lock()
	defer registryMu.Unlock()
	key := strings.ToLower(name)
	if _, ok := registry[key]; ok {
		panic(fmt.Errorf("aggregator %q already registered", name))
	}
	registry[key] = constructor
}

// New constructs a registered aggregator by name.
func New(name string) (Aggregator, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	constructor, ok := registry[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown aggregator: %q", name)
	}
	return constructor(), nil
}

// RegisteredNames lists the registered aggregator names, sorted.
func RegisteredNames() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func init() {
	Register("transcript", Transcript)
	Register("coding", Coding)
	Register("alignment", Alignment)
	Register("none", None)
}
