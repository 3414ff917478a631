// Package coords resolves landmark names into absolute coordinate
// segments and derives sub-frames on top of them. Relative/absolute
// translation itself lives on [gff.Segment]; this package owns the
// lookup and merge policy.
package coords

import (
	"context"
	"errors"
	"fmt"

	"github.com/gffdb/gffdb/pkg/gff"
	"github.com/gffdb/gffdb/pkg/storage"
)

// DefaultClass is assumed when a landmark request carries no class.
const DefaultClass = "Sequence"

// ErrAmbiguousLandmark is returned when a landmark's occurrences span
// more than one reference sequence, so no single frame can represent it.
var ErrAmbiguousLandmark = errors.New("landmark is ambiguous")

// ErrUnknownLandmark is returned when a landmark cannot be found.
var ErrUnknownLandmark = storage.ErrNotFound

// LandmarkSource is the slice of the storage contract the resolver needs.
type LandmarkSource interface {
	LookupLandmark(ctx context.Context, name, class string) ([]storage.LandmarkLocation, error)
}

// Resolver converts landmark names into absolute segments.
type Resolver struct {
	source LandmarkSource
}

func NewResolver(source LandmarkSource) *Resolver {
	return &Resolver{source: source}
}

// Resolve returns the absolute segment for a named landmark. A landmark
// occurring at multiple disjoint locations on one reference resolves to
// the minimum-start/maximum-stop span across them; occurrences on
// different references fail with ErrAmbiguousLandmark rather than
// guessing.
func (r *Resolver) Resolve(ctx context.Context, name, class string) (gff.Segment, error) {
	locations, err := r.source.LookupLandmark(ctx, name, class)
	if err != nil {
		return gff.Segment{}, err
	}
	if len(locations) == 0 {
		return gff.Segment{}, storage.LandmarkNotFoundError(name, class)
	}

	merged := locations[0]
	uniform := true
	for _, loc := range locations[1:] {
		if loc.Ref != merged.Ref {
			return gff.Segment{}, fmt.Errorf(
				"landmark %q occurs on both %q and %q: %w",
				name, merged.Ref, loc.Ref, ErrAmbiguousLandmark)
		}
		if loc.Start < merged.Start {
			merged.Start = loc.Start
		}
		if loc.Stop > merged.Stop {
			merged.Stop = loc.Stop
		}
		if loc.Strand != merged.Strand {
			uniform = false
		}
	}

	strand := merged.Strand
	if !uniform || strand == gff.StrandNone {
		strand = gff.StrandForward
	}

	segClass := merged.RefClass
	if segClass == "" {
		segClass = DefaultClass
	}

	return gff.Segment{
		Ref:    merged.Ref,
		Class:  segClass,
		Start:  merged.Start,
		Stop:   merged.Stop,
		Strand: strand,
	}, nil
}

// ResolveSub resolves a landmark and derives a sub-frame from 1-based
// relative start/stop in one step. Zero start and stop mean the whole
// landmark span.
func (r *Resolver) ResolveSub(ctx context.Context, name, class string, start, stop int64) (gff.Segment, error) {
	seg, err := r.Resolve(ctx, name, class)
	if err != nil {
		return gff.Segment{}, err
	}
	if start == 0 && stop == 0 {
		return seg, nil
	}
	return seg.SubRange(start, stop), nil
}
