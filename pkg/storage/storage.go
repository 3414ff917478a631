// Package storage contains the backend contract the retrieval engine
// runs against, plus shared record and iterator types. Implementations
// live in the subpackages (memory, sqlite, postgres, mysql).
package storage

import (
	"context"

	"github.com/gffdb/gffdb/pkg/gff"
)

const (
	// DefaultLoadBatchSize is the number of records the loader hands to
	// LoadRecords per call unless configured otherwise.
	DefaultLoadBatchSize = 1000
)

// RangePolicy selects how candidate features are filtered against a
// [start, stop] window.
type RangePolicy int

const (
	// RangeOverlaps keeps features overlapping the window by at least one base.
	RangeOverlaps RangePolicy = iota
	// RangeContainedIn keeps features lying entirely within the window.
	RangeContainedIn
	// RangeContains keeps features that span the entire window.
	RangeContains
)

func (p RangePolicy) String() string {
	switch p {
	case RangeContainedIn:
		return "contained-in"
	case RangeContains:
		return "contains"
	default:
		return "overlaps"
	}
}

// ParseRangePolicy maps the CLI/API spelling of a range policy.
func ParseRangePolicy(s string) (RangePolicy, bool) {
	switch s {
	case "", "overlaps":
		return RangeOverlaps, true
	case "contained-in", "contains-in-range", "contained_in":
		return RangeContainedIn, true
	case "contains", "contains-range":
		return RangeContains, true
	default:
		return RangeOverlaps, false
	}
}

// Record is a raw annotation record as delivered by a backend, one GFF
// line worth of data. Conversion into gff.Feature (including group
// materialization) happens in the engine.
type Record struct {
	ID     string
	Ref    string
	Start  int64
	Stop   int64
	Method string
	Source string
	Score  *float64
	Strand gff.Strand
	Phase  *int8

	// GroupClass and GroupName are both empty for ungrouped records.
	GroupClass string
	GroupName  string

	TargetStart gff.Coord
	TargetStop  gff.Coord
}

// Grouped reports whether the record carries a group.
func (r *Record) Grouped() bool {
	return r.GroupClass != "" || r.GroupName != ""
}

// GroupKey returns the value identity of the record's group.
func (r *Record) GroupKey() gff.GroupKey {
	return gff.GroupKey{
		Class:  r.GroupClass,
		Name:   r.GroupName,
		TStart: r.TargetStart,
		TStop:  r.TargetStop,
	}
}

// Type returns the record's feature type.
func (r *Record) Type() gff.Type {
	return gff.Type{Method: r.Method, Source: r.Source}
}

// LandmarkLocation is one occurrence of a named landmark.
type LandmarkLocation struct {
	Ref      string
	RefClass string
	Start    int64
	Stop     int64
	Strand   gff.Strand
}

// TypeFilter restricts a fetch to concrete types. Empty fields match
// anything; comparison is case-insensitive.
type TypeFilter struct {
	Method string
	Source string
}

// RangeQuery describes a FetchRange call. A zero Start and Stop means
// the query is unrestricted (whole reference, or whole database when Ref
// is also empty).
type RangeQuery struct {
	Policy RangePolicy
	Ref    string
	Start  int64
	Stop   int64

	// Types restricts the fetch to the listed concrete types; nil means
	// no restriction (the engine filters with its compiled matcher).
	Types []TypeFilter

	// Stream hints that the caller will consume the iterator lazily and
	// the backend should hold a cursor open instead of materializing.
	Stream bool
}

// TypesFilter restricts EnumerateTypes to a region.
type TypesFilter struct {
	Ref   string
	Start int64
	Stop  int64
}

// TypeCount is one distinct feature type and its occurrence count.
type TypeCount struct {
	Type  gff.Type
	Count int64
}

// RecordIterator iterates raw records. FetchRange and FetchGroup deliver
// records group-contiguous: all records of one group arrive
// consecutively. Ungrouped records may appear anywhere between runs.
type RecordIterator = Iterator[*Record]

// Backend is the retrieval contract the engine consumes. Implementations
// must be safe for concurrent readers; the single-stream restriction of
// connection-bound backends is surfaced via ErrStreamInProgress.
type Backend interface {
	// LookupLandmark returns every occurrence of the named landmark.
	// The class narrows the search ("Sequence" and "" mean reference
	// sequences as well as groups of class Sequence). An empty result
	// is ErrNotFound.
	LookupLandmark(ctx context.Context, name, class string) ([]LandmarkLocation, error)

	// FetchRange returns raw records matching the query, group-contiguous.
	FetchRange(ctx context.Context, q RangeQuery) (RecordIterator, error)

	// FetchGroup returns the records of one composite object by identity.
	FetchGroup(ctx context.Context, class, name string) (RecordIterator, error)

	// EnumerateTypes lists the distinct feature types, optionally
	// restricted to a region, with occurrence counts.
	EnumerateTypes(ctx context.Context, filter TypesFilter) ([]TypeCount, error)

	// LoadRecords bulk-inserts raw records.
	LoadRecords(ctx context.Context, records []*Record) error

	// UpsertRefseq registers a reference sequence and its length so it
	// can resolve as a landmark.
	UpsertRefseq(ctx context.Context, name string, length int64) error

	// IsReady reports whether the backend can accept queries.
	IsReady(ctx context.Context) (ReadinessStatus, error)

	// Close releases any residual resources.
	Close()
}

// ReadinessStatus represents the readiness status of the backend.
type ReadinessStatus struct {
	// Message is a human-friendly status message for the current status.
	Message string

	IsReady bool
}
