// Package memory provides an in-memory implementation of
// [storage.Backend], primarily for tests and small datasets.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/gffdb/gffdb/pkg/gff"
	"github.com/gffdb/gffdb/pkg/storage"
)

// Datastore is an in-memory [storage.Backend]. Records are kept sorted
// group-contiguous so fetches satisfy the engine's ordering contract.
type Datastore struct {
	mu      sync.RWMutex
	records []*storage.Record
	refseqs map[string]int64
}

var _ storage.Backend = (*Datastore)(nil)

// New creates an empty in-memory datastore.
func New() *Datastore {
	return &Datastore{
		refseqs: make(map[string]int64),
	}
}

// LookupLandmark see [storage.Backend].LookupLandmark.
func (m *Datastore) LookupLandmark(ctx context.Context, name, class string) ([]storage.LandmarkLocation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if class == "" || strings.EqualFold(class, "Sequence") {
		if length, ok := m.refseqs[name]; ok {
			return []storage.LandmarkLocation{{
				Ref:      name,
				RefClass: "Sequence",
				Start:    1,
				Stop:     length,
				Strand:   gff.StrandForward,
			}}, nil
		}
	}

	type span struct {
		start, stop int64
		class       string
		strand      gff.Strand
		uniform     bool
	}
	spans := make(map[string]*span)
	var refs []string

	for _, r := range m.records {
		if r.GroupName != name {
			continue
		}
		if class != "" && !strings.EqualFold(r.GroupClass, class) {
			continue
		}
		s, ok := spans[r.Ref]
		if !ok {
			spans[r.Ref] = &span{start: r.Start, stop: r.Stop, class: r.GroupClass, strand: r.Strand, uniform: true}
			refs = append(refs, r.Ref)
			continue
		}
		if r.Start < s.start {
			s.start = r.Start
		}
		if r.Stop > s.stop {
			s.stop = r.Stop
		}
		if r.Strand != s.strand {
			s.uniform = false
		}
	}

	if len(refs) == 0 {
		return nil, storage.LandmarkNotFoundError(name, class)
	}

	sort.Strings(refs)
	locations := make([]storage.LandmarkLocation, 0, len(refs))
	for _, ref := range refs {
		s := spans[ref]
		strand := s.strand
		if !s.uniform {
			strand = gff.StrandNone
		}
		locations = append(locations, storage.LandmarkLocation{
			Ref:      ref,
			RefClass: s.class,
			Start:    s.start,
			Stop:     s.stop,
			Strand:   strand,
		})
	}
	return locations, nil
}

func matchWindow(r *storage.Record, q storage.RangeQuery) bool {
	if q.Ref != "" && r.Ref != q.Ref {
		return false
	}
	if q.Start == 0 && q.Stop == 0 {
		return true
	}
	switch q.Policy {
	case storage.RangeContainedIn:
		return r.Start >= q.Start && r.Stop <= q.Stop
	case storage.RangeContains:
		return r.Start <= q.Start && r.Stop >= q.Stop
	default:
		return r.Start <= q.Stop && r.Stop >= q.Start
	}
}

func matchTypes(r *storage.Record, types []storage.TypeFilter) bool {
	if len(types) == 0 {
		return true
	}
	for _, t := range types {
		if t.Method != "" && !strings.EqualFold(t.Method, r.Method) {
			continue
		}
		if t.Source != "" && !strings.EqualFold(t.Source, r.Source) {
			continue
		}
		return true
	}
	return false
}

// FetchRange see [storage.Backend].FetchRange.
func (m *Datastore) FetchRange(ctx context.Context, q storage.RangeQuery) (storage.RecordIterator, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []*storage.Record
	for _, r := range m.records {
		if matchWindow(r, q) && matchTypes(r, q.Types) {
			matched = append(matched, r)
		}
	}
	return storage.NewStaticIterator(matched), nil
}

// FetchGroup see [storage.Backend].FetchGroup.
func (m *Datastore) FetchGroup(ctx context.Context, class, name string) (storage.RecordIterator, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []*storage.Record
	for _, r := range m.records {
		if r.GroupName == name && strings.EqualFold(r.GroupClass, class) {
			matched = append(matched, r)
		}
	}
	return storage.NewStaticIterator(matched), nil
}

// EnumerateTypes see [storage.Backend].EnumerateTypes.
func (m *Datastore) EnumerateTypes(ctx context.Context, filter storage.TypesFilter) ([]storage.TypeCount, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	q := storage.RangeQuery{Ref: filter.Ref, Start: filter.Start, Stop: filter.Stop}
	counts := make(map[string]*storage.TypeCount)
	var keys []string
	for _, r := range m.records {
		if !matchWindow(r, q) {
			continue
		}
		key := strings.ToLower(r.Method) + ":" + strings.ToLower(r.Source)
		tc, ok := counts[key]
		if !ok {
			counts[key] = &storage.TypeCount{Type: r.Type(), Count: 1}
			keys = append(keys, key)
			continue
		}
		tc.Count++
	}

	sort.Strings(keys)
	out := make([]storage.TypeCount, 0, len(keys))
	for _, key := range keys {
		out = append(out, *counts[key])
	}
	return out, nil
}

// LoadRecords see [storage.Backend].LoadRecords. Records are re-sorted
// into group-contiguous order after every load.
func (m *Datastore) LoadRecords(ctx context.Context, records []*storage.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.records = append(m.records, records...)
	sortGroupContiguous(m.records)
	return nil
}

// UpsertRefseq see [storage.Backend].UpsertRefseq.
func (m *Datastore) UpsertRefseq(ctx context.Context, name string, length int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if length > m.refseqs[name] {
		m.refseqs[name] = length
	}
	return nil
}

// IsReady see [storage.Backend].IsReady.
func (m *Datastore) IsReady(ctx context.Context) (storage.ReadinessStatus, error) {
	if err := ctx.Err(); err != nil {
		return storage.ReadinessStatus{}, err
	}
	return storage.ReadinessStatus{IsReady: true}, nil
}

// Close does not do anything for the in-memory datastore.
func (m *Datastore) Close() {}

func coordLess(a, b gff.Coord) bool {
	if a.OK != b.OK {
		return !a.OK
	}
	return a.Pos < b.Pos
}

func sortGroupContiguous(records []*storage.Record) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if a.GroupClass != b.GroupClass {
			return a.GroupClass < b.GroupClass
		}
		if a.GroupName != b.GroupName {
			return a.GroupName < b.GroupName
		}
		if a.TargetStart != b.TargetStart {
			return coordLess(a.TargetStart, b.TargetStart)
		}
		if a.TargetStop != b.TargetStop {
			return coordLess(a.TargetStop, b.TargetStop)
		}
		if a.Ref != b.Ref {
			return a.Ref < b.Ref
		}
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		return a.Stop < b.Stop
	})
}
