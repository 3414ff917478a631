package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gffdb/gffdb/pkg/gff"
	"github.com/gffdb/gffdb/pkg/storage"
)

func seed(t *testing.T) *Datastore {
	t.Helper()

	ds := New()
	err := ds.LoadRecords(context.Background(), []*storage.Record{
		{ID: "1", Ref: "Chr1", Start: 1, Stop: 100, Method: "exon", Source: "curated", GroupClass: "Transcript", GroupName: "T1"},
		{ID: "2", Ref: "Chr1", Start: 150, Stop: 300, Method: "exon", Source: "curated", GroupClass: "Transcript", GroupName: "T1"},
		{ID: "3", Ref: "Chr1", Start: 100, Stop: 150, Method: "intron", Source: "curated", GroupClass: "Transcript", GroupName: "T1"},
		{ID: "4", Ref: "Chr1", Start: 400, Stop: 500, Method: "exon", Source: "predicted", GroupClass: "Transcript", GroupName: "T2"},
		{ID: "5", Ref: "Chr1", Start: 50, Stop: 60, Method: "repeat", Source: "scan"},
		{ID: "6", Ref: "Chr2", Start: 10, Stop: 20, Method: "exon", Source: "curated", GroupClass: "Transcript", GroupName: "T3"},
	})
	require.NoError(t, err)
	require.NoError(t, ds.UpsertRefseq(context.Background(), "Chr1", 1000))
	return ds
}

func TestFetchRangeGroupContiguous(t *testing.T) {
	ds := seed(t)

	iter, err := ds.FetchRange(context.Background(), storage.RangeQuery{Ref: "Chr1"})
	require.NoError(t, err)
	records, err := storage.Drain(context.Background(), iter)
	require.NoError(t, err)
	require.Len(t, records, 5)

	seen := make(map[gff.GroupKey]int)
	last := gff.GroupKey{Class: "\x00"}
	for i, r := range records {
		key := r.GroupKey()
		if key != last {
			_, dup := seen[key]
			require.False(t, dup, "group %v split into non-contiguous runs", key)
			seen[key] = i
			last = key
		}
	}
}

func TestFetchRangePolicies(t *testing.T) {
	ds := seed(t)
	ctx := context.Background()

	for _, tc := range []struct {
		policy storage.RangePolicy
		want   int
	}{
		{storage.RangeOverlaps, 4},    // ids 1,2,3,5 overlap 1..200
		{storage.RangeContainedIn, 2}, // ids 1,5 inside 1..200
		{storage.RangeContains, 0},
	} {
		iter, err := ds.FetchRange(ctx, storage.RangeQuery{Policy: tc.policy, Ref: "Chr1", Start: 1, Stop: 200})
		require.NoError(t, err)
		records, err := storage.Drain(ctx, iter)
		require.NoError(t, err)
		require.Len(t, records, tc.want, "policy %s", tc.policy)
	}
}

func TestFetchRangeTypeFilter(t *testing.T) {
	ds := seed(t)
	ctx := context.Background()

	iter, err := ds.FetchRange(ctx, storage.RangeQuery{
		Ref:   "Chr1",
		Types: []storage.TypeFilter{{Method: "EXON", Source: "curated"}},
	})
	require.NoError(t, err)
	records, err := storage.Drain(ctx, iter)
	require.NoError(t, err)
	require.Len(t, records, 2)
}

func TestLookupLandmarkRefseq(t *testing.T) {
	ds := seed(t)

	locs, err := ds.LookupLandmark(context.Background(), "Chr1", "")
	require.NoError(t, err)
	require.Len(t, locs, 1)
	require.Equal(t, int64(1), locs[0].Start)
	require.Equal(t, int64(1000), locs[0].Stop)
	require.Equal(t, "Sequence", locs[0].RefClass)
}

func TestLookupLandmarkGroupSpan(t *testing.T) {
	ds := seed(t)

	locs, err := ds.LookupLandmark(context.Background(), "T1", "Transcript")
	require.NoError(t, err)
	require.Len(t, locs, 1)
	require.Equal(t, "Chr1", locs[0].Ref)
	require.Equal(t, int64(1), locs[0].Start)
	require.Equal(t, int64(300), locs[0].Stop)
}

func TestLookupLandmarkNotFound(t *testing.T) {
	ds := seed(t)

	_, err := ds.LookupLandmark(context.Background(), "nope", "")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestFetchGroup(t *testing.T) {
	ds := seed(t)

	iter, err := ds.FetchGroup(context.Background(), "Transcript", "T1")
	require.NoError(t, err)
	records, err := storage.Drain(context.Background(), iter)
	require.NoError(t, err)
	require.Len(t, records, 3)
}

func TestEnumerateTypes(t *testing.T) {
	ds := seed(t)

	counts, err := ds.EnumerateTypes(context.Background(), storage.TypesFilter{Ref: "Chr1"})
	require.NoError(t, err)

	got := make(map[string]int64)
	for _, tc := range counts {
		got[tc.Type.String()] = tc.Count
	}
	require.Equal(t, map[string]int64{
		"exon:curated":   2,
		"exon:predicted": 1,
		"intron:curated": 1,
		"repeat:scan":    1,
	}, got)
}
