package engine

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/gffdb/gffdb/pkg/aggregate"
	"github.com/gffdb/gffdb/pkg/gff"
	"github.com/gffdb/gffdb/pkg/storage"
	"github.com/gffdb/gffdb/pkg/storage/memory"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func seed(t *testing.T) *memory.Datastore {
	t.Helper()
	ctx := context.Background()
	ds := memory.New()

	require.NoError(t, ds.UpsertRefseq(ctx, "Chr1", 5000))
	require.NoError(t, ds.LoadRecords(ctx, []*storage.Record{
		{ID: "1", Ref: "Chr1", Start: 1, Stop: 100, Method: "exon", Source: "curated",
			Strand: gff.StrandForward, GroupClass: "Transcript", GroupName: "T1"},
		{ID: "2", Ref: "Chr1", Start: 150, Stop: 300, Method: "exon", Source: "curated",
			Strand: gff.StrandForward, GroupClass: "Transcript", GroupName: "T1"},
		{ID: "3", Ref: "Chr1", Start: 100, Stop: 150, Method: "intron", Source: "curated",
			Strand: gff.StrandForward, GroupClass: "Transcript", GroupName: "T1"},
		{ID: "4", Ref: "Chr1", Start: 500, Stop: 600, Method: "similarity", Source: "BLASTX",
			Strand: gff.StrandForward, GroupClass: "Homology", GroupName: "H7",
			TargetStart: gff.NewCoord(1), TargetStop: gff.NewCoord(100)},
		{ID: "5", Ref: "Chr1", Start: 400, Stop: 450, Method: "repeat", Source: "scan",
			Strand: gff.StrandNone},
	}))
	return ds
}

func newTestEngine(t *testing.T) (*Engine, *memory.Datastore) {
	t.Helper()
	ds := seed(t)
	e := New(ds)
	t.Cleanup(e.Close)
	return e, ds
}

func TestFeaturesMergeTranscript(t *testing.T) {
	e, _ := newTestEngine(t)

	got, err := e.Features(context.Background(), FeaturesRequest{
		Name:  "Chr1",
		Types: []string{"transcript"},
		Merge: true,
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, int64(1), got[0].Start)
	require.Equal(t, int64(300), got[0].Stop)
	require.Equal(t, "transcript", got[0].Type.Method)
}

func TestFeaturesRawExonsWithoutMerge(t *testing.T) {
	e, _ := newTestEngine(t)

	got, err := e.Features(context.Background(), FeaturesRequest{
		Name:  "Chr1",
		Types: []string{"exon"},
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	for _, f := range got {
		require.Equal(t, "exon", f.Type.Method)
	}
	require.Equal(t, int64(1), got[0].Start)
	require.Equal(t, int64(150), got[1].Start)
}

func TestFeaturesExonRequestNotConsumedByMerge(t *testing.T) {
	e, _ := newTestEngine(t)

	// no aggregator answers to "exon", so merge must leave the raw exons
	// alone instead of assembling transcripts out of them
	got, err := e.Features(context.Background(), FeaturesRequest{
		Name:  "Chr1",
		Types: []string{"exon"},
		Merge: true,
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "exon", got[0].Type.Method)
}

func TestFeaturesNeverSurfaceUnrequestedParts(t *testing.T) {
	e, _ := newTestEngine(t)

	got, err := e.Features(context.Background(), FeaturesRequest{
		Name:  "Chr1",
		Types: []string{"transcript"},
		Merge: true,
	})
	require.NoError(t, err)
	for _, f := range got {
		require.NotEqual(t, "exon", f.Type.Method)
		require.NotEqual(t, "intron", f.Type.Method)
	}
}

func TestFeaturesInvertedWindowSwapped(t *testing.T) {
	e, _ := newTestEngine(t)

	forward, err := e.Features(context.Background(), FeaturesRequest{
		Name: "Chr1", Start: 1, Stop: 300, Types: []string{"exon", "intron"},
	})
	require.NoError(t, err)

	inverted, err := e.Features(context.Background(), FeaturesRequest{
		Name: "Chr1", Start: 300, Stop: 1, Types: []string{"exon", "intron"},
	})
	require.NoError(t, err)
	require.Empty(t, cmp.Diff(forward, inverted))
	require.Len(t, inverted, 3)
}

func TestFeaturesGroupIdentityShared(t *testing.T) {
	e, _ := newTestEngine(t)

	got, err := e.Features(context.Background(), FeaturesRequest{
		Name:  "Chr1",
		Types: []string{"exon"},
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Same(t, got[0].Group, got[1].Group)
}

func TestFeaturesZeroTargetIsNotUnset(t *testing.T) {
	ctx := context.Background()
	ds := memory.New()
	require.NoError(t, ds.UpsertRefseq(ctx, "Chr1", 1000))
	require.NoError(t, ds.LoadRecords(ctx, []*storage.Record{
		{ID: "a", Ref: "Chr1", Start: 10, Stop: 20, Method: "HSP", Source: "est",
			GroupClass: "Homology", GroupName: "H1"},
		{ID: "b", Ref: "Chr1", Start: 30, Stop: 40, Method: "HSP", Source: "est",
			GroupClass: "Homology", GroupName: "H1",
			TargetStart: gff.NewCoord(0), TargetStop: gff.NewCoord(0)},
	}))
	e := New(ds)
	t.Cleanup(e.Close)

	got, err := e.Features(ctx, FeaturesRequest{Name: "Chr1", Types: []string{"HSP"}})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.NotSame(t, got[0].Group, got[1].Group)
	require.False(t, got[0].Group.Equal(got[1].Group))
}

func TestFeaturesAlignmentCarriesTarget(t *testing.T) {
	e, _ := newTestEngine(t)

	got, err := e.Features(context.Background(), FeaturesRequest{
		Name:  "Chr1",
		Types: []string{"alignment"},
		Merge: true,
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "alignment", got[0].Type.Method)
	require.Equal(t, gff.NewCoord(1), got[0].TargetStart)
	require.Equal(t, gff.NewCoord(100), got[0].TargetStop)
}

func TestFeaturesEmptyExpansionReturnsNothing(t *testing.T) {
	e, _ := newTestEngine(t)
	e.Pipeline().Add(aggregate.NewPartsAggregator("ghost"))

	got, err := e.Features(context.Background(), FeaturesRequest{
		Name:  "Chr1",
		Types: []string{"ghost"},
		Merge: true,
	})
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestFeaturesRegexTypesFilteredEngineSide(t *testing.T) {
	e, _ := newTestEngine(t)

	got, err := e.Features(context.Background(), FeaturesRequest{
		Name:  "Chr1",
		Types: []string{"similarity:BLAST.*"},
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "BLASTX", got[0].Type.Source)
}

func TestFeaturesUngroupedPassThrough(t *testing.T) {
	e, _ := newTestEngine(t)

	got, err := e.Features(context.Background(), FeaturesRequest{
		Name:  "Chr1",
		Types: []string{"repeat"},
		Merge: true,
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Nil(t, got[0].Group)
}

func TestStreamFeaturesMatchesBatch(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	req := FeaturesRequest{Name: "Chr1", Merge: true}

	batch, err := e.Features(ctx, req)
	require.NoError(t, err)

	it, err := e.StreamFeatures(ctx, req)
	require.NoError(t, err)
	streamed, err := storage.Drain(ctx, it)
	require.NoError(t, err)

	require.Empty(t, cmp.Diff(batch, streamed))
}

func TestStreamFeaturesStopReleasesCursor(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	it, err := e.StreamFeatures(ctx, FeaturesRequest{Name: "Chr1"})
	require.NoError(t, err)

	_, err = it.Next(ctx)
	require.NoError(t, err)
	it.Stop()

	_, err = it.Next(ctx)
	require.ErrorIs(t, err, storage.ErrIteratorDone)
}

func TestFeaturesByGroup(t *testing.T) {
	e, _ := newTestEngine(t)

	got, err := e.FeaturesByGroup(context.Background(), "Transcript", "T1")
	require.NoError(t, err)
	require.Len(t, got, 3)
	for _, f := range got {
		require.Equal(t, "T1", f.Group.Name)
	}
}

func TestTypes(t *testing.T) {
	e, _ := newTestEngine(t)

	all, err := e.Types(context.Background(), TypesRequest{})
	require.NoError(t, err)
	require.Len(t, all, 4)

	windowed, err := e.Types(context.Background(), TypesRequest{Name: "Chr1", Start: 1, Stop: 300})
	require.NoError(t, err)
	require.Len(t, windowed, 2) // exon and intron only
}

func TestSegmentDerivation(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	whole, err := e.Segment(ctx, SegmentRequest{Name: "Chr1"})
	require.NoError(t, err)
	require.Equal(t, int64(5000), whole.Length())

	byOffset, err := e.Segment(ctx, SegmentRequest{Name: "Chr1", Offset: 99, Length: 100})
	require.NoError(t, err)
	require.Equal(t, int64(100), byOffset.Start)
	require.Equal(t, int64(199), byOffset.Stop)

	byRange, err := e.Segment(ctx, SegmentRequest{Name: "Chr1", Start: 199, Stop: 100})
	require.NoError(t, err)
	require.Equal(t, int64(100), byRange.Start)
	require.Equal(t, int64(199), byRange.Stop)

	_, err = e.Segment(ctx, SegmentRequest{Name: "Chr1", Length: -5})
	require.ErrorIs(t, err, ErrInvalidRange)

	_, err = e.Segment(ctx, SegmentRequest{Name: "nonesuch"})
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSegmentLandmarkFrame(t *testing.T) {
	e, _ := newTestEngine(t)

	seg, err := e.Segment(context.Background(), SegmentRequest{Name: "T1", Class: "Transcript"})
	require.NoError(t, err)
	require.Equal(t, "Chr1", seg.Ref)
	require.Equal(t, int64(1), seg.Start)
	require.Equal(t, int64(300), seg.Stop)
}
