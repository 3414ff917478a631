package coords

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gffdb/gffdb/pkg/gff"
	"github.com/gffdb/gffdb/pkg/storage"
)

type fakeSource struct {
	locations map[string][]storage.LandmarkLocation
}

func (f *fakeSource) LookupLandmark(_ context.Context, name, _ string) ([]storage.LandmarkLocation, error) {
	locs, ok := f.locations[name]
	if !ok {
		return nil, storage.LandmarkNotFoundError(name, "")
	}
	return locs, nil
}

func TestResolveSingleOccurrence(t *testing.T) {
	r := NewResolver(&fakeSource{locations: map[string][]storage.LandmarkLocation{
		"Chr1": {{Ref: "Chr1", RefClass: "Sequence", Start: 1, Stop: 5000, Strand: gff.StrandForward}},
	}})

	seg, err := r.Resolve(context.Background(), "Chr1", "")
	require.NoError(t, err)
	require.Equal(t, gff.Segment{Ref: "Chr1", Class: "Sequence", Start: 1, Stop: 5000, Strand: gff.StrandForward}, seg)
}

func TestResolveMergesDisjointOccurrences(t *testing.T) {
	r := NewResolver(&fakeSource{locations: map[string][]storage.LandmarkLocation{
		"dup": {
			{Ref: "Chr1", RefClass: "Clone", Start: 500, Stop: 900, Strand: gff.StrandForward},
			{Ref: "Chr1", RefClass: "Clone", Start: 100, Stop: 600, Strand: gff.StrandForward},
		},
	}})

	seg, err := r.Resolve(context.Background(), "dup", "Clone")
	require.NoError(t, err)
	require.Equal(t, int64(100), seg.Start)
	require.Equal(t, int64(900), seg.Stop)
}

func TestResolveAmbiguousAcrossReferences(t *testing.T) {
	r := NewResolver(&fakeSource{locations: map[string][]storage.LandmarkLocation{
		"shared": {
			{Ref: "Chr1", Start: 1, Stop: 10},
			{Ref: "Chr2", Start: 1, Stop: 10},
		},
	}})

	_, err := r.Resolve(context.Background(), "shared", "")
	require.ErrorIs(t, err, ErrAmbiguousLandmark)
	require.Contains(t, err.Error(), "shared")
}

func TestResolveUnknown(t *testing.T) {
	r := NewResolver(&fakeSource{locations: map[string][]storage.LandmarkLocation{}})

	_, err := r.Resolve(context.Background(), "missing", "")
	require.ErrorIs(t, err, ErrUnknownLandmark)
}

func TestResolveReverseLandmarkKeepsOrientation(t *testing.T) {
	r := NewResolver(&fakeSource{locations: map[string][]storage.LandmarkLocation{
		"T1": {{Ref: "Chr1", RefClass: "Transcript", Start: 100, Stop: 400, Strand: gff.StrandReverse}},
	}})

	seg, err := r.Resolve(context.Background(), "T1", "Transcript")
	require.NoError(t, err)
	require.Equal(t, gff.StrandReverse, seg.Strand)

	// relative position 1 sits at the absolute stop of a reverse frame
	start, stop, _ := seg.Relative(400, 400, gff.StrandForward)
	require.Equal(t, int64(1), start)
	require.Equal(t, int64(1), stop)
}

func TestResolveSub(t *testing.T) {
	r := NewResolver(&fakeSource{locations: map[string][]storage.LandmarkLocation{
		"Chr1": {{Ref: "Chr1", RefClass: "Sequence", Start: 1, Stop: 5000, Strand: gff.StrandForward}},
	}})

	seg, err := r.ResolveSub(context.Background(), "Chr1", "", 100, 199)
	require.NoError(t, err)
	require.Equal(t, int64(100), seg.Start)
	require.Equal(t, int64(199), seg.Stop)

	whole, err := r.ResolveSub(context.Background(), "Chr1", "", 0, 0)
	require.NoError(t, err)
	require.Equal(t, int64(5000), whole.Stop)
}
