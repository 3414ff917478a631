package gff

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTypeString(t *testing.T) {
	require.Equal(t, "exon:curated", Type{Method: "exon", Source: "curated"}.String())
	require.Equal(t, "exon", Type{Method: "exon"}.String())
	require.Equal(t, "exon:", Type{Method: "exon"}.Qualified())
}

func TestTypeMatch(t *testing.T) {
	exon := Type{Method: "exon", Source: "curated"}

	require.True(t, exon.Match(Type{Method: "EXON", Source: "Curated"}))
	require.True(t, exon.Match(Type{Method: "exon"})) // wildcard source
	require.True(t, Type{Method: "exon"}.Match(exon))
	require.False(t, exon.Match(Type{Method: "intron", Source: "curated"}))
	require.False(t, exon.Match(Type{Method: "exon", Source: "predicted"}))
}

func TestNewType(t *testing.T) {
	require.Equal(t, Type{Method: "similarity", Source: "BLASTX"}, NewType("similarity:BLASTX"))
	require.Equal(t, Type{Method: "exon"}, NewType("exon"))
	// only the first colon splits
	require.Equal(t, Type{Method: "a", Source: "b:c"}, NewType("a:b:c"))
}

func TestGroupEquality(t *testing.T) {
	g1 := &Group{Class: "Transcript", Name: "T1"}
	g2 := &Group{Class: "Transcript", Name: "T1"}
	g3 := &Group{Class: "Transcript", Name: "T2"}

	require.True(t, g1.Equal(g2))
	require.False(t, g1.Equal(g3))
	require.False(t, g1.Equal(nil))
	require.True(t, (*Group)(nil).Equal(nil))
}

func TestGroupTargetZeroVsUnset(t *testing.T) {
	unset := &Group{Class: "Homology", Name: "H1"}
	zero := &Group{Class: "Homology", Name: "H1", TargetStart: NewCoord(0)}

	require.False(t, unset.Equal(zero))
	require.NotEqual(t, unset.Key(), zero.Key())
}

func TestSegmentRelativeForward(t *testing.T) {
	seg := Segment{Ref: "Chr1", Start: 101, Stop: 200, Strand: StrandForward}

	start, stop, strand := seg.Relative(101, 110, StrandForward)
	require.Equal(t, int64(1), start)
	require.Equal(t, int64(10), stop)
	require.Equal(t, StrandForward, strand)
}

func TestSegmentRelativeReverse(t *testing.T) {
	seg := Segment{Ref: "Chr1", Start: 101, Stop: 200, Strand: StrandReverse}

	start, stop, strand := seg.Relative(101, 110, StrandForward)
	require.Equal(t, int64(91), start)
	require.Equal(t, int64(100), stop)
	require.Equal(t, StrandReverse, strand)
}

func TestSegmentTranslationInvolutive(t *testing.T) {
	for _, seg := range []Segment{
		{Ref: "Chr1", Start: 1, Stop: 1000, Strand: StrandForward},
		{Ref: "Chr1", Start: 500, Stop: 1499, Strand: StrandReverse},
	} {
		absStart, absStop, strand := int64(620), int64(700), StrandForward

		relStart, relStop, relStrand := seg.Relative(absStart, absStop, strand)
		gotStart, gotStop, gotStrand := seg.Absolute(relStart, relStop, relStrand)

		require.Equal(t, absStart, gotStart, "segment %s", seg)
		require.Equal(t, absStop, gotStop, "segment %s", seg)
		require.Equal(t, strand, gotStrand, "segment %s", seg)
	}
}

func TestSegmentDoubleFlip(t *testing.T) {
	seg := Segment{Ref: "Chr2", Start: 10, Stop: 109, Strand: StrandForward}
	require.Equal(t, seg.Strand, seg.Flip().Flip().Strand)

	// reflecting twice lands on the original position
	relStart, relStop, relStrand := seg.Flip().Relative(20, 30, StrandForward)
	absStart, absStop, absStrand := seg.Flip().Absolute(relStart, relStop, relStrand)
	require.Equal(t, int64(20), absStart)
	require.Equal(t, int64(30), absStop)
	require.Equal(t, StrandForward, absStrand)
}

func TestSegmentSubOffset(t *testing.T) {
	seg := Segment{Ref: "Chr1", Start: 101, Stop: 200, Strand: StrandForward}

	sub, err := seg.SubOffset(0, 10)
	require.NoError(t, err)
	require.Equal(t, int64(101), sub.Start)
	require.Equal(t, int64(110), sub.Stop)

	rev, err := seg.Flip().SubOffset(0, 10)
	require.NoError(t, err)
	require.Equal(t, int64(191), rev.Start)
	require.Equal(t, int64(200), rev.Stop)
	require.Equal(t, StrandReverse, rev.Strand)

	_, err = seg.SubOffset(0, 0)
	require.Error(t, err)
}

func TestSegmentSubRangeSwapsInvertedBounds(t *testing.T) {
	seg := Segment{Ref: "Chr1", Start: 101, Stop: 200, Strand: StrandForward}

	sub := seg.SubRange(50, 11)
	require.Equal(t, int64(111), sub.Start)
	require.Equal(t, int64(150), sub.Stop)
}
