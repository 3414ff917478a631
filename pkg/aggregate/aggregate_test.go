package aggregate

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/gffdb/gffdb/pkg/gff"
	"github.com/gffdb/gffdb/pkg/logger"
	"github.com/gffdb/gffdb/pkg/match"
)

func transcriptRun() []*gff.Feature {
	group := &gff.Group{Class: "Transcript", Name: "T1"}
	return []*gff.Feature{
		{Ref: "Chr1", Start: 1, Stop: 100, Type: gff.Type{Method: "exon", Source: "curated"}, Group: group},
		{Ref: "Chr1", Start: 150, Stop: 300, Type: gff.Type{Method: "exon", Source: "curated"}, Group: group},
		{Ref: "Chr1", Start: 100, Stop: 150, Type: gff.Type{Method: "intron", Source: "curated"}, Group: group},
	}
}

func TestDisaggregateExpandsComposite(t *testing.T) {
	p := NewPipeline()
	p.Add(Transcript())

	expanded := p.Disaggregate(match.Parse([]string{"transcript"}))

	methods := make(map[string]bool)
	for _, pat := range expanded {
		methods[pat.Method] = true
	}
	require.True(t, methods["exon"])
	require.True(t, methods["intron"])
	require.False(t, methods["transcript"])
}

func TestDisaggregatePassesUnknownThrough(t *testing.T) {
	p := NewPipeline()
	p.Add(Transcript())

	expanded := p.Disaggregate(match.Parse([]string{"repeat:scan"}))
	require.Equal(t, match.Parse([]string{"repeat:scan"}), expanded)
}

func TestDisaggregateCarriesSource(t *testing.T) {
	p := NewPipeline()
	p.Add(Coding())

	expanded := p.Disaggregate(match.Parse([]string{"coding:curated"}))
	require.Equal(t, []match.TypePattern{{Method: "CDS", Source: "curated"}}, expanded)
}

func TestAggregateTranscriptRun(t *testing.T) {
	p := NewPipeline()
	p.Add(Transcript())

	candidates, claimed, err := p.Aggregate(transcriptRun())
	require.NoError(t, err)
	require.True(t, claimed)
	require.Len(t, candidates, 1)

	composite := candidates[0]
	require.Equal(t, int64(1), composite.Start)
	require.Equal(t, int64(300), composite.Stop)
	require.Equal(t, "transcript:curated", composite.Type.String())
	require.Equal(t, "Transcript:T1", composite.Group.String())
}

func TestAggregateDeclinesForeignRun(t *testing.T) {
	p := NewPipeline()
	p.Add(Transcript())

	group := &gff.Group{Class: "Homology", Name: "H1"}
	run := []*gff.Feature{
		{Ref: "Chr1", Start: 5, Stop: 25, Type: gff.Type{Method: "similarity", Source: "BLASTX"}, Group: group},
	}

	candidates, claimed, err := p.Aggregate(run)
	require.NoError(t, err)
	require.False(t, claimed)
	require.Nil(t, candidates)
}

func TestAggregateIdempotent(t *testing.T) {
	p := NewPipeline()
	p.Add(Transcript())

	candidates, claimed, err := p.Aggregate(transcriptRun())
	require.NoError(t, err)
	require.True(t, claimed)

	// a second pass over the already-aggregated result must decline:
	// "transcript" is not one of the aggregator's primitive parts
	again, claimed, err := p.Aggregate(candidates)
	require.NoError(t, err)
	require.False(t, claimed)
	require.Nil(t, again)
}

func TestAggregateRemainderKept(t *testing.T) {
	p := NewPipeline()
	p.Add(Transcript())

	group := &gff.Group{Class: "Transcript", Name: "T1"}
	run := append(transcriptRun(),
		&gff.Feature{Ref: "Chr1", Start: 310, Stop: 320, Type: gff.Type{Method: "polyA_site", Source: "curated"}, Group: group})

	candidates, claimed, err := p.Aggregate(run)
	require.NoError(t, err)
	require.True(t, claimed)
	require.Len(t, candidates, 2) // composite + unconsumed polyA_site
	require.Equal(t, "polyA_site", candidates[1].Type.Method)
}

func TestAggregateConflictWarnsAndKeepsFirst(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	p := NewPipeline(WithLogger(&logger.ZapLogger{Logger: zap.New(core)}))

	// both claim exon runs; reverse registration order means the
	// later-registered one wins
	p.Add(NewPartsAggregator("early", "exon"))
	p.Add(NewPartsAggregator("late", "exon"))

	candidates, claimed, err := p.Aggregate(transcriptRun())
	require.NoError(t, err)
	require.True(t, claimed)
	require.Equal(t, "late", candidates[0].Type.Method)

	entries := logs.FilterMessageSnippet("aggregator conflict").All()
	require.Len(t, entries, 1)
}

type failingAggregator struct{}

func (failingAggregator) Name() string { return "failing" }
func (failingAggregator) Disaggregate(match.TypePattern) ([]match.TypePattern, bool) {
	return nil, false
}
func (failingAggregator) Aggregate([]*gff.Feature) (*Result, error) {
	return nil, errors.New("boom")
}

func TestAggregateErrorAborts(t *testing.T) {
	p := NewPipeline()
	p.Add(failingAggregator{})

	_, _, err := p.Aggregate(transcriptRun())
	require.Error(t, err)
	require.Contains(t, err.Error(), "failing")
}

func TestAggregateReverseRegistrationOrder(t *testing.T) {
	p := NewPipeline()
	p.Add(Transcript())
	p.Add(NewPartsAggregator("gene", "transcript"))

	// first pass assembles transcripts
	candidates, claimed, err := p.Aggregate(transcriptRun())
	require.NoError(t, err)
	require.True(t, claimed)
	require.Equal(t, "transcript", candidates[0].Type.Method)

	// the gene aggregator, registered later, consumes transcripts first
	// when handed a run of them
	genes, claimed, err := p.Aggregate(candidates)
	require.NoError(t, err)
	require.True(t, claimed)
	require.Equal(t, "gene", genes[0].Type.Method)
}

func TestRegistry(t *testing.T) {
	a, err := New("transcript")
	require.NoError(t, err)
	require.Equal(t, "transcript", a.Name())

	_, err = New("nonesuch")
	require.Error(t, err)

	require.Contains(t, RegisteredNames(), "alignment")
}
