package match

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gffdb/gffdb/pkg/gff"
	"github.com/gffdb/gffdb/pkg/storage"
)

func TestParse(t *testing.T) {
	patterns := Parse([]string{"exon", "similarity:BLAST.*", "transcript:curated"})
	require.Equal(t, []TypePattern{
		{Method: "exon"},
		{Method: "similarity", Source: "BLAST.*"},
		{Method: "transcript", Source: "curated"},
	}, patterns)

	require.Nil(t, Parse(nil))
}

func TestMatcherWildcardSource(t *testing.T) {
	m, err := Compile(Parse([]string{"exon"}))
	require.NoError(t, err)

	require.True(t, m.Match(gff.Type{Method: "exon", Source: "curated"}))
	require.True(t, m.Match(gff.Type{Method: "exon", Source: "predicted"}))
	require.False(t, m.Match(gff.Type{Method: "intron", Source: "curated"}))
}

func TestMatcherRegexSource(t *testing.T) {
	m, err := Compile(Parse([]string{"similarity:BLAST.*"}))
	require.NoError(t, err)

	require.True(t, m.Match(gff.Type{Method: "similarity", Source: "BLASTX"}))
	require.True(t, m.Match(gff.Type{Method: "Similarity", Source: "blastn"}))
	require.False(t, m.Match(gff.Type{Method: "similarity", Source: "FASTA"}))
}

func TestMatcherAnchored(t *testing.T) {
	m, err := Compile(Parse([]string{"exon"}))
	require.NoError(t, err)

	require.False(t, m.Match(gff.Type{Method: "exonic", Source: "curated"}))
	require.False(t, m.Match(gff.Type{Method: "pseudoexon", Source: "curated"}))
}

func TestEmptyMatchesEverything(t *testing.T) {
	m, err := Compile(nil)
	require.NoError(t, err)

	require.True(t, m.Match(gff.Type{Method: "anything", Source: "at all"}))
}

func TestCompileError(t *testing.T) {
	_, err := Compile(Parse([]string{"exon:("}))
	require.Error(t, err)

	var cerr *CompileError
	require.ErrorAs(t, err, &cerr)
	require.Contains(t, cerr.Pattern, "exon")
}

func TestKeyOrderIndependent(t *testing.T) {
	a := Key(Parse([]string{"exon", "intron:curated"}))
	b := Key(Parse([]string{"intron:curated", "exon"}))
	require.Equal(t, a, b)

	require.NotEqual(t, Key(Parse([]string{"exon"})), Key(Parse([]string{"intron"})))
}

func TestStorageFilters(t *testing.T) {
	require.Equal(t,
		[]storage.TypeFilter{{Method: "exon"}, {Method: "intron", Source: "curated"}},
		StorageFilters(Parse([]string{"exon", "intron:curated"})))

	// regex metacharacters disable pushdown entirely
	require.Nil(t, StorageFilters(Parse([]string{"exon", "similarity:BLAST.*"})))
	require.Nil(t, StorageFilters(nil))
}

func TestCacheReusesCompiledMatcher(t *testing.T) {
	c := NewCache(10)
	defer c.Close()

	patterns := Parse([]string{"exon:curated"})
	m1, err := c.Get(patterns)
	require.NoError(t, err)
	m2, err := c.Get(Parse([]string{"exon:curated"}))
	require.NoError(t, err)
	require.Same(t, m1, m2)

	_, err = c.Get(Parse([]string{"exon:("}))
	require.Error(t, err)
}
