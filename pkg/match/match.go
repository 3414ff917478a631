// Package match parses "method:source" type specifications and compiles
// them into case-insensitive predicates over feature types. Either field
// may be a regular expression; an absent field matches anything.
package match

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/gffdb/gffdb/pkg/gff"
	"github.com/gffdb/gffdb/pkg/storage"
)

// TypePattern is one parsed type specification. Fields hold the raw
// pattern text; an empty field is a wildcard.
type TypePattern struct {
	Method string
	Source string
}

func (p TypePattern) String() string {
	method, source := p.Method, p.Source
	if method == "" {
		method = ".*"
	}
	if source == "" {
		source = ".*"
	}
	return method + ":" + source
}

// Parse splits each specification on its first colon. A specification
// without a colon yields a wildcard source. Empty input yields nil,
// which compiles to a match-everything predicate.
func Parse(specs []string) []TypePattern {
	if len(specs) == 0 {
		return nil
	}
	patterns := make([]TypePattern, 0, len(specs))
	for _, s := range specs {
		method, source, _ := strings.Cut(s, ":")
		patterns = append(patterns, TypePattern{Method: method, Source: source})
	}
	return patterns
}

// CompileError reports a malformed user-supplied pattern. It surfaces at
// predicate-build time, never silently.
type CompileError struct {
	Pattern string
	Err     error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("bad type pattern %q: %v", e.Pattern, e.Err)
}

func (e *CompileError) Unwrap() error {
	return e.Err
}

type compiledPattern struct {
	method *regexp.Regexp // nil matches anything
	source *regexp.Regexp
}

// Matcher is a compiled predicate over feature types. A Matcher compiled
// from no patterns matches everything. Matchers are immutable and safe
// for concurrent use.
type Matcher struct {
	patterns []compiledPattern
}

func compileField(field string) (*regexp.Regexp, error) {
	if field == "" {
		return nil, nil
	}
	return regexp.Compile(`(?i)^(?:` + field + `)$`)
}

// Compile builds a Matcher from parsed patterns. Each field compiles to
// an anchored case-insensitive expression.
func Compile(patterns []TypePattern) (*Matcher, error) {
	m := &Matcher{patterns: make([]compiledPattern, 0, len(patterns))}
	for _, p := range patterns {
		method, err := compileField(p.Method)
		if err != nil {
			return nil, &CompileError{Pattern: p.String(), Err: err}
		}
		source, err := compileField(p.Source)
		if err != nil {
			return nil, &CompileError{Pattern: p.String(), Err: err}
		}
		m.patterns = append(m.patterns, compiledPattern{method: method, source: source})
	}
	return m, nil
}

// Match reports whether the type satisfies any of the compiled patterns.
func (m *Matcher) Match(t gff.Type) bool {
	if len(m.patterns) == 0 {
		return true
	}
	for _, p := range m.patterns {
		if p.method != nil && !p.method.MatchString(t.Method) {
			continue
		}
		if p.source != nil && !p.source.MatchString(t.Source) {
			continue
		}
		return true
	}
	return false
}

// MatchFeature applies Match to the feature's type.
func (m *Matcher) MatchFeature(f *gff.Feature) bool {
	return m.Match(f.Type)
}

// Key returns the normalized cache key for a pattern set. Patterns are
// sorted so equivalent sets in different order share a compilation.
func Key(patterns []TypePattern) string {
	parts := make([]string, 0, len(patterns))
	for _, p := range patterns {
		parts = append(parts, strings.ToLower(p.String()))
	}
	sort.Strings(parts)
	return strings.Join(parts, "|")
}

// literal reports whether a pattern field is plain text with no regular
// expression metacharacters.
func literal(field string) bool {
	return !strings.ContainsAny(field, `\.+*?()|[]{}^$`)
}

// StorageFilters converts patterns into concrete backend type filters.
// It returns nil when any pattern needs regular-expression semantics, in
// which case the backend fetches unfiltered and the compiled Matcher
// filters engine-side.
func StorageFilters(patterns []TypePattern) []storage.TypeFilter {
	if len(patterns) == 0 {
		return nil
	}
	filters := make([]storage.TypeFilter, 0, len(patterns))
	for _, p := range patterns {
		if !literal(p.Method) || !literal(p.Source) {
			return nil
		}
		filters = append(filters, storage.TypeFilter{Method: p.Method, Source: p.Source})
	}
	return filters
}
