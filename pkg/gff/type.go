// Package gff defines the core value types of the annotation model:
// feature types, groups, features and coordinate segments.
//
// Coordinates throughout are 1-based and inclusive. A feature's absolute
// start/stop are always stored low-to-high; orientation is carried by the
// strand. Target (alignment) coordinates are the one exception: they keep
// the order they were loaded with, because an inverted target span means
// the hit runs in the opposite direction.
package gff

import "strings"

// Strand is the orientation of a feature or coordinate frame.
type Strand int8

const (
	StrandNone    Strand = 0
	StrandForward Strand = 1
	StrandReverse Strand = -1
)

// Flip returns the opposite strand. Flipping StrandNone is a no-op.
func (s Strand) Flip() Strand {
	return -s
}

func (s Strand) String() string {
	switch s {
	case StrandForward:
		return "+"
	case StrandReverse:
		return "-"
	default:
		return "."
	}
}

// ParseStrand interprets the GFF strand column. Anything other than
// "+" or "-" (".", "?", empty) is StrandNone.
func ParseStrand(s string) Strand {
	switch s {
	case "+":
		return StrandForward
	case "-":
		return StrandReverse
	default:
		return StrandNone
	}
}

// Type is a feature type: an ordered (method, source) pair. An empty
// source acts as a wildcard when matching. Equality is case-insensitive.
type Type struct {
	Method string
	Source string
}

// NewType splits a "method:source" string on the first colon. A string
// without a colon yields a Type with an empty (wildcard) source.
func NewType(s string) Type {
	method, source, _ := strings.Cut(s, ":")
	return Type{Method: method, Source: source}
}

// String returns the serialized "method:source" form. The source is
// omitted when empty.
func (t Type) String() string {
	if t.Source == "" {
		return t.Method
	}
	return t.Method + ":" + t.Source
}

// Qualified returns the fully-qualified "method:source" form used for
// pattern matching, including the trailing colon for an empty source.
func (t Type) Qualified() string {
	return t.Method + ":" + t.Source
}

// Match reports whether o is the same type as t. Comparison is
// case-insensitive and an empty source on either side matches any source.
func (t Type) Match(o Type) bool {
	if !strings.EqualFold(t.Method, o.Method) {
		return false
	}
	if t.Source == "" || o.Source == "" {
		return true
	}
	return strings.EqualFold(t.Source, o.Source)
}
