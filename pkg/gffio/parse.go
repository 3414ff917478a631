// Package gffio reads and writes GFF2 annotation text and bulk-loads it
// into a storage backend. The engine never touches raw text; everything
// line-oriented lives here.
package gffio

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gffdb/gffdb/pkg/gff"
	"github.com/gffdb/gffdb/pkg/storage"
)

// ParseError reports a malformed GFF line. The loader skips these and
// keeps going; callers that want strict parsing can treat them as fatal.
type ParseError struct {
	Line int
	Text string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("gff line %d: %v", e.Line, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ParseLine parses one tab-delimited GFF2 feature line:
//
//	ref  source  method  start  stop  score  strand  phase  [group]
//
// "." columns mean unset. The group column holds whitespace-separated
// attributes split on ";"; the first attribute of the form
// `Class name` or `Target "class:name" start stop` becomes the
// record's group, anything else (notes) is ignored.
func ParseLine(line string) (*storage.Record, error) {
	cols := strings.Split(line, "\t")
	if len(cols) < 8 {
		return nil, fmt.Errorf("expected at least 8 tab-separated columns, got %d", len(cols))
	}

	start, err := strconv.ParseInt(cols[3], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("start %q: %w", cols[3], err)
	}
	stop, err := strconv.ParseInt(cols[4], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("stop %q: %w", cols[4], err)
	}
	if start > stop {
		start, stop = stop, start
	}

	r := &storage.Record{
		Ref:    cols[0],
		Source: dot(cols[1]),
		Method: cols[2],
		Start:  start,
		Stop:   stop,
		Strand: gff.ParseStrand(cols[6]),
	}

	if cols[5] != "." && cols[5] != "" {
		score, err := strconv.ParseFloat(cols[5], 64)
		if err != nil {
			return nil, fmt.Errorf("score %q: %w", cols[5], err)
		}
		r.Score = &score
	}

	if cols[7] != "." && cols[7] != "" {
		phase, err := strconv.ParseInt(cols[7], 10, 8)
		if err != nil {
			return nil, fmt.Errorf("phase %q: %w", cols[7], err)
		}
		p := int8(phase)
		r.Phase = &p
	}

	if len(cols) > 8 {
		if err := parseGroup(cols[8], r); err != nil {
			return nil, fmt.Errorf("group %q: %w", cols[8], err)
		}
	}
	return r, nil
}

func dot(s string) string {
	if s == "." {
		return ""
	}
	return s
}

func parseGroup(field string, r *storage.Record) error {
	for _, attr := range strings.Split(field, ";") {
		tokens := groupTokens(attr)
		if len(tokens) < 2 {
			continue
		}

		if strings.EqualFold(tokens[0], "Target") {
			class, name, ok := strings.Cut(tokens[1], ":")
			if !ok {
				return fmt.Errorf("target %q is not class:name", tokens[1])
			}
			r.GroupClass = class
			r.GroupName = name
			if len(tokens) >= 4 {
				tstart, err := strconv.ParseInt(tokens[2], 10, 64)
				if err != nil {
					return fmt.Errorf("target start %q: %w", tokens[2], err)
				}
				tstop, err := strconv.ParseInt(tokens[3], 10, 64)
				if err != nil {
					return fmt.Errorf("target stop %q: %w", tokens[3], err)
				}
				// target order is preserved, an inverted span is a
				// reverse-strand hit
				r.TargetStart = gff.NewCoord(tstart)
				r.TargetStop = gff.NewCoord(tstop)
			}
			return nil
		}

		if strings.EqualFold(tokens[0], "Note") {
			continue
		}
		r.GroupClass = tokens[0]
		r.GroupName = tokens[1]
		return nil
	}
	return nil
}

// groupTokens splits a group attribute on whitespace, honoring double
// quotes around values.
func groupTokens(s string) []string {
	var tokens []string
	var cur strings.Builder
	inQuote := false
	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}
	for _, c := range s {
		switch {
		case c == '"':
			inQuote = !inQuote
		case !inQuote && (c == ' ' || c == '\t'):
			flush()
		default:
			cur.WriteRune(c)
		}
	}
	flush()
	return tokens
}
