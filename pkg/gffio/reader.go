package gffio

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/gffdb/gffdb/pkg/storage"
)

// maxLineSize bounds a single GFF line. Group columns with long notes
// fit comfortably; anything bigger is corrupt input.
const maxLineSize = 1024 * 1024

// Reader reads feature records from GFF2 text, plain or gzipped.
// Comment and blank lines are skipped; `##sequence-region` directives
// are collected and exposed via Refseqs.
type Reader struct {
	s       *bufio.Scanner
	line    int
	refseqs map[string]int64
}

// NewReader wraps r, transparently decompressing gzip input. Gzip is
// detected by its magic bytes, not a file name.
func NewReader(r io.Reader) (*Reader, error) {
	br := bufio.NewReader(r)
	sig, err := br.Peek(2)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("read input: %w", err)
	}

	var src io.Reader = br
	if len(sig) == 2 && sig[0] == 0x1f && sig[1] == 0x8b {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("open gzip stream: %w", err)
		}
		src = gz
	}

	s := bufio.NewScanner(src)
	s.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &Reader{
		s:       s,
		refseqs: make(map[string]int64),
	}, nil
}

// Read returns the next feature record, or io.EOF when the input is
// exhausted. Malformed lines are returned as *ParseError; the caller
// decides whether to skip or abort.
func (r *Reader) Read() (*storage.Record, error) {
	for r.s.Scan() {
		r.line++
		line := strings.TrimRight(r.s.Text(), "\r")
		switch {
		case strings.TrimSpace(line) == "":
			continue
		case strings.HasPrefix(line, "##"):
			r.directive(line)
			continue
		case strings.HasPrefix(line, "#"):
			continue
		}

		rec, err := ParseLine(line)
		if err != nil {
			return nil, &ParseError{Line: r.line, Text: line, Err: err}
		}
		return rec, nil
	}
	if err := r.s.Err(); err != nil {
		return nil, fmt.Errorf("scan input: %w", err)
	}
	return nil, io.EOF
}

// Line returns the number of the last line read.
func (r *Reader) Line() int {
	return r.line
}

// Refseqs returns the reference sequence lengths declared by
// `##sequence-region` directives seen so far.
func (r *Reader) Refseqs() map[string]int64 {
	return r.refseqs
}

func (r *Reader) directive(line string) {
	fields := strings.Fields(strings.TrimPrefix(line, "##"))
	if len(fields) != 3 || !strings.EqualFold(fields[0], "sequence-region") {
		return
	}
	stop, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return
	}
	if stop > r.refseqs[fields[1]] {
		r.refseqs[fields[1]] = stop
	}
}
