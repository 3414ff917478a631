package gffio

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/gffdb/gffdb/pkg/gff"
)

// Writer formats features back to GFF2 text.
type Writer struct {
	w *bufio.Writer
}

// NewWriter returns a Writer on w. Call Flush when done.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

// WriteFeature writes one feature as a GFF2 line.
func (w *Writer) WriteFeature(f *gff.Feature) error {
	cols := []string{
		f.Ref,
		orDot(f.Type.Source),
		f.Type.Method,
		strconv.FormatInt(f.Start, 10),
		strconv.FormatInt(f.Stop, 10),
		formatScore(f.Score),
		f.Strand.String(),
		formatPhase(f.Phase),
	}
	if group := formatGroup(f); group != "" {
		cols = append(cols, group)
	}
	if _, err := w.w.WriteString(strings.Join(cols, "\t")); err != nil {
		return err
	}
	return w.w.WriteByte('\n')
}

// Flush writes any buffered output to the underlying writer.
func (w *Writer) Flush() error {
	return w.w.Flush()
}

func orDot(s string) string {
	if s == "" {
		return "."
	}
	return s
}

func formatScore(score *float64) string {
	if score == nil {
		return "."
	}
	return strconv.FormatFloat(*score, 'g', -1, 64)
}

func formatPhase(phase *int8) string {
	if phase == nil {
		return "."
	}
	return strconv.FormatInt(int64(*phase), 10)
}

func formatGroup(f *gff.Feature) string {
	g := f.Group
	if g == nil {
		return ""
	}
	if f.TargetStart.OK && f.TargetStop.OK {
		return "Target \"" + g.Class + ":" + g.Name + "\" " +
			strconv.FormatInt(f.TargetStart.Pos, 10) + " " +
			strconv.FormatInt(f.TargetStop.Pos, 10)
	}
	return g.Class + " \"" + g.Name + "\""
}
