package gff

import "fmt"

// Segment is a coordinate frame anchored to a named landmark: an absolute
// reference span plus a strand saying whether the frame is flipped
// relative to the reference's native orientation. Segments are immutable;
// deriving a new frame returns a new value.
type Segment struct {
	// Ref is the absolute reference sequence id.
	Ref string

	// Class is the landmark class the segment was resolved from
	// (defaults to "Sequence").
	Class string

	// Start and Stop are absolute, 1-based, inclusive, low-to-high.
	Start int64
	Stop  int64

	// Strand is the frame orientation. StrandReverse means relative
	// position 1 sits at the absolute Stop.
	Strand Strand
}

func (s Segment) Length() int64 {
	return s.Stop - s.Start + 1
}

func (s Segment) String() string {
	return fmt.Sprintf("%s:%d..%d(%s)", s.Ref, s.Start, s.Stop, s.Strand)
}

// Flip returns the same span viewed from the opposite orientation.
func (s Segment) Flip() Segment {
	flipped := s
	if s.Strand == StrandReverse {
		flipped.Strand = StrandForward
	} else {
		flipped.Strand = StrandReverse
	}
	return flipped
}

// Relative re-expresses an absolute [start, stop] plus strand in this
// frame. On a reverse frame positions reflect around the span:
// relStart = Stop - absStop + 1, relStop = Stop - absStart + 1, and the
// strand inverts. The returned pair is ordered low-to-high.
func (s Segment) Relative(absStart, absStop int64, strand Strand) (int64, int64, Strand) {
	if s.Strand == StrandReverse {
		return s.Stop - absStop + 1, s.Stop - absStart + 1, strand.Flip()
	}
	return absStart - s.Start + 1, absStop - s.Start + 1, strand
}

// Absolute converts frame-relative [start, stop] plus strand back to
// absolute coordinates. It is the inverse of Relative.
func (s Segment) Absolute(relStart, relStop int64, strand Strand) (int64, int64, Strand) {
	if s.Strand == StrandReverse {
		return s.Stop - relStop + 1, s.Stop - relStart + 1, strand.Flip()
	}
	return s.Start + relStart - 1, s.Start + relStop - 1, strand
}

// SubOffset derives a frame from a 0-based offset and a length, measured
// along the segment's own orientation.
func (s Segment) SubOffset(offset, length int64) (Segment, error) {
	if length <= 0 {
		return Segment{}, fmt.Errorf("segment length must be positive, got %d", length)
	}
	sub := s
	if s.Strand == StrandReverse {
		sub.Stop = s.Stop - offset
		sub.Start = sub.Stop - length + 1
	} else {
		sub.Start = s.Start + offset
		sub.Stop = sub.Start + length - 1
	}
	return sub, nil
}

// SubRange derives a frame from 1-based relative start/stop. Inverted
// bounds are normalized by swapping before conversion.
func (s Segment) SubRange(start, stop int64) Segment {
	if start > stop {
		start, stop = stop, start
	}
	absStart, absStop, _ := s.Absolute(start, stop, s.Strand)
	sub := s
	sub.Start = absStart
	sub.Stop = absStop
	return sub
}
