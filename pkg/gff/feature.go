package gff

// Feature is a single annotation occurrence on a reference sequence.
// Features are created per retrieval and are immutable once constructed.
type Feature struct {
	// ID is the backend row id, when the record came from storage.
	ID string

	// Ref is the absolute reference sequence the feature lives on.
	Ref string

	// Start and Stop are absolute, 1-based, inclusive, and always
	// low-to-high regardless of strand.
	Start int64
	Stop  int64

	Type   Type
	Score  *float64
	Strand Strand

	// Phase is the coding phase (0-2) when meaningful, else nil.
	Phase *int8

	// Group links related features into one composite object; nil for
	// ungrouped annotations.
	Group *Group

	// TargetStart and TargetStop mirror the group's target span for
	// alignment hits. They keep the loaded order.
	TargetStart Coord
	TargetStop  Coord
}

// Length returns the spanned length in base pairs.
func (f *Feature) Length() int64 {
	return f.Stop - f.Start + 1
}

// Overlaps reports whether the feature overlaps [start, stop] on ref.
func (f *Feature) Overlaps(ref string, start, stop int64) bool {
	return f.Ref == ref && f.Start <= stop && f.Stop >= start
}
