package gff

// Coord is an optional 1-based coordinate. The zero value is unset.
// Position zero is a valid coordinate and is distinct from unset.
type Coord struct {
	Pos int64
	OK  bool
}

// NewCoord returns a set Coord at position p.
func NewCoord(p int64) Coord {
	return Coord{Pos: p, OK: true}
}

// Group identifies the composite object a feature belongs to: a
// (class, name) pair, optionally qualified by a target span when the
// group was derived from an alignment Target. Two features with equal
// (class, name, target start, target stop) belong to the same group
// within a single retrieval; identity sharing of *Group values is an
// optimization on top of that, never the contract.
type Group struct {
	Class string
	Name  string

	// TargetStart and TargetStop keep the loaded order; TargetStart may
	// exceed TargetStop for hits on the opposite strand of the target.
	TargetStart Coord
	TargetStop  Coord
}

// GroupKey is the comparable value identity of a Group, usable as a map key.
type GroupKey struct {
	Class  string
	Name   string
	TStart Coord
	TStop  Coord
}

func (g *Group) Key() GroupKey {
	return GroupKey{
		Class:  g.Class,
		Name:   g.Name,
		TStart: g.TargetStart,
		TStop:  g.TargetStop,
	}
}

// Equal reports whether two groups have the same value identity.
// Both nil compares equal; nil never equals non-nil.
func (g *Group) Equal(o *Group) bool {
	if g == nil || o == nil {
		return g == o
	}
	return g.Key() == o.Key()
}

func (g *Group) String() string {
	if g == nil {
		return ""
	}
	return g.Class + ":" + g.Name
}
