package landmark

import (
	"errors"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/spatial/r2"
)

// ErrInvalidGroup is returned for landmark configurations that cannot be
// clustered.
var ErrInvalidGroup = errors.New("landmark: invalid group")

// Group is a named class of repeating tiles within one area, represented by
// ExpectedClusterCount centers. Centers keeps its length even while the
// group is invalid; stale centers are retained but not drawn.
type Group struct {
	Name                 string
	Display              string
	ExpectedClusterCount int
	Centers              []r2.Vec
	Valid                bool
}

// NewGroup builds a group from user configuration. An expected count of
// zero means "one cluster per tile currently observed" and an empty display
// name falls back to the tile name.
func NewGroup(name, display string, expected, observed int) (Group, error) {
	if name == "" {
		return Group{}, fmt.Errorf("%w: empty tile name", ErrInvalidGroup)
	}
	if expected < 0 {
		return Group{}, fmt.Errorf("%w: expected cluster count must be non-negative, got %d", ErrInvalidGroup, expected)
	}
	if expected == 0 {
		expected = observed
	}
	if display == "" {
		display = name
	}
	return Group{
		Name:                 name,
		Display:              display,
		ExpectedClusterCount: expected,
		Centers:              make([]r2.Vec, expected),
	}, nil
}

// Clone returns a deep copy with Centers sized to ExpectedClusterCount.
func (g Group) Clone() Group {
	out := g
	n := g.ExpectedClusterCount
	if n < 0 {
		n = 0
	}
	out.Centers = make([]r2.Vec, n)
	copy(out.Centers, g.Centers)
	return out
}

// AreaIndex maps tile name to its landmark group within one area.
type AreaIndex map[string]Group

// Names returns the tile names in sorted order.
func (idx AreaIndex) Names() []string {
	names := make([]string, 0, len(idx))
	for name := range idx {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone deep-copies every group.
func (idx AreaIndex) Clone() AreaIndex {
	out := make(AreaIndex, len(idx))
	for name, g := range idx {
		out[name] = g.Clone()
	}
	return out
}

// Valid returns the valid groups sorted by name.
func (idx AreaIndex) Valid() []Group {
	var out []Group
	for _, name := range idx.Names() {
		if g := idx[name]; g.Valid {
			out = append(out, g)
		}
	}
	return out
}

// Observations maps tile name to the raw positions reported for the
// current area, in provider order.
type Observations map[string][]r2.Vec

// Clone returns a deep copy. A nil set clones to nil.
func (o Observations) Clone() Observations {
	if o == nil {
		return nil
	}
	out := make(Observations, len(o))
	for name, pts := range o {
		out[name] = append([]r2.Vec(nil), pts...)
	}
	return out
}
