// Package htmlcodec converts nested multilingual objects into the flat HTML
// form the batch document translator accepts, and back.
package htmlcodec

import (
	"strconv"
	"strings"
)

// Segment is one step of a path into a nested object: either a map key or a
// slice index, never a raw string that has to be re-parsed.
type Segment struct {
	Key     string
	Index   int
	IsIndex bool
}

func Key(k string) Segment { return Segment{Key: k} }

func Index(i int) Segment { return Segment{Index: i, IsIndex: true} }

func (s Segment) String() string {
	if s.IsIndex {
		return strconv.Itoa(s.Index)
	}
	return s.Key
}

// Path locates one translatable leaf.
type Path []Segment

// ID renders the path as the element id used in the generated markup. Paths
// are unique within one object, so ids are too.
func (p Path) ID() string {
	parts := make([]string, len(p))
	for i, s := range p {
		parts[i] = s.String()
	}
	return strings.Join(parts, "-")
}

func (p Path) clone() Path {
	c := make(Path, len(p))
	copy(c, p)
	return c
}

// Entry is one flattened leaf: where it came from and its source text.
type Entry struct {
	Path Path
	Text string
}

func (e Entry) ID() string { return e.Path.ID() }
