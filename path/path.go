// Package path implements the structural path vectors used to address
// locations in a synchronized state tree. A Path is never a pointer into the
// tree; it is re-resolved against the live state on each read, the same way
// a skiplist key in the teacher's skiplist package is re-looked-up rather
// than cached as a node reference.
package path

import (
	"strconv"
	"strings"

	"golang.org/x/exp/slices"
)

// Kind distinguishes the two segment shapes a Path element can take.
type Kind int

const (
	KindString Kind = iota
	KindInt
)

// Segment is one element of a Path: either a string key or a non-negative
// integer index. Use String or Int to build one; use the Kind field to
// switch on which is populated.
type Segment struct {
	Kind Kind
	Str  string
	Int  int
}

// String builds a string-kind Segment.
func String(s string) Segment { return Segment{Kind: KindString, Str: s} }

// Int builds an int-kind Segment.
func Int(i int) Segment { return Segment{Kind: KindInt, Int: i} }

// FromRaw builds a Segment from a raw traversal key, applying the
// numeric-string coercion rule: a string of decimal digits with no leading
// zero (other than the literal "0") is recorded as an integer segment; every
// other string is recorded verbatim. This guarantees that traversing
// root["3"] and root[3] record identical paths.
func FromRaw(raw string) Segment {
	if n, ok := parseIndex(raw); ok {
		return Int(n)
	}
	return String(raw)
}

func parseIndex(raw string) (int, bool) {
	if raw == "" {
		return 0, false
	}
	if raw == "0" {
		return 0, true
	}
	if raw[0] == '0' {
		return 0, false // leading zero, keep as string
	}
	for _, r := range raw {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return n, true
}

// String renders the segment for diagnostics and for use as a cache/bucket
// key component.
func (s Segment) String() string {
	if s.Kind == KindInt {
		return strconv.Itoa(s.Int)
	}
	return s.Str
}

// Equal reports whether two segments address the same slot.
func (s Segment) Equal(other Segment) bool {
	return s.Kind == other.Kind && s.Str == other.Str && s.Int == other.Int
}

// Path is an ordered sequence of segments. The empty Path denotes the store
// root.
type Path []Segment

// Root is the empty path, denoting the store root.
func Root() Path { return Path{} }

// Of is a convenience constructor from raw string/int segments (as used by
// callers building a path by hand rather than via traversal).
func Of(segs ...any) Path {
	p := make(Path, 0, len(segs))
	for _, s := range segs {
		switch v := s.(type) {
		case int:
			p = append(p, Int(v))
		case string:
			p = append(p, FromRaw(v))
		case Segment:
			p = append(p, v)
		default:
			panic("path.Of: unsupported segment type")
		}
	}
	return p
}

// Append returns a new Path with seg appended; the receiver is never
// mutated, matching the proxy's "extend a path vector" semantics.
func (p Path) Append(seg Segment) Path {
	out := make(Path, len(p)+1)
	copy(out, p)
	out[len(p)] = seg
	return out
}

// Equal reports whether two paths have identical segments in the same order.
func (p Path) Equal(other Path) bool {
	if len(p) != len(other) {
		return false
	}
	for i := range p {
		if !p[i].Equal(other[i]) {
			return false
		}
	}
	return true
}

// IsRoot reports whether p is the empty path.
func (p Path) IsRoot() bool { return len(p) == 0 }

// IsPrefixOf reports whether p is a prefix of other (including equality).
func (p Path) IsPrefixOf(other Path) bool {
	if len(p) > len(other) {
		return false
	}
	for i := range p {
		if !p[i].Equal(other[i]) {
			return false
		}
	}
	return true
}

// Overlaps implements the bus overlap rule of spec §4.1: P overlaps C iff
// one is a prefix of the other (including equality).
func (p Path) Overlaps(c Path) bool {
	return p.IsPrefixOf(c) || c.IsPrefixOf(p)
}

// String renders a Path as a slash-joined diagnostic string, e.g. "a/3/name".
func (p Path) String() string {
	parts := make([]string, len(p))
	for i, s := range p {
		parts[i] = s.String()
	}
	return strings.Join(parts, "/")
}

// Clone returns a defensive copy of p.
func (p Path) Clone() Path {
	out := make(Path, len(p))
	copy(out, p)
	return out
}

// Slice is a collection of Paths, used by the store layer to batch several
// changed locations into one notify call. Modeled on the teacher's
// cfgpath.PathSlice (aryanugroho-pkg/config/cfgpath/path_slice.go), adapted
// from a flat route/scope/id triple to the structural segment vector used
// here.
type Slice []Path

// Contains reports whether p is present in the slice (by Equal).
func (s Slice) Contains(p Path) bool {
	for _, existing := range s {
		if existing.Equal(p) {
			return true
		}
	}
	return false
}

// Dedup returns a new Slice with exact duplicates removed, preserving the
// first occurrence's order. Built atop golang.org/x/exp/slices, giving the
// x/exp dependency declared (but unused) by the teacher's go.mod a genuine
// call site.
func (s Slice) Dedup() Slice {
	out := make(Slice, 0, len(s))
	for _, p := range s {
		if idx := slices.IndexFunc(out, func(q Path) bool { return q.Equal(p) }); idx == -1 {
			out = append(out, p)
		}
	}
	return out
}
