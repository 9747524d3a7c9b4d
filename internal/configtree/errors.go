package configtree

import (
	"fmt"
	"strings"
)

// PathNotFoundError is returned when a requested path is not present as a
// chain of nested mappings.
type PathNotFoundError struct {
	Path    Path
	Segment string
}

func (e *PathNotFoundError) Error() string {
	return fmt.Sprintf("path %s not found (missing or non-mapping segment %q)", e.Path, e.Segment)
}

// IncompatibleContextError is returned when two trees, or a tree and a path,
// are not in an ancestor/descendant relationship.
type IncompatibleContextError struct {
	Left  Path
	Right Path
}

func (e *IncompatibleContextError) Error() string {
	return fmt.Sprintf("incompatible contexts %s and %s", e.Left, e.Right)
}

// Path is an ordered list of configuration path segments.
type Path []string

// String renders the path the way VyOS prints it.
func (p Path) String() string {
	if len(p) == 0 {
		return "[]"
	}
	return "[" + strings.Join(p, " ") + "]"
}

// Equal reports whether p and o have the same segments.
func (p Path) Equal(o Path) bool {
	if len(p) != len(o) {
		return false
	}
	for i := range p {
		if p[i] != o[i] {
			return false
		}
	}
	return true
}

// HasPrefix reports whether prefix is an ancestor of, or equal to, p.
func (p Path) HasPrefix(prefix Path) bool {
	if len(prefix) > len(p) {
		return false
	}
	return p[:len(prefix)].Equal(prefix)
}

// Append returns a new path with segs appended. p is never modified.
func (p Path) Append(segs ...string) Path {
	out := make(Path, 0, len(p)+len(segs))
	out = append(out, p...)
	return append(out, segs...)
}

// Clone returns a copy of p.
func (p Path) Clone() Path {
	return append(Path{}, p...)
}
