// Package configtree implements path-anchored configuration trees and the
// reconciliation engine that diffs, merges and lowers them into device
// commands.
//
// A tree value is one of three node kinds:
//
//	*Mapping  - string keys to child nodes
//	*Sequence - ordered list of string values (multi-value leaf)
//	*Scalar   - single string value
//
// Nodes are immutable once built. Every transformation returns new nodes and
// shares untouched children, so a node can be handed to any number of trees
// and goroutines without copying.
//
// Mapping keys are always visited in lexical order. Generated command lists
// are therefore deterministic for a given pair of inputs.
package configtree

import (
	"sort"
)

// Kind identifies the shape of a Node.
type Kind int

const (
	KindMapping Kind = iota
	KindSequence
	KindScalar
)

func (k Kind) String() string {
	switch k {
	case KindMapping:
		return "mapping"
	case KindSequence:
		return "sequence"
	case KindScalar:
		return "scalar"
	default:
		return "unknown"
	}
}

// Node is a configuration value. The set of implementations is closed.
type Node interface {
	Kind() Kind
	node()
}

// Mapping is a keyed configuration node.
//
// The complete flag marks a mapping that must be deleted or created as a
// whole during command generation. It is metadata and never appears as a key.
type Mapping struct {
	entries  map[string]Node
	complete bool
}

// Sequence is an ordered multi-value leaf.
type Sequence struct {
	items []string
}

// Scalar is a single-value leaf.
type Scalar struct {
	value string
}

func (*Mapping) Kind() Kind  { return KindMapping }
func (*Sequence) Kind() Kind { return KindSequence }
func (*Scalar) Kind() Kind   { return KindScalar }

func (*Mapping) node()  {}
func (*Sequence) node() {}
func (*Scalar) node()   {}

// NewMapping builds a mapping from entries. The map is copied; nil values are
// dropped.
func NewMapping(entries map[string]Node) *Mapping {
	m := &Mapping{entries: make(map[string]Node, len(entries))}
	for k, v := range entries {
		if v != nil {
			m.entries[k] = v
		}
	}
	return m
}

// EmptyMapping returns a mapping with no entries.
func EmptyMapping() *Mapping {
	return &Mapping{entries: map[string]Node{}}
}

// NewSequence builds a sequence. The slice is copied.
func NewSequence(items ...string) *Sequence {
	return &Sequence{items: append([]string(nil), items...)}
}

// NewScalar builds a scalar.
func NewScalar(v string) *Scalar {
	return &Scalar{value: v}
}

// Len returns the number of entries.
func (m *Mapping) Len() int { return len(m.entries) }

// Complete reports whether the mapping is flagged for wholesale replacement.
func (m *Mapping) Complete() bool { return m.complete }

// Get returns the child stored under key.
func (m *Mapping) Get(key string) (Node, bool) {
	n, ok := m.entries[key]
	return n, ok
}

// Keys returns the mapping keys in lexical order.
func (m *Mapping) Keys() []string {
	keys := make([]string, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// With returns a copy of m with key set to n.
func (m *Mapping) With(key string, n Node) *Mapping {
	out := m.clone()
	if n == nil {
		delete(out.entries, key)
	} else {
		out.entries[key] = n
	}
	return out
}

// Without returns a copy of m with key removed.
func (m *Mapping) Without(key string) *Mapping {
	out := m.clone()
	delete(out.entries, key)
	return out
}

// WithComplete returns a copy of m with the complete flag set to c.
func (m *Mapping) WithComplete(c bool) *Mapping {
	if m.complete == c {
		return m
	}
	out := m.clone()
	out.complete = c
	return out
}

func (m *Mapping) clone() *Mapping {
	out := &Mapping{entries: make(map[string]Node, len(m.entries)+1), complete: m.complete}
	for k, v := range m.entries {
		out.entries[k] = v
	}
	return out
}

// Items returns a copy of the sequence values.
func (s *Sequence) Items() []string {
	return append([]string(nil), s.items...)
}

// Len returns the number of values.
func (s *Sequence) Len() int { return len(s.items) }

// Contains reports whether v is one of the sequence values.
func (s *Sequence) Contains(v string) bool {
	for _, item := range s.items {
		if item == v {
			return true
		}
	}
	return false
}

// Value returns the scalar string.
func (s *Scalar) Value() string { return s.value }

// Objectize normalizes a node into an equivalent single-level mapping:
// scalar x becomes {x: {}}, a sequence becomes one empty-mapping key per
// item, and a mapping is returned unchanged.
func Objectize(n Node) *Mapping {
	switch v := n.(type) {
	case *Mapping:
		return v
	case *Sequence:
		m := &Mapping{entries: make(map[string]Node, len(v.items))}
		for _, item := range v.items {
			m.entries[item] = EmptyMapping()
		}
		return m
	case *Scalar:
		return &Mapping{entries: map[string]Node{v.value: EmptyMapping()}}
	default:
		return EmptyMapping()
	}
}

// Equal reports whether a and b hold the same configuration. Sequence order
// is significant; the complete flag is ignored.
func Equal(a, b Node) bool {
	switch av := a.(type) {
	case *Mapping:
		bv, ok := b.(*Mapping)
		if !ok || len(av.entries) != len(bv.entries) {
			return false
		}
		for k, an := range av.entries {
			bn, ok := bv.entries[k]
			if !ok || !Equal(an, bn) {
				return false
			}
		}
		return true
	case *Sequence:
		bv, ok := b.(*Sequence)
		if !ok || len(av.items) != len(bv.items) {
			return false
		}
		for i := range av.items {
			if av.items[i] != bv.items[i] {
				return false
			}
		}
		return true
	case *Scalar:
		bv, ok := b.(*Scalar)
		return ok && av.value == bv.value
	default:
		return a == nil && b == nil
	}
}

// Equivalent reports whether a and b describe the same configuration once
// scalars and sequences are objectized.
func Equivalent(a, b Node) bool {
	l, r := diffValues(a, b)
	return l == nil && r == nil
}

// ToPlain converts a node into plain Go values (map[string]any, []string,
// string) for rendering.
func ToPlain(n Node) any {
	switch v := n.(type) {
	case *Mapping:
		out := make(map[string]any, len(v.entries))
		for k, child := range v.entries {
			out[k] = ToPlain(child)
		}
		return out
	case *Sequence:
		return v.Items()
	case *Scalar:
		return v.value
	default:
		return nil
	}
}
