package configtree

// Diff is the structural difference between two trees. Left holds what only
// the "before" tree has, Right what only the "after" tree has. Both nil means
// the trees are equivalent.
type Diff struct {
	context Path
	left    Node
	right   Node
}

// NewDiff builds a diff from explicit remainders.
func NewDiff(context Path, left, right Node) *Diff {
	return &Diff{context: context.Clone(), left: left, right: right}
}

// Context returns the path the remainders are anchored at.
func (d *Diff) Context() Path { return d.context.Clone() }

// Left returns configuration present only before, or nil.
func (d *Diff) Left() Node { return d.left }

// Right returns configuration present only after, or nil.
func (d *Diff) Right() Node { return d.right }

// IsEmpty reports whether there is no difference.
func (d *Diff) IsEmpty() bool {
	return d.left == nil && d.right == nil
}

// Diff compares t ("before") against other ("after"). A nil other means the
// whole of t is a removal.
//
// When contexts differ, the side with the shorter context is narrowed to the
// longer one with SubConfig, so a side that lacks the path fails with
// PathNotFoundError. Callers that treat absent configuration as empty, such
// as router.Reconcile, narrow first.
func (t *ConfigTree) Diff(other *ConfigTree) (*Diff, error) {
	if other == nil {
		return &Diff{context: t.Context(), left: t.config}, nil
	}

	left, right := t, other
	var err error
	switch {
	case len(left.context) < len(right.context):
		left, err = left.SubConfig(right.context)
	case len(left.context) > len(right.context):
		right, err = right.SubConfig(left.context)
	case !left.context.Equal(right.context):
		err = &IncompatibleContextError{Left: left.Context(), Right: right.Context()}
	}
	if err != nil {
		return nil, err
	}

	l, r := diffValues(left.config, right.config)
	return &Diff{context: left.Context(), left: l, right: r}, nil
}

// diffValues compares two nodes found under the same key and returns the
// left and right remainders, nil where a side has nothing of its own.
func diffValues(l, r Node) (Node, Node) {
	switch lv := l.(type) {
	case *Sequence:
		if rv, ok := r.(*Sequence); ok {
			return sequenceMinus(lv, rv), sequenceMinus(rv, lv)
		}
	case *Scalar:
		if rv, ok := r.(*Scalar); ok {
			if lv.value == rv.value {
				return nil, nil
			}
			return lv, rv
		}
	}
	return diffMappings(Objectize(l), Objectize(r))
}

func diffMappings(l, r *Mapping) (Node, Node) {
	left := map[string]Node{}
	right := map[string]Node{}

	for k, lv := range l.entries {
		rv, shared := r.entries[k]
		if !shared {
			left[k] = markComplete(lv)
			continue
		}
		ld, rd := diffValues(lv, rv)
		if ld != nil {
			left[k] = ld
		}
		if rd != nil {
			right[k] = rd
		}
	}
	for k, rv := range r.entries {
		if _, shared := l.entries[k]; !shared {
			right[k] = markComplete(rv)
		}
	}

	return remainder(left), remainder(right)
}

func markComplete(n Node) Node {
	if m, ok := n.(*Mapping); ok {
		return m.WithComplete(true)
	}
	return n
}

func remainder(entries map[string]Node) Node {
	if len(entries) == 0 {
		return nil
	}
	return &Mapping{entries: entries}
}

// sequenceMinus returns the items of a not present in b, or nil.
func sequenceMinus(a, b *Sequence) Node {
	var out []string
	for _, item := range a.items {
		if !b.Contains(item) {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return &Sequence{items: out}
}
