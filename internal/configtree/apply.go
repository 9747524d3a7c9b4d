package configtree

// Apply executes operations against t the way a VyOS configuration session
// would and returns the resulting tree. Operation paths are absolute and
// must lie under t's context.
//
// A set without a value creates the path as a valueless node. A set with a
// value stores a scalar, or grows it into a sequence when a different value
// is already present. A delete removes the addressed key, or a single value
// when the last segment names a leaf value.
func (t *ConfigTree) Apply(ops []Operation) (*ConfigTree, error) {
	cfg := t.config
	for _, op := range ops {
		path := Path(op.Path)
		if !path.HasPrefix(t.context) {
			return nil, &IncompatibleContextError{Left: t.Context(), Right: path.Clone()}
		}
		rel := path[len(t.context):]

		var err error
		switch op.Op {
		case OpSet:
			cfg = applySet(cfg, rel, op.Value)
		case OpDelete:
			cfg, err = applyDelete(cfg, rel, path)
		default:
			return nil, &UnknownOperationError{Op: op.Op}
		}
		if err != nil {
			return nil, err
		}
		if cfg == nil {
			cfg = EmptyMapping()
		}
	}
	return &ConfigTree{context: t.Context(), config: cfg, platform: t.platform}, nil
}

// UnknownOperationError is returned for operations other than set and delete.
type UnknownOperationError struct {
	Op OpType
}

func (e *UnknownOperationError) Error() string {
	return "unknown operation " + string(e.Op)
}

func applySet(n Node, rel Path, value *string) Node {
	if len(rel) == 0 {
		if value == nil {
			if n == nil {
				return EmptyMapping()
			}
			return n
		}
		return addValue(n, *value)
	}

	var m *Mapping
	if n == nil {
		m = EmptyMapping()
	} else {
		m = Objectize(n)
	}
	child, _ := m.Get(rel[0])
	return m.With(rel[0], applySet(child, rel[1:], value))
}

func addValue(n Node, v string) Node {
	switch cur := n.(type) {
	case nil:
		return NewScalar(v)
	case *Scalar:
		if cur.value == v {
			return cur
		}
		return NewSequence(cur.value, v)
	case *Sequence:
		if cur.Contains(v) {
			return cur
		}
		return NewSequence(append(cur.Items(), v)...)
	case *Mapping:
		if cur.Len() == 0 {
			return NewScalar(v)
		}
		if _, ok := cur.Get(v); ok {
			return cur
		}
		return cur.With(v, EmptyMapping())
	}
	return n
}

func applyDelete(n Node, rel, full Path) (Node, error) {
	if len(rel) == 0 {
		return nil, nil
	}

	switch cur := n.(type) {
	case *Mapping:
		child, ok := cur.Get(rel[0])
		if !ok {
			return nil, &PathNotFoundError{Path: full.Clone(), Segment: rel[0]}
		}
		updated, err := applyDelete(child, rel[1:], full)
		if err != nil {
			return nil, err
		}
		if updated == nil {
			return cur.Without(rel[0]), nil
		}
		return cur.With(rel[0], updated), nil
	case *Scalar:
		if len(rel) == 1 && cur.value == rel[0] {
			return nil, nil
		}
	case *Sequence:
		if len(rel) == 1 && cur.Contains(rel[0]) {
			var rest []string
			for _, item := range cur.items {
				if item != rel[0] {
					rest = append(rest, item)
				}
			}
			if len(rest) == 0 {
				return nil, nil
			}
			return NewSequence(rest...), nil
		}
	}
	return nil, &PathNotFoundError{Path: full.Clone(), Segment: rel[0]}
}
