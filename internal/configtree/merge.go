package configtree

// Merge combines other into t and returns the result anchored at t's
// context. other's context must be a descendant of, or equal to, t's.
//
// With absolute set, the subtree at other's context is replaced wholesale by
// other's config. Otherwise the two are deep-unioned: missing keys are added,
// mappings merge recursively, sequences take a set union that keeps t's order,
// and any other pairing is overwritten by other's value.
//
// Neither input is modified.
func (t *ConfigTree) Merge(other *ConfigTree, absolute bool) (*ConfigTree, error) {
	if other == nil {
		return t, nil
	}
	if !other.context.HasPrefix(t.context) {
		return nil, &IncompatibleContextError{Left: t.Context(), Right: other.Context()}
	}

	merged := mergeAt(t.config, other.config, other.context[len(t.context):], absolute)

	platform := t.platform
	if platform == "" {
		platform = other.platform
	}
	return &ConfigTree{context: t.context.Clone(), config: merged, platform: platform}, nil
}

// mergeAt grafts src into dst at the relative path rel.
func mergeAt(dst, src Node, rel Path, absolute bool) Node {
	if len(rel) == 0 {
		if absolute {
			return src
		}
		return union(dst, src)
	}

	// A leaf standing where a deeper path is needed is objectized so the
	// descent keeps its value as a valueless child.
	m := Objectize(dst)
	seg := rel[0]
	child, ok := m.Get(seg)
	if !ok {
		child = EmptyMapping()
	}
	return m.With(seg, mergeAt(child, src, rel[1:], absolute))
}

func union(dst, src Node) Node {
	switch s := src.(type) {
	case *Mapping:
		// nothing to add, whatever dst holds
		if s.Len() == 0 && dst != nil {
			return dst
		}
		d, ok := dst.(*Mapping)
		if !ok {
			return s
		}
		out := d.clone()
		for _, k := range s.Keys() {
			sv := s.entries[k]
			dv, exists := out.entries[k]
			if !exists {
				out.entries[k] = sv
				continue
			}
			out.entries[k] = unionValue(dv, sv)
		}
		return out
	case *Sequence:
		if d, ok := dst.(*Sequence); ok {
			return unionSequence(d, s)
		}
		return s
	default:
		return src
	}
}

func unionValue(dst, src Node) Node {
	switch s := src.(type) {
	case *Mapping:
		if _, ok := dst.(*Mapping); ok {
			return union(dst, s)
		}
	case *Sequence:
		if d, ok := dst.(*Sequence); ok {
			return unionSequence(d, s)
		}
	}
	return src
}

func unionSequence(dst, src *Sequence) *Sequence {
	out := dst.Items()
	for _, item := range src.items {
		if !contains(out, item) {
			out = append(out, item)
		}
	}
	return &Sequence{items: out}
}

func contains(items []string, v string) bool {
	for _, item := range items {
		if item == v {
			return true
		}
	}
	return false
}
