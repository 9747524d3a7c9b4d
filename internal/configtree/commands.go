package configtree

// OpType is the kind of a device configuration operation.
type OpType string

const (
	OpSet    OpType = "set"
	OpDelete OpType = "delete"
)

// Operation is one primitive configuration command.
type Operation struct {
	Op    OpType   `json:"op"`
	Path  []string `json:"path"`
	Value *string  `json:"value,omitempty"`
}

// SetOp builds a set operation. An empty value list produces an
// existence-only set.
func SetOp(path Path, value ...string) Operation {
	op := Operation{Op: OpSet, Path: path.Clone()}
	if len(value) > 0 {
		v := value[0]
		op.Value = &v
	}
	return op
}

// DeleteOp builds a delete operation.
func DeleteOp(path Path) Operation {
	return Operation{Op: OpDelete, Path: path.Clone()}
}

// String renders the operation as a VyOS CLI line.
func (o Operation) String() string {
	s := string(o.Op)
	for _, seg := range o.Path {
		s += " " + quoteSegment(seg)
	}
	if o.Value != nil {
		s += " " + quoteSegment(*o.Value)
	}
	return s
}

func quoteSegment(s string) string {
	if s == "" {
		return "''"
	}
	for _, r := range s {
		switch r {
		case ' ', '\t', '"', '\'', '\\', '$', ';', '&', '|', '*', '?':
			return "'" + s + "'"
		}
	}
	return s
}

// Commands lowers the diff into the ordered operations that turn the
// "before" configuration into the "after" configuration.
func (d *Diff) Commands() []Operation {
	var ops []Operation
	return genCommands(ops, d.context, d.left, d.right)
}

func genCommands(ops []Operation, ctx Path, left, right Node) []Operation {
	switch {
	case left == nil && right == nil:
		return ops
	case right == nil:
		return genRemoval(ops, ctx, left)
	case left == nil:
		return genAddition(ops, ctx, right)
	}

	switch l := left.(type) {
	case *Mapping:
		if r, ok := right.(*Mapping); ok {
			return genMappingChange(ops, ctx, l, r)
		}
	case *Sequence:
		if r, ok := right.(*Sequence); ok {
			for _, item := range l.items {
				if !r.Contains(item) {
					ops = append(ops, DeleteOp(ctx.Append(item)))
				}
			}
			for _, item := range r.items {
				if !l.Contains(item) {
					ops = append(ops, SetOp(ctx, item))
				}
			}
			return ops
		}
	case *Scalar:
		if r, ok := right.(*Scalar); ok {
			if l.value == r.value {
				return ops
			}
			ops = append(ops, DeleteOp(ctx))
			return append(ops, SetOp(ctx, r.value))
		}
	}

	return genCommands(ops, ctx, Objectize(left), Objectize(right))
}

func genRemoval(ops []Operation, ctx Path, left Node) []Operation {
	switch l := left.(type) {
	case *Mapping:
		if l.complete || l.Len() == 0 {
			return append(ops, DeleteOp(ctx))
		}
		for _, k := range l.Keys() {
			ops = genCommands(ops, ctx.Append(k), l.entries[k], nil)
		}
		return ops
	case *Sequence:
		for _, item := range l.items {
			ops = append(ops, DeleteOp(ctx.Append(item)))
		}
		return ops
	case *Scalar:
		return append(ops, DeleteOp(ctx.Append(l.value)))
	}
	return ops
}

func genAddition(ops []Operation, ctx Path, right Node) []Operation {
	switch r := right.(type) {
	case *Mapping:
		before := len(ops)
		for _, k := range r.Keys() {
			ops = genCommands(ops, ctx.Append(k), nil, r.entries[k])
		}
		if len(ops) == before {
			ops = append(ops, SetOp(ctx))
		}
		return ops
	case *Sequence:
		for _, item := range r.items {
			ops = append(ops, SetOp(ctx, item))
		}
		return ops
	case *Scalar:
		return append(ops, SetOp(ctx, r.value))
	}
	return ops
}

func genMappingChange(ops []Operation, ctx Path, l, r *Mapping) []Operation {
	if l.complete {
		return append(ops, DeleteOp(ctx))
	}
	for _, k := range l.Keys() {
		lv := l.entries[k]
		rv, shared := r.entries[k]
		if !shared {
			if removesWholeKey(lv) {
				ops = append(ops, DeleteOp(ctx.Append(k)))
			} else {
				// a shared key that only lost part of its content
				ops = genCommands(ops, ctx.Append(k), lv, nil)
			}
			continue
		}
		ops = genCommands(ops, ctx.Append(k), lv, rv)
	}
	for _, k := range r.Keys() {
		if _, shared := l.entries[k]; !shared {
			ops = genCommands(ops, ctx.Append(k), nil, r.entries[k])
		}
	}
	return ops
}

// removesWholeKey reports whether a left remainder stands for a key the
// "after" side does not have at all. Partial remainders of shared keys are
// neither scalars nor complete mappings.
func removesWholeKey(n Node) bool {
	switch v := n.(type) {
	case *Scalar:
		return true
	case *Mapping:
		return v.complete
	}
	return false
}
