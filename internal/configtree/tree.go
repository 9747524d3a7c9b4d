package configtree

// ConfigTree is a configuration subtree anchored at a context path. All keys
// in the config are relative to the context.
type ConfigTree struct {
	context  Path
	config   Node
	platform string
}

// New builds a tree at context. A nil config becomes an empty mapping.
func New(context Path, config Node) *ConfigTree {
	if config == nil {
		config = EmptyMapping()
	}
	return &ConfigTree{context: context.Clone(), config: config}
}

// Empty returns a tree with no configuration at context.
func Empty(context ...string) *ConfigTree {
	return New(Path(context), nil)
}

// Context returns a copy of the tree's anchor path.
func (t *ConfigTree) Context() Path { return t.context.Clone() }

// Config returns the tree's root node.
func (t *ConfigTree) Config() Node { return t.config }

// Platform returns the device platform the tree was built for, if any.
func (t *ConfigTree) Platform() string { return t.platform }

// WithPlatform returns a copy of t tagged for platform.
func (t *ConfigTree) WithPlatform(platform string) *ConfigTree {
	out := *t
	out.platform = platform
	return &out
}

// IsEmpty reports whether the tree holds no configuration.
func (t *ConfigTree) IsEmpty() bool {
	m, ok := t.config.(*Mapping)
	return ok && m.Len() == 0
}

// Equal reports whether both trees share a context and configuration.
func (t *ConfigTree) Equal(o *ConfigTree) bool {
	if t == nil || o == nil {
		return t == o
	}
	return t.context.Equal(o.context) && Equal(t.config, o.config)
}

// SubConfig returns the tree rooted at path. path must be a descendant of, or
// equal to, the tree's context. Every segment between the context and path
// must name a mapping; the final node may be of any kind.
func (t *ConfigTree) SubConfig(path Path) (*ConfigTree, error) {
	if !path.HasPrefix(t.context) {
		return nil, &IncompatibleContextError{Left: t.Context(), Right: path.Clone()}
	}
	if len(path) == len(t.context) {
		return t, nil
	}

	node := t.config
	for _, seg := range path[len(t.context):] {
		m, ok := node.(*Mapping)
		if !ok {
			return nil, &PathNotFoundError{Path: path.Clone(), Segment: seg}
		}
		child, ok := m.Get(seg)
		if !ok {
			return nil, &PathNotFoundError{Path: path.Clone(), Segment: seg}
		}
		node = child
	}

	return &ConfigTree{context: path.Clone(), config: node, platform: t.platform}, nil
}
