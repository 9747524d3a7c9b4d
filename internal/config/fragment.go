package config

import (
	"fmt"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/zclconf/go-cty/cty"

	"grimm.is/fwplan/internal/configtree"
)

// Tree returns the fragment as a configuration tree at its context.
func (f *Fragment) Tree() (*configtree.ConfigTree, error) {
	var (
		node configtree.Node
		err  error
	)
	switch {
	case len(f.Raw) > 0:
		node, err = configtree.UnmarshalNode(f.Raw)
	case !f.Value.IsNull():
		node, err = ctyToNode(f.Value, configtree.Path(f.Context))
	default:
		node = configtree.EmptyMapping()
	}
	if err != nil {
		return nil, fmt.Errorf("fragment %s: %w", f.Name, err)
	}
	return configtree.New(configtree.Path(f.Context), node), nil
}

// AppliesTo reports whether the fragment targets the named router. Entries
// in Routers are glob patterns; a malformed pattern matches nothing.
func (f *Fragment) AppliesTo(router string) bool {
	if len(f.Routers) == 0 {
		return true
	}
	for _, pattern := range f.Routers {
		if ok, err := doublestar.Match(pattern, router); err == nil && ok {
			return true
		}
	}
	return false
}

// ctyToNode converts an HCL value into a configuration node. Objects and
// maps become mappings, lists of primitives become sequences and primitives
// become scalars. Null is a valueless node.
func ctyToNode(v cty.Value, at configtree.Path) (configtree.Node, error) {
	if !v.IsKnown() {
		return nil, fmt.Errorf("%s: value is not known", at)
	}
	if v.IsNull() {
		return configtree.EmptyMapping(), nil
	}

	ty := v.Type()
	switch {
	case ty.IsObjectType() || ty.IsMapType():
		entries := make(map[string]configtree.Node, v.LengthInt())
		for it := v.ElementIterator(); it.Next(); {
			k, ev := it.Element()
			key := k.AsString()
			child, err := ctyToNode(ev, at.Append(key))
			if err != nil {
				return nil, err
			}
			entries[key] = child
		}
		return configtree.NewMapping(entries), nil

	case ty.IsTupleType() || ty.IsListType() || ty.IsSetType():
		items := make([]string, 0, v.LengthInt())
		for it := v.ElementIterator(); it.Next(); {
			_, ev := it.Element()
			s, err := ctyScalar(ev, at)
			if err != nil {
				return nil, err
			}
			items = append(items, s)
		}
		return configtree.NewSequence(items...), nil

	default:
		s, err := ctyScalar(v, at)
		if err != nil {
			return nil, err
		}
		return configtree.NewScalar(s), nil
	}
}

func ctyScalar(v cty.Value, at configtree.Path) (string, error) {
	if !v.IsKnown() || v.IsNull() {
		return "", fmt.Errorf("%s: list items must be values", at)
	}
	switch v.Type() {
	case cty.String:
		return v.AsString(), nil
	case cty.Number:
		return v.AsBigFloat().Text('f', -1), nil
	case cty.Bool:
		if v.True() {
			return "true", nil
		}
		return "false", nil
	}
	return "", fmt.Errorf("%s: unsupported value of type %s", at, v.Type().FriendlyName())
}
