package configtree

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMerge_Identity(t *testing.T) {
	a := mustTree(t, Path{"system"}, `{"host-name":"r1","ntp":{"server":["a","b"]}}`)

	merged, err := a.Merge(Empty("system"), false)
	require.NoError(t, err)
	assert.True(t, merged.Equal(a))

	merged, err = a.Merge(nil, false)
	require.NoError(t, err)
	assert.True(t, merged.Equal(a))
}

func TestMerge_IdentityOnLeaves(t *testing.T) {
	for name, leaf := range map[string]*ConfigTree{
		"scalar":   New(Path{"system", "host-name"}, NewScalar("router1")),
		"sequence": New(Path{"system", "ntp", "server"}, NewSequence("a", "b")),
	} {
		t.Run(name, func(t *testing.T) {
			merged, err := leaf.Merge(Empty(leaf.Context()...), false)
			require.NoError(t, err)
			assert.True(t, merged.Equal(leaf), "got %s", jsonOf(t, merged.Config()))
		})
	}

	// a leaf subtree taken from a larger tree merges the same way
	a := mustTree(t, Path{}, `{"system":{"host-name":"r1"}}`)
	sub, err := a.SubConfig(Path{"system", "host-name"})
	require.NoError(t, err)
	merged, err := sub.Merge(Empty("system", "host-name"), false)
	require.NoError(t, err)
	assert.Equal(t, "r1", merged.Config().(*Scalar).Value())
}

func TestMerge_AbsoluteReplacesConfig(t *testing.T) {
	a := mustTree(t, Path{"system"}, `{"host-name":"r1","ntp":{"server":["a","b"]}}`)
	b := mustTree(t, Path{"system"}, `{"domain-name":"example.com"}`)

	merged, err := a.Merge(b, true)
	require.NoError(t, err)
	assert.True(t, Equal(b.Config(), merged.Config()))
	assert.Equal(t, Path{"system"}, merged.Context())
}

func TestMerge_DeepUnion(t *testing.T) {
	a := mustTree(t, Path{}, `{"system":{"host-name":"r1","ntp":{"server":["a","b"]}},"service":{"ssh":{"port":"22"}}}`)
	b := mustTree(t, Path{}, `{"system":{"host-name":"r2","ntp":{"server":["b","c"]}},"firewall":{"all-ping":"enable"}}`)

	merged, err := a.Merge(b, false)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"system":{"host-name":"r2","ntp":{"server":["a","b","c"]}},
		"service":{"ssh":{"port":"22"}},
		"firewall":{"all-ping":"enable"}
	}`, jsonOf(t, merged.Config()))

	// sequence order follows the receiver
	seq, err := merged.SubConfig(Path{"system", "ntp", "server"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, seq.Config().(*Sequence).Items())
}

func TestMerge_TypeMismatchOverwrites(t *testing.T) {
	a := mustTree(t, Path{}, `{"x":"1","y":["a"],"z":{"k":"v"}}`)
	b := mustTree(t, Path{}, `{"x":["2"],"y":{"b":{}},"z":"flat"}`)

	merged, err := a.Merge(b, false)
	require.NoError(t, err)
	assert.JSONEq(t, `{"x":["2"],"y":{"b":{}},"z":"flat"}`, jsonOf(t, merged.Config()))
}

func TestMerge_AbsoluteAtDescendant(t *testing.T) {
	a := mustTree(t, Path{}, `{"system":{"host-name":"r1","ntp":{"servers":["a","b"],"src":"eth0"}}}`)
	b := mustTree(t, Path{"system", "ntp"}, `{"servers":["c"]}`)

	merged, err := a.Merge(b, true)
	require.NoError(t, err)
	assert.Equal(t, Path{}, merged.Context())
	assert.JSONEq(t, `{"system":{"host-name":"r1","ntp":{"servers":["c"]}}}`, jsonOf(t, merged.Config()))

	// inputs untouched
	assert.JSONEq(t, `{"system":{"host-name":"r1","ntp":{"servers":["a","b"],"src":"eth0"}}}`, jsonOf(t, a.Config()))
}

func TestMerge_DescendantCreatesMissingPath(t *testing.T) {
	a := Empty()
	b := mustTree(t, Path{"firewall", "name", "fw1"}, `{"default-action":"drop"}`)

	merged, err := a.Merge(b, false)
	require.NoError(t, err)
	assert.JSONEq(t, `{"firewall":{"name":{"fw1":{"default-action":"drop"}}}}`, jsonOf(t, merged.Config()))
}

func TestMerge_DescendIntoLeaf(t *testing.T) {
	a := mustTree(t, Path{}, `{"address":"10.0.0.1/24"}`)
	b := mustTree(t, Path{"address", "10.0.1.1/24"}, `{}`)

	merged, err := a.Merge(b, false)
	require.NoError(t, err)
	assert.JSONEq(t, `{"address":{"10.0.0.1/24":{},"10.0.1.1/24":{}}}`, jsonOf(t, merged.Config()))
}

func TestMerge_IncompatibleContext(t *testing.T) {
	a := mustTree(t, Path{"system"}, `{}`)

	for _, other := range []*ConfigTree{Empty(), Empty("firewall"), Empty("systemd")} {
		_, err := a.Merge(other, false)
		var incompatible *IncompatibleContextError
		assert.True(t, errors.As(err, &incompatible), "%v", other.Context())
	}
}

func TestMerge_PlatformPropagates(t *testing.T) {
	a := Empty()
	b := Empty("firewall").WithPlatform("vyos-1.3")

	merged, err := a.Merge(b, false)
	require.NoError(t, err)
	assert.Equal(t, "vyos-1.3", merged.Platform())
}
