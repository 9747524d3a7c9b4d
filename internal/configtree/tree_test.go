package configtree

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mustTree builds a tree from a JSON literal.
func mustTree(t *testing.T, context Path, js string) *ConfigTree {
	t.Helper()
	n, err := UnmarshalNode([]byte(js))
	require.NoError(t, err)
	return New(context, n)
}

func mustNode(t *testing.T, js string) Node {
	t.Helper()
	n, err := UnmarshalNode([]byte(js))
	require.NoError(t, err)
	return n
}

func jsonOf(t *testing.T, n Node) string {
	t.Helper()
	b, err := MarshalNode(n)
	require.NoError(t, err)
	return string(b)
}

func TestSubConfig(t *testing.T) {
	tree := mustTree(t, Path{}, `{"system":{"ntp":{"server":["a","b"]},"host-name":"r1"}}`)

	sub, err := tree.SubConfig(Path{"system", "ntp"})
	require.NoError(t, err)
	assert.Equal(t, Path{"system", "ntp"}, sub.Context())
	assert.JSONEq(t, `{"server":["a","b"]}`, jsonOf(t, sub.Config()))

	leaf, err := tree.SubConfig(Path{"system", "host-name"})
	require.NoError(t, err)
	assert.Equal(t, KindScalar, leaf.Config().Kind())

	same, err := tree.SubConfig(Path{})
	require.NoError(t, err)
	assert.Same(t, tree, same)
}

func TestSubConfig_Errors(t *testing.T) {
	tree := mustTree(t, Path{"system"}, `{"host-name":"r1","ntp":{"server":"a"}}`)

	_, err := tree.SubConfig(Path{"system", "missing"})
	var notFound *PathNotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, "missing", notFound.Segment)

	// intermediate scalar is not a mapping
	_, err = tree.SubConfig(Path{"system", "host-name", "r1"})
	require.True(t, errors.As(err, &notFound))

	// ancestor of the context is not reachable from a subtree
	_, err = tree.SubConfig(Path{})
	var incompatible *IncompatibleContextError
	require.True(t, errors.As(err, &incompatible))

	_, err = tree.SubConfig(Path{"interfaces"})
	require.True(t, errors.As(err, &incompatible))
}

func TestSubConfig_NarrowingLaw(t *testing.T) {
	x := mustTree(t, Path{}, `{"firewall":{"name":{"fw1":{"default-action":"drop"}}}}`)
	p := Path{"firewall", "name"}

	sub, err := x.SubConfig(p)
	require.NoError(t, err)
	assert.Equal(t, p, sub.Context())

	_, err = sub.SubConfig(x.Context())
	assert.Error(t, err)
}

func TestSubConfig_SharesNoMutableState(t *testing.T) {
	tree := mustTree(t, Path{}, `{"a":{"b":"1"}}`)
	sub, err := tree.SubConfig(Path{"a"})
	require.NoError(t, err)

	ctx := sub.Context()
	ctx[0] = "changed"
	assert.Equal(t, Path{"a"}, sub.Context())

	merged, err := sub.Merge(mustTree(t, Path{"a"}, `{"c":"2"}`), false)
	require.NoError(t, err)
	assert.JSONEq(t, `{"b":"1","c":"2"}`, jsonOf(t, merged.Config()))
	assert.JSONEq(t, `{"a":{"b":"1"}}`, jsonOf(t, tree.Config()))
}

func TestNodeJSON(t *testing.T) {
	n := mustNode(t, `{"port":22,"enabled":true,"list":["a",1],"empty":null,"__complete":true}`)
	m := n.(*Mapping)
	assert.True(t, m.Complete())
	assert.Equal(t, []string{"empty", "enabled", "list", "port"}, m.Keys())

	port, _ := m.Get("port")
	assert.Equal(t, "22", port.(*Scalar).Value())
	list, _ := m.Get("list")
	assert.Equal(t, []string{"a", "1"}, list.(*Sequence).Items())

	assert.Equal(t,
		`{"__complete":true,"empty":{},"enabled":"true","list":["a","1"],"port":"22"}`,
		jsonOf(t, n))

	_, err := UnmarshalNode([]byte(`{"bad":[{"nested":"object"}]}`))
	assert.Error(t, err)
}

func TestConfigTreeJSON(t *testing.T) {
	tree := mustTree(t, Path{"firewall"}, `{"name":{"fw1":{"default-action":"drop"}}}`).WithPlatform("vyos-1.3")

	b, err := json.Marshal(tree)
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"context":["firewall"],"platform":"vyos-1.3","config":{"name":{"fw1":{"default-action":"drop"}}}}`,
		string(b))

	var decoded ConfigTree
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.True(t, tree.Equal(&decoded))
	assert.Equal(t, "vyos-1.3", decoded.Platform())
}

func TestObjectize(t *testing.T) {
	assert.JSONEq(t, `{"x":{}}`, jsonOf(t, Objectize(NewScalar("x"))))
	assert.JSONEq(t, `{"a":{},"b":{}}`, jsonOf(t, Objectize(NewSequence("a", "b"))))

	m := mustNode(t, `{"k":"v"}`)
	assert.Same(t, m, Node(Objectize(m)))
}

func TestMappingIsImmutable(t *testing.T) {
	base := NewMapping(map[string]Node{"a": NewScalar("1")})
	with := base.With("b", NewScalar("2"))
	without := with.Without("a")

	assert.Equal(t, []string{"a"}, base.Keys())
	assert.Equal(t, []string{"a", "b"}, with.Keys())
	assert.Equal(t, []string{"b"}, without.Keys())

	seq := NewSequence("a")
	items := seq.Items()
	items[0] = "z"
	assert.Equal(t, []string{"a"}, seq.Items())
}
