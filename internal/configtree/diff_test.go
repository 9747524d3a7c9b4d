package configtree

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiff_ScalarChange(t *testing.T) {
	a := mustTree(t, Path{}, `{"name":{"fw2":{"default-action":"accept"}}}`)
	b := mustTree(t, Path{}, `{"name":{"fw2":{"default-action":"drop"}}}`)

	d, err := a.Diff(b)
	require.NoError(t, err)
	assert.False(t, d.IsEmpty())
	assert.JSONEq(t, `{"name":{"fw2":{"default-action":"accept"}}}`, jsonOf(t, d.Left()))
	assert.JSONEq(t, `{"name":{"fw2":{"default-action":"drop"}}}`, jsonOf(t, d.Right()))
}

func TestDiff_SequenceChange(t *testing.T) {
	a := mustTree(t, Path{}, `{"ntp":{"servers":["a","b"]}}`)
	b := mustTree(t, Path{}, `{"ntp":{"servers":["a","c"]}}`)

	d, err := a.Diff(b)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ntp":{"servers":["b"]}}`, jsonOf(t, d.Left()))
	assert.JSONEq(t, `{"ntp":{"servers":["c"]}}`, jsonOf(t, d.Right()))
}

func TestDiff_SelfIsEmpty(t *testing.T) {
	cases := []string{
		`{}`,
		`{"a":"x"}`,
		`{"a":["x","y"]}`,
		`{"firewall":{"name":{"fw1":{"rule":{"10":{"action":"accept","protocol":"tcp"}}}}}}`,
		`{"system":{"host-name":"r1","ntp":{"server":{"a":{},"b":{"prefer":{}}}}}}`,
	}
	for _, js := range cases {
		tree := mustTree(t, Path{}, js)
		d, err := tree.Diff(tree)
		require.NoError(t, err)
		assert.True(t, d.IsEmpty(), js)
		assert.Empty(t, d.Commands(), js)
	}
}

func TestDiff_ObjectizeEquivalence(t *testing.T) {
	forms := []string{
		`{"address":"x"}`,
		`{"address":["x"]}`,
		`{"address":{"x":{}}}`,
	}
	for _, l := range forms {
		for _, r := range forms {
			d, err := mustTree(t, Path{}, l).Diff(mustTree(t, Path{}, r))
			require.NoError(t, err)
			assert.True(t, d.IsEmpty(), "%s vs %s", l, r)
		}
	}

	assert.True(t, Equivalent(NewScalar("x"), NewSequence("x")))
	assert.False(t, Equivalent(NewScalar("x"), NewSequence("x", "y")))
}

func TestDiff_CompleteTagging(t *testing.T) {
	a := mustTree(t, Path{}, `{"firewall":{"name":{"fw1":{"default-action":"drop"}}},"system":{"host-name":"r1"}}`)
	b := mustTree(t, Path{}, `{"system":{"host-name":"r1"},"service":{"ssh":{"port":"22"}}}`)

	d, err := a.Diff(b)
	require.NoError(t, err)
	assert.JSONEq(t, `{"firewall":{"__complete":true,"name":{"fw1":{"default-action":"drop"}}}}`, jsonOf(t, d.Left()))
	assert.JSONEq(t, `{"service":{"__complete":true,"ssh":{"port":"22"}}}`, jsonOf(t, d.Right()))
}

func TestDiff_NoEmptyRemainders(t *testing.T) {
	a := mustTree(t, Path{}, `{"a":{"b":{"c":"1"}},"d":["x"]}`)
	b := mustTree(t, Path{}, `{"a":{"b":{"c":"1"},"e":"2"},"d":["x","y"]}`)

	d, err := a.Diff(b)
	require.NoError(t, err)
	assert.Nil(t, d.Left())
	assert.JSONEq(t, `{"a":{"e":"2"},"d":["y"]}`, jsonOf(t, d.Right()))
}

func TestDiff_NilOther(t *testing.T) {
	a := mustTree(t, Path{"firewall"}, `{"name":{"fw1":{}}}`)
	d, err := a.Diff(nil)
	require.NoError(t, err)
	assert.Nil(t, d.Right())
	assert.True(t, Equal(a.Config(), d.Left()))
	assert.Equal(t, Path{"firewall"}, d.Context())
}

func TestDiff_ContextNarrowing(t *testing.T) {
	live := mustTree(t, Path{}, `{"firewall":{"name":{"fw1":{"default-action":"accept"}}},"system":{"host-name":"r1"}}`)
	planned := mustTree(t, Path{"firewall"}, `{"name":{"fw1":{"default-action":"drop"}}}`)

	d, err := live.Diff(planned)
	require.NoError(t, err)
	assert.Equal(t, Path{"firewall"}, d.Context())
	assert.JSONEq(t, `{"name":{"fw1":{"default-action":"accept"}}}`, jsonOf(t, d.Left()))

	// narrowing the other side works symmetrically
	d, err = planned.Diff(live)
	require.NoError(t, err)
	assert.Equal(t, Path{"firewall"}, d.Context())
	assert.JSONEq(t, `{"name":{"fw1":{"default-action":"drop"}}}`, jsonOf(t, d.Left()))
}

func TestDiff_MissingContextFails(t *testing.T) {
	live := mustTree(t, Path{}, `{"system":{"host-name":"r1"}}`)
	planned := mustTree(t, Path{"firewall"}, `{"name":{"fw1":{"default-action":"drop"}}}`)

	_, err := live.Diff(planned)
	var notFound *PathNotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, "firewall", notFound.Segment)

	// narrowing to an empty tree first is how callers treat absence
	d, err := Empty("firewall").Diff(planned)
	require.NoError(t, err)
	assert.Nil(t, d.Left())
	assert.JSONEq(t, `{"name":{"__complete":true,"fw1":{"default-action":"drop"}}}`, jsonOf(t, d.Right()))
}

func TestDiff_IncompatibleContexts(t *testing.T) {
	a := mustTree(t, Path{"firewall"}, `{}`)
	b := mustTree(t, Path{"system"}, `{}`)
	_, err := a.Diff(b)
	var incompatible *IncompatibleContextError
	assert.True(t, errors.As(err, &incompatible))

	c := mustTree(t, Path{"system", "ntp"}, `{}`)
	_, err = a.Diff(c)
	assert.True(t, errors.As(err, &incompatible))
}
