package plan

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/fwplan/internal/config"
	"grimm.is/fwplan/internal/configtree"
	"grimm.is/fwplan/internal/deploy"
	"grimm.is/fwplan/internal/logging"
)

func tree(t *testing.T, js string, context ...string) *configtree.ConfigTree {
	t.Helper()
	n, err := configtree.UnmarshalNode([]byte(js))
	require.NoError(t, err)
	return configtree.New(configtree.Path(context), n)
}

func jsonOf(t *testing.T, tr *configtree.ConfigTree) string {
	t.Helper()
	data, err := configtree.MarshalNode(tr.Config())
	require.NoError(t, err)
	return string(data)
}

func TestCompose_DisjointScopesStaySeparate(t *testing.T) {
	scopes, err := Compose([]Fragment{
		{Name: "fw", Tree: tree(t, `{"name":{"a":{"default-action":"drop"}}}`, "firewall")},
		{Name: "ntp", Tree: tree(t, `{"server":"pool"}`, "system", "ntp")},
		{Name: "fw2", Tree: tree(t, `{"name":{"b":{"default-action":"accept"}}}`, "firewall")},
	})
	require.NoError(t, err)
	require.Len(t, scopes, 2)

	assert.Equal(t, configtree.Path{"firewall"}, scopes[0].Context())
	assert.JSONEq(t, `{"name":{"a":{"default-action":"drop"},"b":{"default-action":"accept"}}}`, jsonOf(t, scopes[0]))
	assert.Equal(t, configtree.Path{"system", "ntp"}, scopes[1].Context())
}

func TestCompose_NestedMergesIntoAncestor(t *testing.T) {
	scopes, err := Compose([]Fragment{
		{Name: "rule", Tree: tree(t, `{"action":"accept"}`, "firewall", "name", "a", "rule", "10")},
		{Name: "iface", Tree: tree(t, `{"in":{"name":"a"}}`, "interfaces", "ethernet", "eth0", "firewall")},
		{Name: "fw", Tree: tree(t, `{"name":{"a":{"default-action":"drop"}}}`, "firewall")},
		{Name: "deeper", Tree: tree(t, `{"log":"enable"}`, "firewall", "name", "a", "rule", "10")},
	})
	require.NoError(t, err)
	require.Len(t, scopes, 2)

	assert.Equal(t, configtree.Path{"firewall"}, scopes[0].Context(), "ancestor takes the absorbed scope's position")
	assert.JSONEq(t, `{"name":{"a":{"default-action":"drop","rule":{"10":{"action":"accept","log":"enable"}}}}}`, jsonOf(t, scopes[0]))
	assert.Equal(t, configtree.Path{"interfaces", "ethernet", "eth0", "firewall"}, scopes[1].Context())
}

func TestCompose_AbsoluteReplaces(t *testing.T) {
	scopes, err := Compose([]Fragment{
		{Name: "base", Tree: tree(t, `{"name":{"a":{"default-action":"drop","description":"x"}}}`, "firewall")},
		{Name: "override", Tree: tree(t, `{"default-action":"accept"}`, "firewall", "name", "a"), Absolute: true},
	})
	require.NoError(t, err)
	require.Len(t, scopes, 1)
	assert.JSONEq(t, `{"name":{"a":{"default-action":"accept"}}}`, jsonOf(t, scopes[0]))

	// an absolute ancestor wipes what it absorbs
	scopes, err = Compose([]Fragment{
		{Name: "rule", Tree: tree(t, `{"action":"accept"}`, "firewall", "name", "a", "rule", "10")},
		{Name: "reset", Tree: tree(t, `{"all-ping":"enable"}`, "firewall"), Absolute: true},
	})
	require.NoError(t, err)
	require.Len(t, scopes, 1)
	assert.JSONEq(t, `{"all-ping":"enable"}`, jsonOf(t, scopes[0]))
}

func TestCompose_Empty(t *testing.T) {
	scopes, err := Compose(nil)
	require.NoError(t, err)
	assert.Empty(t, scopes)
}

const plannerHCL = `
router "edge1" {
  url     = "https://192.0.2.1"
  api_key = "k"
  interface "eth0" {
    in = "wan-in"
  }
}

router "edge2" {
  url       = "https://192.0.2.2"
  api_key   = "k"
  firewalls = ["lan-in"]
}

address "lan" {
  type      = "network"
  addresses = ["192.168.1.0/24"]
}

firewall "wan-in" {
  rule "10" {
    action = "accept"
    states = ["established"]
  }
}

firewall "lan-in" {
  default_action = "accept"
  rule "10" {
    action = "drop"
    source = "lan"
  }
}

fragment "ping" {
  routers  = ["edge1"]
  context  = ["firewall"]
  config   = { all-ping = "enable" }
}
`

func testPlanner(t *testing.T) *Planner {
	t.Helper()
	cfg, err := config.LoadHCL([]byte(plannerHCL), "test.hcl")
	require.NoError(t, err)
	p, err := New(cfg, "vyos-1.3", logging.Discard())
	require.NoError(t, err)
	return p
}

func TestPlanner_Plan(t *testing.T) {
	p := testPlanner(t)

	trees, err := p.Plan("edge1")
	require.NoError(t, err)
	require.Len(t, trees, 2)

	assert.Equal(t, configtree.Path{"firewall"}, trees[0].Context())
	assert.Equal(t, "vyos-1.3", trees[0].Platform())
	assert.JSONEq(t, `{
		"all-ping": "enable",
		"name": {
			"lan-in": {"default-action": "accept", "rule": {"10": {"action": "drop", "source": {"address": "192.168.1.0/24"}}}},
			"wan-in": {"default-action": "drop", "rule": {"10": {"action": "accept", "state": {"established": "enable"}}}}
		}
	}`, jsonOf(t, trees[0]))
	assert.Equal(t, configtree.Path{"interfaces", "ethernet", "eth0", "firewall"}, trees[1].Context())

	trees, err = p.Plan("edge2")
	require.NoError(t, err)
	require.Len(t, trees, 1)
	_, err = trees[0].SubConfig(configtree.Path{"firewall", "name", "wan-in"})
	assert.Error(t, err, "edge2 only deploys lan-in")
	_, err = trees[0].SubConfig(configtree.Path{"firewall", "all-ping"})
	assert.Error(t, err, "ping fragment targets edge1 only")

	_, err = p.Plan("ghost")
	assert.ErrorIs(t, err, deploy.ErrUnknownRouter)
}

func TestPlanner_Prepare(t *testing.T) {
	p := testPlanner(t)
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	d, err := p.Prepare([]string{"edge1", "edge2"}, now)
	require.NoError(t, err)
	assert.Equal(t, deploy.StateReady, d.State)
	assert.Equal(t, now, d.CreatedAt)
	assert.Equal(t, []string{"edge1", "edge2"}, d.Routers())
	assert.Len(t, d.Configs, 3)

	d, err = p.Prepare([]string{"edge1", "ghost"}, now)
	require.Error(t, err)
	require.NotNil(t, d)
	assert.Equal(t, deploy.StateFailed, d.State)
	assert.Contains(t, d.Errors, "ghost")

	d, err = p.Prepare(nil, now)
	require.Error(t, err)
	assert.Equal(t, deploy.StateFailed, d.State)
}
