package cmd

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v2"

	"grimm.is/fwplan/internal/configtree"
)

func TestRunPlan_Text(t *testing.T) {
	stdout, _ := capture(t)
	path := writeConfig(t, "https://192.0.2.1", "https://192.0.2.2")

	require.NoError(t, RunPlan(path, []string{"edge2"}, FormatText))
	out := stdout.String()
	assert.Contains(t, out, "# edge2")
	assert.Contains(t, out, "wan-in")
	assert.NotContains(t, out, "# edge1")
}

func TestRunPlan_JSON(t *testing.T) {
	stdout, _ := capture(t)
	path := writeConfig(t, "https://192.0.2.1", "https://192.0.2.2")

	require.NoError(t, RunPlan(path, nil, FormatJSON))
	var planned map[string][]*configtree.ConfigTree
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &planned))
	require.Len(t, planned, 2)
	require.NotEmpty(t, planned["edge1"])
	assert.Equal(t, "vyos-1.3", planned["edge1"][0].Platform())
	assert.Greater(t, len(planned["edge1"]), len(planned["edge2"]), "edge1 also binds an interface")
}

func TestRunPlan_YAML(t *testing.T) {
	stdout, _ := capture(t)
	path := writeConfig(t, "https://192.0.2.1", "https://192.0.2.2")

	require.NoError(t, RunPlan(path, []string{"edge2"}, FormatYAML))
	var doc map[string][]map[string]any
	require.NoError(t, yaml.Unmarshal(stdout.Bytes(), &doc))
	require.NotEmpty(t, doc["edge2"])
	assert.Contains(t, doc["edge2"][0], "context")
	assert.Contains(t, doc["edge2"][0], "config")
}

func TestRunPlan_Errors(t *testing.T) {
	capture(t)
	path := writeConfig(t, "https://192.0.2.1", "https://192.0.2.2")

	assert.ErrorContains(t, RunPlan(path, []string{"edge9"}, FormatText), "unknown router edge9")
	assert.ErrorContains(t, RunPlan(path, nil, "xml"), `unknown format "xml"`)
}

func TestSplitList(t *testing.T) {
	assert.Nil(t, SplitList(""))
	assert.Equal(t, []string{"edge1", "edge2"}, SplitList("edge1, edge2,,"))
}
