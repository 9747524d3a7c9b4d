package cmd

import (
	"bytes"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"grimm.is/fwplan/internal/configtree"
	"grimm.is/fwplan/internal/vyos"
)

const labTemplate = `
router "edge1" {
  url     = "%s"
  api_key = "lab"

  interface "eth0" {
    in = "wan-in"
  }
}

router "edge2" {
  url       = "%s"
  api_key   = "lab"
  firewalls = ["wan-in"]
}

deployment {
  grace_period = "0s"
  ping {
    enabled = false
  }
}

state {
  path = "%s"
}

logging {
  level = "error"
}

address "web" {
  type      = "host"
  addresses = ["10.0.0.10"]
}

service "https" {
  type     = "port"
  protocol = "tcp"
  ports    = [443]
}

firewall "wan-in" {
  rule "10" {
    action = "accept"
    states = ["established", "related"]
  }
  rule "20" {
    action      = "accept"
    destination = "web"
    service     = "https"
  }
}
`

// writeConfig writes an HCL file into a fresh directory and returns its
// path. The state database lives next to it.
func writeConfig(t *testing.T, edge1, edge2 string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "fwplan.hcl")
	body := fmt.Sprintf(labTemplate, edge1, edge2, filepath.Join(dir, "state", "state.db"))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

// lab is two simulated routers behind HTTP servers.
type lab struct {
	edge1, edge2 *vyos.Simulator
	config       string
}

func newLab(t *testing.T) *lab {
	t.Helper()
	l := &lab{
		edge1: vyos.NewSimulator("lab", configtree.EmptyMapping()),
		edge2: vyos.NewSimulator("lab", configtree.EmptyMapping()),
	}
	s1 := httptest.NewServer(l.edge1)
	t.Cleanup(s1.Close)
	s2 := httptest.NewServer(l.edge2)
	t.Cleanup(s2.Close)
	l.config = writeConfig(t, s1.URL, s2.URL)
	return l
}

// capture redirects Stdout and Stderr for the duration of the test.
func capture(t *testing.T) (stdout, stderr *bytes.Buffer) {
	t.Helper()
	stdout, stderr = &bytes.Buffer{}, &bytes.Buffer{}
	oldOut, oldErr := Stdout, Stderr
	Stdout, Stderr = stdout, stderr
	t.Cleanup(func() { Stdout, Stderr = oldOut, oldErr })
	return stdout, stderr
}
