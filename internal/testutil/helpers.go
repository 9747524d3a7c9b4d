// Package testutil holds helpers shared by tests across packages.
package testutil

import (
	"os"
	"testing"

	"grimm.is/fwplan/internal/brand"
)

// NetworkTestEnv enables tests that send real packets (ICMP liveness).
var NetworkTestEnv = brand.ConfigEnvPrefix + "_NETWORK_TEST"

// RequireNetwork skips the test unless NetworkTestEnv is set. Unprivileged
// ICMP needs net.ipv4.ping_group_range to include the test user, which CI
// sandboxes rarely allow.
func RequireNetwork(t *testing.T) {
	t.Helper()
	if os.Getenv(NetworkTestEnv) == "" {
		t.Skipf("Skipping test: set %s to send real packets", NetworkTestEnv)
	}
}
