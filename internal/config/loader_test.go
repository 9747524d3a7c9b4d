package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"grimm.is/fwplan/internal/configtree"
)

const sampleHCL = `
schema_version = "1.0"

router "edge1" {
  url        = "https://192.0.2.1"
  api_key    = "secret"
  verify_tls = false
  timeout    = "15s"

  interface "eth0" {
    in    = "wan-in"
    local = "wan-local"
  }
}

router "edge2" {
  url         = "https://192.0.2.2:8443"
  api_key_env = "FWPLAN_TEST_KEY"
  firewalls   = ["wan-in"]
}

deployment {
  grace_period = "5s"
  ping {
    count   = 2
    timeout = "1s"
  }
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

firewall "wan-local" {
  default_action = "reject"
}

fragment "ntp" {
  routers = ["edge2"]
  context = ["system", "ntp"]
  config = {
    server = {
      "0.pool.ntp.org" = {}
      "1.pool.ntp.org" = { prefer = null }
    }
    listen-address = ["127.0.0.1", "::1"]
  }
}
`

func TestLoadHCL(t *testing.T) {
	cfg, err := LoadHCL([]byte(sampleHCL), "test.hcl")
	if err != nil {
		t.Fatalf("LoadHCL() error = %v", err)
	}

	if len(cfg.Routers) != 2 {
		t.Fatalf("len(Routers) = %d, want 2", len(cfg.Routers))
	}
	r := cfg.Routers[0]
	if r.TLSVerify() {
		t.Error("edge1 TLSVerify() = true, want false")
	}
	if r.TimeoutDuration() != 15*time.Second {
		t.Errorf("edge1 timeout = %v, want 15s", r.TimeoutDuration())
	}
	if got := cfg.RouterFirewalls(&r); len(got) != 2 {
		t.Errorf("edge1 firewalls = %v, want both", got)
	}
	if !cfg.Routers[1].TLSVerify() {
		t.Error("edge2 TLSVerify() = false, want default true")
	}

	if cfg.Deployment.GracePeriodDuration() != 5*time.Second {
		t.Errorf("grace period = %v", cfg.Deployment.GracePeriodDuration())
	}
	if cfg.Deployment.RollbackTimeoutDuration() != DefaultRollbackTimeout {
		t.Errorf("rollback timeout = %v, want default", cfg.Deployment.RollbackTimeoutDuration())
	}
	if cfg.Deployment.Ping.Count != 2 || !cfg.Deployment.Ping.IsEnabled() {
		t.Errorf("ping = %+v", cfg.Deployment.Ping)
	}
	if cfg.Deployment.QueueSize != DefaultQueueSize {
		t.Errorf("queue size = %d, want default", cfg.Deployment.QueueSize)
	}
	if cfg.State.Path != DefaultStatePath || cfg.Server.Listen != DefaultListen || cfg.Logging.Level != "info" {
		t.Error("defaults not applied")
	}

	if len(cfg.Fragments) != 1 {
		t.Fatalf("len(Fragments) = %d, want 1", len(cfg.Fragments))
	}
	f := cfg.Fragments[0]
	if f.AppliesTo("edge1") || !f.AppliesTo("edge2") {
		t.Error("fragment router targeting wrong")
	}
	tree, err := f.Tree()
	if err != nil {
		t.Fatalf("Tree() error = %v", err)
	}
	want, err := configtree.UnmarshalNode([]byte(`{
		"server": {"0.pool.ntp.org": {}, "1.pool.ntp.org": {"prefer": {}}},
		"listen-address": ["127.0.0.1", "::1"]
	}`))
	if err != nil {
		t.Fatal(err)
	}
	if !tree.Context().Equal(configtree.Path{"system", "ntp"}) {
		t.Errorf("context = %s", tree.Context())
	}
	if !configtree.Equal(want, tree.Config()) {
		t.Errorf("fragment tree = %v", configtree.ToPlain(tree.Config()))
	}
}

func TestResolveAPIKey(t *testing.T) {
	t.Setenv("FWPLAN_TEST_KEY", "from-env")

	cfg, err := LoadHCL([]byte(sampleHCL), "test.hcl")
	if err != nil {
		t.Fatalf("LoadHCL() error = %v", err)
	}
	if got := cfg.Routers[0].ResolveAPIKey(); got != "secret" {
		t.Errorf("edge1 key = %q", got)
	}
	if got := cfg.Routers[1].ResolveAPIKey(); got != "from-env" {
		t.Errorf("edge2 key = %q", got)
	}
}

func TestLoadJSON(t *testing.T) {
	data := `{
		"routers": [{"name": "r1", "url": "https://r1", "api_key": "k"}],
		"fragments": [{"name": "fw", "context": ["firewall"], "absolute": true, "config": {"all-ping": "enable"}}]
	}`
	cfg, err := LoadJSON([]byte(data))
	if err != nil {
		t.Fatalf("LoadJSON() error = %v", err)
	}
	tree, err := cfg.Fragments[0].Tree()
	if err != nil {
		t.Fatal(err)
	}
	if !configtree.Equal(configtree.NewMapping(map[string]configtree.Node{"all-ping": configtree.NewScalar("enable")}), tree.Config()) {
		t.Errorf("fragment = %v", configtree.ToPlain(tree.Config()))
	}
	if !cfg.Fragments[0].Absolute {
		t.Error("absolute flag lost")
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fwplan.hcl")
	if err := os.WriteFile(path, []byte(sampleHCL), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if cfg.SchemaVersion != CurrentSchemaVersion {
		t.Errorf("SchemaVersion = %q", cfg.SchemaVersion)
	}

	if _, err := LoadFile(filepath.Join(dir, "missing.hcl")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadHCL_Errors(t *testing.T) {
	tests := []struct {
		name string
		hcl  string
		want string
	}{
		{"syntax", `router "x" {`, "HCL parse error"},
		{"unknown block", `bogus {}`, "HCL decode error"},
		{"version", `schema_version = "2.0"`, "unsupported config schema version"},
		{"bad version", `schema_version = "one"`, "invalid schema version"},
		{"no routers", ``, "at least one router is required"},
		{"list of objects", `
router "r" {
  url = "https://r"
  api_key = "k"
}
fragment "f" {
  config = { x = [{ a = 1 }] }
}`, "unsupported value"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadHCL([]byte(tt.hcl), "test.hcl")
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want %q", err, tt.want)
			}
		})
	}
}
