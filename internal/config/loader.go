package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-version"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
)

// LoadFile loads a config file (HCL or JSON), applies defaults and validates it.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return LoadJSON(data)
	default:
		return LoadHCL(data, path)
	}
}

// LoadHCL loads config from HCL bytes.
func LoadHCL(data []byte, filename string) (*Config, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(data, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("HCL parse error: %s", diags.Error())
	}

	var cfg Config
	if diags := gohcl.DecodeBody(file.Body, nil, &cfg); diags.HasErrors() {
		return nil, fmt.Errorf("HCL decode error: %s", diags.Error())
	}
	return finishLoad(&cfg)
}

// LoadJSON loads config from JSON bytes.
func LoadJSON(data []byte) (*Config, error) {
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("JSON parse error: %w", err)
	}
	return finishLoad(&cfg)
}

func finishLoad(cfg *Config) (*Config, error) {
	if err := checkSchemaVersion(cfg.SchemaVersion); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	if errs := cfg.Validate(); errs.HasErrors() {
		return nil, errs
	}
	return cfg, nil
}

// supportedSchemas is the range of schema versions this build reads.
var supportedSchemas = version.MustConstraints(version.NewConstraint(">= 1.0, < 2.0"))

// checkSchemaVersion accepts "X.Y" versions within supportedSchemas. Empty
// means the current version.
func checkSchemaVersion(v string) error {
	if v == "" {
		return nil
	}
	parsed, err := version.NewVersion(v)
	if err != nil || strings.Count(v, ".") != 1 {
		return fmt.Errorf("invalid schema version %q (expected X.Y)", v)
	}
	if !supportedSchemas.Check(parsed) {
		return fmt.Errorf("unsupported config schema version %s (current %s)", v, CurrentSchemaVersion)
	}
	return nil
}

// ResolveAPIKey returns the router's API key, reading it from the environment when
// api_key_env is set.
func (r *Router) ResolveAPIKey() string {
	if r.APIKeyEnv != "" {
		return os.Getenv(r.APIKeyEnv)
	}
	return r.APIKey
}
