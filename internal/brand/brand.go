// Package brand provides the product name and default locations.
//
// The identity is loaded from brand.json at compile time via go:embed so
// packaging scripts can read the same file.
package brand

import (
	_ "embed"
	"encoding/json"
	"os"
	"path/filepath"
)

//go:embed brand.json
var brandJSON []byte

// Brand holds all branding information.
type Brand struct {
	Name             string `json:"name"`
	LowerName        string `json:"lowerName"`
	Description      string `json:"description"`
	Repository       string `json:"repository"`
	ConfigEnvPrefix  string `json:"configEnvPrefix"`
	DefaultConfigDir string `json:"defaultConfigDir"`
	DefaultStateDir  string `json:"defaultStateDir"`
	BinaryName       string `json:"binaryName"`
	ConfigFileName   string `json:"configFileName"`
}

var b Brand

func init() {
	if err := json.Unmarshal(brandJSON, &b); err != nil {
		panic("failed to parse brand.json: " + err.Error())
	}

	Name = b.Name
	LowerName = b.LowerName
	Description = b.Description
	Repository = b.Repository
	ConfigEnvPrefix = b.ConfigEnvPrefix
	DefaultConfigDir = b.DefaultConfigDir
	DefaultStateDir = b.DefaultStateDir
	BinaryName = b.BinaryName
	ConfigFileName = b.ConfigFileName
}

var (
	Name             string
	LowerName        string
	Description      string
	Repository       string
	ConfigEnvPrefix  string
	DefaultConfigDir string
	DefaultStateDir  string
	BinaryName       string
	ConfigFileName   string

	// Set at build time via -ldflags
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// Get returns the full Brand struct.
func Get() Brand {
	return b
}

// UserAgent returns a User-Agent string for device API requests.
func UserAgent(version string) string {
	if version == "" {
		version = "dev"
	}
	return Name + "/" + version
}

// GetConfigDir returns the config directory.
// Priority: FWPLAN_CONFIG_DIR > FWPLAN_PREFIX/etc > DefaultConfigDir
func GetConfigDir() string {
	if dir := os.Getenv(ConfigEnvPrefix + "_CONFIG_DIR"); dir != "" {
		return dir
	}
	if prefix := os.Getenv(ConfigEnvPrefix + "_PREFIX"); prefix != "" {
		return filepath.Join(prefix, "etc")
	}
	return DefaultConfigDir
}

// GetStateDir returns the state directory.
// Priority: FWPLAN_STATE_DIR > FWPLAN_PREFIX/state > DefaultStateDir
func GetStateDir() string {
	if dir := os.Getenv(ConfigEnvPrefix + "_STATE_DIR"); dir != "" {
		return dir
	}
	if prefix := os.Getenv(ConfigEnvPrefix + "_PREFIX"); prefix != "" {
		return filepath.Join(prefix, "state")
	}
	return DefaultStateDir
}

// ConfigPath is the default configuration file.
func ConfigPath() string {
	return filepath.Join(GetConfigDir(), ConfigFileName)
}
