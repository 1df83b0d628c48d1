// Package config loads the optional per-repository ledger configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds repo-level settings. All fields are optional; zero values
// mean "use the built-in default".
type Config struct {
	// DefaultRunner replaces the platform default applied to manifests
	// without a runner. A manifest's own runner always wins.
	DefaultRunner []string `yaml:"default_runner"`
	// SessionLock overrides the default-ON lock policy for this repo.
	// The LEDGER_INGEST_SESSION_LOCK environment variable still wins.
	SessionLock *bool `yaml:"session_lock"`
	// OTLPEndpoint enables telemetry export when set (e.g. "localhost:4317").
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	// IndexPath overrides the node-index location (default ledger/index.db).
	IndexPath string `yaml:"index_path"`
}

// Path returns <root>/ledger/config.yaml.
func Path(repoRoot string) string {
	return filepath.Join(repoRoot, "ledger", "config.yaml")
}

// Load reads the repo config. A missing file yields the zero Config; a
// malformed file is an error, never silently ignored.
func Load(repoRoot string) (*Config, error) {
	raw, err := os.ReadFile(Path(repoRoot))
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("config: read: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", Path(repoRoot), err)
	}
	return &c, nil
}
