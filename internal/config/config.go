// Package config parses the optional sibilant.yaml compiler
// configuration: the declared target VM version, shebang handling and
// the code-cache location.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ahills/sibilant/internal/compiler"
)

// DefaultFileName is the conventional configuration file name.
const DefaultFileName = "sibilant.yaml"

// Config is the top-level sibilant.yaml structure.
type Config struct {
	// Target is the VM version bytecode is assembled for, e.g. "3.6".
	Target string `yaml:"target,omitempty"`

	// SkipShebang controls whether a leading #! line is discarded.
	// Defaults to true.
	SkipShebang *bool `yaml:"skip_shebang,omitempty"`

	// Cache is the path of the compiled-code cache database. The
	// compile entry points do not read it; a cache is opened
	// explicitly with sibilant.OpenCache.
	Cache string `yaml:"cache,omitempty"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{Target: compiler.DefaultTarget.String()}
}

// Load parses configuration from yaml data and validates it.
func Load(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("malformed configuration: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile reads and parses a configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := Load(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Target != "" {
		if _, err := compiler.ParseVersion(c.Target); err != nil {
			return fmt.Errorf("invalid target %q", c.Target)
		}
	}
	return nil
}

// TargetVersion resolves the declared target, defaulting when unset.
func (c *Config) TargetVersion() (compiler.Version, error) {
	if c == nil || c.Target == "" {
		return compiler.DefaultTarget, nil
	}
	return compiler.ParseVersion(c.Target)
}

// ShouldSkipShebang reports the shebang setting, defaulting to true.
func (c *Config) ShouldSkipShebang() bool {
	if c == nil || c.SkipShebang == nil {
		return true
	}
	return *c.SkipShebang
}
