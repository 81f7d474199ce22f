package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/codeready-toolchain/crater/pkg/crerr"
	"gopkg.in/yaml.v3"

	"dario.cat/mergo"
)

const configFileName = "crater.yaml"

// yamlDocument mirrors the on-disk configuration format (§4.8). Every field
// is a pointer/omittable so mergo only overrides what the document actually
// sets, leaving the rest at defaultConfig's values.
type yamlDocument struct {
	ACL       *ACL                       `yaml:"acl"`
	Labels    *LabelPolicy               `yaml:"labels"`
	DemoSet   []string                   `yaml:"demo-crates"`
	Sandbox   *SandboxCaps               `yaml:"sandbox"`
	Overrides map[string]PackageOverride `yaml:"overrides"`
}

// Load reads and validates the configuration at configPath, which may name
// either the YAML document directly or a directory containing crater.yaml.
// A missing file is not an error: Load falls back to built-in defaults, the
// same envexpand+mergo-over-defaults shape as the teacher's loader.
func Load(configPath string) (*Config, error) {
	path := configPath
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, configFileName)
	}

	cfg := defaultConfig(path)

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, crerr.NewConfigError(path, fmt.Sprintf("read config: %v", err))
	}

	var doc yamlDocument
	if err := yaml.Unmarshal(ExpandEnv(raw), &doc); err != nil {
		return nil, crerr.NewConfigError(path, fmt.Sprintf("parse YAML: %v", err))
	}

	if doc.ACL != nil {
		if err := mergo.Merge(&cfg.acl, *doc.ACL, mergo.WithOverride, mergo.WithAppendSlice); err != nil {
			return nil, crerr.NewConfigError("acl", err.Error())
		}
	}
	if doc.Labels != nil {
		if err := mergo.Merge(&cfg.Labels, *doc.Labels, mergo.WithOverride); err != nil {
			return nil, crerr.NewConfigError("labels", err.Error())
		}
	}
	if doc.Sandbox != nil {
		if err := mergo.Merge(&cfg.Sandbox, *doc.Sandbox, mergo.WithOverride); err != nil {
			return nil, crerr.NewConfigError("sandbox", err.Error())
		}
	}
	if len(doc.DemoSet) > 0 {
		cfg.DemoSet = doc.DemoSet
	}
	for key, override := range doc.Overrides {
		cfg.Overrides[key] = override
	}

	if err := cfg.Validate(nil); err != nil {
		return nil, crerr.NewConfigError(path, err.Error())
	}
	return cfg, nil
}

// defaultConfig builds the built-in configuration baseline, with the queued
// and running labels both set to S-waiting-on-crater.
func defaultConfig(path string) *Config {
	return &Config{
		configPath: path,
		acl:        ACL{},
		Labels: LabelPolicy{
			Queued:    "S-waiting-on-crater",
			Running:   "S-waiting-on-crater",
			Completed: "",
		},
		DemoSet:   nil,
		Sandbox:   DefaultSandboxCaps(),
		Overrides: make(map[string]PackageOverride),
	}
}
