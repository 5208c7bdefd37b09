// Package config provides configuration loading for modguard.
package config

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/buildforge/modguard/internal/logging"
	"github.com/buildforge/modguard/internal/workflow"
)

// Duration wraps time.Duration for text unmarshaling (YAML, env vars).
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	if parsed < 0 {
		return fmt.Errorf("duration cannot be negative: %s", text)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration().String()), nil
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Duration().String())
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// ProjectConfig locates the tree and its descriptors.
type ProjectConfig struct {
	// Root is the project root. Defaults to the working directory.
	Root string `koanf:"root"`

	// Descriptor is the build descriptor filename.
	Descriptor string `koanf:"descriptor"`

	// RulesFile optionally points at a YAML rule-definitions document.
	RulesFile string `koanf:"rules_file"`
}

// RemediationConfig controls the repair workflow.
type RemediationConfig struct {
	// StagingDir is the backup area, relative to the project root.
	StagingDir string `koanf:"staging_dir"`

	// Concurrency bounds parallel repair of disjoint modules.
	Concurrency int `koanf:"concurrency"`

	// VerifyCommand is the argv of the post-mutation verification tool.
	VerifyCommand []string `koanf:"verify_command"`

	// VerifyPolicy is "degrade" or "strict".
	VerifyPolicy string `koanf:"verify_policy"`

	// VerifyTimeout bounds one verification run.
	VerifyTimeout Duration `koanf:"verify_timeout"`
}

// WatchConfig controls watch mode.
type WatchConfig struct {
	// Addr is the HTTP listen address.
	Addr string `koanf:"addr"`

	// Debounce is the quiet period before re-detection.
	Debounce Duration `koanf:"debounce"`
}

// Config is the full modguard configuration.
type Config struct {
	Project     ProjectConfig     `koanf:"project"`
	Remediation RemediationConfig `koanf:"remediation"`
	Watch       WatchConfig       `koanf:"watch"`
	Logging     logging.Config    `koanf:"logging"`
}

// NewDefaultConfig returns the built-in defaults.
func NewDefaultConfig() *Config {
	return &Config{
		Project: ProjectConfig{
			Root:       ".",
			Descriptor: "pom.xml",
		},
		Remediation: RemediationConfig{
			StagingDir:    workflow.DefaultStagingDir,
			Concurrency:   4,
			VerifyPolicy:  string(workflow.PolicyDegrade),
			VerifyTimeout: Duration(2 * time.Minute),
		},
		Watch: WatchConfig{
			Addr:     "localhost:9590",
			Debounce: Duration(500 * time.Millisecond),
		},
		Logging: *logging.NewDefaultConfig(),
	}
}

// applyDefaults fills zero values with the defaults.
func applyDefaults(cfg *Config) {
	def := NewDefaultConfig()
	if cfg.Project.Root == "" {
		cfg.Project.Root = def.Project.Root
	}
	if cfg.Project.Descriptor == "" {
		cfg.Project.Descriptor = def.Project.Descriptor
	}
	if cfg.Remediation.StagingDir == "" {
		cfg.Remediation.StagingDir = def.Remediation.StagingDir
	}
	if cfg.Remediation.Concurrency == 0 {
		cfg.Remediation.Concurrency = def.Remediation.Concurrency
	}
	if cfg.Remediation.VerifyPolicy == "" {
		cfg.Remediation.VerifyPolicy = def.Remediation.VerifyPolicy
	}
	if cfg.Remediation.VerifyTimeout == 0 {
		cfg.Remediation.VerifyTimeout = def.Remediation.VerifyTimeout
	}
	if cfg.Watch.Addr == "" {
		cfg.Watch.Addr = def.Watch.Addr
	}
	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = def.Watch.Debounce
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = def.Logging.Level
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = def.Logging.Format
	}
	if cfg.Logging.Fields == nil {
		cfg.Logging.Fields = def.Logging.Fields
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Project.Root == "" {
		return fmt.Errorf("project.root is required")
	}
	if c.Remediation.Concurrency < 1 {
		return fmt.Errorf("remediation.concurrency must be at least 1, got %d", c.Remediation.Concurrency)
	}
	if !workflow.Policy(c.Remediation.VerifyPolicy).Valid() {
		return fmt.Errorf("remediation.verify_policy must be %q or %q, got %q",
			workflow.PolicyDegrade, workflow.PolicyStrict, c.Remediation.VerifyPolicy)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	return nil
}
