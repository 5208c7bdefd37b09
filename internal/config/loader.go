package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB

	envPrefix = "MODGUARD_"
)

// Load builds the configuration from an optional YAML file and the
// environment.
//
// Precedence, highest to lowest:
//  1. MODGUARD_* environment variables
//  2. The YAML config file, when configPath is non-empty
//  3. Built-in defaults
//
// Environment variables map section-first onto YAML keys:
//
//	MODGUARD_PROJECT_ROOT             -> project.root
//	MODGUARD_REMEDIATION_VERIFY_POLICY -> remediation.verify_policy
//	MODGUARD_WATCH_ADDR               -> watch.addr
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath != "" {
		info, err := os.Stat(configPath)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if info.Size() > maxConfigFileSize {
			return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
		}
		content, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", configPath, err)
		}
	}

	// The first underscore after the prefix separates section from field;
	// later underscores stay inside the field name.
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		lower := strings.ToLower(strings.TrimPrefix(s, envPrefix))
		parts := strings.SplitN(lower, "_", 2)
		if len(parts) == 1 {
			return lower
		}
		return parts[0] + "." + parts[1]
	}), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}
