// Package main implements the modguard CLI for validating and repairing
// multi-module build trees.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/buildforge/modguard/internal/config"
	"github.com/buildforge/modguard/internal/engine"
	"github.com/buildforge/modguard/internal/logging"
	"github.com/buildforge/modguard/internal/rules"
	"github.com/buildforge/modguard/internal/workflow"
)

var (
	configPath string
	rootDir    string
	logLevel   string
	outputFmt  string

	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "modguard",
	Short: "Structural convention guard for multi-module build trees",
	Long: `modguard validates and repairs the structure of Maven-style
multi-module build trees: hierarchy roles, naming suffixes,
dependency-version management placement, child listings, and parent
references.

Repairs are transactional: every mutation is backed up, optionally
verified with your build tool, and rolled back on any failure.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a modguard config file (YAML)")
	rootCmd.PersistentFlags().StringVar(&rootDir, "root", "", "project root (defaults to the working directory)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVarP(&outputFmt, "output", "o", "text", "output format: text or json")

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(fixCmd)
	rootCmd.AddCommand(renameCmd)
	rootCmd.AddCommand(watchCmd)
}

// loadConfig resolves configuration from file, environment, and flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if rootDir != "" {
		cfg.Project.Root = rootDir
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	abs, err := filepath.Abs(cfg.Project.Root)
	if err != nil {
		return nil, fmt.Errorf("resolving project root: %w", err)
	}
	cfg.Project.Root = abs
	return cfg, cfg.Validate()
}

func newLogger(cfg *config.Config) (*logging.Logger, error) {
	return logging.NewLogger(&cfg.Logging)
}

// engineConfig translates the file-level configuration into engine wiring.
func engineConfig(cfg *config.Config) (engine.Config, error) {
	defs, err := rules.LoadDefinitions(cfg.Project.RulesFile)
	if err != nil {
		return engine.Config{}, err
	}
	return engine.Config{
		Root:           cfg.Project.Root,
		DescriptorName: cfg.Project.Descriptor,
		Definitions:    defs,
		VerifyCommand:  cfg.Remediation.VerifyCommand,
		VerifyPolicy:   workflow.Policy(cfg.Remediation.VerifyPolicy),
		VerifyTimeout:  cfg.Remediation.VerifyTimeout.Duration(),
		StagingDir:     cfg.Remediation.StagingDir,
		Concurrency:    cfg.Remediation.Concurrency,
	}, nil
}
