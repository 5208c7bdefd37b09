package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/buildforge/modguard/internal/engine"
	"github.com/buildforge/modguard/internal/logging"
	"github.com/buildforge/modguard/internal/report"
)

var validateCmd = &cobra.Command{
	Use:   "validate [root]",
	Short: "Detect structural violations without changing anything",
	Long: `Validate scans the tree and reports every violation of the hierarchy,
naming, dependency-management, and child-listing conventions. Nothing is
mutated.

The exit code is 1 when violations are found, so validate works as a CI
gate.

Examples:
  # Validate the working directory
  modguard validate

  # Validate with custom rule definitions
  modguard validate --rules rules.yaml /repos/platform`,
	Args: cobra.MaximumNArgs(1),
	RunE: runValidate,
}

var rulesFile string

func init() {
	validateCmd.Flags().StringVar(&rulesFile, "rules", "", "path to a rule-definitions file (YAML)")
}

func runValidate(cmd *cobra.Command, args []string) error {
	if len(args) == 1 {
		rootDir = args[0]
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if rulesFile != "" {
		cfg.Project.RulesFile = rulesFile
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	ecfg, err := engineConfig(cfg)
	if err != nil {
		return err
	}
	eng, err := engine.New(ecfg, nil, log)
	if err != nil {
		return err
	}

	_, violations, err := eng.Detect(logging.WithLogger(cmd.Context(), log))
	if err != nil {
		return err
	}

	if err := report.New(os.Stdout, report.Format(outputFmt)).Violations(violations); err != nil {
		return err
	}
	if len(violations) > 0 {
		return fmt.Errorf("%d violation(s) found", len(violations))
	}
	return nil
}
