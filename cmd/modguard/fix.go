package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/buildforge/modguard/internal/engine"
	"github.com/buildforge/modguard/internal/logging"
	"github.com/buildforge/modguard/internal/report"
	"github.com/buildforge/modguard/internal/workflow"
)

var (
	fixDryRun    bool
	fixRules     []string
	fixForce     bool
	fixShowDiffs bool
	fixStrict    bool
)

var fixCmd = &cobra.Command{
	Use:   "fix [root]",
	Short: "Detect violations and apply automated repairs",
	Long: `Fix scans the tree and repairs every violation a fixer accepts. Each
repair is one transaction: targets are backed up, written, optionally
verified with your build tool, and rolled back together on any failure.

A dirty version-controlled worktree blocks fix so repairs stay separately
reviewable; pass --force to override.

Examples:
  # Preview every repair
  modguard fix --dry-run

  # Repair only parent-reference drift
  modguard fix --rule parent.reference_drift

  # Refuse to repair unverified
  modguard fix --strict-verify`,
	Args: cobra.MaximumNArgs(1),
	RunE: runFix,
}

func init() {
	fixCmd.Flags().BoolVar(&fixDryRun, "dry-run", false, "preview repairs without writing anything")
	fixCmd.Flags().StringSliceVar(&fixRules, "rule", nil, "repair only the given rule ids (repeatable)")
	fixCmd.Flags().BoolVar(&fixForce, "force", false, "skip the dirty-worktree guard")
	fixCmd.Flags().BoolVar(&fixShowDiffs, "diff", false, "print per-file diffs")
	fixCmd.Flags().BoolVar(&fixStrict, "strict-verify", false, "skip repairs when the verification tool is unavailable")
}

func runFix(cmd *cobra.Command, args []string) error {
	if len(args) == 1 {
		rootDir = args[0]
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
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
	ecfg.DryRun = fixDryRun
	ecfg.Rules = fixRules
	ecfg.Force = fixForce
	if fixStrict {
		ecfg.VerifyPolicy = workflow.PolicyStrict
	}

	eng, err := engine.New(ecfg, nil, log)
	if err != nil {
		return err
	}

	result, err := eng.Run(logging.WithLogger(cmd.Context(), log))
	if err != nil {
		return err
	}

	r := report.New(os.Stdout, report.Format(outputFmt))
	r.ShowDiffs = fixShowDiffs || fixDryRun
	if err := r.Result(result); err != nil {
		return err
	}

	if n := result.ByStatus()[workflow.StatusFailed]; n > 0 {
		return fmt.Errorf("%d repair(s) failed and were rolled back", n)
	}
	return nil
}
