package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/buildforge/modguard/internal/gitguard"
	"github.com/buildforge/modguard/internal/logging"
	"github.com/buildforge/modguard/internal/propagate"
	"github.com/buildforge/modguard/internal/rules"
	"github.com/buildforge/modguard/internal/scanner"
	"github.com/buildforge/modguard/internal/workflow"
)

var (
	renameDryRun bool
	renameForce  bool
)

var renameCmd = &cobra.Command{
	Use:   "rename OLD NEW",
	Short: "Rename a module identity and propagate the change",
	Long: `Rename changes a module's identity and rewrites every descriptor that
references it, as one transaction: either every file is updated or none
is.

A rename to pure-aggregator form is refused while the module still has
leaf children, since that would strand them.

Examples:
  # Rename with propagation
  modguard rename billing billing-aggregator

  # Preview the rename
  modguard rename --dry-run payments payments-parent`,
	Args: cobra.ExactArgs(2),
	RunE: runRename,
}

func init() {
	renameCmd.Flags().BoolVar(&renameDryRun, "dry-run", false, "preview the rename without writing anything")
	renameCmd.Flags().BoolVar(&renameForce, "force", false, "skip the dirty-worktree guard")
}

func runRename(cmd *cobra.Command, args []string) error {
	oldIdentity, newIdentity := args[0], args[1]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()
	ctx := logging.WithLogger(cmd.Context(), log)

	if !renameDryRun {
		guard := &gitguard.Guard{Force: renameForce}
		if err := guard.Check(cfg.Project.Root); err != nil {
			return err
		}
	}

	tree, err := scanner.New(cfg.Project.Descriptor, log).Scan(ctx, cfg.Project.Root)
	if err != nil {
		return err
	}
	target := tree.ByIdentity[oldIdentity]
	if target == nil {
		return fmt.Errorf("no module with identity %q found under %s", oldIdentity, cfg.Project.Root)
	}

	defs, err := rules.LoadDefinitions(cfg.Project.RulesFile)
	if err != nil {
		return err
	}
	planner := propagate.NewPlanner(cfg.Project.Descriptor, defs.Naming.AggregatorSuffix)
	plan, err := planner.PlanRename(target, newIdentity, tree.Nodes)
	if err != nil {
		var guard *propagate.GuardError
		if errors.As(err, &guard) {
			return fmt.Errorf("rename refused: %s", guard.Error())
		}
		return err
	}

	ctrl, err := workflow.NewController(workflow.Config{
		Root:          cfg.Project.Root,
		StagingDir:    cfg.Remediation.StagingDir,
		VerifyPolicy:  workflow.Policy(cfg.Remediation.VerifyPolicy),
		VerifyTimeout: cfg.Remediation.VerifyTimeout.Duration(),
	}, log)
	if err != nil {
		return err
	}

	var verifier workflow.Verifier
	if len(cfg.Remediation.VerifyCommand) > 0 {
		verifier = &workflow.ExecVerifier{Command: cfg.Remediation.VerifyCommand}
	}
	outcome, _ := ctrl.Run(ctx, workflow.Mutation{
		Description: fmt.Sprintf("rename %s to %s", plan.Old, plan.New),
		Targets:     plan.Targets,
		Verifier:    verifier,
		DryRun:      renameDryRun,
	})

	if outputFmt == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(outcome); err != nil {
			return err
		}
		if outcome.Status == workflow.StatusFailed {
			return fmt.Errorf("rename failed and was rolled back: %s", outcome.Reason)
		}
		return nil
	}

	switch outcome.Status {
	case workflow.StatusFixed:
		fmt.Printf("renamed %s to %s (%d file(s) updated, %d dependent(s))\n",
			plan.Old, plan.New, len(outcome.Files), len(plan.Dependents))
	case workflow.StatusDryRun:
		for _, d := range outcome.Diffs {
			fmt.Println(d.Diff)
		}
		fmt.Printf("dry run: %d file(s) would change\n", len(outcome.Files))
	case workflow.StatusSkipped:
		fmt.Printf("nothing to do: %s\n", outcome.Reason)
	case workflow.StatusFailed:
		return fmt.Errorf("rename failed and was rolled back: %s", outcome.Reason)
	}
	return nil
}
