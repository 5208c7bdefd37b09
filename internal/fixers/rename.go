package fixers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/buildforge/modguard/internal/module"
	"github.com/buildforge/modguard/internal/propagate"
	"github.com/buildforge/modguard/internal/rules"
	"github.com/buildforge/modguard/internal/workflow"
)

// RenameModuleFixer repairs role-suffix violations by renaming the module's
// identity and propagating the rename to every dependent descriptor in one
// transaction.
type RenameModuleFixer struct {
	ctrl    *workflow.Controller
	planner *propagate.Planner
}

// NewRenameModuleFixer creates the fixer. A nil planner uses the defaults.
func NewRenameModuleFixer(ctrl *workflow.Controller, planner *propagate.Planner) *RenameModuleFixer {
	if planner == nil {
		planner = propagate.NewPlanner("", "")
	}
	return &RenameModuleFixer{ctrl: ctrl, planner: planner}
}

func (f *RenameModuleFixer) Name() string { return "rename-module" }

func (f *RenameModuleFixer) RuleIDs() []string { return []string{rules.RuleRoleSuffix} }

func (f *RenameModuleFixer) Priority() int { return 10 }

// CanFix requires a suffix pattern in the violation to derive the new
// identity from.
func (f *RenameModuleFixer) CanFix(req Request) bool {
	return req.Node != nil && req.Node.Identity != "" &&
		strings.HasPrefix(req.Violation.Expected, "*-")
}

func (f *RenameModuleFixer) Fix(ctx context.Context, req Request) (workflow.Outcome, *workflow.Ledger) {
	ledger := workflow.NewLedger()

	newIdentity, err := f.newIdentity(req.Node, req.Violation)
	if err != nil {
		return workflow.Failedf("deriving new identity: %v", err), ledger
	}

	plan, err := f.planner.PlanRename(req.Node, newIdentity, req.Nodes)
	if err != nil {
		var guard *propagate.GuardError
		if errors.As(err, &guard) {
			return workflow.NotFixable(guard.Error()), ledger
		}
		return workflow.Failedf("planning rename: %v", err), ledger
	}

	return f.ctrl.Run(ctx, workflow.Mutation{
		Description: fmt.Sprintf("rename %s to %s", plan.Old, plan.New),
		DryRun:      req.DryRun,
		Targets:     plan.Targets,
	})
}

// newIdentity derives the suffixed identity from the expected pattern,
// replacing an existing role suffix rather than stacking a second one.
func (f *RenameModuleFixer) newIdentity(n *module.Node, v rules.Violation) (string, error) {
	suffix := strings.TrimPrefix(v.Expected, "*")
	if suffix == "" || suffix == v.Expected {
		return "", fmt.Errorf("violation carries no expected suffix pattern: %q", v.Expected)
	}
	base := n.Identity
	for _, other := range []string{"-parent", "-aggregator"} {
		if other != suffix && strings.HasSuffix(base, other) {
			base = strings.TrimSuffix(base, other)
			break
		}
	}
	return base + suffix, nil
}
