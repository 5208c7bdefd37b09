package fixers

import (
	"context"
	"fmt"

	"github.com/buildforge/modguard/internal/descriptor"
	"github.com/buildforge/modguard/internal/module"
	"github.com/buildforge/modguard/internal/rules"
	"github.com/buildforge/modguard/internal/workflow"
)

// DependencyManagementFixer inserts the dependency-version management block
// a parent aggregator is missing, and removes the block a pure aggregator
// must not carry.
type DependencyManagementFixer struct {
	ctrl *workflow.Controller
}

// NewDependencyManagementFixer creates the fixer.
func NewDependencyManagementFixer(ctrl *workflow.Controller) *DependencyManagementFixer {
	return &DependencyManagementFixer{ctrl: ctrl}
}

func (f *DependencyManagementFixer) Name() string { return "dependency-management" }

func (f *DependencyManagementFixer) RuleIDs() []string {
	return []string{rules.RuleMissingDepManagement, rules.RuleForbiddenDepManagement}
}

func (f *DependencyManagementFixer) Priority() int { return 10 }

// CanFix requires the node's role to still match the rule: a node
// reclassified between scan and fix is skipped rather than mutated.
func (f *DependencyManagementFixer) CanFix(req Request) bool {
	if req.Node == nil {
		return false
	}
	switch req.Violation.RuleID {
	case rules.RuleMissingDepManagement:
		return req.Node.Role == module.RoleParentAggregator
	case rules.RuleForbiddenDepManagement:
		return req.Node.Role == module.RolePureAggregator
	}
	return false
}

func (f *DependencyManagementFixer) Fix(ctx context.Context, req Request) (workflow.Outcome, *workflow.Ledger) {
	insert := req.Violation.RuleID == rules.RuleMissingDepManagement

	verb := "remove"
	if insert {
		verb = "insert"
	}
	return f.ctrl.Run(ctx, workflow.Mutation{
		Description: fmt.Sprintf("%s dependency management on %s", verb, req.Node.Identity),
		DryRun:      req.DryRun,
		Targets: []workflow.Target{{
			Path: req.Node.DescriptorPath,
			Produce: func(current string, exists bool) (string, error) {
				if !exists {
					return "", fmt.Errorf("descriptor missing: %s", req.Node.DescriptorPath)
				}
				if insert {
					return descriptor.InsertDependencyManagement(current)
				}
				return descriptor.RemoveDependencyManagement(current)
			},
		}},
	})
}
