package fixers

import (
	"context"
	"fmt"

	"github.com/buildforge/modguard/internal/descriptor"
	"github.com/buildforge/modguard/internal/rules"
	"github.com/buildforge/modguard/internal/workflow"
)

// ParentReferenceFixer rewrites a drifted parent reference to the identity
// of the module's containing aggregator.
type ParentReferenceFixer struct {
	ctrl *workflow.Controller
}

// NewParentReferenceFixer creates the fixer.
func NewParentReferenceFixer(ctrl *workflow.Controller) *ParentReferenceFixer {
	return &ParentReferenceFixer{ctrl: ctrl}
}

func (f *ParentReferenceFixer) Name() string { return "parent-reference" }

func (f *ParentReferenceFixer) RuleIDs() []string { return []string{rules.RuleParentRefDrift} }

func (f *ParentReferenceFixer) Priority() int { return 10 }

// CanFix requires the violation to carry both the drifted and the expected
// identity.
func (f *ParentReferenceFixer) CanFix(req Request) bool {
	return req.Node != nil && req.Violation.Found != "" && req.Violation.Expected != ""
}

func (f *ParentReferenceFixer) Fix(ctx context.Context, req Request) (workflow.Outcome, *workflow.Ledger) {
	old, expected := req.Violation.Found, req.Violation.Expected
	return f.ctrl.Run(ctx, workflow.Mutation{
		Description: fmt.Sprintf("rewrite parent reference of %s from %q to %q", req.Node.Identity, old, expected),
		DryRun:      req.DryRun,
		Targets: []workflow.Target{{
			Path: req.Node.DescriptorPath,
			Produce: func(current string, exists bool) (string, error) {
				if !exists {
					return "", fmt.Errorf("descriptor missing: %s", req.Node.DescriptorPath)
				}
				return descriptor.ReplaceParentIdentity(current, old, expected)
			},
		}},
	})
}
