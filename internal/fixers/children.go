package fixers

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/buildforge/modguard/internal/descriptor"
	"github.com/buildforge/modguard/internal/rules"
	"github.com/buildforge/modguard/internal/workflow"
)

// ChildListingFixer reconciles an aggregator's declared children with the
// directories on disk: dangling entries are removed, undeclared module
// directories are added.
type ChildListingFixer struct {
	ctrl           *workflow.Controller
	descriptorName string
}

// NewChildListingFixer creates the fixer.
func NewChildListingFixer(ctrl *workflow.Controller) *ChildListingFixer {
	return &ChildListingFixer{ctrl: ctrl, descriptorName: descriptor.DefaultFilename}
}

func (f *ChildListingFixer) Name() string { return "child-listing" }

func (f *ChildListingFixer) RuleIDs() []string {
	return []string{rules.RuleDanglingChildRef, rules.RuleUnlistedChildDir}
}

func (f *ChildListingFixer) Priority() int { return 10 }

// CanFix requires the violation to name the child and, before removing an
// entry, re-checks the descriptor really is absent on disk.
func (f *ChildListingFixer) CanFix(req Request) bool {
	if req.Node == nil || req.Violation.Found == "" {
		return false
	}
	childDescriptor := filepath.Join(req.Node.Dir, req.Violation.Found, f.descriptorName)
	_, err := os.Stat(childDescriptor)
	if req.Violation.RuleID == rules.RuleDanglingChildRef {
		return err != nil
	}
	return err == nil
}

func (f *ChildListingFixer) Fix(ctx context.Context, req Request) (workflow.Outcome, *workflow.Ledger) {
	child := req.Violation.Found
	add := req.Violation.RuleID == rules.RuleUnlistedChildDir

	verb := "remove dangling child"
	if add {
		verb = "declare child"
	}
	return f.ctrl.Run(ctx, workflow.Mutation{
		Description: fmt.Sprintf("%s %q on %s", verb, child, req.Node.Identity),
		DryRun:      req.DryRun,
		Targets: []workflow.Target{{
			Path: req.Node.DescriptorPath,
			Produce: func(current string, exists bool) (string, error) {
				if !exists {
					return "", fmt.Errorf("descriptor missing: %s", req.Node.DescriptorPath)
				}
				if add {
					return descriptor.AddChild(current, child)
				}
				next, err := descriptor.RemoveChild(current, child)
				if errors.Is(err, descriptor.ErrChildNotDeclared) {
					// Already gone; converged.
					return current, nil
				}
				return next, err
			},
		}},
	})
}
