package hierarchy

import (
	"fmt"
	"path/filepath"

	"github.com/buildforge/modguard/internal/descriptor"
	"github.com/buildforge/modguard/internal/module"
	"github.com/buildforge/modguard/internal/rules"
)

// Validator re-derives structural violations across a whole tree by
// classifying every node depth-first. It is read-only and partial-failure
// tolerant: an unreadable child stops neither sibling checks nor recursion
// elsewhere.
type Validator struct {
	classifier *Classifier
	defs       *rules.Definitions
}

// NewValidator creates a tree validator. Nil definitions use the defaults.
func NewValidator(descriptorName string, defs *rules.Definitions) *Validator {
	if defs == nil {
		defs = rules.DefaultDefinitions()
	}
	return &Validator{
		classifier: NewClassifier(descriptorName),
		defs:       defs,
	}
}

// ValidateTree walks the tree rooted at the given descriptor path and
// returns every hierarchy violation found. Unknown-role nodes are skipped
// but recursion continues through them.
func (v *Validator) ValidateTree(rootDescriptorPath string) []rules.Violation {
	return v.validate(filepath.Dir(rootDescriptorPath), filepath.Base(rootDescriptorPath))
}

func (v *Validator) validate(dir, descriptorName string) []rules.Violation {
	path := filepath.Join(dir, descriptorName)
	content, err := descriptor.Read(path)
	if err != nil {
		return nil
	}

	violations := v.checkNode(content, dir, path)

	// Recurse into every declared child regardless of violations found at
	// this level.
	for _, child := range descriptor.Children(content) {
		violations = append(violations, v.validate(filepath.Join(dir, child), v.classifier.descriptorName)...)
	}
	return violations
}

// checkNode derives the node's role and checks its declared children
// against the role's constraints.
func (v *Validator) checkNode(content, dir, path string) []rules.Violation {
	identity, ok := descriptor.Identity(content)
	if !ok {
		return nil
	}
	children := descriptor.Children(content)

	// A leaf-suffixed identity must not aggregate anything. Classification
	// alone cannot surface this: child inspection would reassign the role.
	if module.IsLeafName(identity) && len(children) > 0 {
		if !v.defs.Enabled(rules.RuleLeafWithChildren) {
			return nil
		}
		return []rules.Violation{{
			RuleID:   rules.RuleLeafWithChildren,
			Severity: v.defs.SeverityFor(rules.RuleLeafWithChildren, rules.SeverityError),
			Category: rules.CategoryHierarchy,
			Module:   identity,
			Path:     path,
			Message:  fmt.Sprintf("leaf module %q declares %d child module(s)", identity, len(children)),
			Found:    fmt.Sprintf("%d children", len(children)),
			FixHint:  "move the children under an aggregator or drop the leaf suffix",
		}}
	}

	// The declared role suffix wins over child-derived classification:
	// a node named in pure-aggregator form must satisfy pure-aggregator
	// constraints even when its children would classify it as a parent.
	role := v.classifier.Classify(content, dir)
	naming := v.defs.Naming
	if suffixed(identity, naming.AggregatorSuffix) {
		role = module.RolePureAggregator
	} else if suffixed(identity, naming.ParentSuffix) {
		role = module.RoleParentAggregator
	}

	var violations []rules.Violation
	switch role {
	case module.RolePureAggregator:
		if !v.defs.Enabled(rules.RulePureAggregatorLeafChild) {
			break
		}
		for _, child := range children {
			if v.classifier.childIsLeaf(dir, child) {
				violations = append(violations, rules.Violation{
					RuleID:   rules.RulePureAggregatorLeafChild,
					Severity: v.defs.SeverityFor(rules.RulePureAggregatorLeafChild, rules.SeverityError),
					Category: rules.CategoryHierarchy,
					Module:   identity,
					Path:     path,
					Message:  fmt.Sprintf("pure aggregator %q declares leaf child %q", identity, child),
					Found:    child,
					FixHint:  "move the leaf under a parent aggregator",
				})
			}
		}
	case module.RoleParentAggregator:
		if !v.defs.Enabled(rules.RuleParentNonLeafChild) {
			break
		}
		for _, child := range children {
			if !v.classifier.childIsLeaf(dir, child) {
				violations = append(violations, rules.Violation{
					RuleID:   rules.RuleParentNonLeafChild,
					Severity: v.defs.SeverityFor(rules.RuleParentNonLeafChild, rules.SeverityError),
					Category: rules.CategoryHierarchy,
					Module:   identity,
					Path:     path,
					Message:  fmt.Sprintf("parent aggregator %q declares non-leaf child %q", identity, child),
					Found:    child,
					FixHint:  "move the aggregator child under a pure aggregator",
				})
			}
		}
	case module.RoleUnknown:
		// Insufficient data: no violation, recursion continues in caller.
	}
	return violations
}

func suffixed(s, suffix string) bool {
	return suffix != "" && len(s) > len(suffix) && s[len(s)-len(suffix):] == suffix
}
