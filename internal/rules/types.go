// Package rules defines structural violations and the declarative rule
// engine that detects them.
//
// Rule definitions are loaded from a YAML document and drive simple
// comparisons over scanned module nodes. Hierarchy-role violations are
// produced separately by the hierarchy validator; this package owns the
// violation model both sides share.
package rules

// Severity of a violation.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Category groups related rules.
type Category string

const (
	CategoryHierarchy  Category = "hierarchy"
	CategoryNaming     Category = "naming"
	CategoryDependency Category = "dependency"
	CategoryStructure  Category = "structure"
)

// Rule identifiers.
const (
	// RulePureAggregatorLeafChild: a pure aggregator declares a leaf child.
	RulePureAggregatorLeafChild = "hierarchy.pure_aggregator_leaf_child"

	// RuleParentNonLeafChild: a parent aggregator declares a non-leaf child.
	RuleParentNonLeafChild = "hierarchy.parent_non_leaf_child"

	// RuleLeafWithChildren: a leaf module declares children.
	RuleLeafWithChildren = "hierarchy.leaf_with_children"

	// RuleRoleSuffix: a module's identity does not carry the naming suffix
	// its hierarchy role requires.
	RuleRoleSuffix = "naming.role_suffix"

	// RuleLayerSuffix: a childless module containing source carries no
	// recognized layer suffix.
	RuleLayerSuffix = "naming.layer_suffix"

	// RuleMissingDepManagement: a parent aggregator declares no
	// dependency-version management.
	RuleMissingDepManagement = "depmgmt.missing_on_parent"

	// RuleForbiddenDepManagement: a pure aggregator declares
	// dependency-version management.
	RuleForbiddenDepManagement = "depmgmt.forbidden_on_pure"

	// RuleUnlistedChildDir: a module directory exists on disk but is not
	// declared by its containing aggregator.
	RuleUnlistedChildDir = "children.unlisted_dir"

	// RuleDanglingChildRef: a declared child has no descriptor on disk.
	RuleDanglingChildRef = "children.dangling_ref"

	// RuleParentRefDrift: a module's declared parent reference does not
	// match the identity of its containing aggregator.
	RuleParentRefDrift = "parent.reference_drift"
)

// Violation is one detected rule breach at one location. Violations are
// read-only, created fresh per scan.
type Violation struct {
	RuleID   string   `json:"rule_id"`
	Severity Severity `json:"severity"`
	Category Category `json:"category"`

	// Module is the identity of the offending module.
	Module string `json:"module"`

	// Path locates the offending descriptor.
	Path string `json:"path"`

	Message  string `json:"message"`
	Expected string `json:"expected,omitempty"`
	Found    string `json:"found,omitempty"`

	// FixHint describes the automated repair, if one exists.
	FixHint string `json:"fix_hint,omitempty"`
}
