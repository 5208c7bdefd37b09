package rules

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"github.com/buildforge/modguard/internal/descriptor"
	"github.com/buildforge/modguard/internal/logging"
	"github.com/buildforge/modguard/internal/module"
)

// Engine evaluates declarative rules against scanned module nodes.
//
// The engine is read-only: it inspects descriptors and directories and
// emits violations, never mutating anything. Hierarchy-role violations come
// from the hierarchy validator, not from here.
type Engine struct {
	defs           *Definitions
	descriptorName string
	log            *logging.Logger
}

// NewEngine creates a rule engine.
func NewEngine(defs *Definitions, descriptorName string, log *logging.Logger) *Engine {
	if defs == nil {
		defs = DefaultDefinitions()
	}
	if descriptorName == "" {
		descriptorName = descriptor.DefaultFilename
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Engine{defs: defs, descriptorName: descriptorName, log: log}
}

// Evaluate runs every enabled rule against every node. Unknown-role nodes
// are skipped. Unreadable descriptors or directories skip the affected
// check only; evaluation is partial-failure tolerant.
func (e *Engine) Evaluate(ctx context.Context, root *module.Node, nodes []*module.Node) []Violation {
	byDir := make(map[string]*module.Node, len(nodes))
	for _, n := range nodes {
		byDir[filepath.Clean(n.Dir)] = n
	}

	var out []Violation
	for _, n := range nodes {
		if n.Role == module.RoleUnknown {
			continue
		}
		out = append(out, e.checkRoleSuffix(n, root)...)
		out = append(out, e.checkLayerSuffix(n)...)
		out = append(out, e.checkDependencyManagement(ctx, n)...)
		out = append(out, e.checkChildren(n)...)
		out = append(out, e.checkParentReference(n, byDir)...)
	}
	return out
}

func (e *Engine) checkRoleSuffix(n *module.Node, root *module.Node) []Violation {
	if !e.defs.Enabled(RuleRoleSuffix) {
		return nil
	}
	naming := e.defs.Naming

	var expected string
	switch n.Role {
	case module.RoleParentAggregator:
		if hasSuffix(n.Identity, naming.ParentSuffix) {
			return nil
		}
		expected = "*" + naming.ParentSuffix
	case module.RolePureAggregator:
		// Empty aggregators are conservatively pure; only flag ones that
		// actually group children.
		if len(n.Children) == 0 || hasSuffix(n.Identity, naming.AggregatorSuffix) {
			return nil
		}
		if naming.ExemptRoot && root != nil && n.Identity == root.Identity {
			return nil
		}
		expected = "*" + naming.AggregatorSuffix
	default:
		return nil
	}

	return []Violation{{
		RuleID:   RuleRoleSuffix,
		Severity: e.defs.SeverityFor(RuleRoleSuffix, SeverityWarning),
		Category: CategoryNaming,
		Module:   n.Identity,
		Path:     n.DescriptorPath,
		Message:  fmt.Sprintf("module %q is a %s but its identity does not carry the %s suffix", n.Identity, n.Role, expected),
		Expected: expected,
		Found:    n.Identity,
		FixHint:  "rename the module identity and propagate the rename to dependent descriptors",
	}}
}

func (e *Engine) checkLayerSuffix(n *module.Node) []Violation {
	if !e.defs.Enabled(RuleLayerSuffix) {
		return nil
	}
	if len(n.Children) > 0 || n.Layer != module.LayerNone {
		return nil
	}
	// Only modules that actually contain source are expected to carry a
	// layer suffix.
	if info, err := os.Stat(filepath.Join(n.Dir, "src")); err != nil || !info.IsDir() {
		return nil
	}
	return []Violation{{
		RuleID:   RuleLayerSuffix,
		Severity: e.defs.SeverityFor(RuleLayerSuffix, SeverityWarning),
		Category: CategoryNaming,
		Module:   n.Identity,
		Path:     n.DescriptorPath,
		Message:  fmt.Sprintf("module %q contains source but carries no layer suffix (api/core/spi/facade/common)", n.Identity),
		Found:    n.Identity,
		FixHint:  "rename the module to carry its layer suffix",
	}}
}

func (e *Engine) checkDependencyManagement(ctx context.Context, n *module.Node) []Violation {
	content, err := descriptor.Read(n.DescriptorPath)
	if err != nil {
		e.log.Debug(ctx, "skipping dependency-management check", zap.String("module", n.Identity), zap.Error(err))
		return nil
	}
	hasBlock := descriptor.HasDependencyManagement(content)

	switch n.Role {
	case module.RoleParentAggregator:
		if hasBlock || !e.defs.Enabled(RuleMissingDepManagement) {
			return nil
		}
		return []Violation{{
			RuleID:   RuleMissingDepManagement,
			Severity: e.defs.SeverityFor(RuleMissingDepManagement, SeverityError),
			Category: CategoryDependency,
			Module:   n.Identity,
			Path:     n.DescriptorPath,
			Message:  fmt.Sprintf("parent aggregator %q must declare dependency-version management", n.Identity),
			FixHint:  "insert a dependencyManagement block",
		}}
	case module.RolePureAggregator:
		if !hasBlock || !e.defs.Enabled(RuleForbiddenDepManagement) {
			return nil
		}
		return []Violation{{
			RuleID:   RuleForbiddenDepManagement,
			Severity: e.defs.SeverityFor(RuleForbiddenDepManagement, SeverityError),
			Category: CategoryDependency,
			Module:   n.Identity,
			Path:     n.DescriptorPath,
			Message:  fmt.Sprintf("pure aggregator %q must not declare dependency-version management", n.Identity),
			FixHint:  "remove the dependencyManagement block",
		}}
	}
	return nil
}

func (e *Engine) checkChildren(n *module.Node) []Violation {
	if n.Role == module.RoleLeaf {
		return nil
	}

	var out []Violation

	declared := make(map[string]bool, len(n.Children))
	for _, c := range n.Children {
		declared[c] = true
		if !e.defs.Enabled(RuleDanglingChildRef) {
			continue
		}
		if _, err := os.Stat(filepath.Join(n.Dir, c, e.descriptorName)); err != nil {
			out = append(out, Violation{
				RuleID:   RuleDanglingChildRef,
				Severity: e.defs.SeverityFor(RuleDanglingChildRef, SeverityError),
				Category: CategoryStructure,
				Module:   n.Identity,
				Path:     n.DescriptorPath,
				Message:  fmt.Sprintf("aggregator %q declares child %q but no descriptor exists at %s", n.Identity, c, filepath.Join(c, e.descriptorName)),
				Found:    c,
				FixHint:  "remove the dangling module entry",
			})
		}
	}

	if !e.defs.Enabled(RuleUnlistedChildDir) {
		return out
	}
	entries, err := os.ReadDir(n.Dir)
	if err != nil {
		return out
	}
	var unlisted []string
	for _, entry := range entries {
		if !entry.IsDir() || entry.Name()[0] == '.' {
			continue
		}
		if declared[entry.Name()] {
			continue
		}
		if _, err := os.Stat(filepath.Join(n.Dir, entry.Name(), e.descriptorName)); err == nil {
			unlisted = append(unlisted, entry.Name())
		}
	}
	sort.Strings(unlisted)
	for _, name := range unlisted {
		out = append(out, Violation{
			RuleID:   RuleUnlistedChildDir,
			Severity: e.defs.SeverityFor(RuleUnlistedChildDir, SeverityWarning),
			Category: CategoryStructure,
			Module:   n.Identity,
			Path:     n.DescriptorPath,
			Message:  fmt.Sprintf("directory %q holds a descriptor but is not declared by aggregator %q", name, n.Identity),
			Found:    name,
			FixHint:  "declare the directory in the modules block",
		})
	}
	return out
}

func (e *Engine) checkParentReference(n *module.Node, byDir map[string]*module.Node) []Violation {
	if !e.defs.Enabled(RuleParentRefDrift) || n.Parent == nil {
		return nil
	}
	containing, ok := byDir[filepath.Clean(filepath.Dir(n.Dir))]
	if !ok || containing.Role == module.RoleUnknown {
		return nil
	}
	if n.Parent.Identity == containing.Identity {
		return nil
	}
	return []Violation{{
		RuleID:   RuleParentRefDrift,
		Severity: e.defs.SeverityFor(RuleParentRefDrift, SeverityError),
		Category: CategoryStructure,
		Module:   n.Identity,
		Path:     n.DescriptorPath,
		Message:  fmt.Sprintf("module %q declares parent %q but its containing aggregator is %q", n.Identity, n.Parent.Identity, containing.Identity),
		Expected: containing.Identity,
		Found:    n.Parent.Identity,
		FixHint:  "rewrite the parent reference to the containing aggregator",
	}}
}

func hasSuffix(s, suffix string) bool {
	return suffix != "" && len(s) > len(suffix) && s[len(s)-len(suffix):] == suffix
}
