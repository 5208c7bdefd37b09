package rules

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buildforge/modguard/internal/module"
)

type pomFields struct {
	identity  string
	parent    string
	children  []string
	depMgmt   bool
	hasSource bool
}

func writeTreePom(t *testing.T, dir string, fields pomFields) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("<project>\n")
	if fields.parent != "" {
		fmt.Fprintf(&b, "  <parent>\n    <artifactId>%s</artifactId>\n  </parent>\n", fields.parent)
	}
	fmt.Fprintf(&b, "  <artifactId>%s</artifactId>\n", fields.identity)
	if len(fields.children) > 0 {
		b.WriteString("  <modules>\n")
		for _, c := range fields.children {
			fmt.Fprintf(&b, "    <module>%s</module>\n", c)
		}
		b.WriteString("  </modules>\n")
	}
	if fields.depMgmt {
		b.WriteString("  <dependencyManagement>\n    <dependencies>\n    </dependencies>\n  </dependencyManagement>\n")
	}
	b.WriteString("</project>\n")
	require.NoError(t, os.MkdirAll(dir, 0755))
	path := filepath.Join(dir, "pom.xml")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0600))
	if fields.hasSource {
		require.NoError(t, os.MkdirAll(filepath.Join(dir, "src", "main"), 0755))
	}
	return path
}

func node(dir, identity string, role module.Role, parent string, children ...string) *module.Node {
	n := &module.Node{
		Identity:       identity,
		Dir:            filepath.Clean(dir),
		DescriptorPath: filepath.Join(dir, "pom.xml"),
		Layer:          module.LayerOf(identity),
		Children:       children,
		Role:           role,
	}
	if parent != "" {
		n.Parent = &module.ParentRef{Identity: parent}
	}
	return n
}

func ids(violations []Violation) []string {
	out := make([]string, 0, len(violations))
	for _, v := range violations {
		out = append(out, v.RuleID)
	}
	return out
}

func TestEngine_RoleSuffix(t *testing.T) {
	root := t.TempDir()
	tests := []struct {
		name     string
		node     *module.Node
		wantRule bool
	}{
		{
			name:     "parent aggregator without parent suffix",
			node:     node(filepath.Join(root, "payments"), "payments", module.RoleParentAggregator, "", "payments-api"),
			wantRule: true,
		},
		{
			name:     "parent aggregator with parent suffix",
			node:     node(filepath.Join(root, "payments-parent"), "payments-parent", module.RoleParentAggregator, "", "payments-api"),
			wantRule: false,
		},
		{
			name:     "pure aggregator without aggregator suffix",
			node:     node(filepath.Join(root, "billing"), "billing", module.RolePureAggregator, "acme", "billing-services"),
			wantRule: true,
		},
		{
			name:     "pure aggregator with aggregator suffix",
			node:     node(filepath.Join(root, "billing-aggregator"), "billing-aggregator", module.RolePureAggregator, "acme", "billing-services"),
			wantRule: false,
		},
		{
			name:     "empty pure aggregator is not flagged",
			node:     node(filepath.Join(root, "scratch"), "scratch", module.RolePureAggregator, "acme"),
			wantRule: false,
		},
		{
			name:     "leaf is not flagged",
			node:     node(filepath.Join(root, "billing-api"), "billing-api", module.RoleLeaf, "billing-parent"),
			wantRule: false,
		},
	}

	e := NewEngine(nil, "", nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.checkRoleSuffix(tt.node, nil)
			if tt.wantRule {
				require.Len(t, got, 1)
				assert.Equal(t, RuleRoleSuffix, got[0].RuleID)
				assert.Equal(t, CategoryNaming, got[0].Category)
				assert.NotEmpty(t, got[0].Expected)
			} else {
				assert.Empty(t, got)
			}
		})
	}
}

func TestEngine_RoleSuffix_RootExemption(t *testing.T) {
	rootNode := node("/repo", "acme", module.RolePureAggregator, "", "billing")

	e := NewEngine(nil, "", nil)
	assert.Empty(t, e.checkRoleSuffix(rootNode, rootNode))

	defs := DefaultDefinitions()
	defs.Naming.ExemptRoot = false
	e = NewEngine(defs, "", nil)
	got := e.checkRoleSuffix(rootNode, rootNode)
	require.Len(t, got, 1)
	assert.Equal(t, RuleRoleSuffix, got[0].RuleID)
}

func TestEngine_LayerSuffix(t *testing.T) {
	root := t.TempDir()

	withSrc := filepath.Join(root, "gateway")
	writeTreePom(t, withSrc, pomFields{identity: "gateway", hasSource: true})
	withoutSrc := filepath.Join(root, "notes")
	writeTreePom(t, withoutSrc, pomFields{identity: "notes"})
	layered := filepath.Join(root, "gateway-api")
	writeTreePom(t, layered, pomFields{identity: "gateway-api", hasSource: true})

	e := NewEngine(nil, "", nil)

	got := e.checkLayerSuffix(node(withSrc, "gateway", module.RoleLeaf, ""))
	require.Len(t, got, 1)
	assert.Equal(t, RuleLayerSuffix, got[0].RuleID)

	assert.Empty(t, e.checkLayerSuffix(node(withoutSrc, "notes", module.RoleLeaf, "")))
	assert.Empty(t, e.checkLayerSuffix(node(layered, "gateway-api", module.RoleLeaf, "")))
}

func TestEngine_DependencyManagement(t *testing.T) {
	root := t.TempDir()
	ctx := context.Background()
	e := NewEngine(nil, "", nil)

	parentDir := filepath.Join(root, "payments-parent")
	writeTreePom(t, parentDir, pomFields{identity: "payments-parent", children: []string{"payments-api"}})
	got := e.checkDependencyManagement(ctx, node(parentDir, "payments-parent", module.RoleParentAggregator, "", "payments-api"))
	require.Len(t, got, 1)
	assert.Equal(t, RuleMissingDepManagement, got[0].RuleID)
	assert.Equal(t, SeverityError, got[0].Severity)

	pureDir := filepath.Join(root, "billing-aggregator")
	writeTreePom(t, pureDir, pomFields{identity: "billing-aggregator", children: []string{"billing-services"}, depMgmt: true})
	got = e.checkDependencyManagement(ctx, node(pureDir, "billing-aggregator", module.RolePureAggregator, "", "billing-services"))
	require.Len(t, got, 1)
	assert.Equal(t, RuleForbiddenDepManagement, got[0].RuleID)

	// Compliant nodes produce nothing.
	okParent := filepath.Join(root, "orders-parent")
	writeTreePom(t, okParent, pomFields{identity: "orders-parent", children: []string{"orders-api"}, depMgmt: true})
	assert.Empty(t, e.checkDependencyManagement(ctx, node(okParent, "orders-parent", module.RoleParentAggregator, "", "orders-api")))

	// Unreadable descriptor skips the check rather than failing.
	assert.Empty(t, e.checkDependencyManagement(ctx, node(filepath.Join(root, "missing"), "missing", module.RoleParentAggregator, "")))
}

func TestEngine_Children(t *testing.T) {
	root := t.TempDir()
	aggDir := filepath.Join(root, "billing-aggregator")
	writeTreePom(t, aggDir, pomFields{identity: "billing-aggregator", children: []string{"billing-services", "ghost"}})
	writeTreePom(t, filepath.Join(aggDir, "billing-services"), pomFields{identity: "billing-services"})
	// Present on disk but never declared.
	writeTreePom(t, filepath.Join(aggDir, "stray"), pomFields{identity: "stray"})
	// A plain directory without a descriptor is ignored.
	require.NoError(t, os.MkdirAll(filepath.Join(aggDir, "docs"), 0755))

	e := NewEngine(nil, "", nil)
	got := e.checkChildren(node(aggDir, "billing-aggregator", module.RolePureAggregator, "", "billing-services", "ghost"))

	require.Len(t, got, 2)
	assert.Equal(t, []string{RuleDanglingChildRef, RuleUnlistedChildDir}, ids(got))
	assert.Equal(t, "ghost", got[0].Found)
	assert.Equal(t, "stray", got[1].Found)
}

func TestEngine_ParentReferenceDrift(t *testing.T) {
	agg := node("/repo/billing-aggregator", "billing-aggregator", module.RolePureAggregator, "", "billing-services")
	drifted := node("/repo/billing-aggregator/billing-services", "billing-services", module.RoleParentAggregator, "billing")
	aligned := node("/repo/billing-aggregator/billing-services", "billing-services", module.RoleParentAggregator, "billing-aggregator")

	byDir := map[string]*module.Node{agg.Dir: agg}
	e := NewEngine(nil, "", nil)

	got := e.checkParentReference(drifted, byDir)
	require.Len(t, got, 1)
	assert.Equal(t, RuleParentRefDrift, got[0].RuleID)
	assert.Equal(t, "billing-aggregator", got[0].Expected)
	assert.Equal(t, "billing", got[0].Found)

	assert.Empty(t, e.checkParentReference(aligned, byDir))
	// No containing aggregator scanned: nothing to compare against.
	assert.Empty(t, e.checkParentReference(drifted, map[string]*module.Node{}))
}

func TestEngine_Evaluate(t *testing.T) {
	root := t.TempDir()
	writeTreePom(t, root, pomFields{identity: "acme", children: []string{"payments"}})
	payments := filepath.Join(root, "payments")
	writeTreePom(t, payments, pomFields{identity: "payments", parent: "acme", children: []string{"payments-api"}})
	writeTreePom(t, filepath.Join(payments, "payments-api"), pomFields{identity: "payments-api", parent: "payments"})

	rootNode := node(root, "acme", module.RolePureAggregator, "", "payments")
	paymentsNode := node(payments, "payments", module.RoleParentAggregator, "acme", "payments-api")
	leafNode := node(filepath.Join(payments, "payments-api"), "payments-api", module.RoleLeaf, "payments")
	unknown := node(filepath.Join(root, "broken"), "", module.RoleUnknown, "")

	e := NewEngine(nil, "", nil)
	got := e.Evaluate(context.Background(), rootNode, []*module.Node{rootNode, paymentsNode, leafNode, unknown})

	// The parent aggregator lacks its suffix and dependency management;
	// the root is exempt and the leaf is clean.
	assert.ElementsMatch(t, []string{RuleRoleSuffix, RuleMissingDepManagement}, ids(got))
}

func TestEngine_Evaluate_DisabledRules(t *testing.T) {
	root := t.TempDir()
	payments := filepath.Join(root, "payments")
	writeTreePom(t, payments, pomFields{identity: "payments", children: []string{"payments-api"}})
	writeTreePom(t, filepath.Join(payments, "payments-api"), pomFields{identity: "payments-api", parent: "payments"})

	defs := DefaultDefinitions()
	defs.Disabled = []string{RuleRoleSuffix, RuleMissingDepManagement}

	paymentsNode := node(payments, "payments", module.RoleParentAggregator, "", "payments-api")
	e := NewEngine(defs, "", nil)
	got := e.Evaluate(context.Background(), paymentsNode, []*module.Node{paymentsNode})
	assert.Empty(t, got)
}

func TestEngine_SeverityOverride(t *testing.T) {
	defs := DefaultDefinitions()
	defs.SeverityOverrides = map[string]Severity{RuleRoleSuffix: SeverityError}

	e := NewEngine(defs, "", nil)
	got := e.checkRoleSuffix(node("/repo/payments", "payments", module.RoleParentAggregator, "", "payments-api"), nil)
	require.Len(t, got, 1)
	assert.Equal(t, SeverityError, got[0].Severity)
}
