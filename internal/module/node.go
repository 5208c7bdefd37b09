// Package module defines the structural model of a multi-module build tree:
// nodes, their hierarchy roles, and the layer-suffix naming scheme.
//
// A tree is organized in three tiers. Pure aggregators sit at the top and
// only group other aggregators. Parent aggregators group leaf modules and
// carry shared dependency-version management. Leaf modules contain source
// and carry a layer suffix (api/core/spi/facade/common).
package module

import (
	"path"
	"strings"
)

// Role is the derived position of a node in the three-tier hierarchy.
type Role string

const (
	// RolePureAggregator groups non-leaf modules only. Must not declare
	// dependency-version management.
	RolePureAggregator Role = "pure_aggregator"

	// RoleParentAggregator groups leaf modules only. Must declare
	// dependency-version management.
	RoleParentAggregator Role = "parent_aggregator"

	// RoleLeaf is a terminal module containing source.
	RoleLeaf Role = "leaf"

	// RoleUnknown means the descriptor did not carry enough information to
	// derive a role. Unknown nodes are never remediated.
	RoleUnknown Role = "unknown"
)

// Layer is the declared layer suffix of a leaf module.
type Layer string

const (
	LayerAPI    Layer = "api"
	LayerCore   Layer = "core"
	LayerSPI    Layer = "spi"
	LayerFacade Layer = "facade"
	LayerCommon Layer = "common"
	LayerNone   Layer = "none"
)

// leafLayers are the suffixes that mark a module as a leaf.
var leafLayers = map[Layer]bool{
	LayerAPI:    true,
	LayerCore:   true,
	LayerSPI:    true,
	LayerFacade: true,
	LayerCommon: true,
}

// ParentRef is a declared parent reference inside a descriptor.
type ParentRef struct {
	// Identity is the parent's artifact identity.
	Identity string

	// RelativePath is the declared locator of the parent descriptor,
	// relative to the referencing module's directory.
	RelativePath string
}

// Node is one module in the build tree. Nodes are read-only snapshots
// created fresh per scan.
type Node struct {
	// Identity is the module's artifact identity.
	Identity string

	// Parent is the declared parent reference, if any.
	Parent *ParentRef

	// Dir is the module's directory path.
	Dir string

	// DescriptorPath is the path to the module's build descriptor.
	DescriptorPath string

	// Layer is the layer suffix derived from Identity.
	Layer Layer

	// Children are the declared child locators, in declaration order.
	Children []string

	// Role is the derived hierarchy role.
	Role Role
}

// LayerOf derives the layer suffix from a module name or directory name.
// Names without a recognized suffix yield LayerNone.
func LayerOf(name string) Layer {
	base := path.Base(strings.TrimSuffix(name, "/"))
	idx := strings.LastIndex(base, "-")
	if idx < 0 || idx == len(base)-1 {
		return LayerNone
	}
	l := Layer(base[idx+1:])
	if leafLayers[l] {
		return l
	}
	return LayerNone
}

// IsLeafName reports whether a module or directory name carries a leaf
// layer suffix.
func IsLeafName(name string) bool {
	return LayerOf(name) != LayerNone
}

// HasLeafChild reports whether any declared child locator of n carries a
// leaf suffix. It looks at locators only; callers needing descriptor-level
// resolution should consult the hierarchy classifier.
func (n *Node) HasLeafChild() bool {
	for _, c := range n.Children {
		if IsLeafName(c) {
			return true
		}
	}
	return false
}

// LeafChildren returns the declared child locators of n that carry a leaf
// suffix, in declaration order.
func (n *Node) LeafChildren() []string {
	var out []string
	for _, c := range n.Children {
		if IsLeafName(c) {
			out = append(out, c)
		}
	}
	return out
}
