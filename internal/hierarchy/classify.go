// Package hierarchy derives module roles and validates the three-tier
// aggregator/parent/leaf structure of a build tree.
package hierarchy

import (
	"path/filepath"

	"github.com/buildforge/modguard/internal/descriptor"
	"github.com/buildforge/modguard/internal/module"
)

// Classifier derives a module's hierarchy role from its descriptor content
// and its immediate declared children. Classification never consults
// ancestors and never fails: missing information yields RoleUnknown.
type Classifier struct {
	descriptorName string
}

// NewClassifier creates a classifier reading child descriptors named
// descriptorName. An empty name uses the default.
func NewClassifier(descriptorName string) *Classifier {
	if descriptorName == "" {
		descriptorName = descriptor.DefaultFilename
	}
	return &Classifier{descriptorName: descriptorName}
}

// Classify derives the role of the module whose descriptor content and
// directory are given.
//
// A node without identity is Unknown. A childless node is a Leaf when its
// identity carries a leaf suffix, otherwise a pure aggregator (an empty
// aggregator is legal and conservatively pure). A node with children is a
// parent aggregator when any child resolves to a leaf, otherwise pure.
func (c *Classifier) Classify(content, dir string) module.Role {
	identity, ok := descriptor.Identity(content)
	if !ok {
		return module.RoleUnknown
	}

	children := descriptor.Children(content)
	if len(children) == 0 {
		if module.IsLeafName(identity) {
			return module.RoleLeaf
		}
		return module.RolePureAggregator
	}

	for _, child := range children {
		if c.childIsLeaf(dir, child) {
			return module.RoleParentAggregator
		}
	}
	return module.RolePureAggregator
}

// childIsLeaf resolves whether a declared child is a leaf module. The
// directory-name suffix decides when recognized; otherwise the child's own
// descriptor identity is consulted. An unreadable child descriptor counts
// as non-leaf (conservative).
func (c *Classifier) childIsLeaf(dir, child string) bool {
	if module.IsLeafName(child) {
		return true
	}
	content, err := descriptor.Read(filepath.Join(dir, child, c.descriptorName))
	if err != nil {
		return false
	}
	identity, ok := descriptor.Identity(content)
	if !ok {
		return false
	}
	return module.IsLeafName(identity)
}
