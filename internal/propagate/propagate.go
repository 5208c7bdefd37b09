// Package propagate plans cross-file identity renames: renaming one module
// and updating every dependent descriptor that references it, as a single
// workflow transaction.
package propagate

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/buildforge/modguard/internal/descriptor"
	"github.com/buildforge/modguard/internal/module"
	"github.com/buildforge/modguard/internal/workflow"
)

// Errors returned by rename planning.
var (
	ErrSameIdentity    = errors.New("new identity equals current identity")
	ErrInvalidIdentity = errors.New("invalid module identity")
)

// identityPattern constrains module identities to safe artifact ids.
var identityPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*$`)

// GuardError rejects a rename that would strand existing children: pure
// aggregators cannot have leaf children, so a parent aggregator with leaf
// children must not take a pure-aggregator-form identity.
type GuardError struct {
	Identity    string
	NewIdentity string
	Blocking    []string
}

func (e *GuardError) Error() string {
	return fmt.Sprintf(
		"renaming %q to pure-aggregator form %q would strand leaf children: %s; move the leaves under a parent aggregator first",
		e.Identity, e.NewIdentity, strings.Join(e.Blocking, ", "))
}

// Plan is a rename expressed as workflow targets: the renamed node's own
// descriptor plus every dependent descriptor whose parent reference must
// follow. Executing all targets in one workflow run keeps the tree free of
// dangling references on commit, and rolls everything back together.
type Plan struct {
	Old string
	New string

	// Targets covers the renamed descriptor and all dependents.
	Targets []workflow.Target

	// Dependents lists the directories of updated referencing modules.
	Dependents []string
}

// Planner builds rename plans.
type Planner struct {
	descriptorName   string
	aggregatorSuffix string
}

// NewPlanner creates a planner. Empty arguments use the defaults
// (pom.xml, "-aggregator").
func NewPlanner(descriptorName, aggregatorSuffix string) *Planner {
	if descriptorName == "" {
		descriptorName = descriptor.DefaultFilename
	}
	if aggregatorSuffix == "" {
		aggregatorSuffix = "-aggregator"
	}
	return &Planner{descriptorName: descriptorName, aggregatorSuffix: aggregatorSuffix}
}

// PlanRename plans renaming target from its current identity to
// newIdentity, updating every node in nodes whose declared parent
// reference equals the old identity.
//
// The guard runs before any mutation is planned: a rename toward
// pure-aggregator form is refused while the node still has leaf children,
// returning a *GuardError naming them.
//
// Descriptor updates are idempotent: dependents already referencing the new
// identity are left untouched, so a retry after a partial prior failure
// converges.
func (p *Planner) PlanRename(target *module.Node, newIdentity string, nodes []*module.Node) (*Plan, error) {
	if target == nil || target.Identity == "" {
		return nil, fmt.Errorf("%w: node has no identity", ErrInvalidIdentity)
	}
	if !identityPattern.MatchString(newIdentity) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidIdentity, newIdentity)
	}
	if newIdentity == target.Identity {
		return nil, ErrSameIdentity
	}

	if strings.HasSuffix(newIdentity, p.aggregatorSuffix) {
		if blocking := p.leafChildren(target, nodes); len(blocking) > 0 {
			return nil, &GuardError{
				Identity:    target.Identity,
				NewIdentity: newIdentity,
				Blocking:    blocking,
			}
		}
	}

	old := target.Identity
	plan := &Plan{Old: old, New: newIdentity}

	plan.Targets = append(plan.Targets, workflow.Target{
		Path: target.DescriptorPath,
		Produce: func(current string, exists bool) (string, error) {
			if !exists {
				return "", fmt.Errorf("descriptor missing: %s", target.DescriptorPath)
			}
			return descriptor.ReplaceIdentity(current, old, newIdentity)
		},
	})

	dependents := p.dependents(target, nodes)
	for _, dep := range dependents {
		path := dep.DescriptorPath
		plan.Targets = append(plan.Targets, workflow.Target{
			Path: path,
			Produce: func(current string, exists bool) (string, error) {
				if !exists {
					return "", fmt.Errorf("descriptor missing: %s", path)
				}
				return descriptor.ReplaceParentIdentity(current, old, newIdentity)
			},
		})
		plan.Dependents = append(plan.Dependents, dep.Dir)
	}

	return plan, nil
}

// dependents returns every node (other than the target) whose declared
// parent reference equals the target's current identity, ordered by
// directory for deterministic plans.
func (p *Planner) dependents(target *module.Node, nodes []*module.Node) []*module.Node {
	var out []*module.Node
	for _, n := range nodes {
		if n == target || n.Parent == nil {
			continue
		}
		if n.Parent.Identity == target.Identity {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Dir < out[j].Dir })
	return out
}

// leafChildren resolves which declared children of target are leaves,
// combining locator suffixes with scanned child roles.
func (p *Planner) leafChildren(target *module.Node, nodes []*module.Node) []string {
	byDir := make(map[string]*module.Node, len(nodes))
	for _, n := range nodes {
		byDir[filepath.Clean(n.Dir)] = n
	}

	var blocking []string
	for _, child := range target.Children {
		if module.IsLeafName(child) {
			blocking = append(blocking, child)
			continue
		}
		if n, ok := byDir[filepath.Clean(filepath.Join(target.Dir, child))]; ok && n.Role == module.RoleLeaf {
			blocking = append(blocking, child)
		}
	}
	return blocking
}
