// Package fixers maps detected violations to automated repairs. Each fixer
// declares the rule ids it handles and a priority; the registry resolves a
// violation to an ordered candidate list, and each repair executes as one
// guarded workflow mutation.
package fixers

import (
	"context"
	"sort"
	"sync"

	"github.com/buildforge/modguard/internal/module"
	"github.com/buildforge/modguard/internal/propagate"
	"github.com/buildforge/modguard/internal/rules"
	"github.com/buildforge/modguard/internal/workflow"
)

// Request is one violation handed to a fixer, with the scan context it needs
// to plan a repair.
type Request struct {
	Violation rules.Violation

	// Node is the offending module, resolved from the violation.
	Node *module.Node

	// Nodes is the full scanned node list, for repairs that touch
	// dependents.
	Nodes []*module.Node

	// DryRun previews the repair without mutating anything.
	DryRun bool
}

// Fixer repairs violations of the rules it declares.
type Fixer interface {
	// Name identifies the fixer in logs and reports.
	Name() string

	// RuleIDs lists the rule ids this fixer handles.
	RuleIDs() []string

	// Priority orders candidates for the same rule; lower runs first.
	Priority() int

	// CanFix reports whether this fixer applies to the concrete request.
	// A registry hit with CanFix false means the next candidate is tried.
	CanFix(req Request) bool

	// Fix executes the repair as one workflow attempt. Fix never returns
	// an error: unsafe or impossible repairs surface as Failed or
	// NotFixable outcomes, and every Failed outcome has been rolled back.
	Fix(ctx context.Context, req Request) (workflow.Outcome, *workflow.Ledger)
}

// Registry resolves rule ids to candidate fixers.
type Registry struct {
	mu     sync.RWMutex
	byRule map[string][]registered
	seq    int
}

type registered struct {
	fixer Fixer
	seq   int
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byRule: make(map[string][]registered)}
}

// Register adds a fixer for every rule id it declares. Registration order
// breaks priority ties.
func (r *Registry) Register(f Fixer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	for _, id := range f.RuleIDs() {
		r.byRule[id] = append(r.byRule[id], registered{fixer: f, seq: r.seq})
		sort.SliceStable(r.byRule[id], func(i, j int) bool {
			a, b := r.byRule[id][i], r.byRule[id][j]
			if a.fixer.Priority() != b.fixer.Priority() {
				return a.fixer.Priority() < b.fixer.Priority()
			}
			return a.seq < b.seq
		})
	}
}

// Resolve returns the candidate fixers for a rule id, ordered by priority
// then registration order. Unhandled rules yield an empty list.
func (r *Registry) Resolve(ruleID string) []Fixer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	regs := r.byRule[ruleID]
	out := make([]Fixer, 0, len(regs))
	for _, reg := range regs {
		out = append(out, reg.fixer)
	}
	return out
}

// Rules returns the sorted rule ids with at least one registered fixer.
func (r *Registry) Rules() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byRule))
	for id := range r.byRule {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// DefaultRegistry builds the registry with every built-in fixer, all sharing
// one workflow controller. A nil planner uses the default rename planner.
func DefaultRegistry(ctrl *workflow.Controller, planner *propagate.Planner) *Registry {
	r := NewRegistry()
	r.Register(NewRenameModuleFixer(ctrl, planner))
	r.Register(NewParentReferenceFixer(ctrl))
	r.Register(NewDependencyManagementFixer(ctrl))
	r.Register(NewChildListingFixer(ctrl))
	r.Register(NewLayerSuffixFixer())
	return r
}
