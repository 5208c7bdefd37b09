// Package engine orchestrates detection and remediation: scan the tree,
// evaluate rules, resolve fixers, and execute guarded repairs.
package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/buildforge/modguard/internal/fixers"
	"github.com/buildforge/modguard/internal/gitguard"
	"github.com/buildforge/modguard/internal/hierarchy"
	"github.com/buildforge/modguard/internal/logging"
	"github.com/buildforge/modguard/internal/propagate"
	"github.com/buildforge/modguard/internal/rules"
	"github.com/buildforge/modguard/internal/scanner"
	"github.com/buildforge/modguard/internal/telemetry"
	"github.com/buildforge/modguard/internal/workflow"
)

// Config configures an Engine.
type Config struct {
	// Root is the project root to scan and remediate.
	Root string

	// DescriptorName overrides the default build descriptor filename.
	DescriptorName string

	// Definitions is the rule configuration. Nil uses the defaults.
	Definitions *rules.Definitions

	// VerifyCommand is the argv of the verification tool run after each
	// mutation. Empty disables verification.
	VerifyCommand []string

	// VerifyPolicy decides behavior when the tool is unavailable.
	VerifyPolicy workflow.Policy

	// VerifyTimeout bounds one verification run.
	VerifyTimeout time.Duration

	// StagingDir overrides the backup area.
	StagingDir string

	// Concurrency bounds parallel remediation of disjoint modules.
	// Values below 1 mean sequential.
	Concurrency int

	// DryRun previews every repair without mutating anything.
	DryRun bool

	// Rules restricts remediation to the listed rule ids. Empty means all.
	Rules []string

	// Force skips the dirty-worktree guard.
	Force bool
}

// Attempt is the recorded result of remediating one violation.
type Attempt struct {
	Violation rules.Violation  `json:"violation"`
	Fixer     string           `json:"fixer,omitempty"`
	AttemptID string           `json:"attempt_id,omitempty"`
	Outcome   workflow.Outcome `json:"outcome"`
}

// Result is the output of one detect-and-repair run.
type Result struct {
	// Violations lists everything detected, fixed or not.
	Violations []rules.Violation `json:"violations"`

	// Attempts holds one entry per remediated violation, in violation
	// order.
	Attempts []Attempt `json:"attempts,omitempty"`

	// Modules is the number of scanned module nodes.
	Modules int `json:"modules"`

	Duration time.Duration `json:"duration"`
}

// ByStatus counts attempts per outcome status.
func (r *Result) ByStatus() map[workflow.Status]int {
	out := make(map[workflow.Status]int)
	for _, a := range r.Attempts {
		out[a.Outcome.Status]++
	}
	return out
}

// Engine wires the scanner, rule engine, hierarchy validator, fixer
// registry, and workflow controller into one run loop.
type Engine struct {
	cfg       Config
	scanner   *scanner.Scanner
	rules     *rules.Engine
	validator *hierarchy.Validator
	registry  *fixers.Registry
	guard     *gitguard.Guard
	metrics   *telemetry.Metrics
	log       *logging.Logger
}

// New creates an engine. Nil metrics and logger are replaced with working
// defaults.
func New(cfg Config, metrics *telemetry.Metrics, log *logging.Logger) (*Engine, error) {
	if cfg.Root == "" {
		return nil, fmt.Errorf("engine: root is required")
	}
	if log == nil {
		log = logging.Nop()
	}
	if metrics == nil {
		metrics = telemetry.New()
	}
	defs := cfg.Definitions
	if defs == nil {
		defs = rules.DefaultDefinitions()
	}

	var verifier workflow.Verifier
	if len(cfg.VerifyCommand) > 0 {
		verifier = &workflow.ExecVerifier{Command: cfg.VerifyCommand}
	}
	ctrl, err := workflow.NewController(workflow.Config{
		Root:          cfg.Root,
		StagingDir:    cfg.StagingDir,
		VerifyPolicy:  cfg.VerifyPolicy,
		VerifyTimeout: cfg.VerifyTimeout,
		Verifier:      verifier,
	}, log)
	if err != nil {
		return nil, err
	}

	planner := propagate.NewPlanner(cfg.DescriptorName, defs.Naming.AggregatorSuffix)

	return &Engine{
		cfg:       cfg,
		scanner:   scanner.New(cfg.DescriptorName, log),
		rules:     rules.NewEngine(defs, cfg.DescriptorName, log),
		validator: hierarchy.NewValidator(cfg.DescriptorName, defs),
		registry:  fixers.DefaultRegistry(ctrl, planner),
		guard:     &gitguard.Guard{Force: cfg.Force},
		metrics:   metrics,
		log:       log,
	}, nil
}

// Registry exposes the fixer registry, for callers registering extra fixers.
func (e *Engine) Registry() *fixers.Registry {
	return e.registry
}

// Detect scans the tree and returns every violation found, ordered by
// descriptor path then rule id. Nothing is mutated.
func (e *Engine) Detect(ctx context.Context) (*scanner.Tree, []rules.Violation, error) {
	tree, err := e.scanner.Scan(ctx, e.cfg.Root)
	if err != nil {
		return nil, nil, err
	}
	e.metrics.RecordScan()

	violations := e.rules.Evaluate(ctx, tree.Root, tree.Nodes)
	violations = append(violations, e.validator.ValidateTree(tree.Root.DescriptorPath)...)

	sort.SliceStable(violations, func(i, j int) bool {
		if violations[i].Path != violations[j].Path {
			return violations[i].Path < violations[j].Path
		}
		return violations[i].RuleID < violations[j].RuleID
	})
	for _, v := range violations {
		e.metrics.RecordViolation(v.RuleID)
	}

	e.log.Info(ctx, "detection complete",
		zap.Int("modules", len(tree.Nodes)),
		zap.Int("violations", len(violations)))
	return tree, violations, nil
}

// Run detects violations and remediates every one a fixer accepts. Repairs
// of disjoint modules run concurrently; repairs that propagate across files
// run sequentially after them. The worktree guard runs first unless the run
// is a dry run.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	start := time.Now()

	if !e.cfg.DryRun {
		if err := e.guard.Check(e.cfg.Root); err != nil {
			return nil, err
		}
	}

	tree, violations, err := e.Detect(ctx)
	if err != nil {
		return nil, err
	}

	result := &Result{Violations: violations, Modules: len(tree.Nodes)}

	var local, crossFile []rules.Violation
	for _, v := range violations {
		if !e.selected(v.RuleID) {
			continue
		}
		// Role-suffix repairs rename identities across descriptors and
		// would race with any concurrent repair.
		if v.RuleID == rules.RuleRoleSuffix {
			crossFile = append(crossFile, v)
		} else {
			local = append(local, v)
		}
	}

	attempts := make([]Attempt, len(local)+len(crossFile))

	limit := e.cfg.Concurrency
	if limit < 1 {
		limit = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	// Local repairs are grouped per descriptor so attempts on the same
	// file serialize while distinct modules proceed in parallel.
	for _, group := range groupByPath(local) {
		offsets := group
		g.Go(func() error {
			for _, idx := range offsets {
				attempts[idx.slot] = e.remediate(gctx, tree, idx.violation)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if len(crossFile) > 0 {
		// Local repairs may have rewritten parent references; rename
		// propagation must see the tree as it stands now.
		if !e.cfg.DryRun && len(local) > 0 {
			tree, err = e.scanner.Scan(ctx, e.cfg.Root)
			if err != nil {
				return nil, err
			}
		}
		for i, v := range crossFile {
			attempts[len(local)+i] = e.remediate(ctx, tree, v)
		}
	}

	result.Attempts = attempts
	result.Duration = time.Since(start)
	e.metrics.ObserveRunDuration(result.Duration.Seconds())
	return result, nil
}

// indexed carries a violation with its slot in the attempts slice.
type indexed struct {
	slot      int
	violation rules.Violation
}

// groupByPath buckets violations by descriptor path, preserving detection
// order inside each bucket and across bucket creation.
func groupByPath(violations []rules.Violation) [][]indexed {
	order := make(map[string]int)
	var groups [][]indexed
	for i, v := range violations {
		gi, ok := order[v.Path]
		if !ok {
			gi = len(groups)
			order[v.Path] = gi
			groups = append(groups, nil)
		}
		groups[gi] = append(groups[gi], indexed{slot: i, violation: v})
	}
	return groups
}

// remediate resolves and runs the fixer candidates for one violation,
// advancing past Skipped outcomes and stopping at the first conclusive one.
func (e *Engine) remediate(ctx context.Context, tree *scanner.Tree, v rules.Violation) Attempt {
	ctx = logging.WithModule(logging.WithRule(ctx, v.RuleID), v.Module)

	req := fixers.Request{
		Violation: v,
		Node:      tree.ByIdentity[v.Module],
		Nodes:     tree.Nodes,
		DryRun:    e.cfg.DryRun,
	}

	attempt := Attempt{
		Violation: v,
		Outcome:   workflow.Skipped("no fixer registered for rule"),
	}
	for _, f := range e.registry.Resolve(v.RuleID) {
		if !f.CanFix(req) {
			continue
		}
		outcome, ledger := f.Fix(ctx, req)
		attempt.Fixer = f.Name()
		attempt.AttemptID = ledger.AttemptID
		attempt.Outcome = outcome

		if outcome.Status != workflow.StatusSkipped {
			break
		}
		// Skipped means precondition unmet; a later candidate may apply.
	}

	e.metrics.RecordAttempt(v.RuleID, string(attempt.Outcome.Status))
	e.log.Info(ctx, "remediation attempt",
		zap.String("fixer", attempt.Fixer),
		zap.String("status", string(attempt.Outcome.Status)),
		zap.Strings("files", attempt.Outcome.Files))
	return attempt
}

// selected reports whether remediation covers a rule id under the
// configured filter.
func (e *Engine) selected(ruleID string) bool {
	if len(e.cfg.Rules) == 0 {
		return true
	}
	for _, id := range e.cfg.Rules {
		if id == ruleID {
			return true
		}
	}
	return false
}
