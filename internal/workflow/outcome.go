// Package workflow executes guarded multi-file mutations: every remediation
// attempt is wrapped in backup, write, optional verification, and
// commit-or-rollback, recorded in an append-only ledger.
package workflow

import "fmt"

// Status is the terminal state of one remediation attempt.
type Status string

const (
	// StatusFixed: the mutation was applied and committed.
	StatusFixed Status = "fixed"

	// StatusSkipped: a precondition was unmet and nothing was mutated.
	// Not an error.
	StatusSkipped Status = "skipped"

	// StatusFailed: an attempted mutation could not complete safely.
	// Always paired with a completed rollback.
	StatusFailed Status = "failed"

	// StatusNotFixable: the violation needs a decision no rule can safely
	// automate; guidance is emitted instead of a mutation.
	StatusNotFixable Status = "not_fixable"

	// StatusDryRun: diffs were computed, nothing was written.
	StatusDryRun Status = "dry_run"
)

// FileDiff is the unified diff of one target file.
type FileDiff struct {
	// Path is project-relative.
	Path string `json:"path"`

	// Diff is the unified diff between current and proposed content.
	Diff string `json:"diff"`

	// Created marks a file that did not exist before the attempt.
	Created bool `json:"created,omitempty"`
}

// Outcome is the result of exactly one remediation attempt.
type Outcome struct {
	Status Status `json:"status"`

	// Reason explains Skipped and Failed outcomes.
	Reason string `json:"reason,omitempty"`

	// Guidance explains NotFixable outcomes.
	Guidance string `json:"guidance,omitempty"`

	// Files lists modified (or would-be modified) project-relative paths.
	Files []string `json:"files,omitempty"`

	// Diffs carries per-file diffs, identical in shape for live and dry
	// runs.
	Diffs []FileDiff `json:"diffs,omitempty"`
}

// Fixed builds a committed outcome.
func Fixed(files []string, diffs []FileDiff) Outcome {
	return Outcome{Status: StatusFixed, Files: files, Diffs: diffs}
}

// Skipped builds a no-mutation outcome.
func Skipped(reason string) Outcome {
	return Outcome{Status: StatusSkipped, Reason: reason}
}

// Failed builds a rolled-back outcome.
func Failed(reason string) Outcome {
	return Outcome{Status: StatusFailed, Reason: reason}
}

// Failedf builds a rolled-back outcome with a formatted reason.
func Failedf(format string, args ...any) Outcome {
	return Outcome{Status: StatusFailed, Reason: fmt.Sprintf(format, args...)}
}

// NotFixable builds a guidance-only outcome.
func NotFixable(guidance string) Outcome {
	return Outcome{Status: StatusNotFixable, Guidance: guidance}
}

// DryRun builds a preview outcome carrying the same diffs a live run would
// produce.
func DryRun(files []string, diffs []FileDiff) Outcome {
	return Outcome{Status: StatusDryRun, Files: files, Diffs: diffs}
}
