// Package report renders detection and remediation results for terminals
// and machine consumers.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/fatih/color"

	"github.com/buildforge/modguard/internal/engine"
	"github.com/buildforge/modguard/internal/rules"
	"github.com/buildforge/modguard/internal/workflow"
)

// Format selects the output rendering.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Valid reports whether f is a known format.
func (f Format) Valid() bool {
	return f == FormatText || f == FormatJSON
}

var (
	severityColors = map[rules.Severity]*color.Color{
		rules.SeverityInfo:    color.New(color.FgCyan),
		rules.SeverityWarning: color.New(color.FgYellow),
		rules.SeverityError:   color.New(color.FgRed),
	}

	statusColors = map[workflow.Status]*color.Color{
		workflow.StatusFixed:      color.New(color.FgGreen),
		workflow.StatusSkipped:    color.New(color.FgYellow),
		workflow.StatusFailed:     color.New(color.FgRed),
		workflow.StatusNotFixable: color.New(color.FgMagenta),
		workflow.StatusDryRun:     color.New(color.FgCyan),
	}
)

// Reporter writes reports to one destination.
type Reporter struct {
	out    io.Writer
	format Format

	// ShowDiffs includes per-file diffs in text output.
	ShowDiffs bool
}

// New creates a reporter. An invalid format falls back to text.
func New(out io.Writer, format Format) *Reporter {
	if !format.Valid() {
		format = FormatText
	}
	return &Reporter{out: out, format: format}
}

// Violations renders a detection-only report.
func (r *Reporter) Violations(violations []rules.Violation) error {
	if r.format == FormatJSON {
		return r.writeJSON(struct {
			Violations []rules.Violation `json:"violations"`
		}{Violations: violations})
	}

	if len(violations) == 0 {
		fmt.Fprintln(r.out, "no violations found")
		return nil
	}
	for _, v := range violations {
		r.violationLine(v)
	}
	fmt.Fprintf(r.out, "\n%d violation(s)\n", len(violations))
	return nil
}

// Result renders a full remediation report.
func (r *Reporter) Result(result *engine.Result) error {
	if r.format == FormatJSON {
		return r.writeJSON(result)
	}

	if len(result.Violations) == 0 {
		fmt.Fprintf(r.out, "no violations found across %d module(s)\n", result.Modules)
		return nil
	}

	for _, a := range result.Attempts {
		r.violationLine(a.Violation)
		c, ok := statusColors[a.Outcome.Status]
		if !ok {
			c = color.New()
		}
		fmt.Fprintf(r.out, "    -> %s", c.Sprint(string(a.Outcome.Status)))
		switch {
		case a.Outcome.Reason != "":
			fmt.Fprintf(r.out, ": %s", a.Outcome.Reason)
		case a.Outcome.Guidance != "":
			fmt.Fprintf(r.out, ": %s", a.Outcome.Guidance)
		case len(a.Outcome.Files) > 0:
			fmt.Fprintf(r.out, " (%d file(s))", len(a.Outcome.Files))
		}
		fmt.Fprintln(r.out)

		if r.ShowDiffs {
			for _, d := range a.Outcome.Diffs {
				fmt.Fprintln(r.out, d.Diff)
			}
		}
	}

	fmt.Fprintf(r.out, "\n%d module(s), %d violation(s)", result.Modules, len(result.Violations))
	for _, status := range orderedStatuses(result) {
		fmt.Fprintf(r.out, ", %d %s", result.ByStatus()[status], status)
	}
	fmt.Fprintln(r.out)
	return nil
}

func (r *Reporter) violationLine(v rules.Violation) {
	c, ok := severityColors[v.Severity]
	if !ok {
		c = color.New()
	}
	fmt.Fprintf(r.out, "%s %s [%s] %s\n", c.Sprintf("%-7s", string(v.Severity)), v.Path, v.RuleID, v.Message)
}

func (r *Reporter) writeJSON(v any) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func orderedStatuses(result *engine.Result) []workflow.Status {
	counts := result.ByStatus()
	out := make([]workflow.Status, 0, len(counts))
	for status := range counts {
		out = append(out, status)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
