package workflow

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Policy decides what happens when a mutation requests verification but no
// runnable verification tool is available.
type Policy string

const (
	// PolicyDegrade commits unverified with a warning. Matches the
	// historical behavior.
	PolicyDegrade Policy = "degrade"

	// PolicyStrict refuses to mutate without verification; the attempt is
	// skipped with an explanatory reason.
	PolicyStrict Policy = "strict"
)

// Valid reports whether p is a known policy.
func (p Policy) Valid() bool {
	return p == PolicyDegrade || p == PolicyStrict
}

// Verifier checks that a mutated subtree is still sound, typically by
// invoking an out-of-process build.
type Verifier interface {
	// Name identifies the verifier in logs and reasons.
	Name() string

	// Runnable reports whether the verifier can execute for the given
	// directory (tool present on PATH, etc).
	Runnable(dir string) bool

	// Verify runs the check scoped to dir. The context carries the
	// caller-supplied timeout; exceeding it is a verification failure.
	Verify(ctx context.Context, dir string) error
}

// ExecVerifier runs an external command in the affected subtree. A non-zero
// exit is a verification failure carrying the command output.
type ExecVerifier struct {
	// Command is the argv of the verification tool, e.g.
	// ["mvn", "-q", "validate"].
	Command []string
}

// Name returns the command line.
func (v *ExecVerifier) Name() string {
	return strings.Join(v.Command, " ")
}

// Runnable reports whether the command's binary resolves on PATH.
func (v *ExecVerifier) Runnable(string) bool {
	if len(v.Command) == 0 {
		return false
	}
	_, err := exec.LookPath(v.Command[0])
	return err == nil
}

// Verify executes the command with dir as working directory.
func (v *ExecVerifier) Verify(ctx context.Context, dir string) error {
	if len(v.Command) == 0 {
		return fmt.Errorf("no verification command configured")
	}
	cmd := exec.CommandContext(ctx, v.Command[0], v.Command[1:]...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", v.Name(), err, tail(string(out), 2048))
	}
	return nil
}

// tail returns the last max bytes of s; verification output can be huge and
// only the end carries the failure.
func tail(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	return "..." + s[len(s)-max:]
}
