package workflow

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeVerifier struct {
	name     string
	runnable bool
	err      error
	gotDir   string
	calls    int
}

func (f *fakeVerifier) Name() string       { return f.name }
func (f *fakeVerifier) Runnable(string) bool { return f.runnable }
func (f *fakeVerifier) Verify(_ context.Context, dir string) error {
	f.calls++
	f.gotDir = dir
	return f.err
}

func newTestController(t *testing.T, root string) *Controller {
	t.Helper()
	c, err := NewController(Config{Root: root}, nil)
	require.NoError(t, err)
	return c
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func setContent(next string) func(string, bool) (string, error) {
	return func(string, bool) (string, error) { return next, nil }
}

func TestRun_FixedLedgerInvariants(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a/pom.xml"), "old-a")
	writeFile(t, filepath.Join(root, "b/pom.xml"), "old-b")

	c := newTestController(t, root)
	outcome, ledger := c.Run(context.Background(), Mutation{
		Description: "two-file edit",
		Targets: []Target{
			{Path: "a/pom.xml", Produce: setContent("new-a")},
			{Path: "b/pom.xml", Produce: setContent("new-b")},
		},
	})

	require.Equal(t, StatusFixed, outcome.Status)
	assert.Equal(t, []string{filepath.Join("a", "pom.xml"), filepath.Join("b", "pom.xml")}, outcome.Files)
	assert.Len(t, outcome.Diffs, 2)
	assert.Contains(t, outcome.Diffs[0].Diff, "-old-a")
	assert.Contains(t, outcome.Diffs[0].Diff, "+new-a")

	// Every modified pre-existing file has a Backup and a matching Cleanup;
	// zero Rollback entries.
	assert.Equal(t, 2, ledger.Count(OpBackup))
	assert.Equal(t, 2, ledger.Count(OpWrite))
	assert.Equal(t, 2, ledger.Count(OpCleanup))
	assert.Zero(t, ledger.Count(OpRollback))
	assert.Zero(t, ledger.Count(OpRestore))
	assert.Equal(t, ledger.Files(OpBackup), ledger.Files(OpCleanup))

	assert.Equal(t, "new-a", readFile(t, filepath.Join(root, "a/pom.xml")))
	assert.Equal(t, "new-b", readFile(t, filepath.Join(root, "b/pom.xml")))

	// Staged snapshots are gone after commit.
	_, err := os.Stat(filepath.Join(root, DefaultStagingDir, "a", "pom.xml.bak"))
	assert.True(t, os.IsNotExist(err))
}

func TestRun_Idempotence(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "pom.xml"), "old")

	c := newTestController(t, root)
	mutation := Mutation{Targets: []Target{{Path: "pom.xml", Produce: setContent("new")}}}

	first, _ := c.Run(context.Background(), mutation)
	require.Equal(t, StatusFixed, first.Status)

	second, _ := c.Run(context.Background(), mutation)
	assert.Equal(t, StatusSkipped, second.Status)
	assert.Equal(t, "all targets already compliant", second.Reason)
}

func TestRun_DryRunParity(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "pom.xml")
	writeFile(t, path, "old")

	c := newTestController(t, root)
	target := Target{Path: "pom.xml", Produce: setContent("new")}

	dry, dryLedger := c.Run(context.Background(), Mutation{Targets: []Target{target}, DryRun: true})
	require.Equal(t, StatusDryRun, dry.Status)
	assert.Equal(t, "old", readFile(t, path), "dry run must not write")
	assert.Empty(t, dryLedger.Entries())

	live, _ := c.Run(context.Background(), Mutation{Targets: []Target{target}})
	require.Equal(t, StatusFixed, live.Status)

	// Preview and apply produce identical diffs.
	assert.Equal(t, live.Diffs, dry.Diffs)
	assert.Equal(t, live.Files, dry.Files)
}

func TestRun_VerificationFailureRollsBack(t *testing.T) {
	root := t.TempDir()
	existing := filepath.Join(root, "parent/pom.xml")
	created := filepath.Join(root, "parent/extra/pom.xml")
	writeFile(t, existing, "original bytes")

	verifier := &fakeVerifier{name: "mvn validate", runnable: true, err: errors.New("BUILD FAILURE")}

	c := newTestController(t, root)
	outcome, ledger := c.Run(context.Background(), Mutation{
		Targets: []Target{
			{Path: "parent/pom.xml", Produce: setContent("mutated")},
			{Path: "parent/extra/pom.xml", Produce: setContent("brand new")},
		},
		Verifier: verifier,
	})

	require.Equal(t, StatusFailed, outcome.Status)
	assert.Contains(t, outcome.Reason, "BUILD FAILURE")

	// Post-attempt content equals pre-attempt content byte-for-byte.
	assert.Equal(t, "original bytes", readFile(t, existing))
	_, err := os.Stat(created)
	assert.True(t, os.IsNotExist(err), "created file must be deleted on rollback")

	// Every file with a Write entry has a matching Restore; zero Cleanup.
	assert.Equal(t, ledger.Files(OpWrite), ledger.Files(OpRestore))
	assert.Zero(t, ledger.Count(OpCleanup))
	assert.Equal(t, 1, ledger.Count(OpRollback))
}

func TestRun_VerifierScopedToNarrowestSubtree(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "platform/a/pom.xml"), "a")
	writeFile(t, filepath.Join(root, "platform/b/pom.xml"), "b")

	verifier := &fakeVerifier{name: "check", runnable: true}
	c := newTestController(t, root)
	outcome, _ := c.Run(context.Background(), Mutation{
		Targets: []Target{
			{Path: "platform/a/pom.xml", Produce: setContent("a2")},
			{Path: "platform/b/pom.xml", Produce: setContent("b2")},
		},
		Verifier: verifier,
	})

	require.Equal(t, StatusFixed, outcome.Status)
	assert.Equal(t, 1, verifier.calls)
	assert.Equal(t, filepath.Join(root, "platform"), verifier.gotDir)
}

func TestRun_ProducerErrorFailsWithoutMutation(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "pom.xml")
	writeFile(t, path, "old")

	c := newTestController(t, root)
	outcome, ledger := c.Run(context.Background(), Mutation{
		Targets: []Target{{
			Path:    "pom.xml",
			Produce: func(string, bool) (string, error) { return "", errors.New("malformed descriptor") },
		}},
	})

	require.Equal(t, StatusFailed, outcome.Status)
	assert.Contains(t, outcome.Reason, "malformed descriptor")
	assert.Equal(t, "old", readFile(t, path))
	assert.Empty(t, ledger.Files(OpWrite))
}

func TestRun_TargetOutsideRoot(t *testing.T) {
	c := newTestController(t, t.TempDir())
	outcome, _ := c.Run(context.Background(), Mutation{
		Targets: []Target{{Path: "../escape.xml", Produce: setContent("x")}},
	})
	require.Equal(t, StatusFailed, outcome.Status)
	assert.Contains(t, outcome.Reason, "outside project root")
}

func TestRun_StrictPolicySkipsWhenVerifierUnavailable(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "pom.xml")
	writeFile(t, path, "old")

	c, err := NewController(Config{Root: root, VerifyPolicy: PolicyStrict}, nil)
	require.NoError(t, err)

	outcome, ledger := c.Run(context.Background(), Mutation{
		Targets:  []Target{{Path: "pom.xml", Produce: setContent("new")}},
		Verifier: &fakeVerifier{name: "mvn", runnable: false},
	})

	require.Equal(t, StatusSkipped, outcome.Status)
	assert.Contains(t, outcome.Reason, "strict")
	assert.Equal(t, "old", readFile(t, path))
	assert.Empty(t, ledger.Entries())
}

func TestRun_DegradePolicyCommitsUnverified(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "pom.xml"), "old")

	c := newTestController(t, root) // degrade is the default
	verifier := &fakeVerifier{name: "mvn", runnable: false}

	outcome, _ := c.Run(context.Background(), Mutation{
		Targets:  []Target{{Path: "pom.xml", Produce: setContent("new")}},
		Verifier: verifier,
	})

	require.Equal(t, StatusFixed, outcome.Status)
	assert.Zero(t, verifier.calls)
}

func TestRun_CancelledContextRollsBack(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "pom.xml")
	writeFile(t, path, "old")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := newTestController(t, root)
	outcome, _ := c.Run(ctx, Mutation{
		Targets: []Target{{Path: "pom.xml", Produce: setContent("new")}},
	})

	require.Equal(t, StatusFailed, outcome.Status)
	assert.Contains(t, outcome.Reason, "cancelled")
	assert.Equal(t, "old", readFile(t, path))
}

func TestRun_NoTargets(t *testing.T) {
	c := newTestController(t, t.TempDir())
	outcome, _ := c.Run(context.Background(), Mutation{})
	assert.Equal(t, StatusSkipped, outcome.Status)
}

func TestNewController_Validation(t *testing.T) {
	_, err := NewController(Config{}, nil)
	assert.Error(t, err)

	_, err = NewController(Config{Root: t.TempDir(), VerifyPolicy: Policy("lenient")}, nil)
	assert.Error(t, err)
}

func TestExecVerifier(t *testing.T) {
	v := &ExecVerifier{Command: []string{"true"}}
	assert.True(t, v.Runnable(""))
	assert.NoError(t, v.Verify(context.Background(), t.TempDir()))

	v = &ExecVerifier{Command: []string{"false"}}
	assert.Error(t, v.Verify(context.Background(), t.TempDir()))

	v = &ExecVerifier{Command: []string{"definitely-not-a-real-tool-xyz"}}
	assert.False(t, v.Runnable(""))
}

func TestExecVerifier_Timeout(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "pom.xml"), "old")

	c, err := NewController(Config{Root: root, VerifyTimeout: 50 * time.Millisecond}, nil)
	require.NoError(t, err)

	start := time.Now()
	outcome, _ := c.Run(context.Background(), Mutation{
		Targets:  []Target{{Path: "pom.xml", Produce: setContent("new")}},
		Verifier: &ExecVerifier{Command: []string{"sleep", "5"}},
	})

	require.Equal(t, StatusFailed, outcome.Status)
	assert.Less(t, time.Since(start), 3*time.Second)
	assert.Equal(t, "old", readFile(t, filepath.Join(root, "pom.xml")))
}

func TestLedger(t *testing.T) {
	l := NewLedger()
	assert.NotEmpty(t, l.AttemptID)

	l.Append(OpBackup, "a")
	l.Append(OpWrite, "a")
	l.Append(OpCleanup, "a")

	entries := l.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, OpBackup, entries[0].Op)
	assert.False(t, entries[1].At.Before(entries[0].At))
	assert.Equal(t, 1, l.Count(OpWrite))
	assert.Equal(t, []string{"a"}, l.Files(OpWrite))

	// Distinct attempts get distinct ids.
	assert.NotEqual(t, l.AttemptID, NewLedger().AttemptID)
}

func TestUnifiedDiff(t *testing.T) {
	diff := unifiedDiff("pom.xml", "line1\nline2\n", "line1\nline2-changed\n")
	assert.True(t, strings.Contains(diff, "-line2"))
	assert.True(t, strings.Contains(diff, "+line2-changed"))
	assert.Contains(t, diff, "a/pom.xml")
}
