package workflow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pmezard/go-difflib/difflib"
	"go.uber.org/zap"

	"github.com/buildforge/modguard/internal/logging"
)

// DefaultStagingDir is the backup area under the project root, shared
// across a batch run and fully disposable once all attempts commit.
const DefaultStagingDir = ".modguard/backup"

// backupSuffix is appended to each staged snapshot's relative path.
const backupSuffix = ".bak"

// ErrTargetOutsideRoot indicates a target path escaping the project root.
var ErrTargetOutsideRoot = errors.New("target path outside project root")

// Target is one file of a mutation, with a pure content producer. Produce
// receives the current content (empty when the file does not exist) and
// returns the desired content; returning the input unchanged marks the
// target as already compliant.
type Target struct {
	// Path to the target file, absolute or relative to the project root.
	Path string

	// Produce computes the desired content.
	Produce func(current string, exists bool) (string, error)
}

// Mutation is one guarded multi-file change.
type Mutation struct {
	// Description names the change for logs.
	Description string

	Targets []Target

	// Verifier optionally checks the mutated subtree before commit.
	Verifier Verifier

	// VerifyDir scopes verification; empty means the narrowest common
	// directory of the changed targets.
	VerifyDir string

	// DryRun computes diffs without writing anything.
	DryRun bool
}

// Config configures a Controller.
type Config struct {
	// Root is the project root all target paths resolve against.
	Root string

	// StagingDir is the backup area, relative to Root. Defaults to
	// DefaultStagingDir.
	StagingDir string

	// VerifyPolicy decides behavior when no verification tool is runnable.
	VerifyPolicy Policy

	// VerifyTimeout bounds one verification run. Zero means no timeout.
	VerifyTimeout time.Duration

	// Verifier applies to every mutation that does not carry its own.
	Verifier Verifier
}

// Controller performs guarded mutations. One Run is one synchronous
// transaction with an attempt-local ledger; independent Runs may execute
// concurrently provided their target sets do not overlap.
type Controller struct {
	root     string
	staging  string
	policy   Policy
	timeout  time.Duration
	verifier Verifier
	log      *logging.Logger
}

// NewController creates a workflow controller.
func NewController(cfg Config, log *logging.Logger) (*Controller, error) {
	if cfg.Root == "" {
		return nil, errors.New("workflow: root is required")
	}
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("resolving root: %w", err)
	}
	staging := cfg.StagingDir
	if staging == "" {
		staging = DefaultStagingDir
	}
	policy := cfg.VerifyPolicy
	if policy == "" {
		policy = PolicyDegrade
	}
	if !policy.Valid() {
		return nil, fmt.Errorf("workflow: invalid verify policy %q", cfg.VerifyPolicy)
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Controller{
		root:     root,
		staging:  filepath.Join(root, staging),
		policy:   policy,
		timeout:  cfg.VerifyTimeout,
		verifier: cfg.Verifier,
		log:      log,
	}, nil
}

// Root returns the absolute project root.
func (c *Controller) Root() string {
	return c.root
}

// plannedFile is the resolved state of one target during a Run.
type plannedFile struct {
	abs     string
	rel     string
	exists  bool
	current string
	next    string
	changed bool
	staged  string // staged snapshot path, set once backed up
	written bool
}

// Run executes one guarded mutation and returns its outcome and ledger.
//
// The original tree state is always fully restorable: a partially-applied
// mutation never persists. Low-level I/O errors become a Failed outcome
// after rollback; they never escape.
func (c *Controller) Run(ctx context.Context, m Mutation) (Outcome, *Ledger) {
	ledger := NewLedger()
	ctx = logging.WithAttemptID(ctx, ledger.AttemptID)

	if len(m.Targets) == 0 {
		return Skipped("no target files"), ledger
	}
	if m.Verifier == nil {
		m.Verifier = c.verifier
	}

	plans, err := c.plan(m)
	if err != nil {
		// Nothing has been written; planning errors need no rollback.
		return Failedf("computing proposed change: %v", err), ledger
	}

	var changed []*plannedFile
	for _, p := range plans {
		if p.changed {
			changed = append(changed, p)
		}
	}
	if len(changed) == 0 {
		return Skipped("all targets already compliant"), ledger
	}

	files, diffs := summarize(changed)

	if m.DryRun {
		return DryRun(files, diffs), ledger
	}

	// Strict policy refuses to mutate unverified, before any mutation.
	if m.Verifier != nil && !m.Verifier.Runnable(c.verifyDir(m, changed)) {
		if c.policy == PolicyStrict {
			return Skipped(fmt.Sprintf("verification tool %q unavailable and verify policy is strict", m.Verifier.Name())), ledger
		}
		c.log.Warn(ctx, "verification tool unavailable, committing unverified",
			zap.String("verifier", m.Verifier.Name()),
			zap.String("mutation", m.Description))
		m.Verifier = nil
	}

	if err := c.backup(changed, ledger); err != nil {
		c.rollback(ctx, changed, ledger)
		return Failedf("backing up targets: %v", err), ledger
	}

	if err := c.write(ctx, changed, ledger); err != nil {
		c.rollback(ctx, changed, ledger)
		return Failedf("writing targets: %v", err), ledger
	}

	if m.Verifier != nil {
		if err := c.verify(ctx, m, changed); err != nil {
			c.rollback(ctx, changed, ledger)
			return Failedf("verification failed: %v", err), ledger
		}
	}

	c.commit(changed, ledger)
	c.log.Info(ctx, "mutation committed",
		zap.String("mutation", m.Description),
		zap.Strings("files", files))
	return Fixed(files, diffs), ledger
}

// plan resolves targets, reads current content, and computes proposed
// content. Pure with respect to the tree: nothing is written.
func (c *Controller) plan(m Mutation) ([]*plannedFile, error) {
	plans := make([]*plannedFile, 0, len(m.Targets))
	for _, t := range m.Targets {
		abs := t.Path
		if !filepath.IsAbs(abs) {
			abs = filepath.Join(c.root, abs)
		}
		abs = filepath.Clean(abs)
		rel, err := filepath.Rel(c.root, abs)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return nil, fmt.Errorf("%w: %s", ErrTargetOutsideRoot, t.Path)
		}

		p := &plannedFile{abs: abs, rel: rel}
		data, err := os.ReadFile(abs)
		switch {
		case err == nil:
			p.exists = true
			p.current = string(data)
		case os.IsNotExist(err):
			p.exists = false
		default:
			return nil, fmt.Errorf("reading %s: %w", rel, err)
		}

		next, err := t.Produce(p.current, p.exists)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", rel, err)
		}
		p.next = next
		p.changed = !p.exists || p.next != p.current
		plans = append(plans, p)
	}
	return plans, nil
}

// backup snapshots every pre-existing changed target into the staging area,
// keyed by its full relative path.
func (c *Controller) backup(changed []*plannedFile, ledger *Ledger) error {
	for _, p := range changed {
		if !p.exists {
			continue
		}
		staged := filepath.Join(c.staging, p.rel+backupSuffix)
		if err := os.MkdirAll(filepath.Dir(staged), 0700); err != nil {
			return fmt.Errorf("creating staging dir for %s: %w", p.rel, err)
		}
		if err := os.WriteFile(staged, []byte(p.current), 0600); err != nil {
			return fmt.Errorf("staging %s: %w", p.rel, err)
		}
		p.staged = staged
		ledger.Append(OpBackup, p.rel)
	}
	return nil
}

// write applies the proposed content. Cancellation between writes is
// injected as a failure so the caller rolls back; it never terminates
// abruptly mid-mutation.
func (c *Controller) write(ctx context.Context, changed []*plannedFile, ledger *Ledger) error {
	for _, p := range changed {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("cancelled: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(p.abs), 0755); err != nil {
			return fmt.Errorf("creating directory for %s: %w", p.rel, err)
		}
		if err := os.WriteFile(p.abs, []byte(p.next), 0644); err != nil {
			return fmt.Errorf("writing %s: %w", p.rel, err)
		}
		p.written = true
		ledger.Append(OpWrite, p.rel)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("cancelled: %w", err)
	}
	return nil
}

// verify runs the mutation's verifier under the configured timeout.
func (c *Controller) verify(ctx context.Context, m Mutation, changed []*plannedFile) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	return m.Verifier.Verify(ctx, c.verifyDir(m, changed))
}

// commit deletes staged snapshots; this is the commit point.
func (c *Controller) commit(changed []*plannedFile, ledger *Ledger) {
	for _, p := range changed {
		if p.staged == "" {
			continue
		}
		if err := os.Remove(p.staged); err != nil {
			// The backup is stale but the mutation stands; leftover
			// staging is disposable by design.
			c.log.Warn(context.Background(), "removing staged backup", zap.String("file", p.rel), zap.Error(err))
		}
		ledger.Append(OpCleanup, p.rel)
	}
}

// rollback restores every written target to its pre-attempt state and
// removes staged snapshots. Best-effort per file; it never panics and
// always completes the pass.
func (c *Controller) rollback(ctx context.Context, changed []*plannedFile, ledger *Ledger) {
	for _, p := range changed {
		if !p.written {
			continue
		}
		var err error
		if p.exists {
			err = os.WriteFile(p.abs, []byte(p.current), 0644)
		} else {
			err = os.Remove(p.abs)
		}
		if err != nil {
			c.log.Error(ctx, "restoring target during rollback", zap.String("file", p.rel), zap.Error(err))
		}
		ledger.Append(OpRestore, p.rel)
	}
	for _, p := range changed {
		if p.staged == "" {
			continue
		}
		if err := os.Remove(p.staged); err != nil {
			c.log.Warn(ctx, "removing staged backup during rollback", zap.String("file", p.rel), zap.Error(err))
		}
		ledger.Append(OpDeleteBackup, p.rel)
	}
	ledger.Append(OpRollback, "")
}

// verifyDir returns the verification scope: the explicit dir when given,
// otherwise the narrowest common directory of the changed targets.
func (c *Controller) verifyDir(m Mutation, changed []*plannedFile) string {
	if m.VerifyDir != "" {
		if filepath.IsAbs(m.VerifyDir) {
			return m.VerifyDir
		}
		return filepath.Join(c.root, m.VerifyDir)
	}
	common := ""
	for _, p := range changed {
		dir := filepath.Dir(p.abs)
		if common == "" {
			common = dir
			continue
		}
		for !strings.HasPrefix(dir+string(filepath.Separator), common+string(filepath.Separator)) {
			common = filepath.Dir(common)
		}
	}
	if common == "" {
		return c.root
	}
	return common
}

// summarize lists changed files and their diffs, ordered as planned.
func summarize(changed []*plannedFile) ([]string, []FileDiff) {
	files := make([]string, 0, len(changed))
	diffs := make([]FileDiff, 0, len(changed))
	for _, p := range changed {
		files = append(files, p.rel)
		diffs = append(diffs, FileDiff{
			Path:    p.rel,
			Diff:    unifiedDiff(p.rel, p.current, p.next),
			Created: !p.exists,
		})
	}
	return files, diffs
}

// unifiedDiff renders a unified diff between two contents.
func unifiedDiff(path, before, after string) string {
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(before),
		B:        difflib.SplitLines(after),
		FromFile: "a/" + path,
		ToFile:   "b/" + path,
		Context:  3,
	})
	if err != nil {
		return ""
	}
	return diff
}
