package workflow

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Op is a ledger operation kind.
type Op string

const (
	// OpBackup: a pre-existing target was snapshotted to staging.
	OpBackup Op = "backup"

	// OpWrite: new content was written to a target.
	OpWrite Op = "write"

	// OpRestore: a target's pre-attempt state was restored during rollback.
	OpRestore Op = "restore"

	// OpDeleteBackup: a staged snapshot was removed on the rollback path.
	OpDeleteBackup Op = "delete_backup"

	// OpCleanup: a staged snapshot was removed at commit.
	OpCleanup Op = "cleanup"

	// OpRollback: the rollback path completed.
	OpRollback Op = "rollback"
)

// Entry is one ledger record.
type Entry struct {
	Op   Op        `json:"op"`
	File string    `json:"file,omitempty"`
	At   time.Time `json:"at"`
}

// Ledger is the ordered, append-only record of one remediation attempt.
// It proves the transactional invariants: every Write is preceded by a
// Backup of the same file, a committed attempt holds a Cleanup per Backup
// and no Rollback, a failed attempt holds a Restore per Write and no
// Cleanup.
//
// The ledger is attempt-local. Concurrent attempts each hold their own.
type Ledger struct {
	// AttemptID uniquely identifies the attempt this ledger belongs to.
	AttemptID string

	mu      sync.Mutex
	entries []Entry
}

// NewLedger creates an empty ledger with a fresh attempt id.
func NewLedger() *Ledger {
	return &Ledger{AttemptID: uuid.NewString()}
}

// Append records an operation on a file.
func (l *Ledger) Append(op Op, file string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, Entry{Op: op, File: file, At: time.Now()})
}

// Entries returns a copy of the recorded entries in order.
func (l *Ledger) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Count returns the number of entries with the given op.
func (l *Ledger) Count(op Op) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.entries {
		if e.Op == op {
			n++
		}
	}
	return n
}

// Files returns the files recorded with the given op, in order.
func (l *Ledger) Files(op Op) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	for _, e := range l.entries {
		if e.Op == op && e.File != "" {
			out = append(out, e.File)
		}
	}
	return out
}
