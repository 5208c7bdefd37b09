// Package gitguard gates mutations on version-control state: a dirty
// worktree under the project root blocks remediation unless explicitly
// overridden, so every applied fix stays separately reviewable.
package gitguard

import (
	"errors"
	"fmt"
	"strings"

	git "github.com/go-git/go-git/v5"
)

// ErrDirtyWorktree indicates uncommitted changes under the project root.
var ErrDirtyWorktree = errors.New("worktree has uncommitted changes")

// Guard checks the repository containing a project root.
type Guard struct {
	// Force skips the dirty-worktree check.
	Force bool
}

// Check reports whether remediation may mutate the tree at root.
//
// A root outside any repository passes: version control is recommended, not
// required. A dirty worktree fails with ErrDirtyWorktree naming up to five
// changed files.
func (g *Guard) Check(root string) error {
	if g.Force {
		return nil
	}

	repo, err := git.PlainOpenWithOptions(root, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return nil
		}
		return fmt.Errorf("opening repository at %s: %w", root, err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("reading worktree: %w", err)
	}
	status, err := wt.Status()
	if err != nil {
		return fmt.Errorf("reading worktree status: %w", err)
	}
	if status.IsClean() {
		return nil
	}

	var changed []string
	for file := range status {
		changed = append(changed, file)
		if len(changed) == 5 {
			changed = append(changed, "...")
			break
		}
	}
	return fmt.Errorf("%w: %s; commit or stash first, or pass --force", ErrDirtyWorktree, strings.Join(changed, ", "))
}
