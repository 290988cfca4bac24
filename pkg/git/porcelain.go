package git

import (
	"context"

	"github.com/spf13/afero"
)

// Operation is a multi-step git operation which may be left in progress in the working tree
type Operation string

// Operations git may leave in progress
const (
	NoOperation Operation = ""
	Rebasing    Operation = "rebase"
	CherryPick  Operation = "cherry-pick"
	Merging     Operation = "merge"
	Reverting   Operation = "revert"
)

// markers found in the git directory while an operation is in progress
var operationMarkers = []struct {
	path string
	op   Operation
}{
	{path: "rebase-merge", op: Rebasing},
	{path: "rebase-apply", op: Rebasing},
	{path: "CHERRY_PICK_HEAD", op: CherryPick},
	{path: "MERGE_HEAD", op: Merging},
	{path: "REVERT_HEAD", op: Reverting},
}

// nonInteractive lets rebase, merge and cherry-pick complete without opening an editor
var nonInteractive = []string{"GIT_EDITOR=true", "GIT_SEQUENCE_EDITOR=true", "GIT_MERGE_AUTOEDIT=no"}

// CurrentBranch returns the short name of the checked out branch
func (r *Repo) CurrentBranch(ctx context.Context) (string, error) {
	out, err := r.output(ctx, nil, "symbolic-ref", "--quiet", "--short", "HEAD")
	if err != nil {
		if ExitCode(err) == 1 {
			return "", ErrDetachedHead
		}
		return "", err
	}
	return out, nil
}

// IsClean tells if tracked files have no staged or unstaged changes. Untracked files are ignored.
func (r *Repo) IsClean(ctx context.Context) (bool, error) {
	out, err := r.output(ctx, nil, "status", "--porcelain", "--untracked-files=no")
	if err != nil {
		return false, err
	}
	return out == "", nil
}

// BranchExists tells if a local branch exists
func (r *Repo) BranchExists(ctx context.Context, name string) bool {
	return r.Exists(ctx, "refs/heads/"+name)
}

// CreateBranch creates a local branch at some revision
func (r *Repo) CreateBranch(ctx context.Context, name, rev string) error {
	_, err := r.run(ctx, nil, "branch", name, rev)
	return err
}

// DeleteBranch deletes a local branch, merged or not
func (r *Repo) DeleteBranch(ctx context.Context, name string) error {
	_, err := r.run(ctx, nil, "branch", "-D", name)
	return err
}

// Checkout switches to a branch
func (r *Repo) Checkout(ctx context.Context, branch string) error {
	_, err := r.run(ctx, nil, "checkout", "--quiet", branch)
	return err
}

// ResetHard makes the index and working tree match some revision
func (r *Repo) ResetHard(ctx context.Context, rev string) error {
	_, err := r.run(ctx, nil, "reset", "--quiet", "--hard", rev)
	return err
}

// UnmergedPaths lists the paths with unresolved conflicts in the index
func (r *Repo) UnmergedPaths(ctx context.Context) ([]string, error) {
	return r.lines(ctx, nil, "diff", "--name-only", "--diff-filter=U")
}

// InProgress detects a rebase, cherry-pick, merge or revert left in progress
func (r *Repo) InProgress() (Operation, error) {
	fs := afero.NewOsFs()
	for _, marker := range operationMarkers {
		found, err := afero.Exists(fs, r.GitPath(marker.path))
		if err != nil {
			return NoOperation, err
		}
		if found {
			return marker.op, nil
		}
	}
	return NoOperation, nil
}

// Rebase replays the commits of the current branch after upstream onto another commit.
// The returned error is set when git stops, e.g. on a conflict.
func (r *Repo) Rebase(ctx context.Context, onto, upstream string) error {
	_, err := r.run(ctx, &runOpts{env: nonInteractive}, "rebase", "--quiet", "--onto", onto, upstream)
	return err
}

// RebaseContinue resumes a rebase once conflicts are resolved
func (r *Repo) RebaseContinue(ctx context.Context) error {
	_, err := r.run(ctx, &runOpts{env: nonInteractive}, "rebase", "--continue")
	return err
}

// RebaseAbort cancels a rebase in progress
func (r *Repo) RebaseAbort(ctx context.Context) error {
	_, err := r.run(ctx, nil, "rebase", "--abort")
	return err
}

// CherryPickNoCommit applies the changes of a commit to the index and working tree, without committing
func (r *Repo) CherryPickNoCommit(ctx context.Context, rev string) error {
	_, err := r.run(ctx, &runOpts{env: nonInteractive}, "cherry-pick", "--no-commit", rev)
	return err
}

// CherryPickQuit forgets about a cherry-pick in progress, keeping the index and working tree
func (r *Repo) CherryPickQuit(ctx context.Context) error {
	_, err := r.run(ctx, nil, "cherry-pick", "--quit")
	return err
}

// CherryPickAbort cancels a cherry-pick in progress
func (r *Repo) CherryPickAbort(ctx context.Context) error {
	_, err := r.run(ctx, nil, "cherry-pick", "--abort")
	return err
}

// Add stages files from the working tree
func (r *Repo) Add(ctx context.Context, paths ...string) error {
	_, err := r.run(ctx, nil, append([]string{"add", "--"}, paths...)...)
	return err
}

// Fetch downloads refs from a remote
func (r *Repo) Fetch(ctx context.Context, remote string, refspecs ...string) error {
	_, err := r.run(ctx, nil, append([]string{"fetch", "--quiet", remote}, refspecs...)...)
	return err
}

// MergeNoFF merges a branch into the current one, always creating a merge commit
func (r *Repo) MergeNoFF(ctx context.Context, branch, message string) error {
	_, err := r.run(ctx, &runOpts{env: nonInteractive}, "merge", "--quiet", "--no-ff", "--no-edit", "-m", message, branch)
	return err
}
