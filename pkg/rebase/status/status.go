// Package status declares the errors returned by rebase and merge runs.
//
// Conflicts are resumable: the run is paused, its resume token is saved, and a later
// invocation with --continue or --abort picks it up. All other errors are fatal and leave
// persistent branch refs unchanged.
package status

import "github.com/fedora-flatpak/flathub-filter/pkg/errors"

var (
	// ErrNonLinearHistory indicates a commit with more than one parent in the range to replay
	ErrNonLinearHistory = errors.New("non-linear history: cannot replay merge commits")

	// ErrDirtyWorkingTree indicates uncommitted changes to tracked files
	ErrDirtyWorkingTree = errors.New("working tree has uncommitted changes")

	// ErrBranchCollision indicates the working branch of a request already exists
	ErrBranchCollision = errors.New("working branch already exists")

	// ErrDataMergeConflict indicates a conflict on the tracked data files
	ErrDataMergeConflict = errors.New("conflict on data files")

	// ErrNonDataApplyConflict indicates a conflict on files other than the tracked data files
	ErrNonDataApplyConflict = errors.New("conflict on non-data files")

	// ErrRemoteFetch indicates the remote could not be fetched
	ErrRemoteFetch = errors.New("cannot fetch from remote")

	// ErrNotOnBranch indicates HEAD is detached, or not on the expected branch
	ErrNotOnBranch = errors.New("not on the expected branch")

	// ErrOperationInProgress indicates a paused run, or a git operation left in progress
	ErrOperationInProgress = errors.New("an operation is already in progress")

	// ErrNoResumeToken indicates there is no paused run to continue or abort
	ErrNoResumeToken = errors.New("no paused run to continue or abort")

	// ErrAmbiguousRequest indicates the request a paused run belongs to cannot be determined
	ErrAmbiguousRequest = errors.New("cannot determine the request being processed")

	// ErrNotUpToDate indicates the integration branch differs from its remote counterpart
	ErrNotUpToDate = errors.New("integration branch is not up to date with the remote")

	// ErrUnknownRevision indicates a revision which does not resolve to a commit
	ErrUnknownRevision = errors.New("unknown revision")

	// ErrStillConflicted indicates --continue was run before all conflicts were resolved
	ErrStillConflicted = errors.New("conflicts are not resolved yet")
)

// IsResumable tells if an error paused the run, rather than failing it
func IsResumable(err error) bool {
	return errors.Is(err, ErrDataMergeConflict) ||
		errors.Is(err, ErrNonDataApplyConflict) ||
		errors.Is(err, ErrStillConflicted)
}
