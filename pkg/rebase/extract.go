package rebase

import (
	"context"

	"github.com/fedora-flatpak/flathub-filter/pkg/git"
	"github.com/fedora-flatpak/flathub-filter/pkg/model"
	"github.com/fedora-flatpak/flathub-filter/pkg/rebase/status"
)

// Extract lists the commits in (mergeBase, tip], oldest first.
//
// Every commit must have exactly one parent, which is the previous commit in the list (or
// the merge base for the first one). The repository is never modified.
func Extract(ctx context.Context, repo *git.Repo, mergeBase, tip string) ([]*model.Commit, error) {
	entries, err := repo.RevListParents(ctx, mergeBase, tip)
	if err != nil {
		return nil, err
	}

	// check the whole range before reading any commit
	for _, entry := range entries {
		if len(entry) != 2 {
			return nil, status.ErrNonLinearHistory.WrapMessage("commit %s has %d parents", model.ShortID(entry[0]), len(entry)-1)
		}
	}

	commits := make([]*model.Commit, 0, len(entries))
	parent := mergeBase
	for _, entry := range entries {
		if entry[1] != parent {
			// a side branch joined through a merge commit outside the range
			return nil, status.ErrNonLinearHistory.WrapMessage("commit %s does not follow %s", model.ShortID(entry[0]), model.ShortID(parent))
		}
		c, err := repo.CatCommit(ctx, entry[0])
		if err != nil {
			return nil, err
		}
		commits = append(commits, c)
		parent = c.ID
	}
	return commits, nil
}
