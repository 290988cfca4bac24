package rebase

import (
	"context"

	"github.com/fedora-flatpak/flathub-filter/pkg/catalog"
	"github.com/fedora-flatpak/flathub-filter/pkg/errors"
	"github.com/fedora-flatpak/flathub-filter/pkg/model"
	"github.com/fedora-flatpak/flathub-filter/pkg/rebase/status"
	"github.com/spf13/afero"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// errApply signals that the non-data changes of a commit do not apply on the rewrite chain
var errApply = errors.New("cannot apply non-data changes")

// replayFrom replays commits[from:] on top of the rewrite chain, then finishes the run
func (r *run) replayFrom(ctx context.Context, commits []*model.Commit, from int) (*Result, error) {
	for i := from; i < len(commits); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		c := commits[i]
		l := r.l.With(zap.String("commit", c.Short()), zap.String("subject", c.Subject))

		id, err := r.replayOne(ctx, c)
		switch {
		case errors.Is(err, errApply):
			l.Debug("non-data changes do not apply, falling back to cherry-pick", zap.Error(err))
			r.tok.Next = i
			paused, err := r.pickInWorkTree(ctx, c)
			if err != nil {
				return nil, err
			}
			if paused {
				return r.pause(ctx, status.ErrNonDataApplyConflict.WrapMessage("commit %s %q", c.Short(), c.Subject))
			}
			continue
		case err != nil:
			return nil, err
		case id == "":
			l.Info("commit skipped: no change left after regeneration")
			r.tok.Skipped = append(r.tok.Skipped, c.ID)
		default:
			l.Debug("commit replayed", zap.String("rewritten", model.ShortID(id)))
			r.tok.Last = id
		}
	}
	return r.finish(ctx)
}

// replayOne rebuilds a commit on top of the rewrite chain. It returns the id of the new
// commit, or an empty id when nothing is left to commit.
func (r *run) replayOne(ctx context.Context, c *model.Commit) (string, error) {
	data, err := r.replayData(ctx, c)
	if err != nil {
		return "", err
	}

	patch, err := r.diff(ctx, c)
	if err != nil {
		return "", err
	}
	tree, err := r.buildTree(ctx, r.tok.Last, patch, data)
	if err != nil {
		return "", err
	}

	lastTree, err := r.repo.TreeOf(ctx, r.tok.Last)
	if err != nil {
		return "", err
	}
	if tree == lastTree {
		return "", nil
	}

	id, err := r.repo.Recommit(ctx, c, tree, r.tok.Last)
	if err != nil {
		return "", err
	}
	r.lastSnap = data
	return id, nil
}

// replayData computes the tracked artifacts after a commit: the editorial changes of the
// commit are merged onto the artifacts of the rewrite chain
func (r *run) replayData(ctx context.Context, c *model.Commit) (snapshot, error) {
	base, err := readSnapshot(ctx, r.repo, c.ParentID)
	if err != nil {
		return nil, err
	}
	current, err := readSnapshot(ctx, r.repo, c.ID)
	if err != nil {
		return nil, err
	}
	if base.equal(current) {
		return r.lastSnap, nil
	}

	lastDir, err := r.scratch.write("last", r.lastSnap)
	if err != nil {
		return nil, err
	}
	baseDir, err := r.scratch.write("base", base)
	if err != nil {
		return nil, err
	}
	currentDir, err := r.scratch.write("current", current)
	if err != nil {
		return nil, err
	}
	return r.regenerate(ctx, catalog.Dirs{
		Input:     lastDir,
		DeltaFrom: baseDir,
		DeltaTo:   currentDir,
	})
}

// regenerate runs the regenerator into a fresh output directory and reads its result
func (r *run) regenerate(ctx context.Context, dirs catalog.Dirs) (snapshot, error) {
	const work = "work"
	var err error
	if dirs.Output, err = r.scratch.write(work, nil); err != nil {
		return nil, err
	}
	if _, err = r.regen.Regenerate(ctx, r.scratch.fs, dirs); err != nil {
		return nil, err
	}
	return r.scratch.read(work)
}

// pickInWorkTree applies a commit onto the rewrite chain in the working tree, with the
// regenerated artifacts staged. The branch is moved to the rewrite chain first. When git
// merges the commit cleanly, it is committed and the replay goes on.
func (r *run) pickInWorkTree(ctx context.Context, c *model.Commit) (bool, error) {
	data, err := r.replayData(ctx, c)
	if err != nil {
		return false, err
	}
	if err = r.moveBranch(ctx, r.tok.Last); err != nil {
		return false, err
	}

	if pickErr := r.repo.CherryPickNoCommit(ctx, c.ID); pickErr != nil {
		// git may refuse the pick without any conflict, e.g. over untracked files
		unmerged, err := r.repo.UnmergedPaths(ctx)
		if err != nil {
			return false, multierr.Append(pickErr, err)
		}
		if len(unmerged) == 0 {
			return false, errors.New("cannot cherry-pick commit "+c.Short()).Wrap(pickErr)
		}
	}

	if err = r.stageData(ctx, data); err != nil {
		return false, err
	}
	unmerged, err := r.repo.UnmergedPaths(ctx)
	if err != nil {
		return false, err
	}
	if len(unmerged) > 0 {
		r.l.Info("conflicting files", zap.Strings("paths", unmerged))
		return true, nil
	}
	return false, r.commitResolved(ctx, c)
}

// stageData writes the tracked artifacts into the working tree and stages them
func (r *run) stageData(ctx context.Context, data snapshot) error {
	fs := afero.NewBasePathFs(afero.NewOsFs(), r.repo.Dir())
	names := make([]string, 0, len(data))
	for _, name := range model.TrackedArtifacts {
		content, ok := data[name]
		if !ok {
			continue
		}
		if err := afero.WriteFile(fs, name, content, 0644); err != nil {
			return err
		}
		names = append(names, name)
	}
	if len(names) == 0 {
		return nil
	}
	return r.repo.Add(ctx, names...)
}

// commitResolved commits the index on top of the rewrite chain, with the metadata of the
// commit being replayed
func (r *run) commitResolved(ctx context.Context, c *model.Commit) error {
	unmerged, err := r.repo.UnmergedPaths(ctx)
	if err != nil {
		return err
	}
	if len(unmerged) > 0 {
		return status.ErrStillConflicted.WrapMessage("resolve and stage %v", unmerged)
	}

	tree, err := r.repo.WriteTree(ctx)
	if err != nil {
		return err
	}
	lastTree, err := r.repo.TreeOf(ctx, r.tok.Last)
	if err != nil {
		return err
	}

	if tree == lastTree {
		r.l.Info("commit skipped: no change left after resolution", zap.String("commit", c.Short()))
		r.tok.Skipped = append(r.tok.Skipped, c.ID)
	} else {
		id, err := r.repo.Recommit(ctx, c, tree, r.tok.Last)
		if err != nil {
			return err
		}
		r.tok.Last = id
	}

	if err = r.moveBranch(ctx, r.tok.Last); err != nil {
		return err
	}
	r.lastSnap, err = readSnapshot(ctx, r.repo, r.tok.Last)
	return err
}
