package rebase

import (
	"context"

	"github.com/fedora-flatpak/flathub-filter/pkg/catalog"
	"github.com/fedora-flatpak/flathub-filter/pkg/git"
	"github.com/fedora-flatpak/flathub-filter/pkg/model"
	"github.com/fedora-flatpak/flathub-filter/pkg/rebase/status"
	"go.uber.org/zap"
)

// bases builds the two commits the run rewrites onto:
//   - the upstream base, i.e. the target with regenerated data
//   - the rewrite base, i.e. the merge base with the same regenerated data
//
// Both are reused as they are when regeneration changes nothing.
func (r *run) bases(ctx context.Context, mergeBase string) error {
	targetSnap, err := readSnapshot(ctx, r.repo, r.tok.Target)
	if err != nil {
		return err
	}
	input, err := r.scratch.write("target", targetSnap)
	if err != nil {
		return err
	}
	refreshed, err := r.regenerate(ctx, catalog.Dirs{Input: input})
	if err != nil {
		return err
	}

	upstreamBase, err := r.withData(ctx, r.tok.Target, targetSnap, refreshed)
	if err != nil {
		return err
	}
	rewriteBase := upstreamBase
	if mergeBase != r.tok.Target {
		baseSnap, err := readSnapshot(ctx, r.repo, mergeBase)
		if err != nil {
			return err
		}
		if rewriteBase, err = r.withData(ctx, mergeBase, baseSnap, refreshed); err != nil {
			return err
		}
	}

	r.tok.UpstreamBase = upstreamBase
	r.tok.RewriteBase = rewriteBase
	r.tok.Last = rewriteBase
	r.lastSnap = refreshed
	r.l.Debug("rewrite bases",
		zap.String("upstream_base", model.ShortID(upstreamBase)),
		zap.String("rewrite_base", model.ShortID(rewriteBase)),
	)
	return nil
}

// withData commits some data on top of a commit, unless it already holds that data
func (r *run) withData(ctx context.Context, parent string, current, data snapshot) (string, error) {
	if current.equal(data) {
		return parent, nil
	}
	tree, err := r.buildTree(ctx, parent, "", data)
	if err != nil {
		return "", err
	}
	return r.repo.CommitTree(ctx, tree, []string{parent}, r.refreshMessage, nil, nil)
}

// buildTree writes the tree of base with a patch applied and the tracked artifacts replaced
// by data. It works on the private index: neither the working tree nor the branch are touched.
func (r *run) buildTree(ctx context.Context, base, patch string, data snapshot) (string, error) {
	if err := r.index.ReadTree(ctx, base); err != nil {
		return "", err
	}
	if err := r.index.ApplyCached(ctx, patch); err != nil {
		return "", errApply.Wrap(err)
	}
	for _, name := range model.TrackedArtifacts {
		content, ok := data[name]
		if !ok {
			if err := r.index.RemoveFromIndex(ctx, name); err != nil {
				return "", err
			}
			continue
		}
		blob, err := r.index.HashObject(ctx, content)
		if err != nil {
			return "", err
		}
		if err = r.index.UpdateIndexBlob(ctx, name, blob); err != nil {
			return "", err
		}
	}
	return r.index.WriteTree(ctx)
}

// moveBranch points the branch being rewritten to some commit, and updates the working
// tree when the branch is checked out
func (r *run) moveBranch(ctx context.Context, id string) error {
	ref := "refs/heads/" + r.tok.Branch
	current, err := r.repo.RevParse(ctx, ref)
	if err != nil {
		return err
	}
	if current != id {
		if err = r.repo.UpdateRef(ctx, ref, id, current); err != nil {
			return err
		}
		r.moved = true
	}
	checkedOut, err := r.repo.CurrentBranch(ctx)
	if err == nil && checkedOut == r.tok.Branch {
		return r.repo.ResetHard(ctx, id)
	}
	return nil
}

// finish points the branch to the rewrite chain, then rebases the chain onto the upstream base
func (r *run) finish(ctx context.Context) (*Result, error) {
	if err := r.advance(model.PhaseRewritten); err != nil {
		return nil, err
	}
	if err := r.moveBranch(ctx, r.tok.Last); err != nil {
		return nil, err
	}
	if err := r.advance(model.PhaseFinalRebase); err != nil {
		return nil, err
	}
	if r.tok.RewriteBase != r.tok.UpstreamBase {
		r.l.Debug("rebasing onto the upstream base", zap.String("onto", model.ShortID(r.tok.UpstreamBase)))
		if err := r.repo.Rebase(ctx, r.tok.UpstreamBase, r.tok.RewriteBase); err != nil {
			return r.rebaseStopped(ctx, err)
		}
	}
	return r.done(ctx)
}

// continueRebase resumes the final rebase once conflicts are resolved
func (r *run) continueRebase(ctx context.Context) (*Result, error) {
	op, err := r.repo.InProgress()
	if err != nil {
		return nil, err
	}
	if op == git.Rebasing {
		unmerged, err := r.repo.UnmergedPaths(ctx)
		if err != nil {
			return nil, err
		}
		if len(unmerged) > 0 {
			return nil, status.ErrStillConflicted.WrapMessage("resolve and stage %v", unmerged)
		}
		if err = r.repo.RebaseContinue(ctx); err != nil {
			return r.rebaseStopped(ctx, err)
		}
	}
	return r.done(ctx)
}

// rebaseStopped pauses the run when git stopped the rebase on a conflict
func (r *run) rebaseStopped(ctx context.Context, cause error) (*Result, error) {
	op, err := r.repo.InProgress()
	if err != nil {
		return nil, err
	}
	if op != git.Rebasing {
		return nil, cause
	}
	unmerged, err := r.repo.UnmergedPaths(ctx)
	if err != nil {
		return nil, err
	}
	r.l.Info("conflicting files", zap.Strings("paths", unmerged))
	return r.pause(ctx, conflictError(unmerged))
}

// conflictError tells apart conflicts on the tracked data files from other conflicts
func conflictError(unmerged []string) error {
	var data []string
	for _, pth := range unmerged {
		if model.IsTracked(pth) {
			data = append(data, pth)
		}
	}
	if len(data) > 0 {
		return status.ErrDataMergeConflict.WrapMessage("%v", data)
	}
	return status.ErrNonDataApplyConflict.WrapMessage("%v", unmerged)
}
