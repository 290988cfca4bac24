// Package rebase rewrites a linear branch onto a target, regenerating the tracked data
// files at every step.
//
// Each commit of the branch is replayed on top of freshly regenerated data: its editorial
// changes to the data files are merged record by record, its other changes are applied
// as they are. The branch is only moved once the whole chain is built, then rebased onto
// the target with regenerated data. Conflicts pause the run, which is resumed or aborted
// by a later invocation.
package rebase

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fedora-flatpak/flathub-filter/pkg/catalog"
	"github.com/fedora-flatpak/flathub-filter/pkg/errors"
	"github.com/fedora-flatpak/flathub-filter/pkg/git"
	"github.com/fedora-flatpak/flathub-filter/pkg/model"
	"github.com/fedora-flatpak/flathub-filter/pkg/rebase/status"
	"github.com/fedora-flatpak/flathub-filter/pkg/state"
	"github.com/segmentio/ksuid"
	"github.com/spf13/afero"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Regenerator rewrites the tracked artifacts from upstream data, merging editorial changes.
// It is implemented by catalog.Generator.
type Regenerator interface {
	Regenerate(context.Context, afero.Fs, catalog.Dirs) (*catalog.Report, error)
}

// Request describes what to rebase the current branch onto
type Request struct {
	Mode    model.Mode
	Target  string
	Request int
	Title   string
}

// Result of a run. When Paused is set, the resume token has been saved.
type Result struct {
	Token     *model.ResumeToken
	Tip       string
	Rewritten int
	Paused    bool
}

// Controller drives rebase runs on a repository
type Controller struct {
	repo           *git.Repo
	regen          Regenerator
	states         *state.Store
	scratchFs      afero.Fs
	scratchDir     string
	refreshMessage string
	l              *zap.Logger

	// diff produces the changes of a commit to replay, tracked artifacts excluded
	diff func(context.Context, *model.Commit) (string, error)
}

// New rebase controller
func New(repo *git.Repo, regen Regenerator, opts ...Option) *Controller {
	c := &Controller{
		repo:           repo,
		regen:          regen,
		scratchFs:      afero.NewOsFs(),
		scratchDir:     defaultScratchDir(),
		refreshMessage: DefaultRefreshMessage,
		l:              zap.NewNop(),
	}
	c.diff = func(ctx context.Context, commit *model.Commit) (string, error) {
		return repo.DiffBinary(ctx, commit.ParentID, commit.ID, model.TrackedArtifacts...)
	}
	for _, apply := range opts {
		apply(c)
	}
	if c.states == nil {
		c.states = state.NewInGitDir(repo.GitDir())
	}
	return c
}

// Paused returns the resume token of the paused run
func (c *Controller) Paused(ctx context.Context) (*model.ResumeToken, error) {
	tok, err := c.states.Load(ctx)
	if err != nil {
		if errors.Is(err, state.ErrNoToken) {
			return nil, status.ErrNoResumeToken
		}
		return nil, err
	}
	return tok, nil
}

// Preflight checks that a run can start: no paused run, no git operation in progress and
// no uncommitted change to tracked files
func (c *Controller) Preflight(ctx context.Context) error {
	paused, err := c.states.Exists(ctx)
	if err != nil {
		return err
	}
	if paused {
		return status.ErrOperationInProgress.WrapMessage("a run is paused, continue or abort it first")
	}
	op, err := c.repo.InProgress()
	if err != nil {
		return err
	}
	if op != git.NoOperation {
		return status.ErrOperationInProgress.WrapMessage("git %s in progress", op)
	}
	clean, err := c.repo.IsClean(ctx)
	if err != nil {
		return err
	}
	if !clean {
		return status.ErrDirtyWorkingTree
	}
	return nil
}

// Start rebases the current branch onto the requested target
func (c *Controller) Start(ctx context.Context, req Request) (*Result, error) {
	if err := c.Preflight(ctx); err != nil {
		return nil, err
	}

	branch, err := c.repo.CurrentBranch(ctx)
	if err != nil {
		if errors.Is(err, git.ErrDetachedHead) {
			return nil, status.ErrNotOnBranch.Wrap(err)
		}
		return nil, err
	}
	target, err := c.repo.RevParse(ctx, req.Target+"^{commit}")
	if err != nil {
		return nil, status.ErrUnknownRevision.WrapMessage("%s", req.Target)
	}
	tip, err := c.repo.RevParse(ctx, "HEAD")
	if err != nil {
		return nil, err
	}
	mergeBase, err := c.repo.MergeBase(ctx, target, tip)
	if err != nil {
		return nil, status.ErrUnknownRevision.WrapMessage("no common ancestor between %s and %s", req.Target, branch).Wrap(err)
	}

	mode := req.Mode
	if mode == "" {
		mode = model.ModeRebase
	}
	tok := &model.ResumeToken{
		RunID:          ksuid.New().String(),
		Mode:           mode,
		Request:        req.Request,
		Title:          req.Title,
		Phase:          model.PhaseIdle,
		Branch:         branch,
		OriginalBranch: branch,
		OriginalTip:    tip,
		Target:         target,
		StartTime:      time.Now().UTC(),
	}

	r, err := c.newRun(tok, model.PhaseIdle)
	if err != nil {
		return nil, err
	}
	return r.exec(ctx, func(ctx context.Context) (*Result, error) {
		if err := r.advance(model.PhaseExtracting); err != nil {
			return nil, err
		}
		commits, err := Extract(ctx, c.repo, mergeBase, tip)
		if err != nil {
			return nil, err
		}
		tok.Commits = make([]string, 0, len(commits))
		for _, commit := range commits {
			tok.Commits = append(tok.Commits, commit.ID)
		}
		r.l.Info("replaying commits",
			zap.String("branch", branch),
			zap.String("target", model.ShortID(target)),
			zap.String("merge_base", model.ShortID(mergeBase)),
			zap.Int("commits", len(commits)),
		)

		if err := r.bases(ctx, mergeBase); err != nil {
			return nil, err
		}
		if err := r.advance(model.PhaseReplaying); err != nil {
			return nil, err
		}
		return r.replayFrom(ctx, commits, 0)
	})
}

// Continue resumes the paused run once conflicts are resolved and staged
func (c *Controller) Continue(ctx context.Context) (*Result, error) {
	tok, err := c.Paused(ctx)
	if err != nil {
		return nil, err
	}
	if !tok.Phase.IsResumable() {
		return nil, state.ErrCorruptToken.WrapMessage("cannot resume from phase %q", tok.Phase)
	}
	if tok.Phase == model.PhaseReplaying {
		// git leaves HEAD detached while a rebase is stopped, so only replays check the branch
		branch, err := c.repo.CurrentBranch(ctx)
		if err != nil || branch != tok.Branch {
			return nil, status.ErrNotOnBranch.WrapMessage("expected branch %s to be checked out", tok.Branch)
		}
	}

	r, err := c.newRun(tok, model.PhaseConflictPause)
	if err != nil {
		return nil, err
	}
	r.moved = true
	return r.exec(ctx, func(ctx context.Context) (*Result, error) {
		r.l.Info("resuming run", zap.String("phase", tok.Phase.String()), zap.String("branch", tok.Branch))
		switch tok.Phase {
		case model.PhaseReplaying:
			if err := r.advance(model.PhaseReplaying); err != nil {
				return nil, err
			}
			commits, err := r.loadCommits(ctx)
			if err != nil {
				return nil, err
			}
			if tok.Next < 0 || tok.Next >= len(commits) {
				return nil, state.ErrCorruptToken.WrapMessage("no commit #%d to resume from", tok.Next)
			}
			if err := r.commitResolved(ctx, commits[tok.Next]); err != nil {
				return nil, err
			}
			return r.replayFrom(ctx, commits, tok.Next+1)

		default:
			if err := r.advance(model.PhaseFinalRebase); err != nil {
				return nil, err
			}
			return r.continueRebase(ctx)
		}
	})
}

// Abort cancels the paused run: git operations in progress are aborted, the branch is
// restored to its original tip, and the resume token is removed.
func (c *Controller) Abort(ctx context.Context) (*model.ResumeToken, error) {
	tok, err := c.Paused(ctx)
	if err != nil {
		return nil, err
	}
	r, err := c.newRun(tok, model.PhaseConflictPause)
	if err != nil {
		return nil, err
	}
	err = r.rollback(ctx)
	err = multierr.Append(err, c.states.Clear(ctx))
	err = multierr.Append(err, r.cleanup())
	if err != nil {
		return nil, err
	}
	r.l.Info("run aborted", zap.String("branch", tok.Branch), zap.String("tip", model.ShortID(tok.OriginalTip)))
	return tok, nil
}

// run is the state of one invocation
type run struct {
	*Controller
	tok       *model.ResumeToken
	phase     model.Phase
	index     *git.Repo
	indexFile string
	scratch   *scratch
	lastSnap  snapshot
	moved     bool
	l         *zap.Logger
}

func (c *Controller) newRun(tok *model.ResumeToken, phase model.Phase) (*run, error) {
	indexFile := c.repo.GitPath(model.GetPathToIndex(tok.RunID))
	if err := afero.NewOsFs().MkdirAll(filepath.Dir(indexFile), 0700); err != nil {
		return nil, err
	}
	s, err := newScratch(c.scratchFs, c.scratchDir, tok.RunID)
	if err != nil {
		return nil, err
	}
	return &run{
		Controller: c,
		tok:        tok,
		phase:      phase,
		index:      c.repo.WithIndex(indexFile),
		indexFile:  indexFile,
		scratch:    s,
		l:          c.l.With(zap.String("run_id", tok.RunID)),
	}, nil
}

// exec runs some phases of a run. Scoped resources are always released. A fatal error
// after the branch moved restores the original branch.
func (r *run) exec(ctx context.Context, phases func(context.Context) (*Result, error)) (res *Result, err error) {
	defer func() {
		if err != nil && !status.IsResumable(err) && r.moved {
			r.l.Warn("run failed, restoring the original branch", zap.Error(err))
			err = multierr.Append(err, r.rollback(context.Background()))
			err = multierr.Append(err, r.states.Clear(context.Background()))
		}
		err = multierr.Append(err, r.cleanup())
	}()
	return phases(ctx)
}

func (r *run) advance(to model.Phase) error {
	if !r.phase.CanTransition(to) {
		return fmt.Errorf("invalid transition from %s to %s", r.phase, to)
	}
	r.l.Debug("phase", zap.String("from", r.phase.String()), zap.String("to", to.String()))
	r.phase = to
	return nil
}

// pause saves the resume token, recording the interrupted phase
func (r *run) pause(ctx context.Context, cause error) (*Result, error) {
	interrupted := r.phase
	if err := r.advance(model.PhaseConflictPause); err != nil {
		return nil, err
	}
	r.tok.Phase = interrupted
	if err := r.states.Save(ctx, r.tok); err != nil {
		return nil, multierr.Append(cause, err)
	}
	r.l.Info("run paused", zap.String("phase", interrupted.String()), zap.Error(cause))
	return &Result{Token: r.tok, Paused: true}, cause
}

func (r *run) done(ctx context.Context) (*Result, error) {
	if err := r.advance(model.PhaseDone); err != nil {
		return nil, err
	}
	tip, err := r.repo.RevParse(ctx, "HEAD")
	if err != nil {
		return nil, err
	}
	if err := r.states.Clear(ctx); err != nil {
		return nil, err
	}
	r.tok.Phase = model.PhaseDone
	r.l.Info("branch rewritten",
		zap.String("branch", r.tok.Branch),
		zap.String("tip", model.ShortID(tip)),
		zap.Int("skipped", len(r.tok.Skipped)),
	)
	return &Result{Token: r.tok, Tip: tip, Rewritten: len(r.tok.Commits) - len(r.tok.Skipped)}, nil
}

// rollback aborts git operations in progress and restores the branch to its original tip
func (r *run) rollback(ctx context.Context) error {
	var err error
	op, opErr := r.repo.InProgress()
	err = multierr.Append(err, opErr)
	switch op {
	case git.Rebasing:
		err = multierr.Append(err, r.repo.RebaseAbort(ctx))
	case git.CherryPick:
		err = multierr.Append(err, r.repo.CherryPickAbort(ctx))
	}

	ref := "refs/heads/" + r.tok.Branch
	if e := r.repo.UpdateRef(ctx, ref, r.tok.OriginalTip, ""); e != nil {
		return multierr.Append(err, e)
	}
	current, e := r.repo.CurrentBranch(ctx)
	if e == nil && current == r.tok.Branch {
		err = multierr.Append(err, r.repo.ResetHard(ctx, r.tok.OriginalTip))
	}
	r.moved = false
	return err
}

// cleanup removes the scratch area and the private index
func (r *run) cleanup() error {
	fs := afero.NewOsFs()
	err := r.scratch.cleanup()
	for _, pth := range []string{r.indexFile, r.indexFile + ".lock"} {
		if e := fs.Remove(pth); e != nil && !os.IsNotExist(e) {
			err = multierr.Append(err, e)
		}
	}
	return err
}

func (r *run) loadCommits(ctx context.Context) ([]*model.Commit, error) {
	commits := make([]*model.Commit, 0, len(r.tok.Commits))
	for _, id := range r.tok.Commits {
		c, err := r.repo.CatCommit(ctx, id)
		if err != nil {
			return nil, err
		}
		commits = append(commits, c)
	}
	return commits, nil
}
