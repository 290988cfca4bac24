// Package merge integrates a pull request into the integration branch.
//
// The request is fetched into a working branch, rebased onto the integration branch with
// regenerated data, then merged with a merge commit. The working branch is removed
// afterwards. Pushing the result is left to the operator.
package merge

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/fedora-flatpak/flathub-filter/pkg/git"
	"github.com/fedora-flatpak/flathub-filter/pkg/model"
	"github.com/fedora-flatpak/flathub-filter/pkg/rebase"
	"github.com/fedora-flatpak/flathub-filter/pkg/rebase/status"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Result of a merge
type Result struct {
	Request int
	Title   string

	// Merge is the merge commit, unset while paused
	Merge  string
	Rebase *rebase.Result
	Paused bool

	// Push is the command publishing the merge
	Push string
}

// Merger drives the integration of pull requests
type Merger struct {
	repo        *git.Repo
	rebaser     *rebase.Controller
	remote      string
	integration string
	pullRefspec string
	l           *zap.Logger
}

// New merger, rebasing requests with some controller
func New(repo *git.Repo, rebaser *rebase.Controller, opts ...Option) *Merger {
	m := &Merger{
		repo:        repo,
		rebaser:     rebaser,
		remote:      DefaultRemote,
		integration: DefaultIntegrationBranch,
		pullRefspec: DefaultPullRefspec,
		l:           zap.NewNop(),
	}
	for _, apply := range opts {
		apply(m)
	}
	return m
}

// Remote the requests are fetched from
func (m *Merger) Remote() string {
	return m.remote
}

// IntegrationBranch requests are merged into
func (m *Merger) IntegrationBranch() string {
	return m.integration
}

func (m *Merger) pushCommand() string {
	return fmt.Sprintf("git push %s %s", m.remote, m.integration)
}

// Preflight checks the preconditions of a merge. It has no side effect but fetching the
// integration branch from the remote.
func (m *Merger) Preflight(ctx context.Context, request int) error {
	if request <= 0 {
		return status.ErrAmbiguousRequest.WrapMessage("invalid request identifier %d", request)
	}
	branch, err := m.repo.CurrentBranch(ctx)
	if err != nil || branch != m.integration {
		return status.ErrNotOnBranch.WrapMessage("merges are made from %s", m.integration)
	}
	if err = m.rebaser.Preflight(ctx); err != nil {
		return err
	}
	working := model.RequestBranch(request)
	if m.repo.BranchExists(ctx, working) {
		return status.ErrBranchCollision.WrapMessage("%s, delete it first", working)
	}

	if err = m.repo.Fetch(ctx, m.remote, m.integration); err != nil {
		return status.ErrRemoteFetch.Wrap(err)
	}
	local, err := m.repo.RevParse(ctx, "refs/heads/"+m.integration)
	if err != nil {
		return err
	}
	remote, err := m.repo.RevParse(ctx, "refs/remotes/"+m.remote+"/"+m.integration)
	if err != nil {
		return status.ErrRemoteFetch.Wrap(err)
	}
	if local != remote {
		return status.ErrNotUpToDate.WrapMessage("%s is %s, %s/%s is %s",
			m.integration, model.ShortID(local), m.remote, m.integration, model.ShortID(remote))
	}
	return nil
}

// Start merges a pull request. An empty title defaults to the subject of the request's tip.
func (m *Merger) Start(ctx context.Context, request int, title string) (res *Result, err error) {
	if err = m.Preflight(ctx, request); err != nil {
		return nil, err
	}
	working := model.RequestBranch(request)
	l := m.l.With(zap.Int("request", request), zap.String("branch", working))

	refspec := strings.ReplaceAll(m.pullRefspec, "{id}", strconv.Itoa(request))
	if err = m.repo.Fetch(ctx, m.remote, refspec+":refs/heads/"+working); err != nil {
		return nil, status.ErrRemoteFetch.WrapMessage("%s from %s", refspec, m.remote).Wrap(err)
	}

	defer func() {
		if err != nil && !status.IsResumable(err) {
			l.Debug("removing working branch", zap.Error(err))
			err = multierr.Append(err, m.discard(context.Background(), working))
		}
	}()

	if title == "" {
		tip, e := m.repo.CatCommit(ctx, working)
		if e != nil {
			return nil, e
		}
		title = tip.Subject
	}
	l.Info("merging request", zap.String("title", title))

	if err = m.repo.Checkout(ctx, working); err != nil {
		return nil, err
	}
	rebased, err := m.rebaser.Start(ctx, rebase.Request{
		Mode:    model.ModeMerge,
		Target:  m.integration,
		Request: request,
		Title:   title,
	})
	if err != nil {
		if status.IsResumable(err) {
			return &Result{Request: request, Title: title, Rebase: rebased, Paused: true}, err
		}
		return nil, err
	}
	return m.complete(ctx, request, title, rebased)
}

// Continue resumes a paused merge, then completes it
func (m *Merger) Continue(ctx context.Context) (res *Result, err error) {
	tok, request, err := m.paused(ctx)
	if err != nil {
		return nil, err
	}
	rebased, err := m.rebaser.Continue(ctx)
	if err != nil {
		if status.IsResumable(err) {
			return &Result{Request: request, Title: tok.Title, Rebase: rebased, Paused: true}, err
		}
		// the rebase restored the request's branch: it is not merged
		return nil, multierr.Append(err, m.discard(context.Background(), model.RequestBranch(request)))
	}
	return m.complete(ctx, request, tok.Title, rebased)
}

// Abort cancels a paused merge and removes its working branch
func (m *Merger) Abort(ctx context.Context) (int, error) {
	_, request, err := m.paused(ctx)
	if err != nil {
		return 0, err
	}
	if _, err = m.rebaser.Abort(ctx); err != nil {
		return request, err
	}
	return request, m.discard(ctx, model.RequestBranch(request))
}

// paused loads the token of a paused merge and recovers the request it belongs to
func (m *Merger) paused(ctx context.Context) (*model.ResumeToken, int, error) {
	tok, err := m.rebaser.Paused(ctx)
	if err != nil {
		return nil, 0, err
	}
	if tok.Mode != model.ModeMerge {
		return nil, 0, status.ErrAmbiguousRequest.WrapMessage("the paused run is a %s, not a merge", tok.Mode)
	}
	if tok.Request > 0 {
		return tok, tok.Request, nil
	}
	if request, ok := model.ParseRequestBranch(tok.Branch); ok {
		return tok, request, nil
	}
	return nil, 0, status.ErrAmbiguousRequest.WrapMessage("branch %q is not a request branch", tok.Branch)
}

// complete merges the rebased working branch into the integration branch
func (m *Merger) complete(ctx context.Context, request int, title string, rebased *rebase.Result) (*Result, error) {
	working := model.RequestBranch(request)
	if err := m.repo.Checkout(ctx, m.integration); err != nil {
		return nil, err
	}
	message := fmt.Sprintf("Merge #%d: %s", request, title)
	if err := m.repo.MergeNoFF(ctx, working, message); err != nil {
		return nil, err
	}
	merge, err := m.repo.RevParse(ctx, "HEAD")
	if err != nil {
		return nil, err
	}
	if err = m.repo.DeleteBranch(ctx, working); err != nil {
		return nil, err
	}
	m.l.Info("request merged",
		zap.Int("request", request),
		zap.String("merge", model.ShortID(merge)),
		zap.String("into", m.integration),
	)
	return &Result{
		Request: request,
		Title:   title,
		Merge:   merge,
		Rebase:  rebased,
		Push:    m.pushCommand(),
	}, nil
}

// discard returns to the integration branch and deletes a working branch
func (m *Merger) discard(ctx context.Context, working string) error {
	var err error
	if current, e := m.repo.CurrentBranch(ctx); e != nil || current != m.integration {
		err = multierr.Append(err, m.repo.Checkout(ctx, m.integration))
	}
	if m.repo.BranchExists(ctx, working) {
		err = multierr.Append(err, m.repo.DeleteBranch(ctx, working))
	}
	return err
}
