package rebase

import (
	"context"
	"path"
	"path/filepath"
	"testing"

	"github.com/fedora-flatpak/flathub-filter/pkg/catalog"
	"github.com/fedora-flatpak/flathub-filter/pkg/errors"
	"github.com/fedora-flatpak/flathub-filter/pkg/git"
	"github.com/fedora-flatpak/flathub-filter/pkg/git/gittest"
	"github.com/fedora-flatpak/flathub-filter/pkg/model"
	"github.com/fedora-flatpak/flathub-filter/pkg/rebase/status"
	"github.com/fedora-flatpak/flathub-filter/pkg/record"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

const refreshSubject = "Update download counts from upstream data"

var alice = []string{
	"GIT_AUTHOR_NAME=Alice Example",
	"GIT_AUTHOR_EMAIL=alice@example.com",
	"GIT_AUTHOR_DATE=1700000000 +0100",
}

func upstream(downloadsA int64) *catalog.Upstream {
	return &catalog.Upstream{
		Components: model.Components{
			"org.example.A":          {ID: "org.example.A", Name: "A"},
			"org.example.B":          {ID: "org.example.B", Name: "B"},
			"org.example.Platform/1": {ID: "org.example.Platform/1"},
		},
		Totals: map[string]int64{
			"org.example.A":          downloadsA,
			"org.example.B":          50,
			"org.example.Platform/1": 5,
		},
	}
}

// artifacts renders the tracked artifacts for some upstream, with editorial records taken from apps
func artifacts(t testing.TB, up *catalog.Upstream, apps string) map[string]string {
	t.Helper()
	fs := afero.NewMemMapFs()
	dirs := catalog.Dirs{Output: "/out"}
	if apps != "" {
		require.NoError(t, afero.WriteFile(fs, "/in/"+model.AppsFile, []byte(apps), 0644))
		dirs.Input = "/in"
	}
	_, err := catalog.NewGenerator(up).Regenerate(context.Background(), fs, dirs)
	require.NoError(t, err)

	files := make(map[string]string, len(model.TrackedArtifacts))
	for _, name := range model.TrackedArtifacts {
		content, err := afero.ReadFile(fs, path.Join("/out", name))
		require.NoError(t, err)
		files[name] = string(content)
	}
	return files
}

func with(files map[string]string, name, content string) map[string]string {
	out := make(map[string]string, len(files)+1)
	for k, v := range files {
		out[k] = v
	}
	out[name] = content
	return out
}

func openRepo(t testing.TB, f *gittest.Fixture) *git.Repo {
	t.Helper()
	repo, err := git.Open(context.Background(), f.Dir, git.Env("GIT_CONFIG_NOSYSTEM=1", "GIT_CONFIG_GLOBAL=/dev/null"))
	require.NoError(t, err)
	return repo
}

func newController(t testing.TB, f *gittest.Fixture, up *catalog.Upstream, opts ...Option) *Controller {
	t.Helper()
	opts = append([]Option{Scratch(afero.NewMemMapFs(), "/scratch")}, opts...)
	return New(openRepo(t, f), catalog.NewGenerator(up), opts...)
}

func componentsAt(t testing.TB, f *gittest.Fixture, rev string) model.Components {
	t.Helper()
	fs := afero.NewMemMapFs()
	for _, name := range model.RecordArtifacts {
		require.NoError(t, afero.WriteFile(fs, "/"+name, []byte(f.Show(rev, name)), 0644))
	}
	cs, err := record.LoadDir(fs, "/")
	require.NoError(t, err)
	return cs
}

func isPaused(t testing.TB, f *gittest.Fixture) bool {
	t.Helper()
	ok, err := afero.Exists(afero.NewOsFs(), filepath.Join(f.Dir, ".git", filepath.FromSlash(model.GetPathToState())))
	require.NoError(t, err)
	return ok
}

// sample builds a repository where main and feature both moved since they diverged:
//   - main refreshed the download counts and commented on B
//   - feature includes A, as Alice, and edits the README
func sample(t testing.TB) *gittest.Fixture {
	f := gittest.New(t)
	f.Commit("initial", with(artifacts(t, upstream(100), ""), "README", "hello\n"))

	f.Git("checkout", "--quiet", "-b", "feature")
	f.CommitAs(alice, "Include A", artifacts(t, upstream(100), "[org.example.A]\nInclude: yes\n"))
	f.Commit("Document A", map[string]string{"README": "hello\nA is included\n"})

	f.Git("checkout", "--quiet", "main")
	f.Commit("Refresh and comment on B", artifacts(t, upstream(200), "[org.example.B]\nComments: from main\n"))
	f.Git("checkout", "--quiet", "feature")
	return f
}

func TestRebaseRegeneratesData(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()
	f := sample(t)
	before := f.Head()
	c := newController(t, f, upstream(300))

	res, err := c.Start(ctx, Request{Target: "main"})
	require.NoError(t, err)
	assert.False(t, res.Paused)
	assert.Equal(t, 2, res.Rewritten)
	assert.Equal(t, f.Head(), res.Tip)
	assert.NotEqual(t, before, res.Tip)

	assert.Equal(t, []string{refreshSubject, "Include A", "Document A"}, f.Log("main..feature"))
	branch := f.Git("symbolic-ref", "--short", "HEAD")
	assert.Equal(t, "feature", branch)

	cs := componentsAt(t, f, "feature")
	assert.Equal(t, int64(300), cs["org.example.A"].DownloadCount)
	assert.Equal(t, model.IncludeYes, cs["org.example.A"].Include)
	assert.Equal(t, "from main", cs["org.example.B"].Comments)
	assert.Equal(t, catalog.FilterHeader+"allow org.example.A\n", f.Show("feature", model.FilterFile))
	assert.Equal(t, "hello\nA is included\n", f.Read("README"))

	// authorship survives the rewrite
	assert.Equal(t, "Alice Example <alice@example.com> 1700000000 +0100",
		f.Git("log", "-1", "--format=%an <%ae> %ad", "--date=raw", "feature~1"))

	// the working tree matches the new tip
	assert.Equal(t, f.Show("feature", model.AppsFile), f.Read(model.AppsFile))
	assert.False(t, isPaused(t, f))
}

func TestRebaseIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := sample(t)

	_, err := newController(t, f, upstream(300)).Start(ctx, Request{Target: "main"})
	require.NoError(t, err)
	log := f.Log("main..feature")
	apps := f.Show("feature", model.AppsFile)

	core, logs := observer.New(zap.InfoLevel)
	res, err := newController(t, f, upstream(300), Logger(zap.New(core))).Start(ctx, Request{Target: "main"})
	require.NoError(t, err)

	assert.Equal(t, log, f.Log("main..feature"))
	assert.Equal(t, apps, f.Show("feature", model.AppsFile))
	assert.Len(t, res.Token.Skipped, 1, "the previous refresh commit is left empty")
	assert.Equal(t, 1, logs.FilterMessage("commit skipped: no change left after regeneration").Len())
}

func TestRebaseOnAncestor(t *testing.T) {
	ctx := context.Background()
	f := gittest.New(t)
	f.Commit("initial", artifacts(t, upstream(100), ""))
	f.Git("checkout", "--quiet", "-b", "feature")
	f.Commit("Include A", artifacts(t, upstream(100), "[org.example.A]\nInclude: yes\n"))

	// nothing changes upstream: no refresh commit is made
	res, err := newController(t, f, upstream(100)).Start(ctx, Request{Target: "main"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Rewritten)
	assert.Equal(t, []string{"Include A"}, f.Log("main..feature"))
}

func TestRebaseNoCommits(t *testing.T) {
	ctx := context.Background()
	f := gittest.New(t)
	f.Commit("initial", artifacts(t, upstream(100), ""))
	f.Git("checkout", "--quiet", "-b", "feature")

	res, err := newController(t, f, upstream(120)).Start(ctx, Request{Target: "main"})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Rewritten)
	assert.Equal(t, []string{refreshSubject}, f.Log("main..feature"))
	assert.Equal(t, int64(120), componentsAt(t, f, "feature")["org.example.A"].DownloadCount)
}

func TestRebaseNonLinearHistory(t *testing.T) {
	ctx := context.Background()
	f := gittest.New(t)
	f.Commit("initial", artifacts(t, upstream(100), ""))
	f.Git("checkout", "--quiet", "-b", "side")
	f.Commit("side", map[string]string{"NEWS": "news\n"})
	f.Git("checkout", "--quiet", "-b", "feature", "main")
	f.Commit("feature", map[string]string{"README": "readme\n"})
	f.Git("merge", "--quiet", "--no-ff", "--no-edit", "side")
	before := f.Head()

	_, err := newController(t, f, upstream(100)).Start(ctx, Request{Target: "main"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrNonLinearHistory))
	assert.Equal(t, before, f.Head())
	assert.False(t, isPaused(t, f))
}

func TestRebasePreconditions(t *testing.T) {
	ctx := context.Background()
	f := sample(t)
	c := newController(t, f, upstream(300))

	f.Write("README", "dirty\n")
	_, err := c.Start(ctx, Request{Target: "main"})
	assert.True(t, errors.Is(err, status.ErrDirtyWorkingTree))
	f.Git("checkout", "--quiet", "--", "README")

	_, err = c.Start(ctx, Request{Target: "no-such-branch"})
	assert.True(t, errors.Is(err, status.ErrUnknownRevision))

	f.Git("checkout", "--quiet", "--detach")
	_, err = c.Start(ctx, Request{Target: "main"})
	assert.True(t, errors.Is(err, status.ErrNotOnBranch))

	_, err = c.Continue(ctx)
	assert.True(t, errors.Is(err, status.ErrNoResumeToken))
	_, err = c.Abort(ctx)
	assert.True(t, errors.Is(err, status.ErrNoResumeToken))
}

func TestRebaseCancelled(t *testing.T) {
	f := sample(t)
	before := f.Head()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newController(t, f, upstream(300)).Start(ctx, Request{Target: "main"})
	require.Error(t, err)
	assert.Equal(t, before, f.Head())
	assert.False(t, isPaused(t, f))
}

// conflicting builds a repository where feature and main changed the same README line
func conflicting(t testing.TB) *gittest.Fixture {
	f := gittest.New(t)
	f.Commit("initial", with(artifacts(t, upstream(100), ""), "README", "hello\n"))
	f.Git("checkout", "--quiet", "-b", "feature")
	f.Commit("Include A", artifacts(t, upstream(100), "[org.example.A]\nInclude: yes\n"))
	f.Commit("Say hi", map[string]string{"README": "hi from feature\n"})
	f.Git("checkout", "--quiet", "main")
	f.Commit("Say hey", map[string]string{"README": "hey from main\n"})
	f.Git("checkout", "--quiet", "feature")
	return f
}

func TestRebaseConflictContinue(t *testing.T) {
	ctx := context.Background()
	f := conflicting(t)
	c := newController(t, f, upstream(300))

	res, err := c.Start(ctx, Request{Target: "main"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrNonDataApplyConflict))
	assert.True(t, status.IsResumable(err))
	require.NotNil(t, res)
	assert.True(t, res.Paused)
	assert.True(t, isPaused(t, f))

	tok, err := c.Paused(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.PhaseFinalRebase, tok.Phase)
	assert.Equal(t, "feature", tok.Branch)

	// a second run cannot start while paused
	_, err = c.Start(ctx, Request{Target: "main"})
	assert.True(t, errors.Is(err, status.ErrOperationInProgress))

	_, err = c.Continue(ctx)
	assert.True(t, errors.Is(err, status.ErrStillConflicted))
	assert.True(t, isPaused(t, f))

	f.Write("README", "hi and hey\n")
	f.Git("add", "README")
	res, err = c.Continue(ctx)
	require.NoError(t, err)
	assert.False(t, res.Paused)
	assert.False(t, isPaused(t, f))

	assert.Equal(t, []string{refreshSubject, "Include A", "Say hi"}, f.Log("main..feature"))
	assert.Equal(t, "hi and hey\n", f.Show("feature", "README"))
	assert.Equal(t, model.IncludeYes, componentsAt(t, f, "feature")["org.example.A"].Include)
	assert.Equal(t, int64(300), componentsAt(t, f, "feature")["org.example.A"].DownloadCount)
}

func TestRebaseConflictAbort(t *testing.T) {
	ctx := context.Background()
	f := conflicting(t)
	before := f.Head()
	c := newController(t, f, upstream(300))

	_, err := c.Start(ctx, Request{Target: "main"})
	require.True(t, status.IsResumable(err))

	tok, err := c.Abort(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, tok.OriginalTip)
	assert.Equal(t, before, f.Head())
	assert.Equal(t, "feature", f.Git("symbolic-ref", "--short", "HEAD"))
	assert.Equal(t, "hi from feature\n", f.Read("README"))
	assert.False(t, isPaused(t, f))

	op, err := openRepo(t, f).InProgress()
	require.NoError(t, err)
	assert.Equal(t, git.NoOperation, op)
}

func TestRebaseIgnoresDiffPrefixSettings(t *testing.T) {
	ctx := context.Background()
	f := gittest.New(t)
	f.Git("config", "diff.noprefix", "true")
	f.Git("config", "diff.mnemonicPrefix", "true")
	files := with(artifacts(t, upstream(100), ""), "README", "same\n")
	f.Commit("initial", with(files, "docs/README", "same\n"))
	f.Git("checkout", "--quiet", "-b", "feature")
	f.Commit("Edit docs", map[string]string{"docs/README": "edited\n", "docs/NOTES": "notes\n"})

	_, err := newController(t, f, upstream(300)).Start(ctx, Request{Target: "main"})
	require.NoError(t, err)

	assert.Equal(t, []string{refreshSubject, "Edit docs"}, f.Log("main..feature"))
	assert.Equal(t, "same\n", f.Show("feature", "README"))
	assert.Equal(t, "edited\n", f.Show("feature", "docs/README"))
	assert.Equal(t, "notes\n", f.Show("feature", "docs/NOTES"))
	assert.Empty(t, f.Git("ls-tree", "--name-only", "feature", "NOTES"))
}

// diverging makes the controller replay the first commit of the branch with the changes
// of another commit, so that the next commit no longer applies on the rewrite chain
func diverging(t testing.TB, c *Controller, first, from, to string) {
	t.Helper()
	diff := c.diff
	c.diff = func(ctx context.Context, commit *model.Commit) (string, error) {
		if commit.ID == first {
			return c.repo.DiffBinary(ctx, from, to, model.TrackedArtifacts...)
		}
		return diff(ctx, commit)
	}
}

func TestRebaseReplayConflictContinue(t *testing.T) {
	ctx := context.Background()
	f := gittest.New(t)
	base := f.Commit("initial", with(artifacts(t, upstream(100), ""), "README", "one\n"))
	f.Git("checkout", "--quiet", "-b", "side")
	side := f.Commit("Diverge", map[string]string{"README": "diverged\n"})
	f.Git("checkout", "--quiet", "-b", "feature", "main")
	first := f.Commit("First edit", map[string]string{"README": "two\n"})
	f.Commit("Second edit", map[string]string{"README": "three\n"})

	c := newController(t, f, upstream(100))
	diverging(t, c, first, base, side)

	res, err := c.Start(ctx, Request{Target: "main"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrNonDataApplyConflict))
	require.NotNil(t, res)
	assert.True(t, res.Paused)

	tok, err := c.Paused(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.PhaseReplaying, tok.Phase)
	assert.Equal(t, 1, tok.Next)
	assert.Equal(t, "feature", f.Git("symbolic-ref", "--short", "HEAD"))

	_, err = c.Continue(ctx)
	assert.True(t, errors.Is(err, status.ErrStillConflicted))

	f.Write("README", "three\n")
	f.Git("add", "README")
	res, err = c.Continue(ctx)
	require.NoError(t, err)
	assert.False(t, res.Paused)
	assert.Equal(t, 2, res.Rewritten)
	assert.False(t, isPaused(t, f))

	assert.Equal(t, []string{"First edit", "Second edit"}, f.Log("main..feature"))
	assert.Equal(t, "diverged\n", f.Show("feature~1", "README"))
	assert.Equal(t, "three\n", f.Show("feature", "README"))
	assert.Equal(t, "three\n", f.Read("README"))

	op, err := openRepo(t, f).InProgress()
	require.NoError(t, err)
	assert.Equal(t, git.NoOperation, op)
}

func TestRebaseReplayPickRefused(t *testing.T) {
	ctx := context.Background()
	f := gittest.New(t)
	f.Commit("initial", with(artifacts(t, upstream(100), ""), "README", "one\n"))
	f.Git("checkout", "--quiet", "-b", "feature")
	first := f.Commit("Add notes", map[string]string{"NOTES": "from feature\n"})
	f.Git("rm", "--quiet", "NOTES")
	f.Git("commit", "--quiet", "-m", "Drop notes")
	before := f.Head()

	// an untracked file is in the way of the first commit
	f.Write("NOTES", "mine\n")

	c := newController(t, f, upstream(100))
	c.diff = func(ctx context.Context, commit *model.Commit) (string, error) {
		if commit.ID == first {
			return "not a patch\n", nil
		}
		return c.repo.DiffBinary(ctx, commit.ParentID, commit.ID, model.TrackedArtifacts...)
	}

	_, err := c.Start(ctx, Request{Target: "main"})
	require.Error(t, err)
	assert.False(t, status.IsResumable(err))
	assert.False(t, isPaused(t, f))
	assert.Equal(t, before, f.Head())
	assert.Equal(t, "feature", f.Git("symbolic-ref", "--short", "HEAD"))
	assert.Equal(t, "mine\n", f.Read("NOTES"))
}

func TestExtract(t *testing.T) {
	ctx := context.Background()
	f := gittest.New(t)
	base := f.Commit("initial", map[string]string{"README": "one\n"})
	f.CommitAs(alice, "first", map[string]string{"README": "two\n"})
	tip := f.Commit("second", nil)

	commits, err := Extract(ctx, openRepo(t, f), base, tip)
	require.NoError(t, err)
	require.Len(t, commits, 2)
	assert.Equal(t, "first", commits[0].Subject)
	assert.Equal(t, base, commits[0].ParentID)
	assert.Equal(t, "Alice Example", commits[0].Author.Name)
	assert.Equal(t, commits[0].ID, commits[1].ParentID)
	assert.Equal(t, tip, commits[1].ID)

	commits, err = Extract(ctx, openRepo(t, f), tip, tip)
	require.NoError(t, err)
	assert.Empty(t, commits)
}

func TestSnapshotScratch(t *testing.T) {
	fs := afero.NewMemMapFs()
	s, err := newScratch(fs, "/tmp", "run")
	require.NoError(t, err)

	snap := snapshot{model.AppsFile: []byte("[a]\n"), model.FilterFile: []byte("deny *\n")}
	dir, err := s.write("one", snap)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/run/one", dir)

	back, err := s.read("one")
	require.NoError(t, err)
	assert.True(t, snap.equal(back))
	assert.False(t, snap.equal(snapshot{model.AppsFile: []byte("[a]\n")}))

	// rewriting a directory drops stale artifacts
	_, err = s.write("one", snapshot{model.OtherFile: []byte("[b/1]\n")})
	require.NoError(t, err)
	back, err = s.read("one")
	require.NoError(t, err)
	assert.Equal(t, snapshot{model.OtherFile: []byte("[b/1]\n")}, back)

	require.NoError(t, s.cleanup())
	exists, err := afero.DirExists(fs, "/tmp/run")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestConflictError(t *testing.T) {
	assert.True(t, errors.Is(conflictError([]string{"README", model.AppsFile}), status.ErrDataMergeConflict))
	assert.True(t, errors.Is(conflictError([]string{"README"}), status.ErrNonDataApplyConflict))
}
