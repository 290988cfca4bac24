// Package gittest builds throw-away git repositories for tests
package gittest

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gotest.tools/v3/icmd"
)

// Identity of the commits made by fixtures
const (
	UserName  = "Test User"
	UserEmail = "test@example.com"
)

// Fixture is a git working tree in a temporary directory
type Fixture struct {
	t   testing.TB
	Dir string
}

// Available tells if a git binary can be run
func Available() bool {
	return icmd.RunCommand("git", "--version").Error == nil
}

// New initializes an empty repository on branch main. The test is skipped when git is not installed.
func New(t testing.TB) *Fixture {
	t.Helper()
	if !Available() {
		t.Skip("git is not available")
	}
	f := &Fixture{t: t, Dir: t.TempDir()}
	f.Git("init", "--quiet")
	f.Git("symbolic-ref", "HEAD", "refs/heads/main")
	f.configure()
	return f
}

// NewBare initializes an empty bare repository
func NewBare(t testing.TB) *Fixture {
	t.Helper()
	if !Available() {
		t.Skip("git is not available")
	}
	f := &Fixture{t: t, Dir: t.TempDir()}
	f.Git("init", "--quiet", "--bare")
	f.Git("symbolic-ref", "HEAD", "refs/heads/main")
	return f
}

// Clone a repository into a new fixture
func Clone(t testing.TB, origin string) *Fixture {
	t.Helper()
	if !Available() {
		t.Skip("git is not available")
	}
	f := &Fixture{t: t, Dir: filepath.Join(t.TempDir(), "clone")}
	res := icmd.RunCmd(icmd.Command("git", "clone", "--quiet", origin, f.Dir), icmd.WithEnv(Env()...))
	require.NoError(t, res.Error, res.Combined())
	f.configure()
	return f
}

func (f *Fixture) configure() {
	f.Git("config", "user.name", UserName)
	f.Git("config", "user.email", UserEmail)
	f.Git("config", "commit.gpgsign", "false")
	f.Git("config", "core.autocrlf", "false")
}

// Env is the environment fixtures run git with, isolated from the user's configuration
func Env(extra ...string) []string {
	env := make([]string, 0, len(os.Environ())+len(extra)+2)
	for _, e := range os.Environ() {
		if strings.HasPrefix(e, "GIT_") {
			continue
		}
		env = append(env, e)
	}
	env = append(env, "GIT_CONFIG_NOSYSTEM=1", "GIT_CONFIG_GLOBAL=/dev/null")
	return append(env, extra...)
}

// Run executes git in the fixture, whatever the outcome
func (f *Fixture) Run(env []string, args ...string) *icmd.Result {
	return icmd.RunCmd(icmd.Command("git", args...), icmd.Dir(f.Dir), icmd.WithEnv(Env(env...)...))
}

// Git executes git in the fixture and returns its trimmed output. The test fails on error.
func (f *Fixture) Git(args ...string) string {
	f.t.Helper()
	res := f.Run(nil, args...)
	require.NoError(f.t, res.Error, "git %v: %s", args, res.Combined())
	return strings.TrimSpace(res.Stdout())
}

// Write creates or replaces a file in the working tree
func (f *Fixture) Write(name, content string) {
	f.t.Helper()
	pth := filepath.Join(f.Dir, filepath.FromSlash(name))
	require.NoError(f.t, os.MkdirAll(filepath.Dir(pth), 0755))
	require.NoError(f.t, os.WriteFile(pth, []byte(content), 0644))
}

// Read returns the content of a file in the working tree
func (f *Fixture) Read(name string) string {
	f.t.Helper()
	buf, err := os.ReadFile(filepath.Join(f.Dir, filepath.FromSlash(name)))
	require.NoError(f.t, err)
	return string(buf)
}

// Show returns the content of a file at some revision
func (f *Fixture) Show(rev, name string) string {
	f.t.Helper()
	res := f.Run(nil, "cat-file", "blob", rev+":"+name)
	require.NoError(f.t, res.Error, res.Combined())
	return res.Stdout()
}

// Commit writes files, stages them and commits, returning the new commit id
func (f *Fixture) Commit(message string, files map[string]string) string {
	f.t.Helper()
	return f.CommitAs(nil, message, files)
}

// CommitAs commits with extra environment, e.g. to set the author or dates
func (f *Fixture) CommitAs(env []string, message string, files map[string]string) string {
	f.t.Helper()
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		f.Write(name, files[name])
	}
	if len(names) > 0 {
		f.Git(append([]string{"add", "--"}, names...)...)
	}
	res := f.Run(env, "commit", "--quiet", "--allow-empty", "-m", message)
	require.NoError(f.t, res.Error, res.Combined())
	return f.Head()
}

// Head resolves HEAD
func (f *Fixture) Head() string {
	f.t.Helper()
	return f.Git("rev-parse", "HEAD")
}

// Log lists the subjects of the commits in a range, oldest first
func (f *Fixture) Log(rng string) []string {
	f.t.Helper()
	out := f.Git("log", "--reverse", "--format=%s", rng)
	if out == "" {
		return nil
	}
	return strings.Split(out, "\n")
}
