// Package git drives a local git repository through the git command line.
//
// Only plumbing and a few well-defined porcelain commands are used, so the history can be
// rewritten without ever touching the working tree until the very end.
package git

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fedora-flatpak/flathub-filter/pkg/errors"
	"go.uber.org/zap"
	"gotest.tools/v3/icmd"
)

var (
	// ErrNotARepository indicates the directory is not inside a git working tree
	ErrNotARepository = errors.New("not a git repository")

	// ErrCommand indicates a git command failed
	ErrCommand = errors.New("git command failed")

	// ErrDetachedHead indicates HEAD does not point to a branch
	ErrDetachedHead = errors.New("HEAD is detached")

	// ErrMalformedCommit indicates a commit object could not be parsed
	ErrMalformedCommit = errors.New("malformed commit object")
)

// CommandError describes a failed git invocation
type CommandError struct {
	Args     []string
	ExitCode int
	Stderr   string
}

func (e *CommandError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		return fmt.Sprintf("git %s: exit status %d", strings.Join(e.Args, " "), e.ExitCode)
	}
	return fmt.Sprintf("git %s: exit status %d: %s", strings.Join(e.Args, " "), e.ExitCode, msg)
}

// ExitCode returns the exit status of a failed git command, or -1 when err is not one
func ExitCode(err error) int {
	var ce *CommandError
	if errors.As(err, &ce) {
		return ce.ExitCode
	}
	return -1
}

// Repo is a git working tree
type Repo struct {
	dir    string
	gitDir string
	env    []string
	l      *zap.Logger
}

// Option configures a Repo
type Option func(*Repo)

// Logger injects a logging facility. Every git command is logged at debug level.
func Logger(l *zap.Logger) Option {
	return func(r *Repo) {
		if l != nil {
			r.l = l
		}
	}
}

// Env adds environment variables to every git command
func Env(env ...string) Option {
	return func(r *Repo) {
		r.env = append(r.env, env...)
	}
}

// Open a repository from any directory of its working tree. Commands then run from the top level.
func Open(ctx context.Context, dir string, opts ...Option) (*Repo, error) {
	r := &Repo{dir: dir, l: zap.NewNop()}
	for _, apply := range opts {
		apply(r)
	}

	top, err := r.output(ctx, nil, "rev-parse", "--show-toplevel")
	if err != nil {
		return nil, ErrNotARepository.WrapMessage("%s", dir).Wrap(err)
	}
	r.dir = top

	gitDir, err := r.output(ctx, nil, "rev-parse", "--absolute-git-dir")
	if err != nil {
		return nil, ErrNotARepository.WrapMessage("%s", dir).Wrap(err)
	}
	r.gitDir = gitDir
	return r, nil
}

// Dir is the top level of the working tree
func (r *Repo) Dir() string {
	return r.dir
}

// GitDir is the absolute path to the git directory
func (r *Repo) GitDir() string {
	return r.gitDir
}

// GitPath resolves a path relative to the git directory
func (r *Repo) GitPath(rel string) string {
	return filepath.Join(r.gitDir, filepath.FromSlash(rel))
}

// WithIndex returns a view of the repository using a private index file.
// The working tree and the default index are not affected by index operations on that view.
func (r *Repo) WithIndex(indexFile string) *Repo {
	c := *r
	c.env = append(append([]string{}, r.env...), "GIT_INDEX_FILE="+indexFile)
	return &c
}

type runOpts struct {
	stdin io.Reader
	env   []string
}

// run executes git and returns its standard output
func (r *Repo) run(ctx context.Context, o *runOpts, args ...string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	env := append(os.Environ(), r.env...)
	ops := []icmd.CmdOp{icmd.Dir(r.dir)}
	if o != nil {
		env = append(env, o.env...)
		if o.stdin != nil {
			ops = append(ops, icmd.WithStdin(o.stdin))
		}
	}
	ops = append(ops, icmd.WithEnv(env...))

	r.l.Debug("git", zap.Strings("args", args))
	res := icmd.RunCmd(icmd.Command("git", args...), ops...)
	if res.Error != nil {
		code := res.ExitCode
		if code == 0 {
			code = -1
		}
		return res.Stdout(), ErrCommand.Wrap(&CommandError{
			Args:     args,
			ExitCode: code,
			Stderr:   res.Stderr(),
		})
	}
	return res.Stdout(), nil
}

// output executes git and returns its trimmed standard output
func (r *Repo) output(ctx context.Context, o *runOpts, args ...string) (string, error) {
	out, err := r.run(ctx, o, args...)
	return strings.TrimSpace(out), err
}

// lines executes git and splits its output into non-empty lines
func (r *Repo) lines(ctx context.Context, o *runOpts, args ...string) ([]string, error) {
	out, err := r.run(ctx, o, args...)
	if err != nil {
		return nil, err
	}
	var result []string
	for _, line := range strings.Split(out, "\n") {
		if line = strings.TrimRight(line, "\r"); line != "" {
			result = append(result, line)
		}
	}
	return result, nil
}

// Config reads a configuration value. An unset key yields an empty string.
func (r *Repo) Config(ctx context.Context, key string) (string, error) {
	out, err := r.output(ctx, nil, "config", "--get", key)
	if err != nil {
		if ExitCode(err) == 1 {
			return "", nil
		}
		return "", err
	}
	return out, nil
}
