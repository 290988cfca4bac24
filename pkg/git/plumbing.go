package git

import (
	"bytes"
	"context"
	"strings"
)

const regularFileMode = "100644"

// RevParse resolves a revision to an object id
func (r *Repo) RevParse(ctx context.Context, rev string) (string, error) {
	return r.output(ctx, nil, "rev-parse", "--verify", "--quiet", rev)
}

// Exists tells if a revision resolves
func (r *Repo) Exists(ctx context.Context, rev string) bool {
	_, err := r.RevParse(ctx, rev)
	return err == nil
}

// TreeOf resolves the tree of a commit
func (r *Repo) TreeOf(ctx context.Context, rev string) (string, error) {
	return r.RevParse(ctx, rev+"^{tree}")
}

// MergeBase finds the best common ancestor of two commits
func (r *Repo) MergeBase(ctx context.Context, a, b string) (string, error) {
	return r.output(ctx, nil, "merge-base", a, b)
}

// IsAncestor tells if a is an ancestor of b
func (r *Repo) IsAncestor(ctx context.Context, a, b string) (bool, error) {
	_, err := r.run(ctx, nil, "merge-base", "--is-ancestor", a, b)
	if err != nil {
		if ExitCode(err) == 1 {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// RevListParents lists the commits reachable from to but not from from, oldest first.
// Each entry holds the commit id followed by the ids of its parents.
func (r *Repo) RevListParents(ctx context.Context, from, to string) ([][]string, error) {
	lines, err := r.lines(ctx, nil, "rev-list", "--reverse", "--parents", from+".."+to)
	if err != nil {
		return nil, err
	}
	entries := make([][]string, 0, len(lines))
	for _, line := range lines {
		entries = append(entries, strings.Fields(line))
	}
	return entries, nil
}

// HasPath tells if a file exists in the tree of a commit
func (r *Repo) HasPath(ctx context.Context, rev, pth string) (bool, error) {
	out, err := r.output(ctx, nil, "ls-tree", "--name-only", rev, "--", pth)
	if err != nil {
		return false, err
	}
	return out != "", nil
}

// ShowBlob reads the content of a file at some commit. The boolean is false when the file
// does not exist at that commit.
func (r *Repo) ShowBlob(ctx context.Context, rev, pth string) ([]byte, bool, error) {
	found, err := r.HasPath(ctx, rev, pth)
	if err != nil || !found {
		return nil, false, err
	}
	out, err := r.run(ctx, nil, "cat-file", "blob", rev+":"+pth)
	if err != nil {
		return nil, false, err
	}
	return []byte(out), true, nil
}

// HashObject writes a blob to the object database
func (r *Repo) HashObject(ctx context.Context, content []byte) (string, error) {
	return r.output(ctx, &runOpts{stdin: bytes.NewReader(content)}, "hash-object", "-w", "--stdin")
}

// ReadTree loads the tree of a commit into the index
func (r *Repo) ReadTree(ctx context.Context, rev string) error {
	_, err := r.run(ctx, nil, "read-tree", rev)
	return err
}

// UpdateIndexBlob stages a blob at some path, with a regular file mode
func (r *Repo) UpdateIndexBlob(ctx context.Context, pth, blob string) error {
	_, err := r.run(ctx, nil, "update-index", "--add", "--cacheinfo", regularFileMode+","+blob+","+pth)
	return err
}

// RemoveFromIndex unstages a path
func (r *Repo) RemoveFromIndex(ctx context.Context, pth string) error {
	_, err := r.run(ctx, nil, "update-index", "--force-remove", "--", pth)
	return err
}

// WriteTree writes the index as a tree
func (r *Repo) WriteTree(ctx context.Context) (string, error) {
	return r.output(ctx, nil, "write-tree")
}

// DiffBinary produces a patch from a to b which "git apply" can apply back, excluding some paths.
//
// The patch comes from diff-tree, with explicit prefixes: porcelain diff settings such as
// diff.noprefix or diff.mnemonicPrefix would change the paths "git apply" strips.
func (r *Repo) DiffBinary(ctx context.Context, a, b string, exclude ...string) (string, error) {
	args := []string{"diff-tree", "-r", "-p", "--binary", "--full-index", "--no-renames",
		"--src-prefix=a/", "--dst-prefix=b/", a, b, "--", "."}
	for _, pth := range exclude {
		args = append(args, ":(exclude)"+pth)
	}
	return r.run(ctx, nil, args...)
}

// ChangedPaths lists the paths which differ between two commits
func (r *Repo) ChangedPaths(ctx context.Context, a, b string) ([]string, error) {
	return r.lines(ctx, nil, "diff-tree", "-r", "--name-only", "--no-renames", a, b)
}

// ApplyCached applies a patch to the index only
func (r *Repo) ApplyCached(ctx context.Context, patch string) error {
	if patch == "" {
		return nil
	}
	_, err := r.run(ctx, &runOpts{stdin: strings.NewReader(patch)}, "apply", "--cached", "--binary", "-")
	return err
}

// UpdateRef moves a ref, checking its current value when oldID is not empty
func (r *Repo) UpdateRef(ctx context.Context, ref, newID, oldID string) error {
	args := []string{"update-ref", "-m", "flathub-filter", ref, newID}
	if oldID != "" {
		args = append(args, oldID)
	}
	_, err := r.run(ctx, nil, args...)
	return err
}
