package git

import (
	"context"
	"strings"

	"github.com/fedora-flatpak/flathub-filter/pkg/model"
)

// ParseCommit parses a raw commit object, as printed by "git cat-file commit".
//
// Headers are read up to the first blank line. Continuation lines (starting with a space,
// as in signatures) are skipped. The message is kept verbatim.
func ParseCommit(id, raw string) (*model.Commit, error) {
	c := &model.Commit{ID: id}

	headers := raw
	if i := strings.Index(raw, "\n\n"); i >= 0 {
		headers = raw[:i]
		c.Message = raw[i+2:]
	}

	var parents int
	for _, line := range strings.Split(headers, "\n") {
		if line == "" || strings.HasPrefix(line, " ") {
			continue
		}
		key, value := line, ""
		if i := strings.IndexByte(line, ' '); i >= 0 {
			key, value = line[:i], line[i+1:]
		}

		var err error
		switch key {
		case "tree":
			c.Tree = value
		case "parent":
			parents++
			c.ParentID = value
		case "author":
			c.Author, err = model.ParseSignature(value)
		case "committer":
			c.Committer, err = model.ParseSignature(value)
		}
		if err != nil {
			return nil, ErrMalformedCommit.WrapMessage("%s", id).Wrap(err)
		}
	}

	if c.Tree == "" {
		return nil, ErrMalformedCommit.WrapMessage("%s: no tree", id)
	}
	if parents > 1 {
		c.ParentID = ""
		return c, ErrMalformedCommit.WrapMessage("%s: %d parents", id, parents)
	}
	c.Subject = model.SubjectOf(c.Message)
	return c, nil
}

// CatCommit reads the metadata of a commit
func (r *Repo) CatCommit(ctx context.Context, rev string) (*model.Commit, error) {
	id, err := r.RevParse(ctx, rev+"^{commit}")
	if err != nil {
		return nil, err
	}
	raw, err := r.run(ctx, nil, "cat-file", "commit", id)
	if err != nil {
		return nil, err
	}
	return ParseCommit(id, raw)
}

// CommitTree creates a commit object from a tree.
//
// When author or committer are nil, git falls back to the configured identity and the current time.
func (r *Repo) CommitTree(ctx context.Context, tree string, parents []string, message string, author, committer *model.Signature) (string, error) {
	args := []string{"commit-tree", tree}
	for _, p := range parents {
		args = append(args, "-p", p)
	}
	args = append(args, "-F", "-")

	var env []string
	if author != nil {
		env = append(env,
			"GIT_AUTHOR_NAME="+author.Name,
			"GIT_AUTHOR_EMAIL="+author.Email,
			"GIT_AUTHOR_DATE="+author.GitDate(),
		)
	}
	if committer != nil {
		env = append(env,
			"GIT_COMMITTER_NAME="+committer.Name,
			"GIT_COMMITTER_EMAIL="+committer.Email,
			"GIT_COMMITTER_DATE="+committer.GitDate(),
		)
	}
	return r.output(ctx, &runOpts{stdin: strings.NewReader(message), env: env}, args...)
}

// Recommit creates a copy of a commit with another tree and parent, preserving its message,
// authorship and committer identity and dates
func (r *Repo) Recommit(ctx context.Context, c *model.Commit, tree, parent string) (string, error) {
	return r.CommitTree(ctx, tree, []string{parent}, c.Message, &c.Author, &c.Committer)
}
