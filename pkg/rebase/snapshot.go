package rebase

import (
	"bytes"
	"context"
	"os"
	"path"

	"github.com/fedora-flatpak/flathub-filter/pkg/git"
	"github.com/fedora-flatpak/flathub-filter/pkg/model"
	"github.com/spf13/afero"
)

// snapshot holds the tracked artifacts of one commit. Artifacts missing from the commit are absent.
type snapshot map[string][]byte

func (s snapshot) equal(o snapshot) bool {
	if len(s) != len(o) {
		return false
	}
	for name, content := range s {
		other, ok := o[name]
		if !ok || !bytes.Equal(content, other) {
			return false
		}
	}
	return true
}

// readSnapshot reads the tracked artifacts of a commit
func readSnapshot(ctx context.Context, repo *git.Repo, rev string) (snapshot, error) {
	s := make(snapshot, len(model.TrackedArtifacts))
	for _, name := range model.TrackedArtifacts {
		content, found, err := repo.ShowBlob(ctx, rev, name)
		if err != nil {
			return nil, err
		}
		if found {
			s[name] = content
		}
	}
	return s, nil
}

// scratch is the working area of one run. Each snapshot is materialized into its own directory.
type scratch struct {
	fs   afero.Fs
	root string
}

func newScratch(fs afero.Fs, dir, runID string) (*scratch, error) {
	s := &scratch{fs: fs, root: path.Join(dir, runID)}
	if err := fs.MkdirAll(s.root, 0700); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *scratch) dir(name string) string {
	return path.Join(s.root, name)
}

// write materializes a snapshot into a fresh directory of the scratch area
func (s *scratch) write(name string, snap snapshot) (string, error) {
	dir := s.dir(name)
	if err := s.fs.RemoveAll(dir); err != nil {
		return "", err
	}
	if err := s.fs.MkdirAll(dir, 0700); err != nil {
		return "", err
	}
	for artifact, content := range snap {
		if err := afero.WriteFile(s.fs, path.Join(dir, artifact), content, 0600); err != nil {
			return "", err
		}
	}
	return dir, nil
}

// read loads the tracked artifacts found in a directory of the scratch area
func (s *scratch) read(name string) (snapshot, error) {
	dir := s.dir(name)
	snap := make(snapshot, len(model.TrackedArtifacts))
	for _, artifact := range model.TrackedArtifacts {
		content, err := afero.ReadFile(s.fs, path.Join(dir, artifact))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		snap[artifact] = content
	}
	return snap, nil
}

func (s *scratch) cleanup() error {
	return s.fs.RemoveAll(s.root)
}
