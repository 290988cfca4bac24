// Package state persists the resume token of a paused run.
package state

import (
	"bytes"
	"context"

	"github.com/fedora-flatpak/flathub-filter/pkg/errors"
	"github.com/fedora-flatpak/flathub-filter/pkg/model"
	"github.com/fedora-flatpak/flathub-filter/pkg/storage"
	"github.com/fedora-flatpak/flathub-filter/pkg/storage/localfs"
	"github.com/fedora-flatpak/flathub-filter/pkg/storage/status"
	"gopkg.in/yaml.v2"
)

var (
	// ErrNoToken indicates there is no paused run
	ErrNoToken = errors.New("no paused run")

	// ErrCorruptToken indicates the resume token cannot be read back
	ErrCorruptToken = errors.New("corrupt resume token")
)

// Store keeps the resume token in a storage backend
type Store struct {
	store storage.Store
	key   string
}

// New state store on some storage backend. Keys are relative to the git directory.
func New(store storage.Store) *Store {
	return &Store{store: store, key: model.GetPathToState()}
}

// NewInGitDir creates a state store in the git directory of a repository
func NewInGitDir(gitDir string) *Store {
	return New(localfs.NewAt(gitDir))
}

func (s *Store) String() string {
	return s.store.String()
}

// Exists tells if a resume token is saved
func (s *Store) Exists(ctx context.Context) (bool, error) {
	return s.store.Has(ctx, s.key)
}

// Load the resume token
func (s *Store) Load(ctx context.Context) (*model.ResumeToken, error) {
	buf, err := storage.ReadAll(ctx, s.store, s.key)
	if err != nil {
		if errors.Is(err, status.ErrNotExists) {
			return nil, ErrNoToken
		}
		return nil, err
	}

	var token model.ResumeToken
	if err = yaml.UnmarshalStrict(buf, &token); err != nil {
		return nil, ErrCorruptToken.Wrap(err)
	}
	if !token.Phase.IsValid() || !token.Mode.IsValid() {
		return nil, ErrCorruptToken.WrapMessage("phase %q, mode %q", token.Phase, token.Mode)
	}
	return &token, nil
}

// Save the resume token, replacing any previous one
func (s *Store) Save(ctx context.Context, token *model.ResumeToken) error {
	buf, err := yaml.Marshal(token)
	if err != nil {
		return err
	}
	return s.store.Put(ctx, s.key, bytes.NewReader(buf), storage.OverWrite)
}

// Clear removes the resume token
func (s *Store) Clear(ctx context.Context) error {
	return s.store.Delete(ctx, s.key)
}

// Storage exposes the backend, which also hosts private index files
func (s *Store) Storage() storage.Store {
	return s.store
}
