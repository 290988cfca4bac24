// Package localfs implements a Store on a local file system.
//
// Puts are atomic: objects are first written to a staging area, then renamed in place.
package localfs

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fedora-flatpak/flathub-filter/pkg/storage"
	"github.com/fedora-flatpak/flathub-filter/pkg/storage/status"
	"github.com/spf13/afero"
)

const nestedPutStageName = ".put-stage"

// New creates a new local file system backed store. Without a file system, the store is
// rooted in the current directory.
func New(fs afero.Fs) storage.Store {
	if fs == nil {
		fs = afero.NewBasePathFs(afero.NewOsFs(), ".")
	}
	return &localFS{fs: fs}
}

// NewAt creates a store rooted at some directory of the operating system's file system
func NewAt(dir string) storage.Store {
	return New(afero.NewBasePathFs(afero.NewOsFs(), dir))
}

type localFS struct {
	fs afero.Fs
}

func maybeInvalidKey(key string) error {
	parts := strings.Split(strings.TrimLeft(filepath.ToSlash(key), "/"), "/")
	if parts[0] == nestedPutStageName {
		return status.ErrInvalidKey.WrapMessage("key %q conflicts with put staging area name %q", key, nestedPutStageName)
	}
	return nil
}

func (l *localFS) Has(_ context.Context, key string) (bool, error) {
	if err := maybeInvalidKey(key); err != nil {
		return false, err
	}
	fi, err := l.fs.Stat(key)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, status.ErrStorage.Wrap(err)
	}
	return !fi.IsDir(), nil
}

func (l *localFS) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	has, err := l.Has(ctx, key)
	if err != nil {
		return nil, err
	}
	if !has {
		return nil, status.ErrNotExists.WrapMessage("%s", key)
	}
	f, err := l.fs.Open(key)
	if err != nil {
		return nil, status.ErrStorage.Wrap(err)
	}
	return f, nil
}

// Put writes an object to the staging area, then renames it into place
func (l *localFS) Put(ctx context.Context, key string, source io.Reader, exclusive bool) error {
	if err := maybeInvalidKey(key); err != nil {
		return err
	}
	if exclusive {
		has, err := l.Has(ctx, key)
		if err != nil {
			return err
		}
		if has {
			return status.ErrExists.WrapMessage("%s", key)
		}
	}

	stageKey := filepath.Join(nestedPutStageName, key)
	if err := l.fs.MkdirAll(filepath.Dir(stageKey), 0700); err != nil {
		return status.ErrStorage.WrapMessage("ensuring staging directories for %q", key).Wrap(err)
	}
	target, err := l.fs.OpenFile(stageKey, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return status.ErrStorage.WrapMessage("create record for %q", key).Wrap(err)
	}
	if _, err = io.Copy(target, source); err != nil {
		_ = target.Close()
		return status.ErrStorage.WrapMessage("write record for %q", key).Wrap(err)
	}
	if err = target.Sync(); err != nil {
		_ = target.Close()
		return status.ErrStorage.WrapMessage("sync record for %q", key).Wrap(err)
	}
	if err = target.Close(); err != nil {
		return status.ErrStorage.Wrap(err)
	}

	// Rename() doesn't create directories automatically
	if err = l.fs.MkdirAll(filepath.Dir(key), 0700); err != nil {
		return status.ErrStorage.WrapMessage("ensuring directories for %q", key).Wrap(err)
	}
	if err = l.fs.Rename(stageKey, key); err != nil {
		return status.ErrStorage.Wrap(err)
	}
	return nil
}

func (l *localFS) Delete(_ context.Context, key string) error {
	if err := maybeInvalidKey(key); err != nil {
		return err
	}
	if err := l.fs.Remove(key); err != nil && !os.IsNotExist(err) {
		return status.ErrStorage.WrapMessage("removing %q", key).Wrap(err)
	}
	return nil
}

// Keys lists all objects, sorted, skipping the staging area
func (l *localFS) Keys(_ context.Context) ([]string, error) {
	const root = "."
	if _, err := l.fs.Stat(root); os.IsNotExist(err) {
		return nil, nil
	}
	var res []string
	err := afero.Walk(l.fs, root, func(pth string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if info.Name() == nestedPutStageName {
				return filepath.SkipDir
			}
			return nil
		}
		res = append(res, filepath.ToSlash(pth))
		return nil
	})
	if err != nil {
		return nil, status.ErrStorage.Wrap(err)
	}
	sort.Strings(res)
	return res, nil
}

func (l *localFS) Clear(_ context.Context) error {
	entries, err := afero.ReadDir(l.fs, ".")
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return status.ErrStorage.Wrap(err)
	}
	for _, entry := range entries {
		if err := l.fs.RemoveAll(entry.Name()); err != nil {
			return status.ErrStorage.Wrap(err)
		}
	}
	return nil
}

func (l *localFS) String() string {
	const localfs = "localfs"
	switch fs := l.fs.(type) {
	case *afero.BasePathFs:
		pp, err := fs.RealPath("")
		if err != nil {
			return localfs
		}
		return localfs + "@" + pp
	default:
		return localfs
	}
}
