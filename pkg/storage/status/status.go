// Package status declares error constants returned by
// implementations of the Store interface.
//
// NOTE: such constants are located in a separate package to avoid
// creating undue cyclical dependencies between pkg/storage and one
// of its implementations.
package status

import "github.com/fedora-flatpak/flathub-filter/pkg/errors"

var (
	// ErrNotExists indicates that the fetched object does not exist on storage
	ErrNotExists = errors.New("object doesn't exist")

	// ErrExists indicates that the resource already exists and cannot be overridden
	ErrExists = errors.New("exists already")

	// ErrInvalidKey indicates a key which conflicts with the staging area of the store
	ErrInvalidKey = errors.New("invalid storage key")

	// ErrStorage indicates any other storage error
	ErrStorage = errors.New("storage error")
)
