package rebase

import (
	"os"
	"path/filepath"

	"github.com/fedora-flatpak/flathub-filter/pkg/state"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// DefaultRefreshMessage is the message of the commit refreshing the data of the rebase target
const DefaultRefreshMessage = "Update download counts from upstream data\n"

// Option configures a Controller
type Option func(*Controller)

// Logger injects a logging facility
func Logger(l *zap.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.l = l
		}
	}
}

// Scratch sets the file system and directory where snapshots are materialized.
// Each run works in its own subdirectory, removed when the run exits.
func Scratch(fs afero.Fs, dir string) Option {
	return func(c *Controller) {
		if fs != nil {
			c.scratchFs = fs
		}
		if dir != "" {
			c.scratchDir = dir
		}
	}
}

// States sets where the resume token is kept. It defaults to the git directory.
func States(s *state.Store) Option {
	return func(c *Controller) {
		if s != nil {
			c.states = s
		}
	}
}

// RefreshMessage sets the message of the commit refreshing the data of the rebase target
func RefreshMessage(msg string) Option {
	return func(c *Controller) {
		if msg != "" {
			c.refreshMessage = msg
		}
	}
}

func defaultScratchDir() string {
	return filepath.Join(os.TempDir(), "flathub-filter")
}
