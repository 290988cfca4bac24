// Package catalog regenerates the tracked artifacts from the upstream catalog.
//
// Upstream data is read from a cache directory populated by an external downloader:
//
//	flathub-remote-ls.txt              output of "flatpak remote-ls --columns=ref,runtime"
//	flathub-metadata.yaml              name, homepage and license of each component
//	fedora-remote-ls.txt               refs available as Fedora flatpaks
//	flathub-downloads-YYYY-MM-DD.json  daily download statistics
//
// Regeneration is a pure function of the cached upstream data and the input artifacts.
package catalog

import (
	"bufio"
	"os"
	"path"
	"strings"

	"github.com/fedora-flatpak/flathub-filter/pkg/errors"
	"github.com/fedora-flatpak/flathub-filter/pkg/model"
	"github.com/spf13/afero"
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"
)

var (
	// ErrCache indicates the upstream cache is missing or unreadable
	ErrCache = errors.New("cannot load upstream catalog cache")

	// ErrRef indicates a malformed flatpak ref
	ErrRef = errors.New("malformed flatpak ref")
)

// Upstream is the state of the upstream catalog
type Upstream struct {
	// Components holds the statistical fields of all upstream components, by id
	Components model.Components

	// Totals holds the new downloads over the statistics window, by id
	Totals map[string]int64
}

// Metadata is the cached descriptive data about one component
type Metadata struct {
	ID       string `json:"id" yaml:"id"`
	Name     string `json:"name,omitempty" yaml:"name,omitempty"`
	Homepage string `json:"homepage,omitempty" yaml:"homepage,omitempty"`
	License  string `json:"license,omitempty" yaml:"license,omitempty"`
	_        struct{}
}

// IDFromRef turns a flatpak ref into a component id:
//
//	app/org.gnome.Recipes/x86_64/stable               -> org.gnome.Recipes
//	runtime/org.freedesktop.Platform/x86_64/23.08     -> org.freedesktop.Platform/23.08
func IDFromRef(ref string) (string, error) {
	parts := strings.Split(ref, "/")
	if len(parts) != 4 {
		return "", ErrRef.WrapMessage("%q", ref)
	}
	switch parts[0] {
	case "app":
		return parts[1], nil
	case "runtime":
		return parts[1] + "/" + parts[3], nil
	default:
		return "", ErrRef.WrapMessage("%q: unknown kind %q", ref, parts[0])
	}
}

// runtimeID turns the runtime column of remote-ls (name/arch/branch) into a component id
func runtimeID(runtime string) (string, error) {
	parts := strings.Split(runtime, "/")
	if len(parts) != 3 {
		return "", ErrRef.WrapMessage("runtime %q", runtime)
	}
	return parts[0] + "/" + parts[2], nil
}

// LoadUpstream reads the upstream catalog from the cache directory
func LoadUpstream(fs afero.Fs, cacheDir string, opts ...Option) (*Upstream, error) {
	s := defaultSettings()
	for _, apply := range opts {
		apply(&s)
	}

	upstream := model.UpstreamRemote()
	components, err := loadRemoteList(fs, path.Join(cacheDir, model.GetPathToRemoteList(upstream)), true)
	if err != nil {
		return nil, err
	}
	if err = loadMetadata(fs, path.Join(cacheDir, model.GetPathToMetadata(upstream)), components, s.l); err != nil {
		return nil, err
	}

	fedora, err := loadRemoteList(fs, path.Join(cacheDir, model.GetPathToRemoteList(model.FedoraRemote())), false)
	if err != nil {
		return nil, err
	}
	for id := range fedora {
		if c, ok := components[id]; ok {
			c.FedoraFlatpak = true
		}
	}

	totals, err := loadTotals(fs, cacheDir, s)
	if err != nil {
		return nil, err
	}

	s.l.Debug("loaded upstream catalog",
		zap.Int("components", len(components)),
		zap.Int("fedora_flatpaks", len(fedora)),
		zap.Int("with_downloads", len(totals)),
	)
	return &Upstream{Components: components, Totals: totals}, nil
}

func loadRemoteList(fs afero.Fs, pth string, required bool) (model.Components, error) {
	components := make(model.Components)
	f, err := fs.Open(pth)
	if err != nil {
		if os.IsNotExist(err) && !required {
			return components, nil
		}
		return nil, ErrCache.Wrap(err)
	}
	defer func() {
		_ = f.Close()
	}()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		id, err := IDFromRef(fields[0])
		if err != nil {
			return nil, ErrCache.WrapMessage("%s", pth).Wrap(err)
		}
		c := model.NewComponent(id)
		if len(fields) > 1 {
			if c.Runtime, err = runtimeID(fields[1]); err != nil {
				return nil, ErrCache.WrapMessage("%s", pth).Wrap(err)
			}
		}
		components[id] = c
	}
	if err := scanner.Err(); err != nil {
		return nil, ErrCache.Wrap(err)
	}
	return components, nil
}

func loadMetadata(fs afero.Fs, pth string, components model.Components, l *zap.Logger) error {
	buffer, err := afero.ReadFile(fs, pth)
	if err != nil {
		if os.IsNotExist(err) {
			l.Warn("no cached metadata: names, homepages and licenses will be missing", zap.String("path", pth))
			return nil
		}
		return ErrCache.Wrap(err)
	}

	var entries []Metadata
	if err = yaml.Unmarshal(buffer, &entries); err != nil {
		return ErrCache.WrapMessage("%s", pth).Wrap(err)
	}
	for _, entry := range entries {
		c, ok := components[entry.ID]
		if !ok {
			l.Warn("component in metadata not in remote-ls", zap.String("id", entry.ID))
			continue
		}
		c.Name = entry.Name
		c.Homepage = entry.Homepage
		c.License = entry.License
	}
	return nil
}
