package catalog

import (
	"bytes"
	"context"
	"path"
	"sort"

	"github.com/fedora-flatpak/flathub-filter/pkg/errors"
	"github.com/fedora-flatpak/flathub-filter/pkg/model"
	"github.com/fedora-flatpak/flathub-filter/pkg/record"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// ErrGenerate indicates the artifacts could not be regenerated
var ErrGenerate = errors.New("cannot regenerate artifacts")

const newSuffix = ".new"

// Dirs locates the artifact sets involved in a regeneration.
//
// Input holds the artifacts whose editorial fields are carried over. When DeltaFrom and
// DeltaTo are both set, the editorial changes from DeltaFrom to DeltaTo are merged on top.
// Output receives the regenerated artifacts. Empty directories are skipped.
type Dirs struct {
	Input     string
	DeltaFrom string
	DeltaTo   string
	Output    string
}

// Report summarizes a regeneration
type Report struct {
	Apps    int
	Others  int
	Allowed []string

	// Dropped lists records changed by the delta which are not known upstream
	Dropped []string

	// MissingRuntimes maps included apps to their runtime, when that runtime is not included
	MissingRuntimes map[string]string
}

// Generator regenerates tracked artifacts from a fixed upstream catalog
type Generator struct {
	upstream *Upstream
	settings
}

// NewGenerator builds a generator over some upstream catalog
func NewGenerator(upstream *Upstream, opts ...Option) *Generator {
	g := &Generator{
		upstream: upstream,
		settings: defaultSettings(),
	}
	for _, apply := range opts {
		apply(&g.settings)
	}
	return g
}

// Regenerate writes apps.txt, other.txt and filter.txt into dirs.Output.
//
// Statistical fields are taken from upstream. Editorial fields are taken from the input
// artifacts, then from the delta. Records not in the upstream catalog are dropped.
func (g *Generator) Regenerate(ctx context.Context, fs afero.Fs, dirs Dirs) (*Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if dirs.Output == "" {
		return nil, ErrGenerate.WrapMessage("no output directory")
	}

	components, report, err := g.merge(fs, dirs)
	if err != nil {
		return nil, err
	}

	apps, others := g.rank(components)
	report.Apps, report.Others = len(apps), len(others)

	filter, allowed, missing := Filter(components)
	report.Allowed, report.MissingRuntimes = allowed, missing
	for _, id := range sortedKeys(missing) {
		g.l.Warn("included app requires a runtime which is not included",
			zap.String("app", id),
			zap.String("runtime", missing[id]),
		)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var appsBuf, othersBuf bytes.Buffer
	if err = record.Dump(&appsBuf, apps); err != nil {
		return nil, ErrGenerate.Wrap(err)
	}
	if err = record.Dump(&othersBuf, others); err != nil {
		return nil, ErrGenerate.Wrap(err)
	}
	if err = writeArtifacts(fs, dirs.Output, map[string][]byte{
		model.AppsFile:   appsBuf.Bytes(),
		model.OtherFile:  othersBuf.Bytes(),
		model.FilterFile: filter,
	}); err != nil {
		return nil, err
	}

	g.l.Debug("regenerated artifacts",
		zap.String("output", dirs.Output),
		zap.Int("apps", report.Apps),
		zap.Int("others", report.Others),
		zap.Int("allowed", len(report.Allowed)),
	)
	return report, nil
}

func (g *Generator) merge(fs afero.Fs, dirs Dirs) (model.Components, *Report, error) {
	components := make(model.Components, len(g.upstream.Components))
	for id, c := range g.upstream.Components {
		cc := *c
		cc.DownloadCount = g.upstream.Totals[id]
		cc.Comments, cc.Include, cc.DownloadRank = "", model.IncludeUnset, 0
		components[id] = &cc
	}

	if dirs.Input != "" {
		input, err := record.LoadDir(fs, dirs.Input)
		if err != nil {
			return nil, nil, ErrGenerate.Wrap(err)
		}
		for id, c := range input {
			if target, ok := components[id]; ok {
				record.MergeEditorial(target, nil, c)
			}
		}
	}

	report := &Report{}
	if dirs.DeltaFrom == "" || dirs.DeltaTo == "" {
		return components, report, nil
	}

	from, err := record.LoadDir(fs, dirs.DeltaFrom)
	if err != nil {
		return nil, nil, ErrGenerate.Wrap(err)
	}
	to, err := record.LoadDir(fs, dirs.DeltaTo)
	if err != nil {
		return nil, nil, ErrGenerate.Wrap(err)
	}
	delta := record.EditorialDiff(from, to)
	applied, dropped := delta.Apply(components)
	for _, id := range dropped {
		g.l.Warn("edited record is not in the upstream catalog: dropped", zap.String("id", id))
	}
	g.l.Debug("merged editorial delta", zap.Int("applied", len(applied)), zap.Int("dropped", len(dropped)))
	report.Dropped = dropped
	return components, report, nil
}

// rank splits components into apps and others, ordered by descending downloads then
// descending id, and assigns ranks within each list
func (g *Generator) rank(components model.Components) (apps, others []*model.Component) {
	all := make([]*model.Component, 0, len(components))
	for _, c := range components {
		all = append(all, c)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].DownloadCount != all[j].DownloadCount {
			return all[i].DownloadCount > all[j].DownloadCount
		}
		return all[i].ID > all[j].ID
	})

	for _, c := range all {
		if c.IsApp() {
			apps = append(apps, c)
			c.DownloadRank = len(apps)
			continue
		}
		others = append(others, c)
		c.DownloadRank = len(others)
	}
	return apps, others
}

// writeArtifacts writes all new artifacts aside, then moves them in place
func writeArtifacts(fs afero.Fs, dir string, artifacts map[string][]byte) error {
	if err := fs.MkdirAll(dir, 0755); err != nil {
		return ErrGenerate.Wrap(err)
	}
	for _, name := range model.TrackedArtifacts {
		if err := afero.WriteFile(fs, path.Join(dir, name+newSuffix), artifacts[name], 0644); err != nil {
			return ErrGenerate.Wrap(err)
		}
	}
	for _, name := range model.TrackedArtifacts {
		target := path.Join(dir, name)
		if err := fs.Rename(target+newSuffix, target); err != nil {
			return ErrGenerate.Wrap(err)
		}
	}
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
