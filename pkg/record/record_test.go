package record

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fedora-flatpak/flathub-filter/pkg/errors"
	"github.com/fedora-flatpak/flathub-filter/pkg/model"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleApps = `[org.gnome.Recipes]
Name: Recipes
Homepage: https://wiki.gnome.org/Apps/Recipes
License: GPL-3.0+
Runtime: org.gnome.Platform/45
Downloads (new last month): 1500 (rank: 1)
Fedora Flatpak: True
Comments: reviewed by the WG
Include: yes

[org.example.Tool]
Name: Tool
Downloads (new last month): 12 (rank: 2)
Fedora Flatpak: False
Comments:
Include:
`

func parseString(t testing.TB, s string) model.Components {
	components := make(model.Components)
	require.NoError(t, Parse(strings.NewReader(s), "apps.txt", components))
	return components
}

func TestParse(t *testing.T) {
	components := parseString(t, sampleApps)
	require.Len(t, components, 2)

	recipes := components["org.gnome.Recipes"]
	require.NotNil(t, recipes)
	assert.Equal(t, "Recipes", recipes.Name)
	assert.Equal(t, "https://wiki.gnome.org/Apps/Recipes", recipes.Homepage)
	assert.Equal(t, "org.gnome.Platform/45", recipes.Runtime)
	assert.Equal(t, int64(1500), recipes.DownloadCount)
	assert.Equal(t, 1, recipes.DownloadRank)
	assert.True(t, recipes.FedoraFlatpak)
	assert.Equal(t, "reviewed by the WG", recipes.Comments)
	assert.Equal(t, model.IncludeYes, recipes.Include)

	tool := components["org.example.Tool"]
	require.NotNil(t, tool)
	assert.Empty(t, tool.Homepage)
	assert.Equal(t, model.IncludeUnset, tool.Include)
}

func TestParseIncludeIsCaseInsensitive(t *testing.T) {
	components := parseString(t, "[a]\nInclude: YES\n")
	assert.Equal(t, model.IncludeYes, components["a"].Include)
}

func TestParseErrors(t *testing.T) {
	for _, tc := range []struct {
		name  string
		input string
		wants string
	}{
		{name: "text before component", input: "Name: x\n", wants: "apps.txt: 1: text before first component"},
		{name: "unknown key", input: "[a]\nColour: blue\n", wants: "apps.txt: 2: unknown key 'Colour'"},
		{name: "bad include", input: "[a]\n\nInclude: maybe\n", wants: "apps.txt: 3: include should be 'yes' or 'no', not 'maybe'"},
		{name: "no colon", input: "[a]\nwhatever\n", wants: "apps.txt: 2: expected 'Key: value'"},
		{name: "bad downloads", input: "[a]\nDownloads (new last month): lots\n", wants: "downloads should read"},
		{name: "conflict markers", input: "[a]\n<<<<<<< HEAD\n", wants: "apps.txt: 2"},
		{name: "empty id", input: "[]\n", wants: "empty component id"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := Parse(strings.NewReader(tc.input), "apps.txt", make(model.Components))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrSyntax))
			assert.Contains(t, err.Error(), tc.wants)
		})
	}
}

func TestDumpRoundTrip(t *testing.T) {
	components := parseString(t, sampleApps)

	var buf bytes.Buffer
	require.NoError(t, Dump(&buf, []*model.Component{
		components["org.gnome.Recipes"],
		components["org.example.Tool"],
	}))
	assert.Equal(t, sampleApps, buf.String())
}

func TestDumpNoTrailingSpace(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Dump(&buf, []*model.Component{model.NewComponent("x")}))
	for _, line := range strings.Split(buf.String(), "\n") {
		assert.Equal(t, strings.TrimRight(line, " "), line)
	}
	assert.Equal(t, "[x]\nDownloads (new last month): 0 (rank: 0)\nFedora Flatpak: False\nComments:\nInclude:\n", buf.String())
}

func TestLoadDir(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/data/apps.txt", []byte(sampleApps), 0644))
	require.NoError(t, afero.WriteFile(fs, "/data/other.txt", []byte("[org.gnome.Platform/45]\nInclude: yes\n"), 0644))

	components, err := LoadDir(fs, "/data")
	require.NoError(t, err)
	assert.Equal(t, []string{"org.example.Tool", "org.gnome.Platform/45", "org.gnome.Recipes"}, components.IDs())

	// missing files are fine
	components, err = LoadDir(fs, "/nowhere")
	require.NoError(t, err)
	assert.Empty(t, components)
}

func TestEditorialDiffAndApply(t *testing.T) {
	base := parseString(t, sampleApps)
	current := parseString(t, sampleApps)
	current["org.example.Tool"].Include = model.IncludeYes
	current["org.example.Tool"].Comments = "looks fine"
	current["org.gnome.Recipes"].DownloadCount = 99999 // statistical: not part of the editorial delta
	current["org.new.App"] = &model.Component{ID: "org.new.App", Include: model.IncludeNo}
	current["org.new.Quiet"] = model.NewComponent("org.new.Quiet")
	delete(current, "org.gnome.Recipes")

	delta := EditorialDiff(base, current)
	require.Len(t, delta, 2)
	assert.Equal(t, "org.example.Tool", delta[0].ID)
	assert.Equal(t, Modified, delta[0].Kind)
	assert.Len(t, delta[0].Fields, 2)
	assert.Equal(t, "org.new.App", delta[1].ID)
	assert.Equal(t, Added, delta[1].Kind)

	last := parseString(t, sampleApps)
	last["org.example.Tool"].Comments = "upstream note"
	applied, dropped := delta.Apply(last)
	assert.Equal(t, []string{"org.example.Tool"}, applied)
	assert.Equal(t, []string{"org.new.App"}, dropped)
	assert.Equal(t, model.IncludeYes, last["org.example.Tool"].Include)
	assert.Equal(t, "looks fine", last["org.example.Tool"].Comments)
	// removals do not remove records
	assert.Contains(t, last, "org.gnome.Recipes")

	assert.Contains(t, delta.String(), `modified [org.example.Tool]`)
	assert.Contains(t, delta.String(), `Include: "" -> "yes"`)
}

func TestDiffAllFields(t *testing.T) {
	from := parseString(t, sampleApps)
	to := parseString(t, sampleApps)
	to["org.gnome.Recipes"].DownloadCount = 1
	delta := Diff(from, to)
	require.Len(t, delta, 1)
	require.Len(t, delta[0].Fields, 1)
	assert.Equal(t, model.FieldDownloads, delta[0].Fields[0].Field)
	assert.Equal(t, "1500 (rank: 1)", delta[0].Fields[0].From)
	assert.Equal(t, "1 (rank: 1)", delta[0].Fields[0].To)
	assert.True(t, Diff(from, from).IsEmpty())
}

func TestMergeEditorial(t *testing.T) {
	c := &model.Component{ID: "a", Comments: "mine", Include: model.IncludeNo}
	base := &model.Component{ID: "a", Comments: "old", Include: model.IncludeNo}
	other := &model.Component{ID: "a", Comments: "old", Include: model.IncludeYes}

	MergeEditorial(c, base, other)
	assert.Equal(t, "mine", c.Comments, "unchanged in other: keep ours")
	assert.Equal(t, model.IncludeYes, c.Include, "changed in other: take theirs")

	MergeEditorial(c, nil, &model.Component{ID: "a"})
	assert.Empty(t, c.Comments)
	assert.Equal(t, model.IncludeUnset, c.Include)
}

func TestUnifiedDiff(t *testing.T) {
	patch, err := UnifiedDiff("a/filter.txt", "b/filter.txt", []byte("deny *\n"), []byte("deny *\nallow org.gnome.Recipes\n"))
	require.NoError(t, err)
	assert.Contains(t, patch, "--- a/filter.txt")
	assert.Contains(t, patch, "+++ b/filter.txt")
	assert.Contains(t, patch, "+allow org.gnome.Recipes\n")

	patch, err = UnifiedDiff("a", "b", []byte("same\n"), []byte("same\n"))
	require.NoError(t, err)
	assert.Empty(t, patch)
}
