package catalog

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/fedora-flatpak/flathub-filter/pkg/model"
)

// FilterHeader starts every generated filter
const FilterHeader = `# Autogenerated, do not edit
# See https://pagure.io/fedora-flathub-filter
#
# Deny by default
deny *
`

// Filter renders the flatpak filter allowing all included components.
//
// It returns the filter content, the sorted allowed rules, and the included apps whose runtime is
// not included.
func Filter(components model.Components) ([]byte, []string, map[string]string) {
	allowed := make([]string, 0, len(components))
	missing := make(map[string]string)
	for _, id := range components.IDs() {
		c := components[id]
		if c.Include != model.IncludeYes {
			continue
		}
		allowed = append(allowed, c.FilterRule())
		if !c.IsApp() || c.Runtime == "" {
			continue
		}
		if rt, ok := components[c.Runtime]; !ok || rt.Include != model.IncludeYes {
			missing[id] = c.Runtime
		}
	}
	sort.Strings(allowed)

	var b bytes.Buffer
	b.WriteString(FilterHeader)
	for _, rule := range allowed {
		fmt.Fprintf(&b, "allow %s\n", rule)
	}
	return b.Bytes(), allowed, missing
}
