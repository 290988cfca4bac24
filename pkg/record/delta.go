package record

import (
	"fmt"
	"sort"
	"strings"

	"github.com/fedora-flatpak/flathub-filter/pkg/model"
)

// ChangeKind qualifies a record-level change
type ChangeKind string

const (
	// Added records only exist on the "to" side
	Added ChangeKind = "added"

	// Removed records only exist on the "from" side
	Removed ChangeKind = "removed"

	// Modified records exist on both sides with different field values
	Modified ChangeKind = "modified"
)

// FieldChange is a change to one field of a record
type FieldChange struct {
	Field model.Field
	From  string
	To    string
}

// Change is a record-level change between two sets of components
type Change struct {
	ID     string
	Kind   ChangeKind
	Fields []FieldChange
}

// Delta is the set of record-level changes between two sets of components, sorted by id
type Delta []Change

// Diff computes the record-level changes from one set of components to another, considering
// only the given fields (all fields when none is given).
//
// Records compare by id, never by position.
func Diff(from, to model.Components, fields ...model.Field) Delta {
	if len(fields) == 0 {
		fields = model.Fields
	}

	var delta Delta
	for id, target := range to {
		source, found := from[id]
		if !found {
			source = model.NewComponent(id)
		}
		changes := diffFields(source, target, fields)
		switch {
		case !found:
			delta = append(delta, Change{ID: id, Kind: Added, Fields: changes})
		case len(changes) > 0:
			delta = append(delta, Change{ID: id, Kind: Modified, Fields: changes})
		}
	}
	for id, source := range from {
		if _, found := to[id]; found {
			continue
		}
		delta = append(delta, Change{ID: id, Kind: Removed, Fields: diffFields(source, model.NewComponent(id), fields)})
	}

	sort.Slice(delta, func(i, j int) bool { return delta[i].ID < delta[j].ID })
	return delta
}

func diffFields(a, b *model.Component, fields []model.Field) []FieldChange {
	var changes []FieldChange
	for _, field := range fields {
		va, _ := a.Value(field)
		vb, _ := b.Value(field)
		if va != vb {
			changes = append(changes, FieldChange{Field: field, From: va, To: vb})
		}
	}
	return changes
}

// EditorialDiff computes the changes humans made: editorial fields only, ignoring added
// records without any editorial value and removed records.
func EditorialDiff(from, to model.Components) Delta {
	full := Diff(from, to, model.EditorialFields...)
	delta := full[:0]
	for _, change := range full {
		if change.Kind == Removed || len(change.Fields) == 0 {
			continue
		}
		delta = append(delta, change)
	}
	return delta
}

// IsEmpty tells if the delta carries no change
func (d Delta) IsEmpty() bool {
	return len(d) == 0
}

// Apply merges the delta into some components, by record id. Fields of the delta override
// the target's values. Changes to records absent from the target are dropped and reported.
//
// Removals have no effect: records are owned by the upstream catalog.
func (d Delta) Apply(target model.Components) (applied, dropped []string) {
	for _, change := range d {
		if change.Kind == Removed {
			continue
		}
		c, ok := target[change.ID]
		if !ok {
			dropped = append(dropped, change.ID)
			continue
		}
		for _, fc := range change.Fields {
			if !fc.Field.IsEditorial() {
				continue
			}
			c.SetEditorial(fc.Field, fc.To)
		}
		applied = append(applied, change.ID)
	}
	return applied, dropped
}

func (d Delta) String() string {
	var b strings.Builder
	for _, change := range d {
		fmt.Fprintf(&b, "%s [%s]\n", change.Kind, change.ID)
		for _, fc := range change.Fields {
			fmt.Fprintf(&b, "  %s: %q -> %q\n", fc.Field.Label(), fc.From, fc.To)
		}
	}
	return b.String()
}

// MergeEditorial takes the editorial fields of other into c. With a nil base, all editorial
// fields of other are taken; otherwise only those which other changed relative to base.
func MergeEditorial(c, base, other *model.Component) {
	for _, field := range model.EditorialFields {
		value := other.Editorial(field)
		if base == nil || value != base.Editorial(field) {
			c.SetEditorial(field, value)
		}
	}
}
