package model

import (
	"fmt"
	"sort"
	"strings"
)

// Inclusion is the editorial decision about a component
type Inclusion string

const (
	// IncludeUnset means nobody looked at the component yet
	IncludeUnset Inclusion = ""

	// IncludeYes allows the component through the filter
	IncludeYes Inclusion = "yes"

	// IncludeNo explicitly denies the component
	IncludeNo Inclusion = "no"
)

// IsValid checks the value of an inclusion
func (i Inclusion) IsValid() bool {
	switch i {
	case IncludeUnset, IncludeYes, IncludeNo:
		return true
	default:
		return false
	}
}

func (i Inclusion) String() string {
	return string(i)
}

// Field identifies one key of a component record
type Field string

// Known component fields, in the order they are written
const (
	FieldName          Field = "name"
	FieldHomepage      Field = "homepage"
	FieldLicense       Field = "license"
	FieldRuntime       Field = "runtime"
	FieldDownloads     Field = "downloads"
	FieldFedoraFlatpak Field = "fedora_flatpak"
	FieldComments      Field = "comments"
	FieldInclude       Field = "include"
)

// Fields lists all component fields in their canonical order
var Fields = []Field{
	FieldName,
	FieldHomepage,
	FieldLicense,
	FieldRuntime,
	FieldDownloads,
	FieldFedoraFlatpak,
	FieldComments,
	FieldInclude,
}

// EditorialFields are the fields decided by humans. All other fields are statistical
// and always come from the upstream catalog.
var EditorialFields = []Field{FieldComments, FieldInclude}

var fieldLabels = map[Field]string{
	FieldName:          "Name",
	FieldHomepage:      "Homepage",
	FieldLicense:       "License",
	FieldRuntime:       "Runtime",
	FieldDownloads:     "Downloads (new last month)",
	FieldFedoraFlatpak: "Fedora Flatpak",
	FieldComments:      "Comments",
	FieldInclude:       "Include",
}

// Label is the key written in the record format
func (f Field) Label() string {
	return fieldLabels[f]
}

// IsKnown tells if the field is part of the record format
func (f Field) IsKnown() bool {
	_, ok := fieldLabels[f]
	return ok
}

// IsEditorial tells if the field carries a human decision
func (f Field) IsEditorial() bool {
	return f == FieldComments || f == FieldInclude
}

// Component is one entry of the tracked artifacts
type Component struct {
	ID            string    `json:"id" yaml:"id"`
	Name          string    `json:"name,omitempty" yaml:"name,omitempty"`
	Homepage      string    `json:"homepage,omitempty" yaml:"homepage,omitempty"`
	License       string    `json:"license,omitempty" yaml:"license,omitempty"`
	Runtime       string    `json:"runtime,omitempty" yaml:"runtime,omitempty"`
	DownloadCount int64     `json:"downloads" yaml:"downloads"`
	DownloadRank  int       `json:"rank" yaml:"rank"`
	FedoraFlatpak bool      `json:"fedoraFlatpak" yaml:"fedoraFlatpak"`
	Comments      string    `json:"comments,omitempty" yaml:"comments,omitempty"`
	Include       Inclusion `json:"include,omitempty" yaml:"include,omitempty"`
	_             struct{}
}

// NewComponent builds an empty component with some id
func NewComponent(id string) *Component {
	return &Component{ID: id}
}

// IsApp tells apart applications from runtimes and extensions (ids with a branch)
func (c *Component) IsApp() bool {
	return !strings.Contains(c.ID, "/")
}

// Downloads renders the download statistics field
func (c *Component) Downloads() string {
	return fmt.Sprintf("%d (rank: %d)", c.DownloadCount, c.DownloadRank)
}

// Value renders a field as written in the record format. The boolean is false when the
// field is not set and must be omitted.
func (c *Component) Value(f Field) (string, bool) {
	switch f {
	case FieldName:
		return c.Name, c.Name != ""
	case FieldHomepage:
		return c.Homepage, c.Homepage != ""
	case FieldLicense:
		return c.License, c.License != ""
	case FieldRuntime:
		return c.Runtime, c.Runtime != ""
	case FieldDownloads:
		return c.Downloads(), true
	case FieldFedoraFlatpak:
		if c.FedoraFlatpak {
			return "True", true
		}
		return "False", true
	case FieldComments:
		return c.Comments, true
	case FieldInclude:
		return c.Include.String(), true
	default:
		return "", false
	}
}

// Editorial returns the value of an editorial field
func (c *Component) Editorial(f Field) string {
	switch f {
	case FieldComments:
		return c.Comments
	case FieldInclude:
		return c.Include.String()
	default:
		return ""
	}
}

// SetEditorial sets the value of an editorial field
func (c *Component) SetEditorial(f Field, value string) {
	switch f {
	case FieldComments:
		c.Comments = value
	case FieldInclude:
		c.Include = Inclusion(value)
	}
}

// FilterRule renders the allow rule for an included component
func (c *Component) FilterRule() string {
	parts := strings.SplitN(c.ID, "/", 2)
	if len(parts) == 1 {
		return parts[0]
	}
	return "runtime/" + parts[0] + "/*/" + parts[1]
}

// Components indexes components by id
type Components map[string]*Component

// IDs returns the sorted ids of the index
func (cs Components) IDs() []string {
	ids := make([]string, 0, len(cs))
	for id := range cs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
