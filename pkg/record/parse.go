// Package record reads and writes the line-record format of the tracked artifacts.
//
// A file is a sequence of blocks, one per component:
//
//	[org.gnome.Recipes]
//	Name: Recipes
//	Downloads (new last month): 1234 (rank: 5)
//	Fedora Flatpak: False
//	Comments:
//	Include: yes
//
// Record identity is the bracketed id. Blocks are separated by a blank line.
package record

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/fedora-flatpak/flathub-filter/pkg/errors"
	"github.com/fedora-flatpak/flathub-filter/pkg/model"
	"github.com/spf13/afero"
)

// ErrSyntax is returned when a tracked artifact cannot be parsed
var ErrSyntax = errors.New("invalid record file")

var (
	parenthesizedRe = regexp.MustCompile(`\s*\([^)]*\)\s*`)
	downloadsRe     = regexp.MustCompile(`^(\d+) \(rank: (\d+)\)$`)
)

// normalizeKey turns a written key into a field: "Downloads (new last month)" -> downloads
func normalizeKey(raw string) model.Field {
	key := parenthesizedRe.ReplaceAllString(raw, " ")
	key = strings.ToLower(strings.TrimSpace(key))
	return model.Field(strings.ReplaceAll(key, " ", "_"))
}

// Parse reads records from r into components. Later records with the same id replace earlier ones.
//
// The name is only used to report errors.
func Parse(r io.Reader, name string, into model.Components) error {
	var (
		current *model.Component
		lineNo  int
	)
	syntaxErr := func(format string, args ...interface{}) error {
		return ErrSyntax.WrapMessage("%s: %d: %s", name, lineNo, fmt.Sprintf(format, args...))
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())

		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]"):
			id := line[1 : len(line)-1]
			if id == "" {
				return syntaxErr("empty component id")
			}
			current = model.NewComponent(id)
			into[id] = current
			continue
		}

		if current == nil {
			return syntaxErr("text before first component")
		}

		rawKey, value, found := strings.Cut(line, ":")
		if !found {
			return syntaxErr("expected 'Key: value', got %q", line)
		}
		field := normalizeKey(rawKey)
		if !field.IsKnown() {
			return syntaxErr("unknown key '%s'", rawKey)
		}
		value = strings.TrimSpace(value)

		if err := setField(current, field, value); err != nil {
			return syntaxErr("%v", err)
		}
	}

	if err := scanner.Err(); err != nil {
		return ErrSyntax.WrapMessage("%s", name).Wrap(err)
	}
	return nil
}

func setField(c *model.Component, field model.Field, value string) error {
	switch field {
	case model.FieldName:
		c.Name = value
	case model.FieldHomepage:
		c.Homepage = value
	case model.FieldLicense:
		c.License = value
	case model.FieldRuntime:
		c.Runtime = value
	case model.FieldDownloads:
		m := downloadsRe.FindStringSubmatch(value)
		if m == nil {
			return fmt.Errorf("downloads should read '<count> (rank: <rank>)', not '%s'", value)
		}
		c.DownloadCount, _ = strconv.ParseInt(m[1], 10, 64)
		c.DownloadRank, _ = strconv.Atoi(m[2])
	case model.FieldFedoraFlatpak:
		switch strings.ToLower(value) {
		case "true":
			c.FedoraFlatpak = true
		case "false", "":
			c.FedoraFlatpak = false
		default:
			return fmt.Errorf("fedora flatpak should be 'True' or 'False', not '%s'", value)
		}
	case model.FieldComments:
		c.Comments = value
	case model.FieldInclude:
		include := model.Inclusion(strings.ToLower(value))
		if !include.IsValid() {
			return fmt.Errorf("include should be 'yes' or 'no', not '%s'", value)
		}
		c.Include = include
	}
	return nil
}

// ParseFile reads one record file from some file system into components.
// A missing file is not an error.
func ParseFile(fs afero.Fs, pth string, into model.Components) error {
	f, err := fs.Open(pth)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer func() {
		_ = f.Close()
	}()
	return Parse(f, pth, into)
}

// LoadDir reads all record artifacts found in a directory
func LoadDir(fs afero.Fs, dir string) (model.Components, error) {
	components := make(model.Components)
	for _, name := range model.RecordArtifacts {
		if err := ParseFile(fs, path.Join(dir, name), components); err != nil {
			return nil, err
		}
	}
	return components, nil
}
