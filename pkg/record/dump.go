package record

import (
	"bufio"
	"io"

	"github.com/fedora-flatpak/flathub-filter/pkg/model"
)

// Dump writes components in the given order
func Dump(w io.Writer, components []*model.Component) error {
	bw := bufio.NewWriter(w)
	for i, c := range components {
		if i > 0 {
			_ = bw.WriteByte('\n')
		}
		if err := dumpOne(bw, c); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func dumpOne(w *bufio.Writer, c *model.Component) error {
	if _, err := w.WriteString("[" + c.ID + "]\n"); err != nil {
		return err
	}
	for _, field := range model.Fields {
		value, ok := c.Value(field)
		if !ok {
			continue
		}
		line := field.Label() + ":"
		if value != "" {
			// no trailing space on empty values
			line += " " + value
		}
		if _, err := w.WriteString(line + "\n"); err != nil {
			return err
		}
	}
	return nil
}
