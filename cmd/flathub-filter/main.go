package main

import (
	"github.com/fedora-flatpak/flathub-filter/cmd/flathub-filter/cmd"
)

func main() {
	cmd.Execute()
}
