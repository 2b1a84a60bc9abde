package commands

import (
	"fmt"

	"git.home.luguber.info/inful/fwbuilder/internal/config"
)

// InitCmd implements the 'init' command.
type InitCmd struct {
	Force bool   `help:"Overwrite existing configuration file"`
	Path  string `arg:"" optional:"" help:"Destination (defaults to --config, then fwbuilder.yaml)" type:"path"`
}

func (i *InitCmd) Run(g *Global, root *CLI) error {
	path := i.Path
	if path == "" {
		path = root.Config
	}
	if path == "" {
		path = "fwbuilder.yaml"
	}
	if err := config.Init(path, i.Force); err != nil {
		return err
	}
	_, err := fmt.Fprintf(g.stdout(), "Wrote configuration to %s\n", path)
	return err
}
