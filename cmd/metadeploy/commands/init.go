package commands

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"git.home.luguber.info/inful/metadeploy/internal/config"
)

// InitCmd implements the 'init' command.
type InitCmd struct {
	Force  bool   `help:"Overwrite existing configuration file"`
	Output string `short:"o" name:"output" help:"Output directory for generated config file"`
}

func (i *InitCmd) Run(_ *Global, root *CLI) error {
	if i.Output != "" {
		return RunInit(os.Stdout, filepath.Join(i.Output, "metadeploy.yaml"), i.Force)
	}
	return RunInit(os.Stdout, root.Config, i.Force)
}

// RunInit writes an example configuration to configPath.
func RunInit(w io.Writer, configPath string, force bool) error {
	fmt.Fprintln(w, "Initializing metadeploy project")
	fmt.Fprintf(w, "Writing configuration to %s\n", configPath)
	if err := config.Init(configPath, force); err != nil {
		fmt.Fprintln(w, "Initialization failed")
		return err
	}
	fmt.Fprintln(w, "initialized successfully")
	return nil
}
