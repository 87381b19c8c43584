package main

import (
	"log/slog"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/metadeploy/cmd/metadeploy/commands"
	"git.home.luguber.info/inful/metadeploy/internal/foundation/errors"
	"git.home.luguber.info/inful/metadeploy/internal/version"
)

func main() {
	cli := &commands.CLI{}
	ctx := kong.Parse(cli,
		kong.Name("metadeploy"),
		kong.Description("Promote platform metadata from a git repository to a target org."),
		kong.UsageOnError(),
		kong.Vars{"version": version.String()},
	)
	err := ctx.Run(&commands.Global{Logger: slog.Default()})
	errors.NewCLIErrorAdapter(cli.Verbose, slog.Default()).HandleError(err)
}
