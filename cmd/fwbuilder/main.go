package main

import (
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/fwbuilder/cmd/fwbuilder/commands"
	ferrors "git.home.luguber.info/inful/fwbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/fwbuilder/internal/version"
)

func main() {
	cli := &commands.CLI{}
	global := &commands.Global{Logger: slog.Default()}
	parser := kong.Must(cli,
		kong.Name("fwbuilder"),
		kong.Description("Remote firmware build service"),
		kong.UsageOnError(),
		kong.Vars{"version": version.String()},
		kong.Bind(global),
	)

	kctx, err := parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)

	if err := kctx.Run(cli); err != nil {
		ferrors.NewCLIErrorAdapter(cli.Verbose, slog.Default()).HandleError(err)
	}
}
