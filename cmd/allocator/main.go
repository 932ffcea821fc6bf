// Command allocator runs portfolio optimizations from the command line.
package main

import (
	"context"
	"flag"
	"os"
	"path"

	"github.com/google/subcommands"

	"github.com/aristath/allocator/internal/cli"
)

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	commander.Register(commander.CommandsCommand(), "")
	cli.Register(commander, os.Stdout)

	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}
