package main

import (
	"context"
	"flag"
	"fmt"
	"ipdrexporter/internal/cli"
	"ipdrexporter/internal/global"
	"ipdrexporter/internal/logctx"
	"os"
	"runtime"
)

func main() {
	global.CmdOpts = cli.DefineOptions()

	args := os.Args
	commandFlags := flag.NewFlagSet(args[0], flag.ExitOnError)
	cli.SetGlobalArguments(commandFlags)

	commandFlags.Usage = func() {
		cli.PrintHelpMenu(commandFlags, cli.RootCLICommand, global.CmdOpts)
	}
	if len(args) < 2 {
		cli.PrintHelpMenu(commandFlags, cli.RootCLICommand, global.CmdOpts)
		os.Exit(1)
	}
	commandFlags.Parse(args[1:])

	command := args[1]
	args = args[2:]

	// Global logger, level is raised by subcommand flags
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	logger := logctx.NewLogger("global", global.Verbosity, ctx.Done())
	ctx = logctx.WithLogger(ctx, logger)
	logctx.StartWatcher(logger, os.Stdout)

	switch command {
	case "export":
		cli.ExportMode(ctx, command, args)
	case "keygen":
		cli.KeygenMode(command, args)
	case "version":
		if len(args) > 0 && (args[0] == "--verbosity" || args[0] == "-v") {
			fmt.Printf("%s %s\n", global.ProgBaseName, global.ProgVersion)
			fmt.Printf("Built using %s(%s) for %s on %s\n", runtime.Version(), runtime.Compiler, runtime.GOOS, runtime.GOARCH)
		} else {
			fmt.Println(global.ProgVersion)
		}
	default:
		cli.PrintHelpMenu(commandFlags, cli.RootCLICommand, global.CmdOpts)
		os.Exit(1)
	}

	// Flush pending global log output
	cancel()
	logger.Wake()
	logger.Wait()
}
