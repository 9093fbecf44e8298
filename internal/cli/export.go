package cli

import (
	"context"
	"flag"
	"fmt"
	"ipdrexporter/internal/daemon"
	"ipdrexporter/internal/global"
	"ipdrexporter/internal/lifecycle"
	"ipdrexporter/internal/logctx"
	"os"
)

func ExportMode(ctx context.Context, commandname string, args []string) {
	var configPath string
	var inputPath string
	var follow bool
	commandFlags := flag.NewFlagSet(commandname, flag.ExitOnError)
	SetGlobalArguments(commandFlags)
	SetCommon(commandFlags, &configPath)
	commandFlags.StringVar(&inputPath, "i", "", "Record source path, - for stdin (overrides the config file)")
	commandFlags.StringVar(&inputPath, "input", "", "Record source path, - for stdin (overrides the config file)")
	commandFlags.BoolVar(&follow, "f", false, "Keep reading lines appended to the record source")
	commandFlags.BoolVar(&follow, "follow", false, "Keep reading lines appended to the record source")

	commandFlags.Usage = func() {
		PrintHelpMenu(commandFlags, commandname, global.CmdOpts)
	}
	commandFlags.Parse(args)
	logctx.SetLogLevel(ctx, global.Verbosity)

	jsonCfg, err := daemon.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if inputPath != "" {
		jsonCfg.Input.Path = inputPath
	}
	if follow {
		jsonCfg.Input.Follow = true
	}

	daemonConfig, err := jsonCfg.NewDaemonConf()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	exportDaemon := daemon.NewDaemon(daemonConfig, configPath)
	err = exportDaemon.Start(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error starting export daemon: %v\n", err)
		os.Exit(1)
	}

	err = lifecycle.NotifyReady(ctx)
	if err != nil {
		logctx.LogEvent(ctx, global.VerbosityStandard, global.WarnLog, "Systemd notify ready failed: %v\n", err)
	}
	go lifecycle.SignalHandler(ctx, exportDaemon)

	exportDaemon.Run()
}
