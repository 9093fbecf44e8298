package lifecycle

import (
	"context"
	"ipdrexporter/internal/global"
	"ipdrexporter/internal/logctx"
	"os"
	"os/signal"
	"syscall"
)

type DaemonLike interface {
	Reload(ctx context.Context) (err error)
	Shutdown()
}

// Handles all incoming signals from external sources.
// SIGHUP reloads the daemon in place, every other handled signal shuts it
// down and returns.
func SignalHandler(ctx context.Context, daemonManager DaemonLike) {
	sigChan := make(chan os.Signal, 10)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigChan)

	handleSignals(ctx, daemonManager, sigChan)
}

func handleSignals(ctx context.Context, daemonManager DaemonLike, sigChan <-chan os.Signal) {
	for {
		var sig os.Signal
		select {
		case <-ctx.Done():
			return
		case sig = <-sigChan:
		}
		logctx.LogEvent(ctx, global.VerbosityStandard, global.InfoLog, "Received signal: %v\n", sig)

		if sig == syscall.SIGHUP {
			reload(ctx, daemonManager)
			continue
		}

		err := NotifyStopping(ctx)
		if err != nil {
			logctx.LogEvent(ctx, global.VerbosityStandard, global.WarnLog, "Systemd notify stopping failed: %v\n", err)
		}
		daemonManager.Shutdown()

		logger := logctx.GetLogger(ctx)
		if logger != nil {
			logger.Wake()
		}
		return
	}
}

func reload(ctx context.Context, daemonManager DaemonLike) {
	logctx.LogEvent(ctx, global.VerbosityStandard, global.InfoLog, "Beginning reload...\n")
	err := NotifyReload(ctx)
	if err != nil {
		logctx.LogEvent(ctx, global.VerbosityStandard, global.WarnLog, "Systemd notify reload failed: %v\n", err)
	}

	err = daemonManager.Reload(ctx)
	if err != nil {
		logctx.LogEvent(ctx, global.VerbosityStandard, global.ErrorLog, "Reload Error: %v\n", err)

		err = NotifyStatus(ctx, "Reload failed, running with previous configuration. Check daemon logs.")
		if err != nil {
			logctx.LogEvent(ctx, global.VerbosityStandard, global.WarnLog, "Systemd notify status failed: %v\n", err)
		}
	} else {
		logctx.LogEvent(ctx, global.VerbosityStandard, global.InfoLog, "Reload complete\n")
	}

	err = NotifyReady(ctx)
	if err != nil {
		logctx.LogEvent(ctx, global.VerbosityStandard, global.WarnLog, "Systemd notify ready failed: %v\n", err)
	}
}
