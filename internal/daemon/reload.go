package daemon

import (
	"context"
	"errors"
	"fmt"
	"ipdrexporter/internal/global"
	"ipdrexporter/internal/logctx"
)

var ErrNoConfigPath = errors.New("daemon has no config file to reload")

// Re-reads the config file. Parameters are replaced for future pools and
// sessions, and binding priorities are applied to the running exporter.
// Peers and sessions are fixed for the life of the process.
func (daemon *Daemon) Reload(ctx context.Context) (err error) {
	if daemon.configPath == "" {
		err = ErrNoConfigPath
		return
	}

	jsonCfg, err := LoadConfig(daemon.configPath)
	if err != nil {
		return
	}
	next, err := jsonCfg.NewDaemonConf()
	if err != nil {
		err = fmt.Errorf("reloaded config rejected: %w", err)
		return
	}

	daemon.params.Replace(next.Parameters)
	daemon.cfg.Parameters = next.Parameters

	var changed int
	var priorityErr error
	err = daemon.onLoop(ctx, func() {
		for _, session := range next.Sessions {
			if daemon.exporter.Session(session.ID) == nil {
				logctx.LogEvent(daemon.ctx, global.VerbosityStandard, global.WarnLog,
					"reload cannot add session %d, restart required\n", session.ID)
				continue
			}
			for _, binding := range session.Bindings {
				peer := daemon.exporter.Peer(binding.Peer)
				if peer == nil {
					logctx.LogEvent(daemon.ctx, global.VerbosityStandard, global.WarnLog,
						"reload cannot add peer %s, restart required\n", binding.Peer)
					continue
				}
				if current := bindingPriority(daemon, session.ID, binding.Peer); current == binding.Priority {
					continue
				}
				setErr := daemon.exporter.SetPriority(session.ID, binding.Peer, binding.Priority)
				if setErr != nil {
					priorityErr = errors.Join(priorityErr, setErr)
					continue
				}
				changed++
			}
		}
	})
	if err == nil {
		err = priorityErr
	}

	logctx.LogEvent(daemon.ctx, global.VerbosityStandard, global.InfoLog,
		"reloaded %d parameters, %d binding priorities changed\n", daemon.params.Len(), changed)
	return
}

// Current priority of a binding, -1 when unbound. Loop goroutine only.
func bindingPriority(daemon *Daemon, sessionID uint8, peerName string) (priority int) {
	priority = -1
	session := daemon.exporter.Session(sessionID)
	if session == nil {
		return
	}
	for _, binding := range session.Bindings() {
		if binding.Peer().Name == peerName {
			priority = binding.Priority
			return
		}
	}
	return
}
