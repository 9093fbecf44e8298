// Exporter daemon: wires record ingest, the event loop, transports and the
// exporter together from configuration
package daemon

import (
	"context"
	"errors"
	"fmt"
	"ipdrexporter/internal/bufpool"
	"ipdrexporter/internal/daemon/server"
	"ipdrexporter/internal/events"
	"ipdrexporter/internal/exporter"
	"ipdrexporter/internal/global"
	"ipdrexporter/internal/ingest"
	"ipdrexporter/internal/logctx"
	"ipdrexporter/internal/params"
	"ipdrexporter/internal/reactor"
	"ipdrexporter/internal/seal"
	"ipdrexporter/internal/template"
	"ipdrexporter/internal/transport/tcp"
	"ipdrexporter/pkg/protocol"
	"net/http"
	"os"
	"sync"
	"time"
)

// Create new exporting daemon instance. configPath is re-read on reload.
func NewDaemon(cfg Config, configPath string) (new *Daemon) {
	ctx, cancel := context.WithCancel(context.Background())
	new = &Daemon{
		cfg:        cfg,
		configPath: configPath,
		ctx:        ctx,
		cancel:     cancel,
		catalog:    make(ingest.Catalog),
		stopped:    make(chan struct{}),
	}
	return
}

// Builds and starts every component - gracefully shuts down if startup error is encountered
func (daemon *Daemon) Start(globalCtx context.Context) (err error) {
	// New context for the daemon
	daemon.ctx, daemon.cancel = context.WithCancel(context.Background())
	daemon.ctx = context.WithValue(daemon.ctx, global.LoggerKey, logctx.GetLogger(globalCtx))
	daemon.ctx = logctx.AppendCtxTag(daemon.ctx, global.NSDaemon)

	logctx.LogEvent(daemon.ctx, global.VerbosityStandard, global.InfoLog, "Starting...\n")

	daemon.params = params.NewTable(daemon.cfg.Parameters)

	err = daemon.openSinks()
	if err != nil {
		daemon.Shutdown()
		return
	}

	// Event loop and transport stack
	daemon.loop, err = reactor.New(daemon.ctx, nil, global.DefaultMailboxSize)
	if err != nil {
		err = fmt.Errorf("failed creating event loop: %w", err)
		daemon.Shutdown()
		return
	}
	daemon.tcp = tcp.New(daemon.ctx, daemon.cfg.Transport, daemon.loop)
	keys := daemon.cfg.sealKeys()
	daemon.seal = seal.NewTransport(daemon.ctx, daemon.tcp, keys, daemon.cfg.PrivateKey)

	tuning := exporter.TuningFromParams(daemon.params)
	if len(keys) > 0 {
		tuning.Capabilities |= protocol.CapSealedEnvelope
	}
	daemon.exporter = exporter.New(daemon.ctx, daemon.seal, daemon.loop, daemon.sinks, tuning)
	daemon.tcp.Attach(daemon.seal.Handler(daemon.exporter))

	// Loop is not running yet, registration happens on this goroutine
	err = daemon.register()
	if err != nil {
		daemon.Shutdown()
		return
	}

	loopCtx := daemon.ctx
	daemon.loopDone = make(chan struct{})
	go func() {
		defer close(daemon.loopDone)
		loopErr := daemon.loop.Run(loopCtx)
		if loopErr != nil && !errors.Is(loopErr, context.Canceled) {
			logctx.LogEvent(loopCtx, global.VerbosityStandard, global.ErrorLog, "event loop stopped: %v\n", loopErr)
		}
	}()

	var startErr error
	err = daemon.onLoop(daemon.ctx, func() {
		startErr = daemon.exporter.Start()
		for _, session := range daemon.cfg.Sessions {
			if startErr != nil {
				return
			}
			startErr = daemon.exporter.StartSession(session.ID)
		}
	})
	if err == nil {
		err = startErr
	}
	if err != nil {
		err = fmt.Errorf("failed starting exporter: %w", err)
		daemon.Shutdown()
		return
	}

	// Record source
	daemon.source, err = ingest.Open(daemon.ctx, []string{global.NSDaemon}, daemon.cfg.InputPath, daemon.cfg.InputFollow, daemon.catalog, daemon.submit)
	if err != nil {
		daemon.Shutdown()
		return
	}

	// Metrics
	daemon.gatherer = NewGatherer(daemon.cfg.MetricCollectionInterval, daemon.cfg.MetricMaxAge,
		daemon.loop,
		daemon.tcp,
		daemon.source,
		loopCollector{ctx: daemon.ctx, run: daemon.onLoop, collector: daemon.exporter},
	)
	workerCtx := daemon.ctx
	daemon.wg.Add(1)
	go func() {
		defer daemon.wg.Done()
		daemon.gatherer.Run(workerCtx)
	}()

	if daemon.cfg.MetricQueryServerEnabled {
		serverCtx := logctx.AppendCtxTag(daemon.ctx, global.NSMetric)
		serverCtx = logctx.AppendCtxTag(serverCtx, global.NSMetricSrv)

		daemon.MetricServer = server.SetupListener(serverCtx, daemon.cfg.MetricQueryServerPort, server.Handlers{
			Search:    daemon.gatherer.Registry.Search,
			Discover:  daemon.gatherer.Registry.Discover,
			Aggregate: daemon.gatherer.Registry.Aggregate,
			Status:    daemon.Status,
		})
		daemon.wg.Add(1)
		go func() {
			defer daemon.wg.Done()
			server.Start(serverCtx, daemon.MetricServer)
		}()
	}

	// Ingest last so records only arrive once sessions exist
	var ingestCtx context.Context
	ingestCtx, daemon.ingestEnd = context.WithCancel(daemon.ctx)
	daemon.ingestWG.Add(1)
	go func() {
		defer daemon.ingestWG.Done()
		runErr := daemon.source.Run(ingestCtx)
		if runErr != nil {
			logctx.LogEvent(ingestCtx, global.VerbosityStandard, global.ErrorLog, "record source stopped: %v\n", runErr)
			return
		}
		logctx.LogEvent(ingestCtx, global.VerbosityStandard, global.InfoLog, "record source finished\n")
	}()

	logctx.LogEvent(daemon.ctx, global.VerbosityStandard, global.InfoLog, "Startup complete.\n")
	return
}

// Creates the configured event sinks
func (daemon *Daemon) openSinks() (err error) {
	if daemon.cfg.LogEvents {
		daemon.sinks = append(daemon.sinks, events.NewLogSink(daemon.ctx))
	}

	if daemon.cfg.BeatsEndpoint != "" {
		var beats *events.BeatsSink
		beats, err = events.NewBeatsSink(daemon.ctx, daemon.cfg.BeatsEndpoint)
		if err != nil {
			err = fmt.Errorf("failed creating beats event sink: %w", err)
			return
		}
		daemon.sinks = append(daemon.sinks, beats)
		daemon.closers = append(daemon.closers, beats.Close)
	}

	if daemon.cfg.StreamFile != "" {
		var file *os.File
		file, err = os.OpenFile(daemon.cfg.StreamFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
		if err != nil {
			err = fmt.Errorf("failed opening event stream file: %w", err)
			return
		}
		stream := events.NewStreamSink(file, daemon.cfg.StreamTag)
		daemon.sinks = append(daemon.sinks, stream)
		daemon.closers = append(daemon.closers, stream.Close)
	}
	return
}

// Adds peers, sessions and bindings to the exporter and the ingest catalog
func (daemon *Daemon) register() (err error) {
	for _, peer := range daemon.cfg.Peers {
		_, err = daemon.exporter.AddPeer(peer.Name, peer.Address, peer.Port)
		if err != nil {
			err = fmt.Errorf("failed adding peer: %w", err)
			return
		}
	}

	for _, session := range daemon.cfg.Sessions {
		var set *template.Set
		set, err = ingest.BuildSet(session.ConfigID, session.Templates)
		if err != nil {
			err = fmt.Errorf("session %d: invalid templates: %w", session.ID, err)
			return
		}

		var tc *exporter.TransmissionContext
		tc, err = exporter.NewTransmissionContext(session.ID, bufpool.ConfigFromParams(daemon.params), set)
		if err != nil {
			set.Release()
			return
		}

		_, err = daemon.exporter.AddSession(session.ID, session.Name, session.Description, tc)
		if err != nil {
			err = fmt.Errorf("failed adding session: %w", err)
			return
		}

		err = daemon.catalog.Add(session.ID, session.Templates)
		if err != nil {
			return
		}

		for _, binding := range session.Bindings {
			_, err = daemon.exporter.Bind(session.ID, binding.Peer, binding.Priority)
			if err != nil {
				err = fmt.Errorf("failed binding session %d to %s: %w", session.ID, binding.Peer, err)
				return
			}
		}
		logctx.LogEvent(daemon.ctx, global.VerbosityProgress, global.InfoLog,
			"registered session %d (%s) with %d templates and %d peers\n",
			session.ID, session.Name, len(session.Templates), len(session.Bindings))
	}
	return
}

// Runs fn on the event loop and waits for it to finish.
// If ctx ends before fn starts, fn is skipped so it never touches caller state
// after return.
func (daemon *Daemon) onLoop(ctx context.Context, fn func()) (err error) {
	var mutex sync.Mutex
	abandoned := false
	done := make(chan struct{})

	err = daemon.loop.PostWait(ctx, func() {
		mutex.Lock()
		defer mutex.Unlock()
		if abandoned {
			return
		}
		defer close(done)
		fn()
	})
	if err != nil {
		return
	}

	select {
	case <-done:
	case <-ctx.Done():
		// Blocks while fn is running
		mutex.Lock()
		select {
		case <-done:
		default:
			abandoned = true
			err = ctx.Err()
		}
		mutex.Unlock()
	}
	return
}

// Hands an ingested record to the exporter. Exporter refusals are logged
// and the source keeps reading; only a stopped loop ends ingest.
func (daemon *Daemon) submit(ctx context.Context, sessionID uint8, templateID uint16, rec template.Record) (err error) {
	var dsn uint64
	var submitErr error
	err = daemon.onLoop(ctx, func() {
		dsn, submitErr = daemon.exporter.Submit(sessionID, templateID, rec)
	})
	if err != nil {
		return
	}
	if submitErr != nil {
		logctx.LogEvent(ctx, global.VerbosityStandard, global.WarnLog,
			"record for session %d template %d not queued: %v\n", sessionID, templateID, submitErr)
		return
	}
	logctx.LogEvent(ctx, global.VerbosityFullData, global.InfoLog,
		"session %d queued record %d\n", sessionID, dsn)
	return
}

// Snapshot of peers, sessions and bindings
func (daemon *Daemon) Status(ctx context.Context) (status exporter.Status, err error) {
	var snapshot exporter.Status
	err = daemon.onLoop(ctx, func() {
		snapshot = daemon.exporter.Status()
	})
	if err == nil {
		status = snapshot
	}
	return
}

// Blocks until Shutdown has finished
func (daemon *Daemon) Run() {
	<-daemon.stopped
}

// Stops ingest, tells collectors the sessions are over and tears down the loop
func (daemon *Daemon) Shutdown() {
	logctx.LogEvent(daemon.ctx, global.VerbosityStandard, global.InfoLog,
		"Daemon shutdown started...\n")

	// Stop reading records
	if daemon.ingestEnd != nil {
		daemon.ingestEnd()
		daemon.ingestEnd = nil

		// stdin reads cannot be interrupted
		ingestDone := make(chan struct{})
		go func() {
			daemon.ingestWG.Wait()
			close(ingestDone)
		}()
		select {
		case <-ingestDone:
		case <-time.After(global.ExportShutdownTimeout):
			logctx.LogEvent(daemon.ctx, global.VerbosityStandard, global.WarnLog,
				"record source still blocked in read, continuing shutdown\n")
		}
	}

	// Stop metric server
	if daemon.MetricServer != nil {
		err := daemon.MetricServer.Shutdown(daemon.ctx)
		if err != nil && err != http.ErrServerClosed {
			logctx.LogEvent(daemon.ctx, global.VerbosityStandard, global.WarnLog,
				"metric HTTP server did not shutdown gracefully: %v\n", err)
		}
		daemon.MetricServer = nil
	}

	// Session stops and disconnects go out while the loop still runs
	if daemon.loopDone != nil {
		stopCtx, stop := context.WithTimeout(daemon.ctx, global.ExportShutdownTimeout)
		err := daemon.onLoop(stopCtx, daemon.exporter.Shutdown)
		stop()
		if err != nil {
			logctx.LogEvent(daemon.ctx, global.VerbosityStandard, global.WarnLog,
				"exporter did not stop cleanly: %v\n", err)
		}
	}
	if daemon.tcp != nil {
		daemon.tcp.Shutdown()
	}
	if daemon.loopDone != nil {
		daemon.loop.Stop()
		<-daemon.loopDone
		daemon.loopDone = nil
	}

	// Stop the gatherer and anything else tied to the daemon context
	daemon.cancel()

	done := make(chan struct{})
	go func() {
		daemon.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(global.ExportShutdownTimeout):
		logctx.LogEvent(daemon.ctx, global.VerbosityStandard, global.WarnLog,
			"Timeout: workers did not stop within %v\n", global.ExportShutdownTimeout)
	}

	for _, closeSink := range daemon.closers {
		err := closeSink()
		if err != nil {
			logctx.LogEvent(daemon.ctx, global.VerbosityStandard, global.WarnLog,
				"event sink did not close cleanly: %v\n", err)
		}
	}
	daemon.closers = nil

	logctx.LogEvent(daemon.ctx, global.VerbosityStandard, global.InfoLog,
		"Daemon shutdown completed\n")
	daemon.stopOnce.Do(func() { close(daemon.stopped) })
}
