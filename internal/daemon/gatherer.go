package daemon

import (
	"context"
	"ipdrexporter/internal/global"
	"ipdrexporter/internal/logctx"
	"ipdrexporter/internal/metrics"
	"runtime/debug"
	"time"
)

// Ticks between registry prunes
const pruneEvery int = 30

// Periodically records component metrics into a registry
type Gatherer struct {
	Interval   time.Duration     // Desired record interval
	Retention  time.Duration     // Maximum time to keep metrics for
	Registry   *metrics.Registry // Storage for metric data
	collectors []metrics.Collector
}

func NewGatherer(interval, retention time.Duration, collectors ...metrics.Collector) (gatherer *Gatherer) {
	gatherer = &Gatherer{
		Interval:   interval,
		Retention:  retention,
		Registry:   metrics.New(),
		collectors: collectors,
	}
	return
}

func (gatherer *Gatherer) Run(ctx context.Context) {
	ctx = logctx.AppendCtxTag(ctx, global.NSMetric)

	lastRun := time.Now()

	ticker := time.NewTicker(gatherer.Interval / 2) // poll at half the record interval
	defer ticker.Stop()

	var tickCount int
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if now.Sub(lastRun) >= gatherer.Interval {
				lastRun = now
				gatherer.collect(ctx, now)
			}

			tickCount++
			if tickCount >= pruneEvery {
				gatherer.Registry.Prune(now, gatherer.Retention)
				tickCount = 0
			}
		}
	}
}

// Records one interval. Panics are logged and collection resumes next interval.
func (gatherer *Gatherer) collect(ctx context.Context, now time.Time) {
	defer func() {
		if fatalError := recover(); fatalError != nil {
			stack := debug.Stack()
			logctx.LogEvent(ctx, global.VerbosityStandard, global.ErrorLog,
				"panic in metric collector: %v\n%s", fatalError, stack)
		}
	}()

	count := gatherer.Registry.Gather(now, gatherer.Interval, gatherer.collectors...)
	logctx.LogEvent(ctx, global.VerbosityDebug, global.InfoLog, "recorded %d metrics\n", count)
}

// Collects from a component owned by the event loop
type loopCollector struct {
	ctx       context.Context
	run       func(ctx context.Context, fn func()) error
	collector metrics.Collector
}

func (lc loopCollector) CollectMetrics(interval time.Duration) (collection []metrics.Metric) {
	var gathered []metrics.Metric
	err := lc.run(lc.ctx, func() {
		gathered = lc.collector.CollectMetrics(interval)
	})
	if err != nil {
		logctx.LogEvent(lc.ctx, global.VerbosityProgress, global.WarnLog,
			"skipped loop owned metrics: %v\n", err)
		return
	}
	collection = gathered
	return
}
