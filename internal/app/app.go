// Package app provides the top-level application lifecycle for the arbitrage
// monitor. It wires together sources, sinks, optional backends and the API,
// and runs them until the context is cancelled or the cycle budget is spent.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/Juuiko/cross-chain-arbitrage-monitor/internal/config"
	"github.com/Juuiko/cross-chain-arbitrage-monitor/internal/domain"
	"github.com/Juuiko/cross-chain-arbitrage-monitor/internal/monitor"
	"github.com/Juuiko/cross-chain-arbitrage-monitor/internal/pipeline"
	"github.com/Juuiko/cross-chain-arbitrage-monitor/internal/report"
	"github.com/Juuiko/cross-chain-arbitrage-monitor/internal/server"
	"github.com/Juuiko/cross-chain-arbitrage-monitor/internal/server/handler"
	"github.com/Juuiko/cross-chain-arbitrage-monitor/internal/server/ws"
)

const shutdownTimeout = 10 * time.Second

// Options tune a single run.
type Options struct {
	// MaxCycles stops the application after that many cycles. Zero runs
	// until the context is cancelled.
	MaxCycles int
}

// App is the root application object. It owns the configuration, logger, and a
// list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	opts    Options
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger, opts Options) *App {
	return &App{
		cfg:    cfg,
		opts:   opts,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires all dependencies, starts the monitor loop and the optional API and
// archiver, and blocks until ctx is cancelled or the monitor finishes its
// cycle budget. A clean stop returns nil.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.Int("symbols", len(a.cfg.Monitor.Symbols)),
		slog.Int("max_cycles", a.opts.MaxCycles),
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	var hub *ws.Hub
	if a.cfg.Server.Enabled {
		hub = ws.NewHub(deps.SignalBus, a.logger)
	}

	mon := monitor.New(a.monitorConfig(), monitor.Deps{
		Collector: deps.Collector,
		Reporters: a.reporters(deps, hub),
		Lock:      deps.LockManager,
		Clock:     deps.Clock,
		Metrics:   deps.Metrics,
		Logger:    a.logger,
	})

	g, gctx := errgroup.WithContext(ctx)
	runCtx, stop := context.WithCancel(gctx)
	defer stop()

	g.Go(func() error {
		defer stop()
		return mon.Run(runCtx)
	})

	if a.cfg.Server.Enabled {
		a.startHTTPServer(runCtx, g, deps, mon, hub)
	}

	if deps.Archiver != nil {
		archiver := pipeline.NewArchiver(deps.Archiver, a.cfg.Archive.RetentionDays, deps.Clock, deps.Metrics, a.logger)
		g.Go(func() error {
			return ignoreCanceled(archiver.RunLoop(runCtx, a.cfg.Archive.Interval.Duration))
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	a.logger.InfoContext(ctx, "application stopped", slog.Int64("cycles", mon.Status().CyclesCompleted))
	return nil
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *App) monitorConfig() monitor.Config {
	symbols := make([]domain.Symbol, 0, len(a.cfg.Monitor.Symbols))
	for _, s := range a.cfg.Monitor.Symbols {
		symbols = append(symbols, domain.ParseSymbol(s))
	}
	return monitor.Config{
		Symbols:       symbols,
		MinSpreadPct:  decimal.NewFromFloat(a.cfg.Monitor.MinSpreadPct),
		CycleInterval: a.cfg.Monitor.CycleInterval.Duration,
		FetchTimeout:  a.cfg.Monitor.FetchTimeout.Duration,
		ReportTimeout: a.cfg.Monitor.ReportTimeout.Duration,
		MaxCycles:     a.opts.MaxCycles,
	}
}

// reporters lists the sinks in the order they see each cycle. The log sink is
// always first; live delivery goes through the signal bus when Redis is wired
// and straight to the hub otherwise.
func (a *App) reporters(deps *Dependencies, hub *ws.Hub) []monitor.Reporter {
	out := []monitor.Reporter{report.NewLogSink(a.logger)}

	if deps.CSV != nil {
		out = append(out, deps.CSV)
	}
	if deps.OpportunityStore != nil {
		out = append(out, &report.StoreSink{
			Opportunities: deps.OpportunityStore,
			Prices:        deps.PriceStore,
			Cycles:        deps.CycleStore,
		})
	}
	switch {
	case deps.SignalBus != nil || deps.PriceCache != nil:
		out = append(out, &report.BusSink{Cache: deps.PriceCache, Bus: deps.SignalBus})
	case hub != nil:
		out = append(out, &report.PushSink{Target: hub})
	}
	if deps.KafkaWriter != nil {
		out = append(out, report.NewKafkaSink(deps.KafkaWriter))
	}
	if deps.Notifier.Enabled() {
		out = append(out, report.NewNotifySink(deps.Notifier, decimal.NewFromFloat(a.cfg.Notify.MinSpreadPct)))
	}
	return out
}

// history picks the store that backs the dashboard's history endpoints.
func (a *App) history(deps *Dependencies) handler.OpportunityHistory {
	switch {
	case deps.OpportunityStore != nil:
		return deps.OpportunityStore
	case deps.CSV != nil:
		return deps.CSV
	default:
		return nil
	}
}

// startHTTPServer registers the API, starts the WebSocket hub and the
// listener, and shuts the listener down when ctx ends.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, mon *monitor.Monitor, hub *ws.Hub) {
	handlers := server.Handlers{
		Health:  handler.NewHealthHandler(deps.Clock),
		Status:  handler.NewStatusHandler(mon),
		Metrics: deps.Metrics.Handler(),
	}
	if h := a.history(deps); h != nil {
		handlers.Opportunities = handler.NewOpportunityHandler(h, deps.Clock, a.logger)
	}

	srv := server.NewServer(server.Config{
		Addr:              a.cfg.Server.Addr,
		CORSOrigins:       a.cfg.Server.CORSOrigins,
		APIKey:            a.cfg.Server.APIKey,
		RateLimitInterval: a.cfg.Server.RateLimitInterval.Duration,
		RateLimitMaxWait:  a.cfg.Server.RateLimitMaxWait.Duration,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		return ignoreCanceled(hub.Run(ctx))
	})
	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
