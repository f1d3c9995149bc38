// Package monitor drives the collect, detect and report cycle.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Juuiko/cross-chain-arbitrage-monitor/internal/arbitrage"
	"github.com/Juuiko/cross-chain-arbitrage-monitor/internal/clock"
	"github.com/Juuiko/cross-chain-arbitrage-monitor/internal/collector"
	"github.com/Juuiko/cross-chain-arbitrage-monitor/internal/domain"
	"github.com/Juuiko/cross-chain-arbitrage-monitor/internal/metrics"
)

// LeaderLockKey is the lock a monitor holds while it runs a cycle.
const LeaderLockKey = "monitor:leader"

const (
	defaultCycleInterval = 30 * time.Second
	defaultReportTimeout = 15 * time.Second

	// lockMargin pads the leader lock beyond the cycle's worst case.
	lockMargin = 5 * time.Second
)

// ErrAlreadyRunning is returned by Run when the loop is already active.
var ErrAlreadyRunning = errors.New("monitor: already running")

// Collector gathers one round of prices.
type Collector interface {
	Collect(ctx context.Context, symbols []domain.Symbol) collector.Collection
}

// Reporter consumes finished cycles. Reporters run in registration order and
// one reporter's failure does not affect the others.
type Reporter interface {
	Name() string
	Report(ctx context.Context, res domain.CycleResult) error
}

// Config holds the loop parameters.
type Config struct {
	Symbols       []domain.Symbol
	MinSpreadPct  decimal.Decimal
	CycleInterval time.Duration
	// FetchTimeout is the collector's budget for one round. Together with
	// ReportTimeout it bounds a cycle and sizes the leader lock.
	FetchTimeout  time.Duration
	ReportTimeout time.Duration
	// MaxCycles stops the loop after that many cycles. Zero runs until the
	// context is cancelled.
	MaxCycles int
}

// Deps are the collaborators of a Monitor. Lock, Metrics and Clock are
// optional.
type Deps struct {
	Collector Collector
	Reporters []Reporter
	Lock      domain.LockManager
	Clock     clock.Clock
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

// Monitor runs monitoring cycles on a fixed schedule.
type Monitor struct {
	cfg       Config
	collector Collector
	reporters []Reporter
	lock      domain.LockManager
	clock     clock.Clock
	metrics   *metrics.Metrics
	logger    *slog.Logger

	detect func(map[domain.Symbol][]domain.PriceRecord, decimal.Decimal) []domain.ArbitrageOpportunity

	state    atomic.Int32
	cycles   atomic.Int64
	snapshot Snapshot
}

// New creates a Monitor in the Idle state.
func New(cfg Config, deps Deps) *Monitor {
	if cfg.CycleInterval <= 0 {
		cfg.CycleInterval = defaultCycleInterval
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = collector.DefaultFetchTimeout
	}
	if cfg.ReportTimeout <= 0 {
		cfg.ReportTimeout = defaultReportTimeout
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Monitor{
		cfg:       cfg,
		collector: deps.Collector,
		reporters: deps.Reporters,
		lock:      deps.Lock,
		clock:     deps.Clock,
		metrics:   deps.Metrics,
		logger:    deps.Logger.With(slog.String("component", "monitor")),
		detect:    arbitrage.Detect,
	}
}

// AddReporter appends a sink. It must be called before Run.
func (m *Monitor) AddReporter(r Reporter) {
	m.reporters = append(m.reporters, r)
}

// State reports whether the loop is running.
func (m *Monitor) State() State {
	return State(m.state.Load())
}

// Snapshot returns the latest completed cycle.
func (m *Monitor) Snapshot() (domain.CycleResult, bool) {
	return m.snapshot.Latest()
}

// Run executes cycles until ctx is cancelled or MaxCycles is reached. The
// first cycle starts immediately; each following cycle starts CycleInterval
// after the previous start, or right away when a cycle overran. Cancellation
// is observed between cycles, so a running cycle always completes.
func (m *Monitor) Run(ctx context.Context) error {
	if !m.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return ErrAlreadyRunning
	}
	defer m.state.Store(int32(StateIdle))

	m.logger.Info("monitor started",
		slog.Int("symbols", len(m.cfg.Symbols)),
		slog.String("min_spread_pct", m.cfg.MinSpreadPct.String()),
		slog.Duration("cycle_interval", m.cfg.CycleInterval),
	)
	defer m.logger.Info("monitor stopped", slog.Int64("cycles", m.cycles.Load()))

	for n := 1; ; n++ {
		start := m.clock.Now()
		m.guardedCycle(ctx)

		if m.cfg.MaxCycles > 0 && n >= m.cfg.MaxCycles {
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}

		wait := m.cfg.CycleInterval - m.clock.Now().Sub(start)
		if wait <= 0 {
			m.logger.Warn("cycle overran its interval, starting next cycle now",
				slog.Duration("overrun", -wait),
			)
			continue
		}
		select {
		case <-ctx.Done():
			return nil
		case <-m.clock.After(wait):
		}
	}
}

// guardedCycle runs one cycle under the leader lock when one is configured.
func (m *Monitor) guardedCycle(ctx context.Context) {
	if m.lock != nil {
		unlock, err := m.lock.Acquire(ctx, LeaderLockKey, m.lockTTL())
		switch {
		case errors.Is(err, domain.ErrLockHeld):
			m.metrics.CycleSkipped()
			m.logger.Info("another instance holds the leader lock, skipping cycle")
			return
		case err != nil:
			m.logger.Warn("leader lock unavailable, running cycle unguarded", slog.String("error", err.Error()))
		default:
			defer unlock()
		}
	}
	m.RunCycle(ctx)
}

// lockTTL outlives the longest cycle: a full collection round, every
// reporter and a margin. It is never shorter than the cycle interval.
func (m *Monitor) lockTTL() time.Duration {
	ttl := m.cfg.FetchTimeout + m.cfg.ReportTimeout + lockMargin
	if ttl < m.cfg.CycleInterval {
		ttl = m.cfg.CycleInterval
	}
	return ttl
}

// RunCycle performs one collect, detect and report pass and returns its
// result.
func (m *Monitor) RunCycle(ctx context.Context) domain.CycleResult {
	res := domain.CycleResult{
		ID:        uuid.NewString(),
		StartedAt: m.clock.Now(),
	}

	col := m.collector.Collect(ctx, m.cfg.Symbols)
	res.Prices = col.Prices
	res.Sources = col.Sources
	res.Failures = col.Failures
	res.Outages = col.Outages

	opps, err := m.safeDetect(col.Prices)
	if err != nil {
		m.logger.Error("detection failed", slog.String("cycle_id", res.ID), slog.String("error", err.Error()))
	}
	res.Opportunities = opps
	res.CompletedAt = m.clock.Now()

	m.cycles.Add(1)
	m.snapshot.Store(res)
	m.observe(res)

	m.logger.Info("cycle complete",
		slog.String("cycle_id", res.ID),
		slog.Int("prices", len(res.AllPrices())),
		slog.Int("opportunities", len(res.Opportunities)),
		slog.Int("failures", len(res.Failures)),
		slog.Duration("duration", res.Duration()),
	)

	m.report(ctx, res)
	return res
}

func (m *Monitor) safeDetect(prices map[domain.Symbol][]domain.PriceRecord) (opps []domain.ArbitrageOpportunity, err error) {
	defer func() {
		if r := recover(); r != nil {
			opps = []domain.ArbitrageOpportunity{}
			err = fmt.Errorf("monitor: detect panic: %v\n%s", r, debug.Stack())
		}
	}()
	return m.detect(prices, m.cfg.MinSpreadPct), nil
}

func (m *Monitor) report(ctx context.Context, res domain.CycleResult) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.ReportTimeout)
	defer cancel()

	for _, r := range m.reporters {
		if err := m.runReporter(rctx, r, res); err != nil {
			m.metrics.SinkFailed(r.Name())
			m.logger.Error("report failed",
				slog.String("sink", r.Name()),
				slog.String("cycle_id", res.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (m *Monitor) runReporter(ctx context.Context, r Reporter, res domain.CycleResult) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return r.Report(ctx, res)
}

func (m *Monitor) observe(res domain.CycleResult) {
	if m.metrics == nil {
		return
	}
	m.metrics.CycleCompleted(res.Duration())
	best := make(map[domain.Symbol]decimal.Decimal)
	for _, o := range res.Opportunities {
		m.metrics.Opportunity(o.Symbol.String())
		if cur, ok := best[o.Symbol]; !ok || o.SpreadPct.GreaterThan(cur) {
			best[o.Symbol] = o.SpreadPct
		}
	}
	for s := range res.Prices {
		m.metrics.SetMaxSpread(s.String(), best[s].InexactFloat64())
	}
}
