// Package collector fans price fetches out to every source adapter and joins
// the results into one per-cycle view.
package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Juuiko/cross-chain-arbitrage-monitor/internal/clock"
	"github.com/Juuiko/cross-chain-arbitrage-monitor/internal/domain"
	"github.com/Juuiko/cross-chain-arbitrage-monitor/internal/metrics"
	"github.com/Juuiko/cross-chain-arbitrage-monitor/internal/source"
)

// DefaultFetchTimeout bounds one (source, symbol) fetch when none is configured.
const DefaultFetchTimeout = 10 * time.Second

// Collection is the joined result of one collection round.
type Collection struct {
	// Prices has an entry for every requested symbol. Records are in source
	// priority order; symbols nobody served map to an empty slice.
	Prices   map[domain.Symbol][]domain.PriceRecord
	Sources  map[string]domain.SourceStats
	Failures []domain.FetchFailure
	Outages  []domain.Symbol
}

// Options configures a Collector.
type Options struct {
	FetchTimeout   time.Duration
	MaxConcurrency int // 0 means one goroutine per (source, symbol)
	// Limiter spaces calls per source. When it fails for any reason other
	// than refusing a slot, the collector falls back to an in-process
	// limiter for that call.
	Limiter domain.RateLimiter
	Clock   clock.Clock
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Collector queries all adapters concurrently with per-fetch timeouts.
type Collector struct {
	adapters       []source.Adapter
	timeout        time.Duration
	maxConcurrency int
	limiter        domain.RateLimiter
	fallback       *source.IntervalLimiter
	clock          clock.Clock
	metrics        *metrics.Metrics
	logger         *slog.Logger
}

// New creates a Collector. The order of adapters is their priority order.
func New(adapters []source.Adapter, opts Options) *Collector {
	c := &Collector{
		adapters:       adapters,
		timeout:        opts.FetchTimeout,
		maxConcurrency: opts.MaxConcurrency,
		limiter:        opts.Limiter,
		clock:          opts.Clock,
		metrics:        opts.Metrics,
		logger:         opts.Logger,
	}
	if c.timeout <= 0 {
		c.timeout = DefaultFetchTimeout
	}
	if c.clock == nil {
		c.clock = clock.Real{}
	}
	c.fallback = source.NewIntervalLimiter(c.clock)
	if c.limiter == nil {
		c.limiter = c.fallback
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.logger = c.logger.With(slog.String("component", "collector"))
	return c
}

// Adapters returns the adapters in priority order.
func (c *Collector) Adapters() []source.Adapter {
	return c.adapters
}

type job struct {
	adapter source.Adapter
	symbol  domain.Symbol
}

type outcome struct {
	rec domain.PriceRecord
	err error
}

// Collect fetches every supported (adapter, symbol) pair and waits for all of
// them to succeed, fail or time out. Every fetch shares one deadline, the
// fetch timeout counted from the call to Collect, so a round never outlasts
// it even when MaxConcurrency queues fetches. It never returns an error:
// failures are reported inside the Collection. Cancelling ctx does not abort
// fetches that are already running.
func (c *Collector) Collect(ctx context.Context, symbols []domain.Symbol) Collection {
	symbols = dedupe(symbols)

	var jobs []job
	for _, a := range c.adapters {
		for _, s := range symbols {
			if a.Supports(s) {
				jobs = append(jobs, job{adapter: a, symbol: s})
			}
		}
	}

	results := make([]outcome, len(jobs))
	base, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()

	var g errgroup.Group
	if c.maxConcurrency > 0 {
		g.SetLimit(c.maxConcurrency)
	}
	for i, j := range jobs {
		g.Go(func() error {
			results[i] = c.fetch(base, j.adapter, j.symbol)
			return nil
		})
	}
	_ = g.Wait()

	return c.merge(symbols, jobs, results)
}

// fetch runs one adapter call bounded by the round's deadline. A call that
// overruns is abandoned and its eventual result dropped.
func (c *Collector) fetch(ctx context.Context, a source.Adapter, symbol domain.Symbol) outcome {
	start := time.Now()
	done := make(chan outcome, 1)
	go func() {
		if err := c.wait(ctx, a); err != nil {
			done <- outcome{err: err}
			return
		}
		rec, err := a.Fetch(ctx, symbol)
		done <- outcome{rec: rec, err: err}
	}()

	var out outcome
	select {
	case out = <-done:
	case <-ctx.Done():
		out = outcome{err: &domain.FetchError{
			Source: a.Name(),
			Symbol: symbol,
			Err:    domain.ErrTimeout,
			Detail: fmt.Sprintf("no response within %s", c.timeout),
		}}
	}
	if out.err == nil && !out.rec.Price.IsPositive() {
		out = outcome{err: &domain.FetchError{
			Source: a.Name(),
			Symbol: symbol,
			Err:    domain.ErrMalformedResponse,
			Detail: "non-positive price " + out.rec.Price.String(),
		}}
	}
	c.metrics.ObserveFetch(a.Name(), time.Since(start))
	return out
}

// wait takes a call slot for a. A limiter that cannot be reached is replaced
// by the in-process one, so a cache outage never reads as a price outage.
func (c *Collector) wait(ctx context.Context, a source.Adapter) error {
	err := c.limiter.Wait(ctx, a.Name(), a.MinInterval())
	if err == nil || c.limiter == domain.RateLimiter(c.fallback) ||
		errors.Is(err, domain.ErrRateLimited) || ctx.Err() != nil {
		return err
	}
	c.logger.Warn("rate limiter unavailable, using in-process limiter",
		slog.String("source", a.Name()),
		slog.String("error", err.Error()),
	)
	return c.fallback.Wait(ctx, a.Name(), a.MinInterval())
}

func (c *Collector) merge(symbols []domain.Symbol, jobs []job, results []outcome) Collection {
	col := Collection{
		Prices:  make(map[domain.Symbol][]domain.PriceRecord, len(symbols)),
		Sources: make(map[string]domain.SourceStats, len(c.adapters)),
	}
	for _, s := range symbols {
		col.Prices[s] = []domain.PriceRecord{}
	}
	for _, a := range c.adapters {
		col.Sources[a.Name()] = domain.SourceStats{}
	}

	for i, j := range jobs {
		name := j.adapter.Name()
		stats := col.Sources[name]
		stats.Attempted++

		res := results[i]
		if res.err != nil {
			stats.Failed++
			kind := domain.KindOf(res.err)
			col.Failures = append(col.Failures, domain.FetchFailure{
				Source:  name,
				Symbol:  j.symbol,
				Kind:    kind,
				Message: res.err.Error(),
			})
			c.metrics.FetchFailed(name, string(kind))
			c.logger.Warn("price fetch failed",
				slog.String("source", name),
				slog.String("symbol", j.symbol.String()),
				slog.String("kind", string(kind)),
				slog.String("error", res.err.Error()),
			)
		} else {
			stats.Succeeded++
			rec := res.rec
			rec.Source = name
			rec.Symbol = j.symbol
			col.Prices[j.symbol] = append(col.Prices[j.symbol], rec)
		}
		col.Sources[name] = stats
	}

	for _, s := range symbols {
		if len(col.Prices[s]) == 0 {
			col.Outages = append(col.Outages, s)
			c.metrics.Outage(s.String())
			c.logger.Warn("no source returned a price", slog.String("symbol", s.String()))
		}
	}
	return col
}

func dedupe(symbols []domain.Symbol) []domain.Symbol {
	seen := make(map[domain.Symbol]struct{}, len(symbols))
	out := make([]domain.Symbol, 0, len(symbols))
	for _, s := range symbols {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
