package collector

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Juuiko/cross-chain-arbitrage-monitor/internal/clock"
	"github.com/Juuiko/cross-chain-arbitrage-monitor/internal/domain"
	"github.com/Juuiko/cross-chain-arbitrage-monitor/internal/source"
)

type fakeAdapter struct {
	name     string
	symbols  map[domain.Symbol]bool
	interval time.Duration
	fetch    func(ctx context.Context, symbol domain.Symbol) (domain.PriceRecord, error)
}

func (f *fakeAdapter) Name() string                  { return f.name }
func (f *fakeAdapter) Supports(s domain.Symbol) bool { return f.symbols[s] }
func (f *fakeAdapter) MinInterval() time.Duration    { return f.interval }
func (f *fakeAdapter) Fetch(ctx context.Context, s domain.Symbol) (domain.PriceRecord, error) {
	return f.fetch(ctx, s)
}

func supports(symbols ...domain.Symbol) map[domain.Symbol]bool {
	m := make(map[domain.Symbol]bool, len(symbols))
	for _, s := range symbols {
		m[s] = true
	}
	return m
}

func priced(name, price string, delay time.Duration) func(context.Context, domain.Symbol) (domain.PriceRecord, error) {
	return func(ctx context.Context, s domain.Symbol) (domain.PriceRecord, error) {
		time.Sleep(delay)
		return domain.NewPriceRecord(name, s, decimal.RequireFromString(price), time.Now())
	}
}

func failing(err error) func(context.Context, domain.Symbol) (domain.PriceRecord, error) {
	return func(ctx context.Context, s domain.Symbol) (domain.PriceRecord, error) {
		return domain.PriceRecord{}, err
	}
}

// hanging ignores its context, like a provider call stuck in a blocking read.
func hanging(d time.Duration) func(context.Context, domain.Symbol) (domain.PriceRecord, error) {
	return func(ctx context.Context, s domain.Symbol) (domain.PriceRecord, error) {
		time.Sleep(d)
		return domain.NewPriceRecord("late", s, decimal.NewFromInt(1), time.Now())
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newCollector(adapters []source.Adapter, timeout time.Duration) *Collector {
	return New(adapters, Options{FetchTimeout: timeout, Logger: quietLogger()})
}

func TestCollectKeepsPriorityOrder(t *testing.T) {
	// Slowest adapter first so arrival order is the reverse of priority.
	adapters := []source.Adapter{
		&fakeAdapter{name: "coingecko", symbols: supports("BTCUSD"), fetch: priced("coingecko", "61234.50", 60*time.Millisecond)},
		&fakeAdapter{name: "binance", symbols: supports("BTCUSD"), fetch: priced("binance", "61456.78", 30*time.Millisecond)},
		&fakeAdapter{name: "coinbase", symbols: supports("BTCUSD"), fetch: priced("coinbase", "61300.00", 0)},
	}

	col := newCollector(adapters, time.Second).Collect(context.Background(), []domain.Symbol{"BTCUSD"})

	recs := col.Prices["BTCUSD"]
	if len(recs) != 3 {
		t.Fatalf("expected 3 records, got %d", len(recs))
	}
	for i, want := range []string{"coingecko", "binance", "coinbase"} {
		if recs[i].Source != want {
			t.Fatalf("record %d from %s, want %s", i, recs[i].Source, want)
		}
	}
	if len(col.Failures) != 0 || len(col.Outages) != 0 {
		t.Fatalf("unexpected failures %v outages %v", col.Failures, col.Outages)
	}
}

func TestCollectIsolatesFailures(t *testing.T) {
	netErr := &domain.FetchError{Source: "binance", Symbol: "BTCUSD", Err: domain.ErrNetwork, Detail: "connection reset"}
	adapters := []source.Adapter{
		&fakeAdapter{name: "binance", symbols: supports("BTCUSD", "ETHUSD"), fetch: failing(netErr)},
		&fakeAdapter{name: "coinbase", symbols: supports("BTCUSD", "ETHUSD"), fetch: priced("coinbase", "100", 0)},
	}

	col := newCollector(adapters, time.Second).Collect(context.Background(), []domain.Symbol{"BTCUSD", "ETHUSD"})

	for _, s := range []domain.Symbol{"BTCUSD", "ETHUSD"} {
		if got := col.Prices[s]; len(got) != 1 || got[0].Source != "coinbase" {
			t.Fatalf("%s: unexpected records %+v", s, got)
		}
	}
	if st := col.Sources["binance"]; st.Attempted != 2 || st.Failed != 2 || st.Succeeded != 0 {
		t.Fatalf("binance stats %+v", st)
	}
	if st := col.Sources["coinbase"]; st.Attempted != 2 || st.Succeeded != 2 {
		t.Fatalf("coinbase stats %+v", st)
	}
	if len(col.Failures) != 2 {
		t.Fatalf("expected 2 failures, got %d", len(col.Failures))
	}
	for _, f := range col.Failures {
		if f.Source != "binance" || f.Kind != domain.FailureNetwork {
			t.Fatalf("unexpected failure %+v", f)
		}
	}
}

func TestCollectSlowSourcesAreBoundedByTimeout(t *testing.T) {
	const timeout = 200 * time.Millisecond
	adapters := []source.Adapter{
		&fakeAdapter{name: "a", symbols: supports("BTCUSD"), fetch: hanging(time.Second)},
		&fakeAdapter{name: "b", symbols: supports("BTCUSD"), fetch: hanging(time.Second)},
		&fakeAdapter{name: "c", symbols: supports("BTCUSD"), fetch: hanging(time.Second)},
		&fakeAdapter{name: "d", symbols: supports("BTCUSD"), fetch: priced("d", "10", 0)},
	}

	start := time.Now()
	col := newCollector(adapters, timeout).Collect(context.Background(), []domain.Symbol{"BTCUSD"})
	elapsed := time.Since(start)

	if elapsed < timeout {
		t.Fatalf("returned after %v, before the timeout elapsed", elapsed)
	}
	if elapsed >= 2*timeout {
		t.Fatalf("returned after %v, fetches are not concurrent", elapsed)
	}
	if got := col.Prices["BTCUSD"]; len(got) != 1 || got[0].Source != "d" {
		t.Fatalf("expected only the fast source, got %+v", got)
	}
	if len(col.Failures) != 3 {
		t.Fatalf("expected 3 timeouts, got %+v", col.Failures)
	}
	for _, f := range col.Failures {
		if f.Kind != domain.FailureTimeout {
			t.Fatalf("unexpected failure kind %+v", f)
		}
	}
}

func TestCollectZeroRecordSymbolIsAnOutage(t *testing.T) {
	adapters := []source.Adapter{
		&fakeAdapter{name: "binance", symbols: supports("BTCUSD", "ETHUSD"), fetch: func(ctx context.Context, s domain.Symbol) (domain.PriceRecord, error) {
			if s == "ETHUSD" {
				return domain.PriceRecord{}, &domain.FetchError{Source: "binance", Symbol: s, Err: domain.ErrRateLimited}
			}
			return domain.NewPriceRecord("binance", s, decimal.NewFromInt(5), time.Now())
		}},
	}

	col := newCollector(adapters, time.Second).Collect(context.Background(), []domain.Symbol{"BTCUSD", "ETHUSD", "SOLUSD"})

	eth, ok := col.Prices["ETHUSD"]
	if !ok || eth == nil || len(eth) != 0 {
		t.Fatalf("ETHUSD should be present and empty, got %v (present=%v)", eth, ok)
	}
	if _, ok := col.Prices["SOLUSD"]; !ok {
		t.Fatal("unsupported symbol should still be present")
	}
	if len(col.Outages) != 2 || col.Outages[0] != "ETHUSD" || col.Outages[1] != "SOLUSD" {
		t.Fatalf("outages = %v", col.Outages)
	}
	if st := col.Sources["binance"]; st.Attempted != 2 {
		t.Fatalf("unsupported pairs must not be attempted, stats %+v", st)
	}
	if len(col.Failures) != 1 || col.Failures[0].Kind != domain.FailureRateLimited {
		t.Fatalf("failures = %+v", col.Failures)
	}
}

func TestCollectRejectsNonPositivePrice(t *testing.T) {
	adapters := []source.Adapter{
		&fakeAdapter{name: "broken", symbols: supports("BTCUSD"), fetch: func(ctx context.Context, s domain.Symbol) (domain.PriceRecord, error) {
			return domain.PriceRecord{Source: "broken", Symbol: s}, nil
		}},
	}
	col := newCollector(adapters, time.Second).Collect(context.Background(), []domain.Symbol{"BTCUSD"})
	if len(col.Failures) != 1 || col.Failures[0].Kind != domain.FailureMalformedResponse {
		t.Fatalf("failures = %+v", col.Failures)
	}
}

func TestCollectHonoursSourceInterval(t *testing.T) {
	clk := clock.NewFake(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	adapters := []source.Adapter{
		&fakeAdapter{name: "coingecko", interval: time.Second, symbols: supports("BTCUSD", "ETHUSD", "SOLUSD"), fetch: priced("coingecko", "1", 0)},
	}
	c := New(adapters, Options{
		FetchTimeout: time.Minute,
		Limiter:      source.NewIntervalLimiter(clk),
		Clock:        clk,
		Logger:       quietLogger(),
	})

	col := c.Collect(context.Background(), []domain.Symbol{"BTCUSD", "ETHUSD", "SOLUSD"})
	if len(col.Failures) != 0 {
		t.Fatalf("unexpected failures %+v", col.Failures)
	}
	if s := clk.Sleeps(); len(s) != 2 || s[0] != time.Second || s[1] != time.Second {
		t.Fatalf("three calls one second apart need two 1s waits, got %v", s)
	}
}

func TestCollectIgnoresCallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	adapters := []source.Adapter{
		&fakeAdapter{name: "binance", symbols: supports("BTCUSD"), fetch: func(ctx context.Context, s domain.Symbol) (domain.PriceRecord, error) {
			if err := ctx.Err(); err != nil {
				return domain.PriceRecord{}, err
			}
			return domain.NewPriceRecord("binance", s, decimal.NewFromInt(1), time.Now())
		}},
	}
	col := newCollector(adapters, time.Second).Collect(ctx, []domain.Symbol{"BTCUSD"})
	if len(col.Prices["BTCUSD"]) != 1 {
		t.Fatalf("in-flight fetch should complete after stop, failures %+v", col.Failures)
	}
}

func TestCollectMaxConcurrency(t *testing.T) {
	adapters := []source.Adapter{
		&fakeAdapter{name: "a", symbols: supports("BTCUSD", "ETHUSD"), fetch: priced("a", "1", 10*time.Millisecond)},
		&fakeAdapter{name: "b", symbols: supports("BTCUSD", "ETHUSD"), fetch: priced("b", "2", 10*time.Millisecond)},
	}
	c := New(adapters, Options{FetchTimeout: time.Second, MaxConcurrency: 1, Logger: quietLogger()})
	col := c.Collect(context.Background(), []domain.Symbol{"BTCUSD", "ETHUSD", "BTCUSD"})
	if len(col.Prices) != 2 {
		t.Fatalf("duplicate symbols should collapse, got %d", len(col.Prices))
	}
	for s, recs := range col.Prices {
		if len(recs) != 2 || recs[0].Source != "a" || recs[1].Source != "b" {
			t.Fatalf("%s: %+v", s, recs)
		}
	}
}

type brokenLimiter struct {
	err   error
	calls atomic.Int32
}

func (l *brokenLimiter) Wait(ctx context.Context, source string, interval time.Duration) error {
	l.calls.Add(1)
	return l.err
}

func TestCollectSurvivesLimiterOutage(t *testing.T) {
	adapters := []source.Adapter{
		&fakeAdapter{name: "binance", interval: time.Millisecond, symbols: supports("BTCUSD"), fetch: priced("binance", "100", 0)},
		&fakeAdapter{name: "coinbase", interval: time.Millisecond, symbols: supports("BTCUSD"), fetch: priced("coinbase", "101", 0)},
		&fakeAdapter{name: "coingecko", interval: time.Millisecond, symbols: supports("BTCUSD"), fetch: priced("coingecko", "102", 0)},
	}
	limiter := &brokenLimiter{err: errors.New("dial tcp 127.0.0.1:6379: connect: connection refused")}
	c := New(adapters, Options{FetchTimeout: time.Second, Limiter: limiter, Logger: quietLogger()})

	col := c.Collect(context.Background(), []domain.Symbol{"BTCUSD"})
	if len(col.Failures) != 0 {
		t.Fatalf("a limiter outage must not fail fetches, got %+v", col.Failures)
	}
	if got := len(col.Prices["BTCUSD"]); got != 3 {
		t.Fatalf("expected 3 records, got %d", got)
	}
	if n := limiter.calls.Load(); n != 3 {
		t.Fatalf("limiter consulted %d times, want 3", n)
	}
}

func TestCollectKeepsLimiterRefusals(t *testing.T) {
	adapters := []source.Adapter{
		&fakeAdapter{name: "binance", interval: time.Second, symbols: supports("BTCUSD"), fetch: priced("binance", "100", 0)},
	}
	limiter := &brokenLimiter{err: &domain.FetchError{Source: "binance", Symbol: "BTCUSD", Err: domain.ErrRateLimited}}
	c := New(adapters, Options{FetchTimeout: time.Second, Limiter: limiter, Logger: quietLogger()})

	col := c.Collect(context.Background(), []domain.Symbol{"BTCUSD"})
	if len(col.Failures) != 1 || col.Failures[0].Kind != domain.FailureRateLimited {
		t.Fatalf("a refused slot is a rate limit failure, got %+v", col.Failures)
	}
}

func TestCollectQueuedFetchesShareDeadline(t *testing.T) {
	adapters := []source.Adapter{
		&fakeAdapter{name: "a", symbols: supports("BTCUSD"), fetch: hanging(300 * time.Millisecond)},
		&fakeAdapter{name: "b", symbols: supports("BTCUSD"), fetch: hanging(300 * time.Millisecond)},
		&fakeAdapter{name: "c", symbols: supports("BTCUSD"), fetch: hanging(300 * time.Millisecond)},
	}
	c := New(adapters, Options{FetchTimeout: 100 * time.Millisecond, MaxConcurrency: 1, Logger: quietLogger()})

	start := time.Now()
	col := c.Collect(context.Background(), []domain.Symbol{"BTCUSD"})
	elapsed := time.Since(start)

	if elapsed > 250*time.Millisecond {
		t.Fatalf("round took %v, want about one fetch timeout", elapsed)
	}
	if len(col.Failures) != 3 {
		t.Fatalf("expected 3 timeouts, got %+v", col.Failures)
	}
	for _, f := range col.Failures {
		if f.Kind != domain.FailureTimeout {
			t.Fatalf("unexpected failure %+v", f)
		}
	}
}
