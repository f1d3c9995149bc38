package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Juuiko/cross-chain-arbitrage-monitor/internal/clock"
	"github.com/Juuiko/cross-chain-arbitrage-monitor/internal/config"
	"github.com/Juuiko/cross-chain-arbitrage-monitor/internal/monitor"
	"github.com/Juuiko/cross-chain-arbitrage-monitor/internal/notify"
	"github.com/Juuiko/cross-chain-arbitrage-monitor/internal/report"
	"github.com/Juuiko/cross-chain-arbitrage-monitor/internal/server/ws"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func jsonServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestBuildAdapters(t *testing.T) {
	off := false
	adapters, err := BuildAdapters([]config.SourceConfig{
		{Name: "coinbase"},
		{Name: "binance", Enabled: &off},
		{Name: "gecko", Kind: "coingecko", Symbols: map[string]string{"btc-usd": "bitcoin"}},
	}, clock.Real{})
	if err != nil {
		t.Fatalf("BuildAdapters: %v", err)
	}
	if len(adapters) != 2 {
		t.Fatalf("expected 2 adapters, got %d", len(adapters))
	}
	if adapters[0].Name() != "coinbase" || adapters[1].Name() != "gecko" {
		t.Errorf("unexpected order: %s, %s", adapters[0].Name(), adapters[1].Name())
	}
	if !adapters[1].Supports("BTCUSD") || adapters[1].Supports("ETHUSD") {
		t.Error("custom symbol map should replace the defaults")
	}
}

func TestBuildAdaptersErrors(t *testing.T) {
	if _, err := BuildAdapters([]config.SourceConfig{{Name: "kraken"}}, clock.Real{}); err == nil {
		t.Error("expected error for unknown kind")
	}
	off := false
	if _, err := BuildAdapters([]config.SourceConfig{{Name: "binance", Enabled: &off}}, clock.Real{}); err == nil {
		t.Error("expected error when no source is enabled")
	}
}

func reporterNames(rs []monitor.Reporter) []string {
	names := make([]string, 0, len(rs))
	for _, r := range rs {
		names = append(names, r.Name())
	}
	return names
}

func TestReportersWithoutBackends(t *testing.T) {
	cfg := config.Defaults()
	a := New(&cfg, discardLogger(), Options{})
	deps := &Dependencies{
		CSV:      report.NewCSVSink(filepath.Join(t.TempDir(), "opps.csv"), ""),
		Notifier: notify.NewNotifier(nil, nil, discardLogger()),
	}
	hub := ws.NewHub(nil, discardLogger())

	got := strings.Join(reporterNames(a.reporters(deps, hub)), ",")
	if got != "log,csv,push" {
		t.Errorf("reporters = %s, want log,csv,push", got)
	}

	got = strings.Join(reporterNames(a.reporters(&Dependencies{}, nil)), ",")
	if got != "log" {
		t.Errorf("reporters = %s, want log", got)
	}
}

func TestHistoryPrefersStore(t *testing.T) {
	cfg := config.Defaults()
	a := New(&cfg, discardLogger(), Options{})
	if h := a.history(&Dependencies{}); h != nil {
		t.Errorf("expected no history, got %T", h)
	}
	csv := report.NewCSVSink(filepath.Join(t.TempDir(), "opps.csv"), "")
	if h := a.history(&Dependencies{CSV: csv}); h != csv {
		t.Errorf("expected csv history, got %T", h)
	}
}

func TestRunSingleCycleWritesCSV(t *testing.T) {
	binance := jsonServer(t, `{"symbol":"BTCUSDT","lastPrice":"100.00","volume":"5"}`)
	coinbase := jsonServer(t, `{"last":"102.00","volume":"7"}`)

	path := filepath.Join(t.TempDir(), "data", "opps.csv")
	cfg := config.Defaults()
	cfg.Monitor.Symbols = []string{"BTC-USD"}
	cfg.Sources = []config.SourceConfig{
		{Name: "binance", BaseURL: binance.URL},
		{Name: "coinbase", BaseURL: coinbase.URL},
	}
	cfg.CSV.Path = path
	cfg.Server.Enabled = false

	a := New(&cfg, discardLogger(), Options{MaxCycles: 1})
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header and one row, got %d lines:\n%s", len(lines), data)
	}
	if !strings.Contains(lines[1], "BTCUSD,binance,coinbase") {
		t.Errorf("unexpected row %q", lines[1])
	}
}
