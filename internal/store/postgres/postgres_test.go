package postgres

import (
	"context"
	"os"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Juuiko/cross-chain-arbitrage-monitor/internal/domain"
)

func TestDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  ClientConfig
		want string
	}{
		{
			name: "explicit dsn wins",
			cfg:  ClientConfig{DSN: "postgres://x@db/arb", Host: "ignored"},
			want: "postgres://x@db/arb",
		},
		{
			name: "defaults port and sslmode",
			cfg:  ClientConfig{Host: "localhost", Database: "arbwatch", User: "arb", Password: "pw"},
			want: "postgres://arb:pw@localhost:5432/arbwatch?sslmode=disable",
		},
		{
			name: "custom port and sslmode",
			cfg:  ClientConfig{Host: "db", Port: 6543, Database: "a", User: "u", Password: "p", SSLMode: "require"},
			want: "postgres://u:p@db:6543/a?sslmode=require",
		},
		{
			name: "password with delimiters",
			cfg:  ClientConfig{Host: "db", Database: "arbwatch", User: "arb", Password: "p@ss/w:rd"},
			want: "postgres://arb:p%40ss%2Fw%3Ard@db:5432/arbwatch?sslmode=disable",
		},
		{
			name: "no credentials",
			cfg:  ClientConfig{Host: "db", Database: "arbwatch"},
			want: "postgres://db:5432/arbwatch?sslmode=disable",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DSN(tt.cfg); got != tt.want {
				t.Fatalf("DSN() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMigrationNames(t *testing.T) {
	fsys := fstest.MapFS{
		"m/010_later.sql":  {Data: []byte("SELECT 1")},
		"m/002_second.sql": {Data: []byte("SELECT 1")},
		"m/001_first.sql":  {Data: []byte("SELECT 1")},
		"m/README.md":      {Data: []byte("notes")},
		"m/old/003.sql":    {Data: []byte("SELECT 1")},
	}
	got, err := migrationNames(fsys, "m")
	if err != nil {
		t.Fatalf("migrationNames: %v", err)
	}
	want := "001_first.sql,002_second.sql,010_later.sql"
	if strings.Join(got, ",") != want {
		t.Errorf("migrationNames = %v, want %s", got, want)
	}

	if _, err := migrationNames(fsys, "missing"); err == nil {
		t.Error("expected error for missing directory")
	}
}

func TestEmbeddedMigrations(t *testing.T) {
	names, err := migrationNames(migrationsFS, "migrations")
	if err != nil {
		t.Fatalf("migrationNames: %v", err)
	}
	if len(names) == 0 || names[0] != "001_init.sql" {
		t.Fatalf("embedded migrations = %v, want 001_init.sql first", names)
	}
}

// testClient connects to ARBWATCH_TEST_POSTGRES_DSN and applies migrations.
func testClient(t *testing.T) *Client {
	t.Helper()
	dsn := os.Getenv("ARBWATCH_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("ARBWATCH_TEST_POSTGRES_DSN not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	c, err := New(ctx, ClientConfig{DSN: dsn, MaxConns: 2})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := c.RunMigrations(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func TestOpportunityStore(t *testing.T) {
	c := testClient(t)
	store := NewOpportunityStore(c.Pool())
	ctx := context.Background()

	// Isolate from other runs by using a far-future window.
	base := time.Date(2099, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(time.Now().UnixNano() % int64(time.Hour)))
	cycle := uuid.NewString()
	opps := []domain.RecordedOpportunity{
		{
			ArbitrageOpportunity: domain.ArbitrageOpportunity{
				Symbol: "BTCUSD", BuySource: "coingecko", SellSource: "binance",
				BuyPrice:  decimal.RequireFromString("61234.5"),
				SellPrice: decimal.RequireFromString("61456.78"),
				SpreadPct: decimal.RequireFromString("0.363"),
			},
			CycleID:    cycle,
			RecordedAt: base,
		},
		{
			ArbitrageOpportunity: domain.ArbitrageOpportunity{
				Symbol: "ETHUSD", BuySource: "coinbase", SellSource: "binance",
				BuyPrice:  decimal.RequireFromString("3000"),
				SellPrice: decimal.RequireFromString("3030"),
				SpreadPct: decimal.RequireFromString("1"),
			},
			CycleID:    cycle,
			RecordedAt: base.Add(time.Second),
		},
	}
	if err := store.InsertBatch(ctx, opps); err != nil {
		t.Fatal(err)
	}
	if err := store.InsertBatch(ctx, opps); err != nil {
		t.Fatalf("re-insert: %v", err)
	}

	got, err := store.ListBetween(ctx, base, base.Add(time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Symbol != "BTCUSD" || !got[0].BuyPrice.Equal(opps[0].BuyPrice) {
		t.Fatalf("ListBetween = %+v", got)
	}

	recent, err := store.ListSince(ctx, base, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 1 || recent[0].Symbol != "ETHUSD" {
		t.Fatalf("ListSince = %+v", recent)
	}

	stats, err := store.Stats(ctx, base)
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalOpportunities != 2 || !stats.MaxSpread.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("Stats = %+v", stats)
	}
	if stats.TopSymbols["BTCUSD"] != 1 || stats.TopSymbols["ETHUSD"] != 1 {
		t.Fatalf("TopSymbols = %v", stats.TopSymbols)
	}
}

func TestCycleStoreRoundTrip(t *testing.T) {
	c := testClient(t)
	store := NewCycleStore(c.Pool())
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Millisecond)
	res := domain.CycleResult{
		ID:          uuid.NewString(),
		StartedAt:   now.Add(365 * 24 * time.Hour),
		CompletedAt: now.Add(365*24*time.Hour + time.Second),
		Sources:     map[string]domain.SourceStats{"binance": {Attempted: 2, Succeeded: 1, Failed: 1}},
		Failures:    []domain.FetchFailure{{Source: "binance", Symbol: "SOLUSD", Kind: domain.FailureTimeout, Message: "slow"}},
	}
	if err := store.Insert(ctx, res); err != nil {
		t.Fatal(err)
	}

	got, err := store.ListRecent(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != res.ID {
		t.Fatalf("ListRecent = %+v", got)
	}
	if got[0].Sources["binance"].Failed != 1 || len(got[0].Failures) != 1 || len(got[0].Outages) != 0 {
		t.Fatalf("summary = %+v", got[0])
	}
}

func TestPriceStoreCopy(t *testing.T) {
	c := testClient(t)
	store := NewPriceStore(c.Pool())
	ctx := context.Background()

	sym := domain.Symbol("T" + uuid.NewString()[:8])
	now := time.Now().UTC().Truncate(time.Millisecond)
	recs := []domain.PriceRecord{
		{Source: "binance", Symbol: sym, Price: decimal.RequireFromString("1.5"), ObservedAt: now},
		{Source: "coinbase", Symbol: sym, Price: decimal.RequireFromString("1.6"), Volume24h: decimal.NewFromInt(10), ObservedAt: now},
	}
	if err := store.InsertBatch(ctx, recs); err != nil {
		t.Fatal(err)
	}
	got, err := store.ListLatest(ctx, sym, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Source != "binance" || !got[1].Volume24h.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("ListLatest = %+v", got)
	}
}
