// Package source implements price source adapters. Each adapter turns one
// provider's REST response into a domain.PriceRecord and keeps the provider's
// ticker naming to itself.
package source

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Juuiko/cross-chain-arbitrage-monitor/internal/clock"
	"github.com/Juuiko/cross-chain-arbitrage-monitor/internal/domain"
)

// Adapter fetches the current price of one canonical symbol from one provider.
type Adapter interface {
	Name() string
	Supports(symbol domain.Symbol) bool
	MinInterval() time.Duration
	Fetch(ctx context.Context, symbol domain.Symbol) (domain.PriceRecord, error)
}

// Provider kinds understood by New.
const (
	KindBinance   = "binance"
	KindCoinbase  = "coinbase"
	KindCoinGecko = "coingecko"
)

// Config describes one configured source.
type Config struct {
	Name        string
	Kind        string
	BaseURL     string
	APIKey      string
	MinInterval time.Duration
	// Symbols maps canonical symbols to provider tickers. When empty the
	// provider's default map is used.
	Symbols map[domain.Symbol]string
}

// New builds the adapter for cfg.Kind.
func New(cfg Config, clk clock.Clock) (Adapter, error) {
	if clk == nil {
		clk = clock.Real{}
	}
	kind := strings.ToLower(strings.TrimSpace(cfg.Kind))
	if kind == "" {
		kind = strings.ToLower(cfg.Name)
	}
	switch kind {
	case KindBinance:
		return NewBinance(cfg, clk), nil
	case KindCoinbase:
		return NewCoinbase(cfg, clk), nil
	case KindCoinGecko:
		return NewCoinGecko(cfg, clk), nil
	default:
		return nil, fmt.Errorf("source: unknown kind %q for source %q", cfg.Kind, cfg.Name)
	}
}

// Kinds lists the provider kinds New accepts.
func Kinds() []string {
	return []string{KindBinance, KindCoinbase, KindCoinGecko}
}

// SupportedSymbols returns the canonical symbols an adapter config would
// serve, sorted.
func SupportedSymbols(cfg Config) []domain.Symbol {
	m := cfg.Symbols
	if len(m) == 0 {
		m = defaultSymbols(strings.ToLower(cfg.Kind))
	}
	out := make([]domain.Symbol, 0, len(m))
	for s := range m {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func defaultSymbols(kind string) map[domain.Symbol]string {
	switch kind {
	case KindBinance:
		return map[domain.Symbol]string{
			"BTCUSD":  "BTCUSDT",
			"ETHUSD":  "ETHUSDT",
			"SOLUSD":  "SOLUSDT",
			"AVAXUSD": "AVAXUSDT",
		}
	case KindCoinbase:
		return map[domain.Symbol]string{
			"BTCUSD":  "BTC-USD",
			"ETHUSD":  "ETH-USD",
			"SOLUSD":  "SOL-USD",
			"AVAXUSD": "AVAX-USD",
		}
	case KindCoinGecko:
		return map[domain.Symbol]string{
			"BTCUSD":  "bitcoin",
			"ETHUSD":  "ethereum",
			"SOLUSD":  "solana",
			"AVAXUSD": "avalanche-2",
		}
	}
	return nil
}
