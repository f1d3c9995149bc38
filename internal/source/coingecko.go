package source

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Juuiko/cross-chain-arbitrage-monitor/internal/clock"
	"github.com/Juuiko/cross-chain-arbitrage-monitor/internal/domain"
)

// CoinGecko reads aggregated USD prices from the CoinGecko simple price API.
type CoinGecko struct {
	restClient
}

// NewCoinGecko creates a CoinGecko adapter. BaseURL defaults to
// https://api.coingecko.com. An APIKey is sent as the demo key header.
func NewCoinGecko(cfg Config, clk clock.Clock) *CoinGecko {
	return &CoinGecko{restClient: newRESTClient(cfg, KindCoinGecko, "https://api.coingecko.com", 1500*time.Millisecond, clk)}
}

type coingeckoQuote struct {
	USD       *decimal.Decimal `json:"usd"`
	USDVolume decimal.Decimal  `json:"usd_24h_vol"`
}

// Fetch implements Adapter.
func (g *CoinGecko) Fetch(ctx context.Context, symbol domain.Symbol) (domain.PriceRecord, error) {
	id, err := g.ticker(symbol)
	if err != nil {
		return domain.PriceRecord{}, err
	}

	params := url.Values{}
	params.Set("ids", id)
	params.Set("vs_currencies", "usd")
	params.Set("include_24hr_vol", "true")

	var header http.Header
	if g.apiKey != "" {
		header = http.Header{}
		header.Set("x-cg-demo-api-key", g.apiKey)
	}

	resp, err := g.get(ctx, symbol, "/api/v3/simple/price?"+params.Encode(), header)
	if err != nil {
		return domain.PriceRecord{}, err
	}
	if resp.status != http.StatusOK {
		return domain.PriceRecord{}, g.unexpectedStatus(symbol, resp)
	}

	var quotes map[string]coingeckoQuote
	if err := json.Unmarshal(resp.body, &quotes); err != nil {
		return domain.PriceRecord{}, g.fail(symbol, domain.ErrMalformedResponse, "decode price: "+err.Error())
	}
	q, ok := quotes[id]
	if !ok {
		// Unknown ids come back as an empty object.
		return domain.PriceRecord{}, g.fail(symbol, domain.ErrUnsupportedSymbol, "unknown coin id "+id)
	}
	if q.USD == nil {
		return domain.PriceRecord{}, g.fail(symbol, domain.ErrMalformedResponse, "missing usd price for "+id)
	}

	rec, err := domain.NewPriceRecord(g.name, symbol, *q.USD, g.clock.Now())
	if err != nil {
		return domain.PriceRecord{}, err
	}
	return rec.WithVolume(q.USDVolume), nil
}

var _ Adapter = (*CoinGecko)(nil)
