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

// Coinbase reads 24h product stats from the Coinbase Exchange REST API.
type Coinbase struct {
	restClient
}

// NewCoinbase creates a Coinbase adapter. BaseURL defaults to
// https://api.exchange.coinbase.com.
func NewCoinbase(cfg Config, clk clock.Clock) *Coinbase {
	return &Coinbase{restClient: newRESTClient(cfg, KindCoinbase, "https://api.exchange.coinbase.com", 200*time.Millisecond, clk)}
}

type coinbaseStats struct {
	Last   decimal.Decimal `json:"last"`
	Volume decimal.Decimal `json:"volume"`
}

// Fetch implements Adapter.
func (c *Coinbase) Fetch(ctx context.Context, symbol domain.Symbol) (domain.PriceRecord, error) {
	product, err := c.ticker(symbol)
	if err != nil {
		return domain.PriceRecord{}, err
	}

	resp, err := c.get(ctx, symbol, "/products/"+url.PathEscape(product)+"/stats", nil)
	if err != nil {
		return domain.PriceRecord{}, err
	}

	switch resp.status {
	case http.StatusOK:
	case http.StatusNotFound, http.StatusBadRequest:
		return domain.PriceRecord{}, c.fail(symbol, domain.ErrUnsupportedSymbol, "product "+product+": "+snippet(resp.body))
	default:
		return domain.PriceRecord{}, c.unexpectedStatus(symbol, resp)
	}

	var s coinbaseStats
	if err := json.Unmarshal(resp.body, &s); err != nil {
		return domain.PriceRecord{}, c.fail(symbol, domain.ErrMalformedResponse, "decode stats: "+err.Error())
	}

	rec, err := domain.NewPriceRecord(c.name, symbol, s.Last, c.clock.Now())
	if err != nil {
		return domain.PriceRecord{}, err
	}
	return rec.WithVolume(s.Volume), nil
}

var _ Adapter = (*Coinbase)(nil)
