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

const binanceInvalidSymbol = -1121

// Binance reads the 24h ticker from the Binance spot REST API.
type Binance struct {
	restClient
}

// NewBinance creates a Binance adapter. BaseURL defaults to
// https://api.binance.com.
func NewBinance(cfg Config, clk clock.Clock) *Binance {
	return &Binance{restClient: newRESTClient(cfg, KindBinance, "https://api.binance.com", 100*time.Millisecond, clk)}
}

type binanceTicker struct {
	Symbol    string          `json:"symbol"`
	LastPrice decimal.Decimal `json:"lastPrice"`
	Volume    decimal.Decimal `json:"volume"`
}

type binanceError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// Fetch implements Adapter.
func (b *Binance) Fetch(ctx context.Context, symbol domain.Symbol) (domain.PriceRecord, error) {
	ticker, err := b.ticker(symbol)
	if err != nil {
		return domain.PriceRecord{}, err
	}

	params := url.Values{}
	params.Set("symbol", ticker)
	resp, err := b.get(ctx, symbol, "/api/v3/ticker/24hr?"+params.Encode(), nil)
	if err != nil {
		return domain.PriceRecord{}, err
	}

	if resp.status != http.StatusOK {
		var apiErr binanceError
		if json.Unmarshal(resp.body, &apiErr) == nil && apiErr.Code == binanceInvalidSymbol {
			return domain.PriceRecord{}, b.fail(symbol, domain.ErrUnsupportedSymbol, apiErr.Msg)
		}
		return domain.PriceRecord{}, b.unexpectedStatus(symbol, resp)
	}

	var t binanceTicker
	if err := json.Unmarshal(resp.body, &t); err != nil {
		return domain.PriceRecord{}, b.fail(symbol, domain.ErrMalformedResponse, "decode ticker: "+err.Error())
	}

	rec, err := domain.NewPriceRecord(b.name, symbol, t.LastPrice, b.clock.Now())
	if err != nil {
		return domain.PriceRecord{}, err
	}
	return rec.WithVolume(t.Volume), nil
}

var _ Adapter = (*Binance)(nil)
