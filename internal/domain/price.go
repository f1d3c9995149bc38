package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Symbol is a canonical asset identifier such as "BTCUSD". Providers use their
// own ticker naming; adapters translate at the boundary.
type Symbol string

// ParseSymbol normalises a configured symbol ("btc-usd", "BTC/USD") to its
// canonical form.
func ParseSymbol(s string) Symbol {
	r := strings.NewReplacer("-", "", "/", "", "_", "", " ", "")
	return Symbol(strings.ToUpper(r.Replace(strings.TrimSpace(s))))
}

// String implements fmt.Stringer.
func (s Symbol) String() string { return string(s) }

// PriceRecord is one observation of an asset's price from one source.
type PriceRecord struct {
	Source     string          `json:"source"`
	Symbol     Symbol          `json:"symbol"`
	Price      decimal.Decimal `json:"price"`
	Volume24h  decimal.Decimal `json:"volume_24h"` // zero when the provider does not report it
	ObservedAt time.Time       `json:"observed_at"`
}

// NewPriceRecord builds a PriceRecord and enforces price > 0. A non-positive
// price is reported as ErrMalformedResponse.
func NewPriceRecord(source string, symbol Symbol, price decimal.Decimal, observedAt time.Time) (PriceRecord, error) {
	if !price.IsPositive() {
		return PriceRecord{}, &FetchError{
			Source: source,
			Symbol: symbol,
			Err:    ErrMalformedResponse,
			Detail: "non-positive price " + price.String(),
		}
	}
	return PriceRecord{
		Source:     source,
		Symbol:     symbol,
		Price:      price,
		ObservedAt: observedAt,
	}, nil
}

// WithVolume returns a copy of r carrying the provider's 24h volume.
func (r PriceRecord) WithVolume(v decimal.Decimal) PriceRecord {
	r.Volume24h = v
	return r
}
