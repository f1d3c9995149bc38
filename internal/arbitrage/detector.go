// Package arbitrage finds cross-source price spreads.
package arbitrage

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/Juuiko/cross-chain-arbitrage-monitor/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// DefaultMinSpreadPct is the spread threshold used when none is configured.
var DefaultMinSpreadPct = decimal.RequireFromString("0.5")

// Detect evaluates every unordered pair of distinct sources per symbol and
// returns the pairs whose spread is at least minSpreadPct percent, ranked by
// spread descending, then symbol, buy source and sell source ascending.
//
// Equal prices never produce an opportunity. When a source appears more than
// once for a symbol only its first record is used. Detect has no side
// effects.
func Detect(prices map[domain.Symbol][]domain.PriceRecord, minSpreadPct decimal.Decimal) []domain.ArbitrageOpportunity {
	opps := []domain.ArbitrageOpportunity{}
	for symbol, records := range prices {
		records = uniqueSources(records)
		for i := 0; i < len(records); i++ {
			for j := i + 1; j < len(records); j++ {
				opp, ok := evaluate(symbol, records[i], records[j])
				if ok && opp.SpreadPct.GreaterThanOrEqual(minSpreadPct) {
					opps = append(opps, opp)
				}
			}
		}
	}
	Sort(opps)
	return opps
}

// SpreadPct returns (sell - buy) / buy * 100.
func SpreadPct(buy, sell decimal.Decimal) decimal.Decimal {
	return sell.Sub(buy).Mul(hundred).Div(buy)
}

// Sort orders opportunities the way Detect returns them.
func Sort(opps []domain.ArbitrageOpportunity) {
	sort.SliceStable(opps, func(i, j int) bool {
		a, b := opps[i], opps[j]
		if c := a.SpreadPct.Cmp(b.SpreadPct); c != 0 {
			return c > 0
		}
		if a.Symbol != b.Symbol {
			return a.Symbol < b.Symbol
		}
		if a.BuySource != b.BuySource {
			return a.BuySource < b.BuySource
		}
		return a.SellSource < b.SellSource
	})
}

func evaluate(symbol domain.Symbol, x, y domain.PriceRecord) (domain.ArbitrageOpportunity, bool) {
	if x.Source == y.Source || !x.Price.IsPositive() || !y.Price.IsPositive() {
		return domain.ArbitrageOpportunity{}, false
	}
	buy, sell := x, y
	switch x.Price.Cmp(y.Price) {
	case 0:
		return domain.ArbitrageOpportunity{}, false
	case 1:
		buy, sell = y, x
	}
	return domain.ArbitrageOpportunity{
		Symbol:     symbol,
		BuySource:  buy.Source,
		BuyPrice:   buy.Price,
		SellSource: sell.Source,
		SellPrice:  sell.Price,
		SpreadPct:  SpreadPct(buy.Price, sell.Price),
	}, true
}

func uniqueSources(records []domain.PriceRecord) []domain.PriceRecord {
	if len(records) < 2 {
		return records
	}
	seen := make(map[string]struct{}, len(records))
	out := make([]domain.PriceRecord, 0, len(records))
	for _, r := range records {
		if _, ok := seen[r.Source]; ok {
			continue
		}
		seen[r.Source] = struct{}{}
		out = append(out, r)
	}
	return out
}
