package domain

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// ArbitrageOpportunity is a spread between two sources for one symbol within
// one cycle. SellPrice is always strictly greater than BuyPrice.
type ArbitrageOpportunity struct {
	Symbol     Symbol          `json:"symbol"`
	BuySource  string          `json:"buy_source"`
	BuyPrice   decimal.Decimal `json:"buy_price"`
	SellSource string          `json:"sell_source"`
	SellPrice  decimal.Decimal `json:"sell_price"`
	SpreadPct  decimal.Decimal `json:"spread_pct"`
}

// RecordedOpportunity is an opportunity as kept in durable history, stamped
// with the cycle that produced it.
type RecordedOpportunity struct {
	ArbitrageOpportunity
	CycleID    string    `json:"cycle_id,omitempty"`
	RecordedAt time.Time `json:"timestamp"`
}

// OpportunityStats summarises a slice of recorded history.
type OpportunityStats struct {
	TotalOpportunities int             `json:"total_opportunities"`
	AvgSpread          decimal.Decimal `json:"avg_spread"`
	MaxSpread          decimal.Decimal `json:"max_spread"`
	TopSymbols         map[Symbol]int  `json:"top_symbols"`
	LastUpdate         *time.Time      `json:"last_update"`
}

// Summarize computes history statistics. TopSymbols keeps the topN symbols
// by opportunity count, ties broken by symbol.
func Summarize(opps []RecordedOpportunity, topN int) OpportunityStats {
	stats := OpportunityStats{
		TotalOpportunities: len(opps),
		TopSymbols:         map[Symbol]int{},
	}
	if len(opps) == 0 {
		return stats
	}

	counts := make(map[Symbol]int)
	sum := decimal.Zero
	for i, o := range opps {
		counts[o.Symbol]++
		sum = sum.Add(o.SpreadPct)
		if i == 0 || o.SpreadPct.GreaterThan(stats.MaxSpread) {
			stats.MaxSpread = o.SpreadPct
		}
		if stats.LastUpdate == nil || o.RecordedAt.After(*stats.LastUpdate) {
			ts := o.RecordedAt
			stats.LastUpdate = &ts
		}
	}
	stats.AvgSpread = sum.Div(decimal.NewFromInt(int64(len(opps))))

	symbols := make([]Symbol, 0, len(counts))
	for s := range counts {
		symbols = append(symbols, s)
	}
	sort.Slice(symbols, func(i, j int) bool {
		if counts[symbols[i]] != counts[symbols[j]] {
			return counts[symbols[i]] > counts[symbols[j]]
		}
		return symbols[i] < symbols[j]
	})
	if topN > 0 && len(symbols) > topN {
		symbols = symbols[:topN]
	}
	for _, s := range symbols {
		stats.TopSymbols[s] = counts[s]
	}
	return stats
}
