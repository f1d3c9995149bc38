package domain

import (
	"sort"
	"time"
)

// SourceStats counts fetch outcomes for one source within one cycle.
type SourceStats struct {
	Attempted int `json:"attempted"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// FetchFailure is the diagnostic left behind by a failed (source, symbol) fetch.
type FetchFailure struct {
	Source  string      `json:"source"`
	Symbol  Symbol      `json:"symbol"`
	Kind    FailureKind `json:"kind"`
	Message string      `json:"message"`
}

// CycleResult is the output of one monitoring cycle.
type CycleResult struct {
	ID            string                   `json:"id"`
	StartedAt     time.Time                `json:"started_at"`
	CompletedAt   time.Time                `json:"completed_at"`
	Prices        map[Symbol][]PriceRecord `json:"prices"`
	Opportunities []ArbitrageOpportunity   `json:"opportunities"`
	Sources       map[string]SourceStats   `json:"sources"`
	Failures      []FetchFailure           `json:"failures"`
	Outages       []Symbol                 `json:"outages"`
}

// Duration reports the wall-clock time the cycle took.
func (c CycleResult) Duration() time.Duration {
	return c.CompletedAt.Sub(c.StartedAt)
}

// Recorded stamps every opportunity of the cycle for durable history.
func (c CycleResult) Recorded() []RecordedOpportunity {
	out := make([]RecordedOpportunity, 0, len(c.Opportunities))
	for _, opp := range c.Opportunities {
		out = append(out, RecordedOpportunity{
			ArbitrageOpportunity: opp,
			CycleID:              c.ID,
			RecordedAt:           c.StartedAt,
		})
	}
	return out
}

// AllPrices flattens the price map, symbols in lexical order and records in
// source priority order.
func (c CycleResult) AllPrices() []PriceRecord {
	symbols := make([]Symbol, 0, len(c.Prices))
	for s := range c.Prices {
		symbols = append(symbols, s)
	}
	sort.Slice(symbols, func(i, j int) bool { return symbols[i] < symbols[j] })

	var out []PriceRecord
	for _, s := range symbols {
		out = append(out, c.Prices[s]...)
	}
	return out
}
