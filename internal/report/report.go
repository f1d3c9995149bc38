// Package report contains the sinks that consume finished monitoring cycles.
// Sinks never influence detection; a failing sink only loses its own output.
package report

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/Juuiko/cross-chain-arbitrage-monitor/internal/domain"
)

var one = decimal.NewFromInt(1)

// FormatOpportunity renders the one-line alert used by the log and notify
// sinks.
func FormatOpportunity(o domain.ArbitrageOpportunity) string {
	return fmt.Sprintf("ARBITRAGE %s: buy %s @ %s, sell %s @ %s, spread %s%%",
		o.Symbol, o.BuySource, formatPrice(o.BuyPrice), o.SellSource, formatPrice(o.SellPrice), o.SpreadPct.StringFixed(2))
}

// formatPrice shows two decimals for prices of at least one unit and the
// full value for sub-unit prices.
func formatPrice(p decimal.Decimal) string {
	if p.Abs().GreaterThanOrEqual(one) {
		return p.StringFixed(2)
	}
	return p.String()
}

// encodeCycle produces the bus and push payloads of a cycle: the whole
// result plus one document per opportunity.
func encodeCycle(res domain.CycleResult) ([]byte, [][]byte, error) {
	cycle, err := json.Marshal(res)
	if err != nil {
		return nil, nil, fmt.Errorf("report: encode cycle: %w", err)
	}
	recorded := res.Recorded()
	opps := make([][]byte, 0, len(recorded))
	for _, o := range recorded {
		b, err := json.Marshal(o)
		if err != nil {
			return nil, nil, fmt.Errorf("report: encode opportunity: %w", err)
		}
		opps = append(opps, b)
	}
	return cycle, opps, nil
}
