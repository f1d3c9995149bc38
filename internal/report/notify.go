package report

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Juuiko/cross-chain-arbitrage-monitor/internal/domain"
	"github.com/Juuiko/cross-chain-arbitrage-monitor/internal/notify"
)

// Notifier is satisfied by *notify.Notifier.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// NotifySink alerts on opportunities at or above its own threshold and on
// symbols that newly lost every source.
type NotifySink struct {
	notifier     Notifier
	minSpreadPct decimal.Decimal
	outaged      map[domain.Symbol]bool
}

func NewNotifySink(n Notifier, minSpreadPct decimal.Decimal) *NotifySink {
	return &NotifySink{notifier: n, minSpreadPct: minSpreadPct, outaged: map[domain.Symbol]bool{}}
}

func (s *NotifySink) Name() string { return "notify" }

// Report is called from the monitor loop only, so the outage set needs no
// locking.
func (s *NotifySink) Report(ctx context.Context, res domain.CycleResult) error {
	var lines []string
	for _, o := range res.Opportunities {
		if o.SpreadPct.GreaterThanOrEqual(s.minSpreadPct) {
			lines = append(lines, FormatOpportunity(o))
		}
	}

	var errs []string
	if len(lines) > 0 {
		title := fmt.Sprintf("%d arbitrage opportunit%s", len(lines), plural(len(lines), "y", "ies"))
		if err := s.notifier.Notify(ctx, notify.EventOpportunity, title, strings.Join(lines, "\n")); err != nil {
			errs = append(errs, err.Error())
		}
	}

	current := make(map[domain.Symbol]bool, len(res.Outages))
	var fresh []string
	for _, sym := range res.Outages {
		current[sym] = true
		if !s.outaged[sym] {
			fresh = append(fresh, sym.String())
		}
	}
	s.outaged = current
	if len(fresh) > 0 {
		msg := "No source returned a price for " + strings.Join(fresh, ", ")
		if err := s.notifier.Notify(ctx, notify.EventOutage, "Price outage", msg); err != nil {
			errs = append(errs, err.Error())
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("report: notify: %s", strings.Join(errs, "; "))
	}
	return nil
}

func plural(n int, single, many string) string {
	if n == 1 {
		return single
	}
	return many
}
