package report

import (
	"context"
	"errors"
	"fmt"

	"github.com/Juuiko/cross-chain-arbitrage-monitor/internal/domain"
)

// StoreSink records cycles in durable storage. Prices and Cycles are
// optional.
type StoreSink struct {
	Opportunities domain.OpportunityStore
	Prices        domain.PriceStore
	Cycles        domain.CycleStore
}

func (s *StoreSink) Name() string { return "store" }

func (s *StoreSink) Report(ctx context.Context, res domain.CycleResult) error {
	var errs []error
	if s.Cycles != nil {
		if err := s.Cycles.Insert(ctx, res); err != nil {
			errs = append(errs, fmt.Errorf("cycle: %w", err))
		}
	}
	if s.Prices != nil {
		if prices := res.AllPrices(); len(prices) > 0 {
			if err := s.Prices.InsertBatch(ctx, prices); err != nil {
				errs = append(errs, fmt.Errorf("prices: %w", err))
			}
		}
	}
	if s.Opportunities != nil && len(res.Opportunities) > 0 {
		if err := s.Opportunities.InsertBatch(ctx, res.Recorded()); err != nil {
			errs = append(errs, fmt.Errorf("opportunities: %w", err))
		}
	}
	return errors.Join(errs...)
}
