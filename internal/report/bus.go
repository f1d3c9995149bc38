package report

import (
	"context"
	"errors"
	"fmt"

	"github.com/Juuiko/cross-chain-arbitrage-monitor/internal/domain"
)

// BusSink refreshes the latest-price cache and publishes every cycle on the
// signal bus. Each opportunity is also appended to the history stream.
type BusSink struct {
	Cache domain.PriceCache
	Bus   domain.SignalBus
}

func (s *BusSink) Name() string { return "bus" }

func (s *BusSink) Report(ctx context.Context, res domain.CycleResult) error {
	var errs []error
	if s.Cache != nil {
		if prices := res.AllPrices(); len(prices) > 0 {
			if err := s.Cache.SetPrices(ctx, prices); err != nil {
				errs = append(errs, fmt.Errorf("cache: %w", err))
			}
		}
	}
	if s.Bus == nil {
		return errors.Join(errs...)
	}

	cycle, opps, err := encodeCycle(res)
	if err != nil {
		return errors.Join(append(errs, err)...)
	}
	if err := s.Bus.Publish(ctx, domain.ChannelCycles, cycle); err != nil {
		errs = append(errs, err)
	}
	for _, o := range opps {
		if err := s.Bus.Publish(ctx, domain.ChannelOpportunities, o); err != nil {
			errs = append(errs, err)
		}
		if err := s.Bus.StreamAppend(ctx, domain.StreamHistory, o); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Broadcaster pushes payloads to live clients.
type Broadcaster interface {
	Broadcast(channel string, data []byte)
}

// PushSink sends cycles straight to a Broadcaster, for deployments without a
// signal bus.
type PushSink struct {
	Target Broadcaster
}

func (s *PushSink) Name() string { return "push" }

func (s *PushSink) Report(ctx context.Context, res domain.CycleResult) error {
	cycle, opps, err := encodeCycle(res)
	if err != nil {
		return err
	}
	s.Target.Broadcast(domain.ChannelCycles, cycle)
	for _, o := range opps {
		s.Target.Broadcast(domain.ChannelOpportunities, o)
	}
	return nil
}
