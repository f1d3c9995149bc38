package report

import (
	"context"
	"log/slog"

	"github.com/Juuiko/cross-chain-arbitrage-monitor/internal/domain"
)

// LogSink writes one log line per opportunity.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger.With(slog.String("component", "report"))}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Report(ctx context.Context, res domain.CycleResult) error {
	if len(res.Opportunities) == 0 {
		s.logger.InfoContext(ctx, "no arbitrage opportunities", slog.String("cycle_id", res.ID))
		return nil
	}
	for _, o := range res.Opportunities {
		s.logger.InfoContext(ctx, FormatOpportunity(o),
			slog.String("cycle_id", res.ID),
			slog.String("symbol", o.Symbol.String()),
			slog.String("buy_source", o.BuySource),
			slog.String("sell_source", o.SellSource),
			slog.String("spread_pct", o.SpreadPct.StringFixed(4)),
		)
	}
	return nil
}
