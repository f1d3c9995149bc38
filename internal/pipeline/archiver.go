// Package pipeline runs background housekeeping next to the monitor loop.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Juuiko/cross-chain-arbitrage-monitor/internal/clock"
	"github.com/Juuiko/cross-chain-arbitrage-monitor/internal/domain"
	"github.com/Juuiko/cross-chain-arbitrage-monitor/internal/metrics"
)

// Archiver moves opportunity history older than the retention window to
// cold storage.
type Archiver struct {
	blobArchiver  domain.Archiver
	retentionDays int
	clock         clock.Clock
	metrics       *metrics.Metrics
	logger        *slog.Logger
}

// NewArchiver creates a new Archiver. m may be nil.
func NewArchiver(blobArchiver domain.Archiver, retentionDays int, clk clock.Clock, m *metrics.Metrics, logger *slog.Logger) *Archiver {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Archiver{
		blobArchiver:  blobArchiver,
		retentionDays: retentionDays,
		clock:         clk,
		metrics:       m,
		logger:        logger.With(slog.String("component", "archiver")),
	}
}

// Cutoff is the instant before which history is eligible for archiving.
func (a *Archiver) Cutoff() time.Time {
	return a.clock.Now().UTC().Add(-time.Duration(a.retentionDays) * 24 * time.Hour)
}

// Run executes a single archive run and returns the number of records
// written.
func (a *Archiver) Run(ctx context.Context) (int64, error) {
	cutoff := a.Cutoff()
	a.logger.Info("starting archive run",
		slog.Time("cutoff", cutoff),
		slog.Int("retention_days", a.retentionDays),
	)

	n, err := a.blobArchiver.ArchiveOpportunities(ctx, cutoff)
	a.metrics.Archived(n)
	if err != nil {
		return n, fmt.Errorf("pipeline: archive opportunities before %v: %w", cutoff, err)
	}

	a.logger.Info("archive run complete", slog.Int64("opportunities_archived", n))
	return n, nil
}

// RunLoop archives immediately and then on every interval until ctx is
// cancelled. Failed runs are logged and retried on the next tick.
func (a *Archiver) RunLoop(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("pipeline: archive interval must be positive, got %v", interval)
	}
	a.logger.Info("archiver started", slog.Duration("interval", interval))

	for {
		if _, err := a.Run(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			a.logger.Error("archive run failed", slog.String("error", err.Error()))
		}

		select {
		case <-ctx.Done():
			a.logger.Info("archiver stopped")
			return ctx.Err()
		case <-a.clock.After(interval):
		}
	}
}
