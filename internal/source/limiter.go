package source

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Juuiko/cross-chain-arbitrage-monitor/internal/clock"
	"github.com/Juuiko/cross-chain-arbitrage-monitor/internal/domain"
)

// IntervalLimiter is the in-process domain.RateLimiter. It hands out call
// slots per source so consecutive calls are at least interval apart, across
// symbols and across cycles.
type IntervalLimiter struct {
	mu    sync.Mutex
	clock clock.Clock
	next  map[string]time.Time
}

// NewIntervalLimiter creates a limiter driven by clk.
func NewIntervalLimiter(clk clock.Clock) *IntervalLimiter {
	if clk == nil {
		clk = clock.Real{}
	}
	return &IntervalLimiter{clock: clk, next: make(map[string]time.Time)}
}

// Wait reserves the next free slot for source and blocks until it arrives.
// When the slot lies beyond the context deadline, as seen by the limiter's
// clock, nothing is reserved and an ErrRateLimited error is returned straight
// away.
func (l *IntervalLimiter) Wait(ctx context.Context, source string, interval time.Duration) error {
	if interval <= 0 {
		return nil
	}

	l.mu.Lock()
	now := l.clock.Now()
	slot := now
	if n, ok := l.next[source]; ok && n.After(now) {
		slot = n
	}
	wait := slot.Sub(now)
	if deadline, ok := ctx.Deadline(); ok && wait > deadline.Sub(now) {
		l.mu.Unlock()
		return fmt.Errorf("source: %s: next slot in %s: %w", source, wait, domain.ErrRateLimited)
	}
	l.next[source] = slot.Add(interval)
	l.mu.Unlock()

	if wait <= 0 {
		return nil
	}
	select {
	case <-l.clock.After(wait):
		return nil
	case <-ctx.Done():
		return fmt.Errorf("source: %s: waiting for slot: %w", source, ctx.Err())
	}
}

var _ domain.RateLimiter = (*IntervalLimiter)(nil)
