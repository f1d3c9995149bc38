package redis

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Juuiko/cross-chain-arbitrage-monitor/internal/domain"
)

//go:embed scripts/next_slot.lua
var nextSlotLua string

// IntervalLimiter implements domain.RateLimiter across processes. Slot
// reservation is a single Lua call, so instances sharing a server never
// call a source closer together than its interval.
type IntervalLimiter struct {
	c        *Client
	nextSlot *redis.Script
}

func NewIntervalLimiter(c *Client) *IntervalLimiter {
	return &IntervalLimiter{c: c, nextSlot: redis.NewScript(nextSlotLua)}
}

// Wait reserves the next slot for source and sleeps until it arrives. A slot
// beyond the context deadline is refused with domain.ErrRateLimited.
func (l *IntervalLimiter) Wait(ctx context.Context, source string, interval time.Duration) error {
	if interval <= 0 {
		return nil
	}

	maxWait := int64(-1)
	if deadline, ok := ctx.Deadline(); ok {
		maxWait = time.Until(deadline).Milliseconds()
		if maxWait < 0 {
			maxWait = 0
		}
	}

	waitMs, err := l.nextSlot.Run(ctx, l.c.rdb,
		[]string{l.c.key("ratelimit:", source)},
		time.Now().UnixMilli(),
		interval.Milliseconds(),
		maxWait,
	).Int64()
	if err != nil {
		return fmt.Errorf("redis: reserve slot %s: %w", source, err)
	}
	if waitMs < 0 {
		return fmt.Errorf("redis: %s: next slot beyond deadline: %w", source, domain.ErrRateLimited)
	}
	if waitMs == 0 {
		return nil
	}

	timer := time.NewTimer(time.Duration(waitMs) * time.Millisecond)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("redis: waiting for slot %s: %w", source, ctx.Err())
	case <-timer.C:
		return nil
	}
}

var _ domain.RateLimiter = (*IntervalLimiter)(nil)
