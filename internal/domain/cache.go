package domain

import (
	"context"
	"time"
)

// PriceCache keeps the most recent quote of every (symbol, source) pair.
type PriceCache interface {
	SetPrices(ctx context.Context, records []PriceRecord) error
	GetPrices(ctx context.Context, symbol Symbol) ([]PriceRecord, error)
}

// RateLimiter spaces calls to a source so that two calls are never closer
// together than interval. Wait blocks until the caller holds the next slot.
type RateLimiter interface {
	Wait(ctx context.Context, source string, interval time.Duration) error
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage represents a single entry from a Redis stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}

// Bus channel and stream names.
const (
	ChannelCycles        = "arb:cycles"
	ChannelOpportunities = "arb:opportunities"
	StreamHistory        = "arb:history"
)
