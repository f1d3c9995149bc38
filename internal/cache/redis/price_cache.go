package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"github.com/Juuiko/cross-chain-arbitrage-monitor/internal/domain"
)

// PriceCache implements domain.PriceCache with one hash per symbol at
// "price:{symbol}", one field per source holding the JSON record.
type PriceCache struct {
	c *Client
}

func NewPriceCache(c *Client) *PriceCache {
	return &PriceCache{c: c}
}

func (pc *PriceCache) priceKey(symbol domain.Symbol) string {
	return pc.c.key("price:", symbol.String())
}

// SetPrices stores the latest record of every (symbol, source) in one
// pipeline.
func (pc *PriceCache) SetPrices(ctx context.Context, records []domain.PriceRecord) error {
	if len(records) == 0 {
		return nil
	}
	pipe := pc.c.rdb.TxPipeline()
	for _, r := range records {
		b, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("redis: encode price %s/%s: %w", r.Source, r.Symbol, err)
		}
		pipe.HSet(ctx, pc.priceKey(r.Symbol), r.Source, b)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set prices: %w", err)
	}
	return nil
}

// GetPrices returns the cached records of symbol ordered by source name.
// It returns domain.ErrNotFound when nothing is cached.
func (pc *PriceCache) GetPrices(ctx context.Context, symbol domain.Symbol) ([]domain.PriceRecord, error) {
	vals, err := pc.c.rdb.HGetAll(ctx, pc.priceKey(symbol)).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("redis: get prices %s: %w", symbol, err)
	}
	if len(vals) == 0 {
		return nil, domain.ErrNotFound
	}

	out := make([]domain.PriceRecord, 0, len(vals))
	for src, raw := range vals {
		var r domain.PriceRecord
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return nil, fmt.Errorf("redis: decode price %s/%s: %w", symbol, src, err)
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Source < out[j].Source })
	return out, nil
}

var _ domain.PriceCache = (*PriceCache)(nil)
