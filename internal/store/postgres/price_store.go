package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Juuiko/cross-chain-arbitrage-monitor/internal/domain"
)

// PriceStore implements domain.PriceStore using PostgreSQL.
type PriceStore struct {
	pool *pgxpool.Pool
}

func NewPriceStore(pool *pgxpool.Pool) *PriceStore {
	return &PriceStore{pool: pool}
}

// InsertBatch bulk-loads records with COPY.
func (s *PriceStore) InsertBatch(ctx context.Context, records []domain.PriceRecord) error {
	if len(records) == 0 {
		return nil
	}

	_, err := s.pool.CopyFrom(ctx,
		pgx.Identifier{"prices"},
		[]string{"source", "symbol", "price", "volume_24h", "observed_at"},
		pgx.CopyFromSlice(len(records), func(i int) ([]any, error) {
			r := records[i]
			return []any{r.Source, string(r.Symbol), r.Price.String(), r.Volume24h.String(), r.ObservedAt}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("postgres: copy prices: %w", err)
	}
	return nil
}

// ListLatest returns the newest observations of symbol across all sources.
func (s *PriceStore) ListLatest(ctx context.Context, symbol domain.Symbol, limit int) ([]domain.PriceRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	const query = `
		SELECT source, symbol, price, volume_24h, observed_at FROM prices
		WHERE symbol = $1 ORDER BY observed_at DESC, source ASC LIMIT $2`

	rows, err := s.pool.Query(ctx, query, string(symbol), limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list prices for %s: %w", symbol, err)
	}
	defer rows.Close()

	records := []domain.PriceRecord{}
	for rows.Next() {
		var (
			r   domain.PriceRecord
			sym string
		)
		if err := rows.Scan(&r.Source, &sym, &r.Price, &r.Volume24h, &r.ObservedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan price: %w", err)
		}
		r.Symbol = domain.Symbol(sym)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list prices rows: %w", err)
	}
	return records, nil
}

var _ domain.PriceStore = (*PriceStore)(nil)
