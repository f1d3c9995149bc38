package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Juuiko/cross-chain-arbitrage-monitor/internal/domain"
)

// CycleStore implements domain.CycleStore using PostgreSQL. Per-source
// stats, failures and outages are kept as JSONB.
type CycleStore struct {
	pool *pgxpool.Pool
}

func NewCycleStore(pool *pgxpool.Pool) *CycleStore {
	return &CycleStore{pool: pool}
}

// Insert stores the cycle's audit row. A cycle already stored is left as is.
func (s *CycleStore) Insert(ctx context.Context, res domain.CycleResult) error {
	sources, err := json.Marshal(nonNilMap(res.Sources))
	if err != nil {
		return fmt.Errorf("postgres: marshal cycle sources: %w", err)
	}
	failures, err := json.Marshal(nonNilSlice(res.Failures))
	if err != nil {
		return fmt.Errorf("postgres: marshal cycle failures: %w", err)
	}
	outages, err := json.Marshal(nonNilSlice(res.Outages))
	if err != nil {
		return fmt.Errorf("postgres: marshal cycle outages: %w", err)
	}

	const query = `
		INSERT INTO cycles (id, started_at, completed_at, opportunities, sources, failures, outages)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING`
	_, err = s.pool.Exec(ctx, query,
		res.ID, res.StartedAt, res.CompletedAt, len(res.Opportunities),
		sources, failures, outages,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert cycle %s: %w", res.ID, err)
	}
	return nil
}

// ListRecent returns the newest cycles first.
func (s *CycleStore) ListRecent(ctx context.Context, limit int) ([]domain.CycleSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `
		SELECT id, started_at, completed_at, opportunities, sources, failures, outages
		FROM cycles ORDER BY started_at DESC LIMIT $1`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list cycles: %w", err)
	}
	defer rows.Close()

	out := []domain.CycleSummary{}
	for rows.Next() {
		var (
			c                          domain.CycleSummary
			sources, failures, outages []byte
		)
		if err := rows.Scan(&c.ID, &c.StartedAt, &c.CompletedAt, &c.Opportunities,
			&sources, &failures, &outages); err != nil {
			return nil, fmt.Errorf("postgres: scan cycle: %w", err)
		}
		if err := json.Unmarshal(sources, &c.Sources); err != nil {
			return nil, fmt.Errorf("postgres: unmarshal cycle %s sources: %w", c.ID, err)
		}
		if err := json.Unmarshal(failures, &c.Failures); err != nil {
			return nil, fmt.Errorf("postgres: unmarshal cycle %s failures: %w", c.ID, err)
		}
		if err := json.Unmarshal(outages, &c.Outages); err != nil {
			return nil, fmt.Errorf("postgres: unmarshal cycle %s outages: %w", c.ID, err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list cycles rows: %w", err)
	}
	return out, nil
}

func nonNilMap[K comparable, V any](m map[K]V) map[K]V {
	if m == nil {
		return map[K]V{}
	}
	return m
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

var _ domain.CycleStore = (*CycleStore)(nil)
