package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/Juuiko/cross-chain-arbitrage-monitor/internal/domain"
)

// topSymbolsLimit bounds OpportunityStats.TopSymbols.
const topSymbolsLimit = 5

// OpportunityStore implements domain.OpportunityStore using PostgreSQL.
type OpportunityStore struct {
	pool *pgxpool.Pool
}

// NewOpportunityStore creates a new OpportunityStore backed by the given
// connection pool.
func NewOpportunityStore(pool *pgxpool.Pool) *OpportunityStore {
	return &OpportunityStore{pool: pool}
}

const opportunitySelectCols = `cycle_id, symbol, buy_source, buy_price,
	sell_source, sell_price, spread_pct, recorded_at`

func scanOpportunityRows(rows pgx.Rows) ([]domain.RecordedOpportunity, error) {
	opps := []domain.RecordedOpportunity{}
	for rows.Next() {
		var (
			o      domain.RecordedOpportunity
			symbol string
		)
		if err := rows.Scan(
			&o.CycleID, &symbol, &o.BuySource, &o.BuyPrice,
			&o.SellSource, &o.SellPrice, &o.SpreadPct, &o.RecordedAt,
		); err != nil {
			return nil, err
		}
		o.Symbol = domain.Symbol(symbol)
		opps = append(opps, o)
	}
	return opps, rows.Err()
}

// InsertBatch inserts opportunities using a pgx Batch. Re-inserting a
// cycle's opportunity is a no-op.
func (s *OpportunityStore) InsertBatch(ctx context.Context, opps []domain.RecordedOpportunity) error {
	if len(opps) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	const query = `
		INSERT INTO opportunities (
			cycle_id, symbol, buy_source, buy_price,
			sell_source, sell_price, spread_pct, recorded_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (cycle_id, symbol, buy_source, sell_source) WHERE cycle_id <> '' DO NOTHING`

	for _, o := range opps {
		batch.Queue(query,
			o.CycleID, string(o.Symbol), o.BuySource, o.BuyPrice.String(),
			o.SellSource, o.SellPrice.String(), o.SpreadPct.String(), o.RecordedAt,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range opps {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: insert opportunity batch item %d: %w", i, err)
		}
	}
	return nil
}

// ListSince returns opportunities recorded at or after since, newest first.
// A non-positive limit returns everything in the window.
func (s *OpportunityStore) ListSince(ctx context.Context, since time.Time, limit int) ([]domain.RecordedOpportunity, error) {
	query := `SELECT ` + opportunitySelectCols + ` FROM opportunities
		WHERE recorded_at >= $1 ORDER BY recorded_at DESC, spread_pct DESC`
	args := []any{since}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list opportunities since: %w", err)
	}
	defer rows.Close()

	opps, err := scanOpportunityRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan opportunities since: %w", err)
	}
	return opps, nil
}

// ListBetween returns opportunities recorded in [from, to), oldest first.
func (s *OpportunityStore) ListBetween(ctx context.Context, from, to time.Time) ([]domain.RecordedOpportunity, error) {
	query := `SELECT ` + opportunitySelectCols + ` FROM opportunities
		WHERE recorded_at >= $1 AND recorded_at < $2 ORDER BY recorded_at ASC, id ASC`
	rows, err := s.pool.Query(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("postgres: list opportunities between: %w", err)
	}
	defer rows.Close()

	opps, err := scanOpportunityRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan opportunities between: %w", err)
	}
	return opps, nil
}

// Oldest returns the earliest recorded_at, or the zero time if the table is
// empty.
func (s *OpportunityStore) Oldest(ctx context.Context) (time.Time, error) {
	var ts *time.Time
	if err := s.pool.QueryRow(ctx, "SELECT MIN(recorded_at) FROM opportunities").Scan(&ts); err != nil {
		return time.Time{}, fmt.Errorf("postgres: oldest opportunity: %w", err)
	}
	if ts == nil {
		return time.Time{}, nil
	}
	return *ts, nil
}

// Stats aggregates opportunities recorded at or after since.
func (s *OpportunityStore) Stats(ctx context.Context, since time.Time) (domain.OpportunityStats, error) {
	stats := domain.OpportunityStats{TopSymbols: map[domain.Symbol]int{}}

	var (
		avg, maxSpread string
		last           *time.Time
	)
	const aggQuery = `
		SELECT COUNT(*),
		       COALESCE(AVG(spread_pct), 0)::text,
		       COALESCE(MAX(spread_pct), 0)::text,
		       MAX(recorded_at)
		FROM opportunities WHERE recorded_at >= $1`
	if err := s.pool.QueryRow(ctx, aggQuery, since).Scan(
		&stats.TotalOpportunities, &avg, &maxSpread, &last,
	); err != nil {
		return stats, fmt.Errorf("postgres: opportunity stats: %w", err)
	}
	if stats.TotalOpportunities == 0 {
		return stats, nil
	}

	var err error
	if stats.AvgSpread, err = decimal.NewFromString(avg); err != nil {
		return stats, fmt.Errorf("postgres: parse avg spread %q: %w", avg, err)
	}
	if stats.MaxSpread, err = decimal.NewFromString(maxSpread); err != nil {
		return stats, fmt.Errorf("postgres: parse max spread %q: %w", maxSpread, err)
	}
	stats.LastUpdate = last

	const topQuery = `
		SELECT symbol, COUNT(*) AS n FROM opportunities
		WHERE recorded_at >= $1
		GROUP BY symbol ORDER BY n DESC, symbol ASC LIMIT $2`
	rows, err := s.pool.Query(ctx, topQuery, since, topSymbolsLimit)
	if err != nil {
		return stats, fmt.Errorf("postgres: top symbols: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			symbol string
			n      int
		)
		if err := rows.Scan(&symbol, &n); err != nil {
			return stats, fmt.Errorf("postgres: scan top symbol: %w", err)
		}
		stats.TopSymbols[domain.Symbol(symbol)] = n
	}
	if err := rows.Err(); err != nil {
		return stats, fmt.Errorf("postgres: top symbols rows: %w", err)
	}
	return stats, nil
}

var _ domain.OpportunityStore = (*OpportunityStore)(nil)
