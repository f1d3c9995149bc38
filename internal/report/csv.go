package report

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Juuiko/cross-chain-arbitrage-monitor/internal/domain"
)

const csvTimeLayout = "2006-01-02T15:04:05.000Z07:00"

var (
	opportunityHeader = []string{"timestamp", "symbol", "buy_exchange", "sell_exchange", "buy_price", "sell_price", "spread_pct"}
	priceHeader       = []string{"timestamp", "source", "symbol", "price", "volume_24h"}
)

// CSVSink appends every opportunity to a CSV file, and optionally every raw
// price to a second file. The header is written once when a file is created.
// It also serves the opportunity file back as history.
type CSVSink struct {
	mu         sync.Mutex
	path       string
	pricesPath string
}

// NewCSVSink creates a sink writing opportunities to path. pricesPath may be
// empty to skip raw prices.
func NewCSVSink(path, pricesPath string) *CSVSink {
	return &CSVSink{path: path, pricesPath: pricesPath}
}

func (s *CSVSink) Name() string { return "csv" }

func (s *CSVSink) Report(ctx context.Context, res domain.CycleResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	if len(res.Opportunities) > 0 {
		ts := res.StartedAt.UTC().Format(csvTimeLayout)
		rows := make([][]string, 0, len(res.Opportunities))
		for _, o := range res.Opportunities {
			rows = append(rows, []string{
				ts,
				o.Symbol.String(),
				o.BuySource,
				o.SellSource,
				o.BuyPrice.String(),
				o.SellPrice.String(),
				o.SpreadPct.StringFixed(4),
			})
		}
		if err := appendCSV(s.path, opportunityHeader, rows); err != nil {
			errs = append(errs, err)
		}
	}

	if s.pricesPath != "" {
		prices := res.AllPrices()
		rows := make([][]string, 0, len(prices))
		for _, p := range prices {
			rows = append(rows, []string{
				p.ObservedAt.UTC().Format(csvTimeLayout),
				p.Source,
				p.Symbol.String(),
				p.Price.String(),
				p.Volume24h.String(),
			})
		}
		if len(rows) > 0 {
			if err := appendCSV(s.pricesPath, priceHeader, rows); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func appendCSV(path string, header []string, rows [][]string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("report: csv mkdir %s: %w", dir, err)
		}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("report: csv open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("report: csv stat %s: %w", path, err)
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(header); err != nil {
			return fmt.Errorf("report: csv header %s: %w", path, err)
		}
	}
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("report: csv write %s: %w", path, err)
	}
	return nil
}

// ListSince reads back opportunities recorded at or after since, newest
// first. A missing file is an empty history. limit <= 0 means no limit.
func (s *CSVSink) ListSince(ctx context.Context, since time.Time, limit int) ([]domain.RecordedOpportunity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return []domain.RecordedOpportunity{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("report: csv open %s: %w", s.path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	out := []domain.RecordedOpportunity{}
	for line := 0; ; line++ {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("report: csv read %s: %w", s.path, err)
		}
		if line == 0 && len(row) > 0 && row[0] == opportunityHeader[0] {
			continue
		}
		o, ok := parseOpportunityRow(row)
		if !ok || o.RecordedAt.Before(since) {
			continue
		}
		out = append(out, o)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].RecordedAt.After(out[j].RecordedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Stats summarises the history recorded at or after since.
func (s *CSVSink) Stats(ctx context.Context, since time.Time) (domain.OpportunityStats, error) {
	opps, err := s.ListSince(ctx, since, 0)
	if err != nil {
		return domain.OpportunityStats{}, err
	}
	return domain.Summarize(opps, 5), nil
}

func parseOpportunityRow(row []string) (domain.RecordedOpportunity, bool) {
	if len(row) < len(opportunityHeader) {
		return domain.RecordedOpportunity{}, false
	}
	ts, err := time.Parse(time.RFC3339Nano, row[0])
	if err != nil {
		return domain.RecordedOpportunity{}, false
	}
	var nums [3]decimal.Decimal
	for i, field := range row[4:7] {
		if nums[i], err = decimal.NewFromString(field); err != nil {
			return domain.RecordedOpportunity{}, false
		}
	}
	return domain.RecordedOpportunity{
		ArbitrageOpportunity: domain.ArbitrageOpportunity{
			Symbol:     domain.Symbol(row[1]),
			BuySource:  row[2],
			SellSource: row[3],
			BuyPrice:   nums[0],
			SellPrice:  nums[1],
			SpreadPct:  nums[2],
		},
		RecordedAt: ts,
	}, true
}
