package domain

import (
	"context"
	"time"
)

// OpportunityStore persists detected opportunities.
type OpportunityStore interface {
	InsertBatch(ctx context.Context, opps []RecordedOpportunity) error
	ListSince(ctx context.Context, since time.Time, limit int) ([]RecordedOpportunity, error)
	// ListBetween returns opportunities recorded in [from, to), oldest first.
	ListBetween(ctx context.Context, from, to time.Time) ([]RecordedOpportunity, error)
	Oldest(ctx context.Context) (time.Time, error)
	Stats(ctx context.Context, since time.Time) (OpportunityStats, error)
}

// PriceStore persists raw price observations.
type PriceStore interface {
	InsertBatch(ctx context.Context, records []PriceRecord) error
	ListLatest(ctx context.Context, symbol Symbol, limit int) ([]PriceRecord, error)
}

// CycleSummary is one stored monitoring cycle.
type CycleSummary struct {
	ID            string                 `json:"id"`
	StartedAt     time.Time              `json:"started_at"`
	CompletedAt   time.Time              `json:"completed_at"`
	Opportunities int                    `json:"opportunities"`
	Sources       map[string]SourceStats `json:"sources"`
	Failures      []FetchFailure         `json:"failures"`
	Outages       []Symbol               `json:"outages"`
}

// CycleStore persists one audit row per monitoring cycle.
type CycleStore interface {
	Insert(ctx context.Context, res CycleResult) error
	ListRecent(ctx context.Context, limit int) ([]CycleSummary, error)
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
}
