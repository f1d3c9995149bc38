package monitor

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Juuiko/cross-chain-arbitrage-monitor/internal/domain"
)

// State is the lifecycle state of the loop.
type State int32

const (
	StateIdle State = iota
	StateRunning
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	default:
		return "idle"
	}
}

// Snapshot holds the most recent CycleResult for readers outside the loop.
type Snapshot struct {
	mu     sync.RWMutex
	latest *domain.CycleResult
}

// Store replaces the held result.
func (s *Snapshot) Store(res domain.CycleResult) {
	s.mu.Lock()
	s.latest = &res
	s.mu.Unlock()
}

// Latest returns the held result and whether one exists.
func (s *Snapshot) Latest() (domain.CycleResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == nil {
		return domain.CycleResult{}, false
	}
	return *s.latest, true
}

// Status is a point-in-time view of the loop for the dashboard.
type Status struct {
	State           string                        `json:"state"`
	CyclesCompleted int64                         `json:"cycles_completed"`
	LastCycleID     string                        `json:"last_cycle_id,omitempty"`
	LastCycleAt     *time.Time                    `json:"last_cycle_at"`
	LastDuration    string                        `json:"last_cycle_duration,omitempty"`
	Symbols         []domain.Symbol               `json:"symbols"`
	MinSpreadPct    decimal.Decimal               `json:"min_spread_pct"`
	CycleInterval   string                        `json:"cycle_interval"`
	Sources         map[string]domain.SourceStats `json:"sources"`
	Outages         []domain.Symbol               `json:"outages"`
}

// Status reports the loop state and last cycle statistics.
func (m *Monitor) Status() Status {
	st := Status{
		State:           m.State().String(),
		CyclesCompleted: m.cycles.Load(),
		Symbols:         m.cfg.Symbols,
		MinSpreadPct:    m.cfg.MinSpreadPct,
		CycleInterval:   m.cfg.CycleInterval.String(),
		Sources:         map[string]domain.SourceStats{},
		Outages:         []domain.Symbol{},
	}
	if res, ok := m.snapshot.Latest(); ok {
		at := res.CompletedAt
		st.LastCycleID = res.ID
		st.LastCycleAt = &at
		st.LastDuration = res.Duration().String()
		st.Sources = res.Sources
		if res.Outages != nil {
			st.Outages = res.Outages
		}
	}
	return st
}
