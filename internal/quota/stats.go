package quota

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Outcome classifies an Authorize decision for statistics.
type Outcome string

const (
	OutcomeAllowed  Outcome = "allowed"
	OutcomeBypassed Outcome = "bypassed"
	OutcomeExceeded Outcome = "exceeded"
	OutcomeFailed   Outcome = "failed"
)

// StatsEvent is one recorded decision.
//
// Principal is kept for per-principal tracking; stores that aggregate
// globally ignore it to bound cardinality.
type StatsEvent struct {
	Principal uuid.UUID
	Outcome   Outcome
	At        time.Time
}

// StatsSnapshot holds cumulative decision totals.
type StatsSnapshot map[Outcome]int64

// StatsStore persists decision statistics. Recording is best effort:
// the guard logs and ignores errors.
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
	Snapshot(ctx context.Context) (StatsSnapshot, error)
}

// PrincipalStatsStore is implemented by stores that also keep totals per
// principal. A nil snapshot means tracking is off.
type PrincipalStatsStore interface {
	PrincipalSnapshot(ctx context.Context, principal uuid.UUID) (StatsSnapshot, error)
}

// MemoryStatsStore keeps totals in process.
type MemoryStatsStore struct {
	mu     sync.Mutex
	totals map[Outcome]int64
}

func NewMemoryStatsStore() *MemoryStatsStore {
	return &MemoryStatsStore{totals: make(map[Outcome]int64)}
}

func (s *MemoryStatsStore) Record(_ context.Context, ev StatsEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totals[ev.Outcome]++
	return nil
}

func (s *MemoryStatsStore) Snapshot(context.Context) (StatsSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(StatsSnapshot, len(s.totals))
	for k, v := range s.totals {
		out[k] = v
	}
	return out, nil
}
