package recordloader

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/graph-gophers/dataloader"

	"github.com/rpattn/pawlog/internal/domain"
	"github.com/rpattn/pawlog/internal/repository"
)

// SummaryLoader batches per-pet record count lookups made while serving
// one request into a single grouped query.
type SummaryLoader struct {
	Loader *dataloader.Loader
}

func NewSummaryLoader(repo repository.HealthRecordRepository) *SummaryLoader {
	batchFn := func(ctx context.Context, keys dataloader.Keys) []*dataloader.Result {
		ids := make([]uuid.UUID, len(keys))
		for i, k := range keys {
			id, err := uuid.Parse(k.String())
			if err != nil {
				return errorResults(len(keys), fmt.Errorf("invalid UUID: %w", err))
			}
			ids[i] = id
		}

		counts, err := repo.CountByPets(ctx, ids)
		if err != nil {
			return errorResults(len(keys), err)
		}

		// Results must line up with keys; pets without records get an empty map.
		results := make([]*dataloader.Result, len(keys))
		for i, id := range ids {
			byType, ok := counts[id]
			if !ok {
				byType = map[domain.RecordType]int{}
			}
			results[i] = &dataloader.Result{Data: byType}
		}
		return results
	}

	loader := dataloader.NewBatchedLoader(batchFn, dataloader.WithWait(2*time.Millisecond))
	return &SummaryLoader{Loader: loader}
}

func errorResults(n int, err error) []*dataloader.Result {
	results := make([]*dataloader.Result, n)
	for i := range results {
		results[i] = &dataloader.Result{Error: err}
	}
	return results
}

// Load returns the record counts by type for one pet.
func (l *SummaryLoader) Load(ctx context.Context, petID uuid.UUID) (map[domain.RecordType]int, error) {
	thunk := l.Loader.Load(ctx, dataloader.StringKey(petID.String()))
	data, err := thunk()
	if err != nil {
		return nil, err
	}
	counts, ok := data.(map[domain.RecordType]int)
	if !ok {
		return nil, fmt.Errorf("unexpected summary type %T", data)
	}
	return counts, nil
}

// LoadMany returns counts for several pets, issuing every key before waiting
// so they share one batch.
func (l *SummaryLoader) LoadMany(ctx context.Context, petIDs []uuid.UUID) ([]map[domain.RecordType]int, error) {
	thunks := make([]dataloader.Thunk, len(petIDs))
	for i, id := range petIDs {
		thunks[i] = l.Loader.Load(ctx, dataloader.StringKey(id.String()))
	}
	out := make([]map[domain.RecordType]int, len(petIDs))
	for i, thunk := range thunks {
		data, err := thunk()
		if err != nil {
			return nil, err
		}
		counts, ok := data.(map[domain.RecordType]int)
		if !ok {
			return nil, fmt.Errorf("unexpected summary type %T", data)
		}
		out[i] = counts
	}
	return out, nil
}

type ctxKey string

const summaryLoaderKey ctxKey = "summaryLoader"

// WithLoader stores a loader on the context.
func WithLoader(ctx context.Context, loader *SummaryLoader) context.Context {
	return context.WithValue(ctx, summaryLoaderKey, loader)
}

// FromContext retrieves the request-scoped loader, if any.
func FromContext(ctx context.Context) *SummaryLoader {
	if l, ok := ctx.Value(summaryLoaderKey).(*SummaryLoader); ok {
		return l
	}
	return nil
}
