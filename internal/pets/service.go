// Package pets implements pet profile CRUD behind the tier quota.
package pets

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rpattn/pawlog/internal/domain"
	"github.com/rpattn/pawlog/internal/quota"
	"github.com/rpattn/pawlog/internal/recordloader"
	"github.com/rpattn/pawlog/internal/repository"
	"github.com/rpattn/pawlog/internal/timeline"
)

// Authorizer is the quota pre-check consulted before creating a pet.
type Authorizer interface {
	Authorize(ctx context.Context, principal uuid.UUID) (quota.Decision, error)
}

// Service manages pets for their owners.
type Service struct {
	pets    repository.PetRepository
	records repository.HealthRecordRepository
	quota   Authorizer
	logger  *zap.Logger
}

func NewService(pets repository.PetRepository, records repository.HealthRecordRepository, authorizer Authorizer, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{pets: pets, records: records, quota: authorizer, logger: logger}
}

// Create validates input, runs the quota pre-check, then inserts with the
// limit enforced again at write time.
func (s *Service) Create(ctx context.Context, principal uuid.UUID, input domain.PetInput) (domain.Pet, error) {
	pet, err := domain.NewPet(principal, input)
	if err != nil {
		return domain.Pet{}, err
	}

	decision, err := s.quota.Authorize(ctx, principal)
	if err != nil {
		return domain.Pet{}, err
	}

	var created domain.Pet
	if decision.Unlimited() {
		created, err = s.pets.Create(ctx, pet)
	} else {
		created, err = s.pets.CreateWithinLimit(ctx, pet, decision.Limit)
	}
	if errors.Is(err, repository.ErrLimitReached) {
		// Another session created a pet between the pre-check and the insert.
		s.logger.Info("pet limit reached at write time", zap.Stringer("owner", principal), zap.Int("limit", decision.Limit))
		return domain.Pet{}, &quota.ExceededError{Tier: decision.Tier, Limit: decision.Limit, Count: decision.Limit}
	}
	if err != nil {
		return domain.Pet{}, fmt.Errorf("create pet: %w", err)
	}

	s.logger.Info("pet created", zap.Stringer("owner", principal), zap.Stringer("pet", created.ID), zap.Bool("bypassed", decision.Bypassed))
	return created, nil
}

// Get returns a pet owned by principal. Pets of other owners are not found.
func (s *Service) Get(ctx context.Context, principal, petID uuid.UUID) (domain.Pet, error) {
	pet, err := s.pets.GetByID(ctx, petID)
	if err != nil {
		return domain.Pet{}, err
	}
	if pet.OwnerID != principal {
		return domain.Pet{}, fmt.Errorf("pet %s: %w", petID, domain.ErrNotFound)
	}
	return pet, nil
}

// List returns principal's pets, newest first.
func (s *Service) List(ctx context.Context, principal uuid.UUID) ([]domain.Pet, error) {
	return s.pets.ListByOwner(ctx, principal)
}

// Update applies a partial update.
func (s *Service) Update(ctx context.Context, principal, petID uuid.UUID, input domain.PetInput) (domain.Pet, error) {
	pet, err := s.Get(ctx, principal, petID)
	if err != nil {
		return domain.Pet{}, err
	}
	updated, err := pet.WithInput(input)
	if err != nil {
		return domain.Pet{}, err
	}
	return s.pets.Update(ctx, updated)
}

// Delete removes a pet together with its health records.
func (s *Service) Delete(ctx context.Context, principal, petID uuid.UUID) error {
	if _, err := s.Get(ctx, principal, petID); err != nil {
		return err
	}
	if err := s.pets.Delete(ctx, petID); err != nil {
		return err
	}
	s.logger.Info("pet deleted", zap.Stringer("owner", principal), zap.Stringer("pet", petID))
	return nil
}

// Summary pairs a pet with its record counts per timeline chip.
type Summary struct {
	domain.Pet
	RecordCounts map[string]int `json:"record_counts"`
}

// Summaries attaches record counts to pets, using the request-scoped
// loader when one is on the context.
func (s *Service) Summaries(ctx context.Context, pets []domain.Pet) ([]Summary, error) {
	loader := recordloader.FromContext(ctx)
	if loader == nil {
		loader = recordloader.NewSummaryLoader(s.records)
	}

	ids := make([]uuid.UUID, len(pets))
	for i, pet := range pets {
		ids[i] = pet.ID
	}
	byPet, err := loader.LoadMany(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load record counts: %w", err)
	}

	out := make([]Summary, len(pets))
	for i, pet := range pets {
		var counts timeline.Counts
		for recordType, n := range byPet[i] {
			if c, ok := timeline.CategoryOf(recordType); ok {
				counts[c] += n
				counts[timeline.All] += n
			}
		}
		out[i] = Summary{Pet: pet, RecordCounts: counts.Map()}
	}
	return out, nil
}
