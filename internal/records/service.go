// Package records manages the health records of a pet and renders its
// filtered timeline.
package records

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rpattn/pawlog/internal/domain"
	"github.com/rpattn/pawlog/internal/quota"
	"github.com/rpattn/pawlog/internal/repository"
	"github.com/rpattn/pawlog/internal/timeline"
)

// PetLookup resolves a pet owned by principal.
type PetLookup interface {
	Get(ctx context.Context, principal, petID uuid.UUID) (domain.Pet, error)
}

// FeatureGate checks tier-gated features.
type FeatureGate interface {
	RequireFeature(ctx context.Context, principal uuid.UUID, feature quota.Feature) error
}

// Service manages health records.
type Service struct {
	records repository.HealthRecordRepository
	pets    PetLookup
	gate    FeatureGate
	logger  *zap.Logger
}

func NewService(records repository.HealthRecordRepository, pets PetLookup, gate FeatureGate, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{records: records, pets: pets, gate: gate, logger: logger}
}

// Create adds a record to an owned pet.
func (s *Service) Create(ctx context.Context, principal, petID uuid.UUID, input domain.HealthRecordInput) (domain.HealthRecord, error) {
	pet, err := s.pets.Get(ctx, principal, petID)
	if err != nil {
		return domain.HealthRecord{}, err
	}
	record, err := domain.NewHealthRecord(pet, input)
	if err != nil {
		return domain.HealthRecord{}, err
	}
	return s.records.Create(ctx, record)
}

// Get returns one record of an owned pet.
func (s *Service) Get(ctx context.Context, principal, petID, recordID uuid.UUID) (domain.HealthRecord, error) {
	if _, err := s.pets.Get(ctx, principal, petID); err != nil {
		return domain.HealthRecord{}, err
	}
	record, err := s.records.GetByID(ctx, recordID)
	if err != nil {
		return domain.HealthRecord{}, err
	}
	if record.PetID != petID {
		return domain.HealthRecord{}, fmt.Errorf("record %s: %w", recordID, domain.ErrNotFound)
	}
	return record, nil
}

// List returns every record of an owned pet, newest first.
func (s *Service) List(ctx context.Context, principal, petID uuid.UUID) ([]domain.HealthRecord, error) {
	if _, err := s.pets.Get(ctx, principal, petID); err != nil {
		return nil, err
	}
	return s.records.ListByPet(ctx, petID)
}

// Update applies a partial update to a record.
func (s *Service) Update(ctx context.Context, principal, petID, recordID uuid.UUID, input domain.HealthRecordInput) (domain.HealthRecord, error) {
	record, err := s.Get(ctx, principal, petID, recordID)
	if err != nil {
		return domain.HealthRecord{}, err
	}
	updated, err := record.WithInput(input)
	if err != nil {
		return domain.HealthRecord{}, err
	}
	return s.records.Update(ctx, updated)
}

// Delete removes a record.
func (s *Service) Delete(ctx context.Context, principal, petID, recordID uuid.UUID) error {
	if _, err := s.Get(ctx, principal, petID, recordID); err != nil {
		return err
	}
	return s.records.Delete(ctx, recordID)
}

// View is a rendered timeline.
type View struct {
	PetID        uuid.UUID             `json:"pet_id"`
	Active       timeline.Set          `json:"active"`
	Records      []domain.HealthRecord `json:"records"`
	Counts       map[string]int        `json:"counts"`
	Announcement string                `json:"announcement"`
	Rejected     bool                  `json:"rejected,omitempty"`
	Notice       string                `json:"notice,omitempty"`
}

func newView(petID uuid.UUID, result timeline.Result) View {
	return View{
		PetID:        petID,
		Active:       result.Active,
		Records:      result.Visible,
		Counts:       result.Counts.Map(),
		Announcement: result.Announcement,
	}
}

func (s *Service) selector(ctx context.Context, principal, petID uuid.UUID, active timeline.Set) (*timeline.Selector, error) {
	items, err := s.List(ctx, principal, petID)
	if err != nil {
		return nil, err
	}
	return timeline.Restore(active, items)
}

// Timeline renders the pet's records under the active filters.
func (s *Service) Timeline(ctx context.Context, principal, petID uuid.UUID, active timeline.Set) (View, error) {
	sel, err := s.selector(ctx, principal, petID, active)
	if err != nil {
		return View{}, err
	}
	return newView(petID, sel.View()), nil
}

// Toggle applies one filter chip click to a round-tripped view state.
// Deselecting the last chip is not an error for the caller: the view
// comes back unchanged with Rejected set and a notice.
func (s *Service) Toggle(ctx context.Context, principal, petID uuid.UUID, active timeline.Set, category timeline.Category) (View, error) {
	sel, err := s.selector(ctx, principal, petID, active)
	if err != nil {
		return View{}, err
	}
	result, err := sel.Toggle(category)
	if errors.Is(err, timeline.ErrLastFilter) {
		view := newView(petID, result)
		view.Rejected = true
		view.Notice = timeline.LastFilterNotice
		return view, nil
	}
	if err != nil {
		return View{}, err
	}
	return newView(petID, result), nil
}
