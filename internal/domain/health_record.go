package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// RecordType classifies a health record on the timeline.
type RecordType string

const (
	RecordTypeVaccine     RecordType = "vaccine"
	RecordTypeMedication  RecordType = "medication"
	RecordTypeVetVisit    RecordType = "vet_visit"
	RecordTypeSymptom     RecordType = "symptom"
	RecordTypeWeightCheck RecordType = "weight_check"
)

var recordTypes = []RecordType{
	RecordTypeVaccine,
	RecordTypeMedication,
	RecordTypeVetVisit,
	RecordTypeSymptom,
	RecordTypeWeightCheck,
}

// RecordTypes returns every record type in display order.
func RecordTypes() []RecordType {
	return append([]RecordType(nil), recordTypes...)
}

// ParseRecordType accepts the canonical names plus a few human spellings
// ("Vet Visit", "weight-check").
func ParseRecordType(value string) (RecordType, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	normalized = strings.NewReplacer(" ", "_", "-", "_").Replace(normalized)
	for _, t := range recordTypes {
		if string(t) == normalized {
			return t, nil
		}
	}
	return "", invalidf("unknown record type %q", value)
}

// HealthRecord is one entry on a pet's health timeline
type HealthRecord struct {
	ID         uuid.UUID  `json:"id"`
	PetID      uuid.UUID  `json:"pet_id"`
	OwnerID    uuid.UUID  `json:"owner_id"`
	Type       RecordType `json:"type"`
	Title      string     `json:"title"`
	Notes      string     `json:"notes,omitempty"`
	OccurredAt time.Time  `json:"occurred_at"`
	NextDueAt  *time.Time `json:"next_due_at,omitempty"`
	Value      *float64   `json:"value,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// HealthRecordInput carries user-editable record fields. Nil pointers are left unchanged on update.
type HealthRecordInput struct {
	Type       *RecordType `json:"type"`
	Title      *string     `json:"title"`
	Notes      *string     `json:"notes"`
	OccurredAt *time.Time  `json:"occurred_at"`
	NextDueAt  *time.Time  `json:"next_due_at"`
	Value      *float64    `json:"value"`
}

// NewHealthRecord creates a record for pet. OccurredAt defaults to now.
func NewHealthRecord(pet Pet, input HealthRecordInput) (HealthRecord, error) {
	now := time.Now()
	record := HealthRecord{
		ID:         uuid.New(),
		PetID:      pet.ID,
		OwnerID:    pet.OwnerID,
		OccurredAt: now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	record = record.apply(input)
	if err := record.Validate(); err != nil {
		return HealthRecord{}, err
	}
	return record, nil
}

// WithInput returns a new record with the non-nil input fields applied
func (r HealthRecord) WithInput(input HealthRecordInput) (HealthRecord, error) {
	updated := r.apply(input)
	updated.UpdatedAt = time.Now()
	if err := updated.Validate(); err != nil {
		return HealthRecord{}, err
	}
	return updated, nil
}

func (r HealthRecord) apply(input HealthRecordInput) HealthRecord {
	if input.Type != nil {
		// stored canonical; unknown values are left for Validate to reject
		r.Type = *input.Type
		if canonical, err := ParseRecordType(string(*input.Type)); err == nil {
			r.Type = canonical
		}
	}
	if input.Title != nil {
		r.Title = strings.TrimSpace(*input.Title)
	}
	if input.Notes != nil {
		r.Notes = strings.TrimSpace(*input.Notes)
	}
	if input.OccurredAt != nil {
		r.OccurredAt = input.OccurredAt.UTC()
	}
	if input.NextDueAt != nil {
		due := input.NextDueAt.UTC()
		r.NextDueAt = &due
	}
	if input.Value != nil {
		value := *input.Value
		r.Value = &value
	}
	return r
}

// Validate checks the record invariants
func (r HealthRecord) Validate() error {
	if r.PetID == uuid.Nil || r.OwnerID == uuid.Nil {
		return invalidf("record must belong to a pet")
	}
	if _, err := ParseRecordType(string(r.Type)); err != nil {
		return err
	}
	if r.Title == "" {
		return invalidf("title is required")
	}
	if r.OccurredAt.IsZero() {
		return invalidf("occurred_at is required")
	}
	if r.NextDueAt != nil && r.NextDueAt.Before(r.OccurredAt) {
		return invalidf("next_due_at must not precede occurred_at")
	}
	if r.Value != nil && *r.Value < 0 {
		return invalidf("value must not be negative")
	}
	return nil
}
