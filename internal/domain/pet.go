package domain

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// MaxPetNameLength bounds the pet name in characters.
const MaxPetNameLength = 80

// Pet represents a pet profile owned by a single user
type Pet struct {
	ID        uuid.UUID  `json:"id"`
	OwnerID   uuid.UUID  `json:"owner_id"`
	Name      string     `json:"name"`
	Species   string     `json:"species"`
	Breed     string     `json:"breed,omitempty"`
	BirthDate *time.Time `json:"birth_date,omitempty"`
	WeightKg  *float64   `json:"weight_kg,omitempty"`
	PhotoURL  string     `json:"photo_url,omitempty"`
	Notes     string     `json:"notes,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// PetInput carries the user-editable fields of a pet.
// Nil pointers leave the current value untouched on update.
type PetInput struct {
	Name      *string    `json:"name"`
	Species   *string    `json:"species"`
	Breed     *string    `json:"breed"`
	BirthDate *time.Time `json:"birth_date"`
	WeightKg  *float64   `json:"weight_kg"`
	PhotoURL  *string    `json:"photo_url"`
	Notes     *string    `json:"notes"`
}

// NewPet creates a new pet for owner from input
func NewPet(ownerID uuid.UUID, input PetInput) (Pet, error) {
	now := time.Now()
	pet := Pet{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	pet = pet.apply(input)
	if err := pet.Validate(); err != nil {
		return Pet{}, err
	}
	return pet, nil
}

// WithInput returns a new pet with the non-nil input fields applied
func (p Pet) WithInput(input PetInput) (Pet, error) {
	updated := p.apply(input)
	updated.UpdatedAt = time.Now()
	if err := updated.Validate(); err != nil {
		return Pet{}, err
	}
	return updated, nil
}

func (p Pet) apply(input PetInput) Pet {
	if input.Name != nil {
		p.Name = strings.TrimSpace(*input.Name)
	}
	if input.Species != nil {
		p.Species = strings.ToLower(strings.TrimSpace(*input.Species))
	}
	if input.Breed != nil {
		p.Breed = strings.TrimSpace(*input.Breed)
	}
	if input.BirthDate != nil {
		birth := input.BirthDate.UTC().Truncate(24 * time.Hour)
		p.BirthDate = &birth
	}
	if input.WeightKg != nil {
		weight := *input.WeightKg
		p.WeightKg = &weight
	}
	if input.PhotoURL != nil {
		p.PhotoURL = strings.TrimSpace(*input.PhotoURL)
	}
	if input.Notes != nil {
		p.Notes = strings.TrimSpace(*input.Notes)
	}
	return p
}

// Validate checks the pet invariants
func (p Pet) Validate() error {
	if p.OwnerID == uuid.Nil {
		return invalidf("owner is required")
	}
	if p.Name == "" {
		return invalidf("name is required")
	}
	if utf8.RuneCountInString(p.Name) > MaxPetNameLength {
		return invalidf("name must be at most %d characters", MaxPetNameLength)
	}
	if p.Species == "" {
		return invalidf("species is required")
	}
	if p.WeightKg != nil && *p.WeightKg < 0 {
		return invalidf("weight must not be negative")
	}
	if p.BirthDate != nil && p.BirthDate.After(time.Now()) {
		return invalidf("birth date is in the future")
	}
	return nil
}
