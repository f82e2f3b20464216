package domain

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func strPtr(s string) *string { return &s }

func TestNewPetNormalizesInput(t *testing.T) {
	owner := uuid.New()
	weight := 4.2
	pet, err := NewPet(owner, PetInput{
		Name:     strPtr("  Miso "),
		Species:  strPtr("Cat"),
		WeightKg: &weight,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pet.Name != "Miso" || pet.Species != "cat" {
		t.Fatalf("unexpected normalisation: %+v", pet)
	}
	if pet.OwnerID != owner || pet.ID == uuid.Nil {
		t.Fatalf("expected ids to be set, got %+v", pet)
	}
}

func TestNewPetValidation(t *testing.T) {
	owner := uuid.New()
	negative := -1.0
	future := time.Now().Add(48 * time.Hour)

	cases := map[string]PetInput{
		"missing name":    {Species: strPtr("dog")},
		"missing species": {Name: strPtr("Rex")},
		"long name":       {Name: strPtr(strings.Repeat("a", MaxPetNameLength+1)), Species: strPtr("dog")},
		"negative weight": {Name: strPtr("Rex"), Species: strPtr("dog"), WeightKg: &negative},
		"future birth":    {Name: strPtr("Rex"), Species: strPtr("dog"), BirthDate: &future},
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewPet(owner, input)
			if !errors.Is(err, ErrInvalid) {
				t.Fatalf("expected ErrInvalid, got %v", err)
			}
		})
	}
}

func TestPetWithInputKeepsUntouchedFields(t *testing.T) {
	pet, err := NewPet(uuid.New(), PetInput{Name: strPtr("Rex"), Species: strPtr("dog"), Breed: strPtr("Collie")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	updated, err := pet.WithInput(PetInput{Name: strPtr("Rexy")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Name != "Rexy" || updated.Breed != "Collie" || updated.ID != pet.ID {
		t.Fatalf("unexpected update result: %+v", updated)
	}
	if pet.Name != "Rex" {
		t.Fatalf("original pet mutated: %+v", pet)
	}
}

func TestParseRecordType(t *testing.T) {
	cases := map[string]RecordType{
		"vaccine":      RecordTypeVaccine,
		"Vet Visit":    RecordTypeVetVisit,
		"weight-check": RecordTypeWeightCheck,
		" SYMPTOM ":    RecordTypeSymptom,
	}
	for input, expected := range cases {
		got, err := ParseRecordType(input)
		if err != nil {
			t.Fatalf("ParseRecordType(%q) returned error: %v", input, err)
		}
		if got != expected {
			t.Errorf("ParseRecordType(%q) = %s, want %s", input, got, expected)
		}
	}
	if _, err := ParseRecordType("grooming"); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid for unknown type, got %v", err)
	}
}

func TestHealthRecordValidation(t *testing.T) {
	pet, err := NewPet(uuid.New(), PetInput{Name: strPtr("Rex"), Species: strPtr("dog")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	vaccine := RecordTypeVaccine
	occurred := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	before := occurred.Add(-time.Hour)

	record, err := NewHealthRecord(pet, HealthRecordInput{Type: &vaccine, Title: strPtr("Rabies"), OccurredAt: &occurred})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if record.PetID != pet.ID || record.OwnerID != pet.OwnerID {
		t.Fatalf("record not linked to pet: %+v", record)
	}

	if _, err := record.WithInput(HealthRecordInput{NextDueAt: &before}); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected next due before occurrence to be rejected, got %v", err)
	}
	if _, err := NewHealthRecord(pet, HealthRecordInput{Title: strPtr("No type")}); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected missing type to be rejected, got %v", err)
	}
}

func TestHealthRecordStoresCanonicalType(t *testing.T) {
	pet, err := NewPet(uuid.New(), PetInput{Name: strPtr("Rex"), Species: strPtr("dog")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	spelled := RecordType(" Vet Visit ")
	record, err := NewHealthRecord(pet, HealthRecordInput{Type: &spelled, Title: strPtr("Checkup")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if record.Type != RecordTypeVetVisit {
		t.Fatalf("expected %q, got %q", RecordTypeVetVisit, record.Type)
	}

	dashed := RecordType("weight-check")
	updated, err := record.WithInput(HealthRecordInput{Type: &dashed})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Type != RecordTypeWeightCheck {
		t.Fatalf("expected %q, got %q", RecordTypeWeightCheck, updated.Type)
	}

	unknown := RecordType("grooming")
	if _, err := record.WithInput(HealthRecordInput{Type: &unknown}); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected unknown type to be rejected, got %v", err)
	}
}

func TestValidateCredentials(t *testing.T) {
	if err := ValidateCredentials("Owner@Example.com", "longenough"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ValidateCredentials("not-an-email", "longenough"); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected invalid email, got %v", err)
	}
	if err := ValidateCredentials("owner@example.com", "short"); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected short password rejection, got %v", err)
	}
}
