package timeline

import (
	"fmt"
	"strings"

	"github.com/rpattn/pawlog/internal/domain"
)

// Category is one filter chip on the timeline. All is the wildcard.
type Category uint8

const (
	All Category = iota
	Vaccine
	Medication
	VetVisit
	Symptom
	WeightCheck

	numCategories
)

var categoryNames = [numCategories]string{
	All:         "all",
	Vaccine:     string(domain.RecordTypeVaccine),
	Medication:  string(domain.RecordTypeMedication),
	VetVisit:    string(domain.RecordTypeVetVisit),
	Symptom:     string(domain.RecordTypeSymptom),
	WeightCheck: string(domain.RecordTypeWeightCheck),
}

var categoryLabels = [numCategories]string{
	All:         "All",
	Vaccine:     "Vaccines",
	Medication:  "Medications",
	VetVisit:    "Vet visits",
	Symptom:     "Symptoms",
	WeightCheck: "Weight checks",
}

// Categories returns every chip in keyboard order, wildcard first.
func Categories() []Category {
	out := make([]Category, 0, numCategories)
	for c := All; c < numCategories; c++ {
		out = append(out, c)
	}
	return out
}

// ParseCategory resolves a chip name. Record type spellings accepted by
// domain.ParseRecordType are accepted too.
func ParseCategory(name string) (Category, error) {
	if strings.EqualFold(strings.TrimSpace(name), categoryNames[All]) {
		return All, nil
	}
	recordType, err := domain.ParseRecordType(name)
	if err != nil {
		return 0, fmt.Errorf("unknown filter category %q: %w", name, domain.ErrInvalid)
	}
	c, _ := CategoryOf(recordType)
	return c, nil
}

// CategoryOf maps a record type to its chip.
func CategoryOf(t domain.RecordType) (Category, bool) {
	for c := Vaccine; c < numCategories; c++ {
		if categoryNames[c] == string(t) {
			return c, true
		}
	}
	return 0, false
}

func (c Category) valid() bool { return c < numCategories }

// String returns the wire name of the category.
func (c Category) String() string {
	if !c.valid() {
		return fmt.Sprintf("category(%d)", uint8(c))
	}
	return categoryNames[c]
}

// Label is the human-readable chip text.
func (c Category) Label() string {
	if !c.valid() {
		return c.String()
	}
	return categoryLabels[c]
}

// Specific reports whether c is a concrete record type rather than the wildcard.
func (c Category) Specific() bool { return c != All && c.valid() }

// Next returns the chip after c, wrapping from the last chip to All.
func Next(c Category) Category {
	return Category((uint8(c) + 1) % uint8(numCategories))
}

// Prev returns the chip before c, wrapping from All to the last chip.
func Prev(c Category) Category {
	return Category((uint8(c) + uint8(numCategories) - 1) % uint8(numCategories))
}
