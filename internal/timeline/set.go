package timeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rpattn/pawlog/internal/domain"
)

// Set is the collection of active filter chips, one bit per Category.
// The zero value is empty and never a valid active state.
type Set uint8

const (
	// Wildcard is the canonical "show everything" state.
	Wildcard Set = 1 << All

	specificMask Set = (1<<numCategories - 1) &^ Wildcard
)

// ErrEmptySet is returned when a filter set would contain no categories.
var ErrEmptySet = errors.New("at least one filter must be active")

// NewSet builds a normalised set from the given categories.
func NewSet(categories ...Category) (Set, error) {
	var s Set
	for _, c := range categories {
		if !c.valid() {
			return 0, fmt.Errorf("%w: unknown category %d", domain.ErrInvalid, uint8(c))
		}
		s |= 1 << c
	}
	if s == 0 {
		return 0, ErrEmptySet
	}
	return s.normalize(), nil
}

// ParseSet builds a normalised set from category names.
func ParseSet(names []string) (Set, error) {
	categories := make([]Category, 0, len(names))
	for _, name := range names {
		if strings.TrimSpace(name) == "" {
			continue
		}
		c, err := ParseCategory(name)
		if err != nil {
			return 0, err
		}
		categories = append(categories, c)
	}
	return NewSet(categories...)
}

// normalize collapses any set naming the wildcard, or every specific
// category, to Wildcard.
func (s Set) normalize() Set {
	if s&Wildcard != 0 || s&specificMask == specificMask {
		return Wildcard
	}
	return s
}

// Has reports whether c is active.
func (s Set) Has(c Category) bool {
	return c.valid() && s&(1<<c) != 0
}

// IsWildcard reports whether s is the canonical all-categories state.
func (s Set) IsWildcard() bool { return s == Wildcard }

// Len is the number of active chips.
func (s Set) Len() int {
	n := 0
	for c := All; c < numCategories; c++ {
		if s.Has(c) {
			n++
		}
	}
	return n
}

// Categories lists the active chips in keyboard order.
func (s Set) Categories() []Category {
	out := make([]Category, 0, s.Len())
	for c := All; c < numCategories; c++ {
		if s.Has(c) {
			out = append(out, c)
		}
	}
	return out
}

// Matches reports whether a record of type t is visible under s.
func (s Set) Matches(t domain.RecordType) bool {
	if s.IsWildcard() {
		return true
	}
	c, ok := CategoryOf(t)
	return ok && s.Has(c)
}

// Names returns the wire names of the active chips.
func (s Set) Names() []string {
	categories := s.Categories()
	names := make([]string, len(categories))
	for i, c := range categories {
		names[i] = c.String()
	}
	return names
}

func (s Set) String() string {
	return "{" + strings.Join(s.Names(), ",") + "}"
}

// MarshalJSON encodes the set as an array of category names.
func (s Set) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Names())
}

// UnmarshalJSON decodes an array of category names. Empty arrays are rejected.
func (s *Set) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return fmt.Errorf("filters must be an array of category names: %w", err)
	}
	parsed, err := ParseSet(names)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
