// Package timeline implements the record-type filter chips of a pet's
// health timeline: the toggle reducer over the active Set, derived
// per-category counts, and the announcement text read out after every
// successful change.
//
// The active set is view state. It is never persisted; HTTP clients
// round-trip it with each request.
package timeline

import (
	"errors"
	"fmt"

	"github.com/rpattn/pawlog/internal/domain"
)

// ErrLastFilter is returned when a toggle would leave no filter active.
// The state is left unchanged.
var ErrLastFilter = errors.New("cannot deselect last filter")

// LastFilterNotice is the user-facing text for ErrLastFilter.
const LastFilterNotice = "At least one filter must stay selected."

// Toggle applies one chip click to active and returns the new state.
//
// Selecting All always resets to Wildcard. Deselecting the only active
// chip is rejected with ErrLastFilter and active is returned as is.
// Selecting a chip while in Wildcard replaces the wildcard; otherwise it
// is added, and a set that ends up holding every specific category
// collapses to Wildcard.
func Toggle(active Set, c Category) (Set, error) {
	if !c.valid() {
		return active, fmt.Errorf("%w: unknown category %d", domain.ErrInvalid, uint8(c))
	}
	if c == All {
		return Wildcard, nil
	}

	bit := Set(1) << c
	if active.Has(c) {
		remaining := active &^ bit
		if remaining == 0 {
			return active, ErrLastFilter
		}
		return remaining, nil
	}

	if active.IsWildcard() || active == 0 {
		return bit, nil
	}
	return (active | bit).normalize(), nil
}

// Counts holds the number of records per chip.
type Counts [numCategories]int

// Count derives per-chip counts from items. All counts every item.
func Count(items []domain.HealthRecord) Counts {
	var counts Counts
	for _, item := range items {
		counts[All]++
		if c, ok := CategoryOf(item.Type); ok {
			counts[c]++
		}
	}
	return counts
}

// Of returns the count for c.
func (c Counts) Of(category Category) int {
	if !category.valid() {
		return 0
	}
	return c[category]
}

// Map keys the counts by category name.
func (c Counts) Map() map[string]int {
	out := make(map[string]int, numCategories)
	for _, category := range Categories() {
		out[category.String()] = c[category]
	}
	return out
}

// Visible returns the counts shown for active, i.e. the number of items the timeline displays.
func (c Counts) Visible(active Set) int {
	if active.IsWildcard() {
		return c[All]
	}
	total := 0
	for _, category := range active.Categories() {
		total += c[category]
	}
	return total
}

// Apply returns the items visible under active, preserving order.
func Apply(active Set, items []domain.HealthRecord) []domain.HealthRecord {
	if active.IsWildcard() {
		return append([]domain.HealthRecord(nil), items...)
	}
	visible := make([]domain.HealthRecord, 0, len(items))
	for _, item := range items {
		if active.Matches(item.Type) {
			visible = append(visible, item)
		}
	}
	return visible
}

// Announce describes the visible item count for assistive technology.
func Announce(visible int) string {
	switch visible {
	case 0:
		return "No health records match the selected filters."
	case 1:
		return "Showing 1 health record."
	default:
		return fmt.Sprintf("Showing %d health records.", visible)
	}
}

// Result is the view produced by a successful toggle.
type Result struct {
	Active       Set
	Visible      []domain.HealthRecord
	Counts       Counts
	Announcement string
}

// Selector holds the active filters of one timeline view over a fixed
// item collection. It is not safe for concurrent use.
type Selector struct {
	active Set
	items  []domain.HealthRecord
	counts Counts
}

// NewSelector starts a view in the Wildcard state.
func NewSelector(items []domain.HealthRecord) *Selector {
	s := &Selector{active: Wildcard}
	s.SetItems(items)
	return s
}

// Restore creates a selector for a previously computed active set.
func Restore(active Set, items []domain.HealthRecord) (*Selector, error) {
	if active == 0 {
		return nil, ErrEmptySet
	}
	s := NewSelector(items)
	s.active = active.normalize()
	return s, nil
}

// SetItems replaces the item collection and recomputes the counts.
func (s *Selector) SetItems(items []domain.HealthRecord) {
	s.items = append([]domain.HealthRecord(nil), items...)
	s.counts = Count(s.items)
}

// Active returns the current filter set.
func (s *Selector) Active() Set { return s.active }

// Counts returns the derived per-chip counts.
func (s *Selector) Counts() Counts { return s.counts }

// View renders the current state without changing it.
func (s *Selector) View() Result {
	visible := Apply(s.active, s.items)
	return Result{
		Active:       s.active,
		Visible:      visible,
		Counts:       s.counts,
		Announcement: Announce(len(visible)),
	}
}

// Toggle applies a chip click. On ErrLastFilter the state is unchanged
// and the returned Result reflects the unchanged view.
func (s *Selector) Toggle(c Category) (Result, error) {
	next, err := Toggle(s.active, c)
	if err != nil {
		return s.View(), err
	}
	s.active = next
	return s.View(), nil
}
