package graphql

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rpattn/pawlog/internal/auth"
	"github.com/rpattn/pawlog/internal/domain"
	"github.com/rpattn/pawlog/internal/pets"
	"github.com/rpattn/pawlog/internal/quota"
	"github.com/rpattn/pawlog/internal/records"
	"github.com/rpattn/pawlog/internal/timeline"
)

// PetReader is the read side of the pet service.
type PetReader interface {
	Get(ctx context.Context, principal, petID uuid.UUID) (domain.Pet, error)
	List(ctx context.Context, principal uuid.UUID) ([]domain.Pet, error)
	Summaries(ctx context.Context, pets []domain.Pet) ([]pets.Summary, error)
}

// TimelineService renders and toggles a pet's timeline.
type TimelineService interface {
	Timeline(ctx context.Context, principal, petID uuid.UUID, active timeline.Set) (records.View, error)
	Toggle(ctx context.Context, principal, petID uuid.UUID, active timeline.Set, category timeline.Category) (records.View, error)
}

// QuotaReporter exposes the quota state of a principal.
type QuotaReporter interface {
	Usage(ctx context.Context, principal uuid.UUID) (quota.Usage, error)
	Bypassed() bool
}

// ProfileReader loads a user's profile.
type ProfileReader interface {
	Get(ctx context.Context, id uuid.UUID) (domain.Profile, error)
}

// Resolver handles GraphQL queries and mutations
type Resolver struct {
	pets     PetReader
	timeline TimelineService
	quota    QuotaReporter
	profiles ProfileReader
	logger   *zap.Logger
}

// NewResolver creates a new GraphQL resolver
func NewResolver(pets PetReader, timeline TimelineService, quota QuotaReporter, profiles ProfileReader, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		pets:     pets,
		timeline: timeline,
		quota:    quota,
		profiles: profiles,
		logger:   logger,
	}
}

// quotaView is the Quota object; nil pointers render as null.
type quotaView struct {
	usage    quota.Usage
	bypassed bool
}

type categoryCount struct {
	category timeline.Category
	count    int
}

func principal(ctx context.Context) (uuid.UUID, error) {
	id, ok := auth.PrincipalFromContext(ctx)
	if !ok {
		return uuid.Nil, auth.ErrUnauthenticated
	}
	return id, nil
}

// Query resolvers

// Me returns the caller's profile
func (r *Resolver) Me(ctx context.Context) (domain.Profile, error) {
	id, err := principal(ctx)
	if err != nil {
		return domain.Profile{}, err
	}
	return r.profiles.Get(ctx, id)
}

// Quota returns the caller's pet allowance
func (r *Resolver) Quota(ctx context.Context) (quotaView, error) {
	id, err := principal(ctx)
	if err != nil {
		return quotaView{}, err
	}
	usage, err := r.quota.Usage(ctx, id)
	if err != nil {
		return quotaView{}, err
	}
	return quotaView{usage: usage, bypassed: r.quota.Bypassed()}, nil
}

// Pets lists the caller's pets
func (r *Resolver) Pets(ctx context.Context) ([]domain.Pet, error) {
	id, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	return r.pets.List(ctx, id)
}

// Pet returns one pet, or nil when the caller has no such pet
func (r *Resolver) Pet(ctx context.Context, petID string) (*domain.Pet, error) {
	id, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	parsed, err := parseID("id", petID)
	if err != nil {
		return nil, err
	}
	pet, err := r.pets.Get(ctx, id, parsed)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &pet, nil
}

// Timeline renders a pet's records under the given filters
func (r *Resolver) Timeline(ctx context.Context, petID string, filter []string) (records.View, error) {
	id, err := principal(ctx)
	if err != nil {
		return records.View{}, err
	}
	parsed, err := parseID("petId", petID)
	if err != nil {
		return records.View{}, err
	}
	active := timeline.Wildcard
	if filter != nil {
		if active, err = parseSet(filter); err != nil {
			return records.View{}, err
		}
	}
	return r.timeline.Timeline(ctx, id, parsed, active)
}

// Mutation resolvers

// ToggleFilter applies one chip click to a round-tripped timeline state
func (r *Resolver) ToggleFilter(ctx context.Context, petID string, active []string, category string) (records.View, error) {
	id, err := principal(ctx)
	if err != nil {
		return records.View{}, err
	}
	parsed, err := parseID("petId", petID)
	if err != nil {
		return records.View{}, err
	}
	current := timeline.Wildcard
	if active != nil {
		if current, err = parseSet(active); err != nil {
			return records.View{}, err
		}
	}
	chip, err := timeline.ParseCategory(strings.ToLower(category))
	if err != nil {
		return records.View{}, err
	}
	view, err := r.timeline.Toggle(ctx, id, parsed, current, chip)
	if err != nil {
		return records.View{}, err
	}
	if view.Rejected {
		r.logger.Debug("last filter deselect rejected", zap.String("pet_id", parsed.String()))
	}
	return view, nil
}

// Field resolvers

// RecordCounts counts a pet's records per chip. Sibling pets share one
// batched query through the request's summary loader.
func (r *Resolver) RecordCounts(ctx context.Context, pet domain.Pet) ([]categoryCount, error) {
	summaries, err := r.pets.Summaries(ctx, []domain.Pet{pet})
	if err != nil {
		return nil, err
	}
	if len(summaries) != 1 {
		return nil, fmt.Errorf("record counts for pet %s: got %d summaries", pet.ID, len(summaries))
	}
	return countsOf(summaries[0].RecordCounts), nil
}

func countsOf(byName map[string]int) []categoryCount {
	categories := timeline.Categories()
	out := make([]categoryCount, len(categories))
	for i, c := range categories {
		out[i] = categoryCount{category: c, count: byName[c.String()]}
	}
	return out
}

func parseID(arg, value string) (uuid.UUID, error) {
	id, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %s must be a UUID", domain.ErrInvalid, arg)
	}
	return id, nil
}

func parseSet(enums []string) (timeline.Set, error) {
	names := make([]string, len(enums))
	for i, v := range enums {
		names[i] = strings.ToLower(v)
	}
	return timeline.ParseSet(names)
}

func categoryEnum(c timeline.Category) string { return strings.ToUpper(c.String()) }

func optString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func optTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func optFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func optLimit(n int) any {
	if n == quota.Unlimited {
		return nil
	}
	return n
}
