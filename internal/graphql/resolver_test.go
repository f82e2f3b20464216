package graphql

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpattn/pawlog/internal/auth"
	"github.com/rpattn/pawlog/internal/domain"
	"github.com/rpattn/pawlog/internal/pets"
	"github.com/rpattn/pawlog/internal/quota"
	"github.com/rpattn/pawlog/internal/records"
	"github.com/rpattn/pawlog/internal/timeline"
)

type stubPets struct {
	mu        sync.Mutex
	list      []domain.Pet
	listErr   error
	summaries int
}

func (s *stubPets) Get(_ context.Context, _ uuid.UUID, petID uuid.UUID) (domain.Pet, error) {
	for _, pet := range s.list {
		if pet.ID == petID {
			return pet, nil
		}
	}
	return domain.Pet{}, domain.ErrNotFound
}

func (s *stubPets) List(context.Context, uuid.UUID) ([]domain.Pet, error) {
	return s.list, s.listErr
}

func (s *stubPets) Summaries(_ context.Context, list []domain.Pet) ([]pets.Summary, error) {
	s.mu.Lock()
	s.summaries++
	s.mu.Unlock()
	out := make([]pets.Summary, len(list))
	for i, pet := range list {
		out[i] = pets.Summary{Pet: pet, RecordCounts: map[string]int{"all": 3, "vaccine": 2, "symptom": 1}}
	}
	return out, nil
}

// stubTimeline renders views from a fixed record list through the real selector.
type stubTimeline struct {
	items      []domain.HealthRecord
	lastActive timeline.Set
}

func (s *stubTimeline) view(petID uuid.UUID, active timeline.Set) records.View {
	visible := timeline.Apply(active, s.items)
	return records.View{
		PetID:        petID,
		Active:       active,
		Records:      visible,
		Counts:       timeline.Count(s.items).Map(),
		Announcement: timeline.Announce(len(visible)),
	}
}

func (s *stubTimeline) Timeline(_ context.Context, _ uuid.UUID, petID uuid.UUID, active timeline.Set) (records.View, error) {
	s.lastActive = active
	return s.view(petID, active), nil
}

func (s *stubTimeline) Toggle(_ context.Context, _ uuid.UUID, petID uuid.UUID, active timeline.Set, c timeline.Category) (records.View, error) {
	next, err := timeline.Toggle(active, c)
	if errors.Is(err, timeline.ErrLastFilter) {
		view := s.view(petID, active)
		view.Rejected, view.Notice = true, timeline.LastFilterNotice
		return view, nil
	}
	if err != nil {
		return records.View{}, err
	}
	return s.view(petID, next), nil
}

type stubQuota struct {
	usage quota.Usage
	err   error
}

func (s stubQuota) Usage(context.Context, uuid.UUID) (quota.Usage, error) { return s.usage, s.err }
func (s stubQuota) Bypassed() bool                                        { return false }

type stubProfiles struct{ profile domain.Profile }

func (s stubProfiles) Get(_ context.Context, id uuid.UUID) (domain.Profile, error) {
	if id != s.profile.ID {
		return domain.Profile{}, domain.ErrNotFound
	}
	return s.profile, nil
}

type gqlError struct {
	Message    string         `json:"message"`
	Path       []any          `json:"path"`
	Extensions map[string]any `json:"extensions"`
}

type gqlResponse struct {
	Data   map[string]any `json:"data"`
	Errors []gqlError     `json:"errors"`
}

type fixture struct {
	principal uuid.UUID
	pets      *stubPets
	timeline  *stubTimeline
	quota     stubQuota
	handler   http.Handler
}

func newFixture(t *testing.T, mutate func(*fixture)) *fixture {
	t.Helper()
	principal := uuid.New()
	occurred := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	petID := uuid.New()
	f := &fixture{
		principal: principal,
		pets: &stubPets{list: []domain.Pet{
			{ID: petID, OwnerID: principal, Name: "Rex", Species: "dog"},
			{ID: uuid.New(), OwnerID: principal, Name: "Tom", Species: "cat", Breed: "tabby"},
		}},
		timeline: &stubTimeline{items: []domain.HealthRecord{
			{ID: uuid.New(), PetID: petID, Type: domain.RecordTypeVaccine, Title: "Rabies", OccurredAt: occurred},
			{ID: uuid.New(), PetID: petID, Type: domain.RecordTypeSymptom, Title: "Limping", OccurredAt: occurred},
			{ID: uuid.New(), PetID: petID, Type: domain.RecordTypeVetVisit, Title: "Checkup", OccurredAt: occurred},
		}},
		quota: stubQuota{usage: quota.Usage{Tier: domain.TierFree, Limit: 1, Used: 1, Remaining: 0}},
	}
	if mutate != nil {
		mutate(f)
	}
	profiles := stubProfiles{profile: domain.NewProfile(principal, "ana@example.com", "Ana")}
	f.handler = NewHandler(NewResolver(f.pets, f.timeline, f.quota, profiles, nil))
	return f
}

func (f *fixture) exec(t *testing.T, query string, vars map[string]any) gqlResponse {
	t.Helper()
	return f.execAs(t, f.principal, query, vars)
}

func (f *fixture) execAs(t *testing.T, principal uuid.UUID, query string, vars map[string]any) gqlResponse {
	t.Helper()
	body, err := json.Marshal(map[string]any{"query": query, "variables": vars})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/graphql", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if principal != uuid.Nil {
		req = req.WithContext(auth.ContextWithPrincipal(req.Context(), principal))
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	var out gqlResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestPetsWithRecordCounts(t *testing.T) {
	f := newFixture(t, nil)
	resp := f.exec(t, `{
		pets {
			__typename
			name
			breed
			recordCounts { category label count }
		}
	}`, nil)
	require.Empty(t, resp.Errors)

	list := resp.Data["pets"].([]any)
	require.Len(t, list, 2)
	rex := list[0].(map[string]any)
	assert.Equal(t, "Pet", rex["__typename"])
	assert.Equal(t, "Rex", rex["name"])
	assert.Nil(t, rex["breed"])
	assert.Equal(t, "tabby", list[1].(map[string]any)["breed"])

	counts := rex["recordCounts"].([]any)
	require.Len(t, counts, len(timeline.Categories()))
	assert.Equal(t, map[string]any{"category": "ALL", "label": "All", "count": float64(3)}, counts[0])
	assert.Equal(t, map[string]any{"category": "VACCINE", "label": "Vaccines", "count": float64(2)}, counts[1])
	assert.Equal(t, 2, f.pets.summaries)
}

func TestTimelineFilterArgument(t *testing.T) {
	f := newFixture(t, nil)
	petID := f.pets.list[0].ID.String()

	resp := f.exec(t, `query($pet: ID!, $filter: [Category!]) {
		timeline(petId: $pet, filter: $filter) {
			active
			announcement
			records { title type category }
		}
	}`, map[string]any{"pet": petID, "filter": []string{"VACCINE", "VET_VISIT"}})
	require.Empty(t, resp.Errors)

	view := resp.Data["timeline"].(map[string]any)
	assert.Equal(t, []any{"VACCINE", "VET_VISIT"}, view["active"])
	assert.Equal(t, "Showing 2 health records.", view["announcement"])
	assert.Equal(t, []any{
		map[string]any{"title": "Rabies", "type": "VACCINE", "category": "VACCINE"},
		map[string]any{"title": "Checkup", "type": "VET_VISIT", "category": "VET_VISIT"},
	}, view["records"])

	resp = f.exec(t, `query($pet: ID!) { timeline(petId: $pet) { active } }`, map[string]any{"pet": petID})
	require.Empty(t, resp.Errors)
	assert.Equal(t, timeline.Wildcard, f.timeline.lastActive)
	assert.Equal(t, []any{"ALL"}, resp.Data["timeline"].(map[string]any)["active"])
}

func TestToggleFilterMutation(t *testing.T) {
	f := newFixture(t, nil)
	petID := f.pets.list[0].ID.String()
	const toggle = `mutation($pet: ID!, $active: [Category!], $c: Category!) {
		toggleFilter(petId: $pet, active: $active, category: $c) { active rejected notice records { title } }
	}`

	resp := f.exec(t, toggle, map[string]any{"pet": petID, "c": "SYMPTOM"})
	require.Empty(t, resp.Errors)
	view := resp.Data["toggleFilter"].(map[string]any)
	assert.Equal(t, []any{"SYMPTOM"}, view["active"])
	assert.Equal(t, false, view["rejected"])
	assert.Nil(t, view["notice"])

	resp = f.exec(t, toggle, map[string]any{"pet": petID, "active": []string{"SYMPTOM"}, "c": "SYMPTOM"})
	require.Empty(t, resp.Errors)
	view = resp.Data["toggleFilter"].(map[string]any)
	assert.Equal(t, []any{"SYMPTOM"}, view["active"])
	assert.Equal(t, true, view["rejected"])
	assert.Equal(t, timeline.LastFilterNotice, view["notice"])
	assert.Equal(t, []any{map[string]any{"title": "Limping"}}, view["records"])
}

func TestToggleFilterRejectsEmptyActiveList(t *testing.T) {
	f := newFixture(t, nil)
	resp := f.exec(t, `mutation($pet: ID!) { toggleFilter(petId: $pet, active: [], category: ALL) { active } }`,
		map[string]any{"pet": f.pets.list[0].ID.String()})

	require.Len(t, resp.Errors, 1)
	assert.Equal(t, "BAD_USER_INPUT", resp.Errors[0].Extensions["code"])
	assert.Equal(t, []any{"toggleFilter"}, resp.Errors[0].Path)
	assert.Nil(t, resp.Data)
}

func TestMeAndQuota(t *testing.T) {
	f := newFixture(t, nil)
	resp := f.exec(t, `{ me { email tier } quota { tier limit used remaining bypassed } }`, nil)
	require.Empty(t, resp.Errors)
	assert.Equal(t, map[string]any{"email": "ana@example.com", "tier": "FREE"}, resp.Data["me"])
	assert.Equal(t, map[string]any{
		"tier": "FREE", "limit": float64(1), "used": float64(1), "remaining": float64(0), "bypassed": false,
	}, resp.Data["quota"])

	premium := newFixture(t, func(f *fixture) {
		f.quota = stubQuota{usage: quota.Usage{Tier: domain.TierPremium, Limit: quota.Unlimited, Used: 4, Remaining: quota.Unlimited}}
	})
	resp = premium.exec(t, `{ quota { tier limit remaining } }`, nil)
	require.Empty(t, resp.Errors)
	assert.Equal(t, map[string]any{"tier": "PREMIUM", "limit": nil, "remaining": nil}, resp.Data["quota"])
}

func TestQuotaLookupFailureAsksForRetry(t *testing.T) {
	f := newFixture(t, func(f *fixture) { f.quota = stubQuota{err: quota.ErrTierLookupFailed} })
	resp := f.exec(t, `{ quota { tier } }`, nil)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, "TRY_AGAIN", resp.Errors[0].Extensions["code"])
}

func TestPetLookup(t *testing.T) {
	f := newFixture(t, nil)
	resp := f.exec(t, `query($id: ID!) { found: pet(id: $id) { name } missing: pet(id: "`+uuid.NewString()+`") { name } }`,
		map[string]any{"id": f.pets.list[1].ID.String()})
	require.Empty(t, resp.Errors)
	assert.Equal(t, map[string]any{"name": "Tom"}, resp.Data["found"])
	assert.Nil(t, resp.Data["missing"])

	resp = f.exec(t, `{ pet(id: "not-a-uuid") { name } pets { name } }`, nil)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, "BAD_USER_INPUT", resp.Errors[0].Extensions["code"])
	assert.Nil(t, resp.Data["pet"])
	assert.Len(t, resp.Data["pets"], 2, "a nullable failure leaves siblings intact")
}

func TestFragmentsAndAliases(t *testing.T) {
	f := newFixture(t, nil)
	resp := f.exec(t, `
		query { first: pets { ...names } again: pets { ... on Pet { id @skip(if: true) species } } }
		fragment names on Pet { name }
	`, nil)
	require.Empty(t, resp.Errors)
	assert.Equal(t, map[string]any{"name": "Rex"}, resp.Data["first"].([]any)[0])
	assert.Equal(t, map[string]any{"species": "dog"}, resp.Data["again"].([]any)[0])
}

func TestUnauthenticatedAndInternalErrors(t *testing.T) {
	f := newFixture(t, nil)
	resp := f.execAs(t, uuid.Nil, `{ pets { name } }`, nil)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, "UNAUTHENTICATED", resp.Errors[0].Extensions["code"])
	assert.Nil(t, resp.Data)

	broken := newFixture(t, func(f *fixture) { f.pets.listErr = errors.New("pool exhausted") })
	resp = broken.exec(t, `{ pets { name } }`, nil)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, "internal error", resp.Errors[0].Message)
	assert.Equal(t, "INTERNAL", resp.Errors[0].Extensions["code"])
}

func TestSchemaRejectsUnknownFields(t *testing.T) {
	f := newFixture(t, nil)
	resp := f.exec(t, `{ pets { owner } }`, nil)
	require.NotEmpty(t, resp.Errors)
	assert.Contains(t, resp.Errors[0].Message, "owner")
}
