package pets

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpattn/pawlog/internal/domain"
	"github.com/rpattn/pawlog/internal/quota"
	"github.com/rpattn/pawlog/internal/repository"
)

type memPets struct {
	mu   sync.Mutex
	pets map[uuid.UUID]domain.Pet
}

func newMemPets() *memPets { return &memPets{pets: map[uuid.UUID]domain.Pet{}} }

func (m *memPets) Create(_ context.Context, pet domain.Pet) (domain.Pet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pets[pet.ID] = pet
	return pet, nil
}

func (m *memPets) CreateWithinLimit(_ context.Context, pet domain.Pet, limit int) (domain.Pet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit >= 0 && m.countLocked(pet.OwnerID) >= limit {
		return domain.Pet{}, repository.ErrLimitReached
	}
	m.pets[pet.ID] = pet
	return pet, nil
}

func (m *memPets) GetByID(_ context.Context, id uuid.UUID) (domain.Pet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pet, ok := m.pets[id]
	if !ok {
		return domain.Pet{}, repository.ErrNotFound
	}
	return pet, nil
}

func (m *memPets) ListByOwner(_ context.Context, owner uuid.UUID) ([]domain.Pet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.Pet{}
	for _, pet := range m.pets {
		if pet.OwnerID == owner {
			out = append(out, pet)
		}
	}
	return out, nil
}

func (m *memPets) countLocked(owner uuid.UUID) int {
	n := 0
	for _, pet := range m.pets {
		if pet.OwnerID == owner {
			n++
		}
	}
	return n
}

func (m *memPets) CountOwned(_ context.Context, owner uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.countLocked(owner), nil
}

func (m *memPets) Update(_ context.Context, pet domain.Pet) (domain.Pet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pets[pet.ID] = pet
	return pet, nil
}

func (m *memPets) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.pets[id]; !ok {
		return repository.ErrNotFound
	}
	delete(m.pets, id)
	return nil
}

type fixedTier domain.Tier

func (f fixedTier) GetTier(context.Context, uuid.UUID) (domain.Tier, error) { return domain.Tier(f), nil }

// staleCount always reports zero pets, simulating a pre-check that ran
// before concurrent inserts landed.
type staleCount struct{}

func (staleCount) CountOwned(context.Context, uuid.UUID) (int, error) { return 0, nil }

type stubRecords struct {
	repository.HealthRecordRepository
	counts map[uuid.UUID]map[domain.RecordType]int
}

func (s stubRecords) CountByPets(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]map[domain.RecordType]int, error) {
	return s.counts, nil
}

func name(s string) *string { return &s }

func validInput(n string) domain.PetInput {
	return domain.PetInput{Name: name(n), Species: name("dog")}
}

func TestCreateEnforcesFreeLimit(t *testing.T) {
	repo := newMemPets()
	svc := NewService(repo, stubRecords{}, quota.NewGuard(fixedTier(domain.TierFree), repo), nil)
	owner := uuid.New()
	ctx := context.Background()

	_, err := svc.Create(ctx, owner, validInput("Rex"))
	require.NoError(t, err)

	_, err = svc.Create(ctx, owner, validInput("Fido"))
	require.ErrorIs(t, err, quota.ErrQuotaExceeded)

	_, err = svc.Create(ctx, uuid.New(), validInput("Other owner"))
	assert.NoError(t, err, "limits are per owner")
}

func TestCreatePremiumUnlimited(t *testing.T) {
	repo := newMemPets()
	svc := NewService(repo, stubRecords{}, quota.NewGuard(fixedTier(domain.TierPremium), repo), nil)
	owner := uuid.New()
	for i := 0; i < 5; i++ {
		_, err := svc.Create(context.Background(), owner, validInput("Pet"))
		require.NoError(t, err)
	}
	count, _ := repo.CountOwned(context.Background(), owner)
	assert.Equal(t, 5, count)
}

func TestCreateBypass(t *testing.T) {
	repo := newMemPets()
	svc := NewService(repo, stubRecords{}, quota.NewGuard(fixedTier(domain.TierFree), repo, quota.WithBypass(true)), nil)
	owner := uuid.New()
	for i := 0; i < 3; i++ {
		_, err := svc.Create(context.Background(), owner, validInput("Pet"))
		require.NoError(t, err)
	}
}

func TestCreateWriteTimeLimitClosesRace(t *testing.T) {
	repo := newMemPets()
	svc := NewService(repo, stubRecords{}, quota.NewGuard(fixedTier(domain.TierFree), staleCount{}), nil)
	owner := uuid.New()

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded, exceeded := 0, 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Create(context.Background(), owner, validInput("Racer"))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, quota.ErrQuotaExceeded):
				exceeded++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 9, exceeded)
}

func TestCreateValidatesBeforeQuota(t *testing.T) {
	repo := newMemPets()
	svc := NewService(repo, stubRecords{}, quota.NewGuard(fixedTier(domain.TierFree), repo), nil)
	_, err := svc.Create(context.Background(), uuid.New(), domain.PetInput{Name: name("No species")})
	assert.ErrorIs(t, err, domain.ErrInvalid)
}

func TestOwnershipIsEnforced(t *testing.T) {
	repo := newMemPets()
	svc := NewService(repo, stubRecords{}, quota.NewGuard(fixedTier(domain.TierPremium), repo), nil)
	owner, stranger := uuid.New(), uuid.New()
	ctx := context.Background()

	pet, err := svc.Create(ctx, owner, validInput("Rex"))
	require.NoError(t, err)

	_, err = svc.Get(ctx, stranger, pet.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = svc.Update(ctx, stranger, pet.ID, validInput("Stolen"))
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, stranger, pet.ID), domain.ErrNotFound)

	updated, err := svc.Update(ctx, owner, pet.ID, domain.PetInput{Breed: name("Beagle")})
	require.NoError(t, err)
	assert.Equal(t, "Beagle", updated.Breed)
	assert.Equal(t, "Rex", updated.Name)

	require.NoError(t, svc.Delete(ctx, owner, pet.ID))
	_, err = svc.Get(ctx, owner, pet.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSummaries(t *testing.T) {
	repo := newMemPets()
	petA, petB := domain.Pet{ID: uuid.New()}, domain.Pet{ID: uuid.New()}
	records := stubRecords{counts: map[uuid.UUID]map[domain.RecordType]int{
		petA.ID: {domain.RecordTypeVaccine: 2, domain.RecordTypeSymptom: 1},
	}}
	svc := NewService(repo, records, quota.NewGuard(fixedTier(domain.TierFree), repo), nil)

	summaries, err := svc.Summaries(context.Background(), []domain.Pet{petA, petB})
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, 3, summaries[0].RecordCounts["all"])
	assert.Equal(t, 2, summaries[0].RecordCounts["vaccine"])
	assert.Equal(t, 0, summaries[1].RecordCounts["all"])
}
