package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/rpattn/pawlog/internal/db"
	"github.com/rpattn/pawlog/internal/domain"
)

// petRepository implements PetRepository interface
type petRepository struct {
	db db.Querier
}

// NewPetRepository creates a new pet repository
func NewPetRepository(q db.Querier) PetRepository {
	return &petRepository{db: q}
}

const petColumns = `id, owner_id, name, species, breed, birth_date, weight_kg, photo_url, notes, created_at, updated_at`

func scanPet(row pgx.Row) (domain.Pet, error) {
	var p domain.Pet
	err := row.Scan(&p.ID, &p.OwnerID, &p.Name, &p.Species, &p.Breed, &p.BirthDate, &p.WeightKg,
		&p.PhotoURL, &p.Notes, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func insertPet(ctx context.Context, exec db.DBTX, pet domain.Pet) (domain.Pet, error) {
	created, err := scanPet(exec.QueryRow(ctx,
		`INSERT INTO pets (`+petColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING `+petColumns,
		pet.ID, pet.OwnerID, pet.Name, pet.Species, pet.Breed, pet.BirthDate, pet.WeightKg,
		pet.PhotoURL, pet.Notes, pet.CreatedAt, pet.UpdatedAt))
	if err != nil {
		return domain.Pet{}, mapError("create pet", err)
	}
	return created, nil
}

// Create inserts a pet without any limit check
func (r *petRepository) Create(ctx context.Context, pet domain.Pet) (domain.Pet, error) {
	return insertPet(ctx, r.db, pet)
}

// CreateWithinLimit takes a transaction-scoped advisory lock keyed on the
// owner, so concurrent creations for one owner run one at a time, then
// counts and inserts under that lock. A negative limit means unlimited.
func (r *petRepository) CreateWithinLimit(ctx context.Context, pet domain.Pet, limit int) (domain.Pet, error) {
	if limit < 0 {
		return insertPet(ctx, r.db, pet)
	}
	var created domain.Pet
	err := db.WithTx(ctx, r.db, nil, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, "pets:"+pet.OwnerID.String()); err != nil {
			return fmt.Errorf("lock owner pets: %w", err)
		}
		count, err := countOwned(ctx, tx, pet.OwnerID)
		if err != nil {
			return err
		}
		if count >= limit {
			return ErrLimitReached
		}
		created, err = insertPet(ctx, tx, pet)
		return err
	})
	if err != nil {
		return domain.Pet{}, err
	}
	return created, nil
}

// GetByID retrieves a pet by ID
func (r *petRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Pet, error) {
	pet, err := scanPet(r.db.QueryRow(ctx, `SELECT `+petColumns+` FROM pets WHERE id = $1`, id))
	if err != nil {
		return domain.Pet{}, mapError("get pet", err)
	}
	return pet, nil
}

// ListByOwner lists an owner's pets, newest first
func (r *petRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]domain.Pet, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+petColumns+` FROM pets WHERE owner_id = $1 ORDER BY created_at DESC, id`, ownerID)
	if err != nil {
		return nil, mapError("list pets", err)
	}
	defer rows.Close()

	pets := []domain.Pet{}
	for rows.Next() {
		pet, err := scanPet(rows)
		if err != nil {
			return nil, mapError("scan pet", err)
		}
		pets = append(pets, pet)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("list pets", err)
	}
	return pets, nil
}

func countOwned(ctx context.Context, exec db.DBTX, ownerID uuid.UUID) (int, error) {
	var count int
	if err := exec.QueryRow(ctx, `SELECT count(*) FROM pets WHERE owner_id = $1`, ownerID).Scan(&count); err != nil {
		return 0, mapError("count pets", err)
	}
	return count, nil
}

// CountOwned counts an owner's pets
func (r *petRepository) CountOwned(ctx context.Context, ownerID uuid.UUID) (int, error) {
	return countOwned(ctx, r.db, ownerID)
}

// Update persists the editable pet fields
func (r *petRepository) Update(ctx context.Context, pet domain.Pet) (domain.Pet, error) {
	updated, err := scanPet(r.db.QueryRow(ctx,
		`UPDATE pets SET name = $2, species = $3, breed = $4, birth_date = $5, weight_kg = $6,
		        photo_url = $7, notes = $8, updated_at = $9
		 WHERE id = $1
		 RETURNING `+petColumns,
		pet.ID, pet.Name, pet.Species, pet.Breed, pet.BirthDate, pet.WeightKg, pet.PhotoURL, pet.Notes, pet.UpdatedAt))
	if err != nil {
		return domain.Pet{}, mapError("update pet", err)
	}
	return updated, nil
}

// Delete removes a pet; its health records cascade
func (r *petRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM pets WHERE id = $1`, id)
	if err != nil {
		return mapError("delete pet", err)
	}
	if tag.RowsAffected() == 0 {
		return mapError("delete pet", pgx.ErrNoRows)
	}
	return nil
}
