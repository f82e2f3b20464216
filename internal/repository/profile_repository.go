package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/rpattn/pawlog/internal/db"
	"github.com/rpattn/pawlog/internal/domain"
)

// profileRepository implements ProfileRepository interface
type profileRepository struct {
	db db.DBTX
}

// NewProfileRepository creates a new profile repository
func NewProfileRepository(exec db.DBTX) ProfileRepository {
	return &profileRepository{db: exec}
}

// Get retrieves a profile by user ID
func (r *profileRepository) Get(ctx context.Context, id uuid.UUID) (domain.Profile, error) {
	var p domain.Profile
	var tier string
	err := r.db.QueryRow(ctx,
		`SELECT id, email, display_name, tier, created_at, updated_at FROM profiles WHERE id = $1`, id,
	).Scan(&p.ID, &p.Email, &p.DisplayName, &tier, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return domain.Profile{}, mapError("get profile", err)
	}
	p.Tier = domain.Tier(tier)
	return p, nil
}

// GetTier reads only the subscription tier
func (r *profileRepository) GetTier(ctx context.Context, id uuid.UUID) (domain.Tier, error) {
	var tier string
	if err := r.db.QueryRow(ctx, `SELECT tier FROM profiles WHERE id = $1`, id).Scan(&tier); err != nil {
		return "", mapError("get tier", err)
	}
	return domain.Tier(tier), nil
}

// Update persists display name and tier
func (r *profileRepository) Update(ctx context.Context, profile domain.Profile) (domain.Profile, error) {
	var tier string
	err := r.db.QueryRow(ctx,
		`UPDATE profiles SET display_name = $2, tier = $3, updated_at = $4
		 WHERE id = $1
		 RETURNING id, email, display_name, tier, created_at, updated_at`,
		profile.ID, profile.DisplayName, string(profile.Tier), profile.UpdatedAt,
	).Scan(&profile.ID, &profile.Email, &profile.DisplayName, &tier, &profile.CreatedAt, &profile.UpdatedAt)
	if err != nil {
		return domain.Profile{}, mapError("update profile", err)
	}
	profile.Tier = domain.Tier(tier)
	return profile, nil
}
