package repository

import (
	"context"
	"time"

	"github.com/rpattn/pawlog/internal/domain"

	"github.com/google/uuid"
)

// UserRepository defines the interface for account operations
type UserRepository interface {
	// CreateWithProfile inserts the user and its free-tier profile atomically.
	CreateWithProfile(ctx context.Context, user domain.User, profile domain.Profile) error
	GetByEmail(ctx context.Context, email string) (domain.User, error)
	// ResetPassword redeems the reset token, stores the new password hash
	// and revokes every session of the user in one transaction. It fails
	// with ErrNotFound if the token is unknown, already used, or expired
	// at now; a failed call leaves the token redeemable.
	ResetPassword(ctx context.Context, tokenHash, passwordHash string, now time.Time) (uuid.UUID, error)
}

// SessionRepository defines the interface for session and password reset tokens
type SessionRepository interface {
	Create(ctx context.Context, session domain.Session) error
	Get(ctx context.Context, tokenHash string) (domain.Session, error)
	Delete(ctx context.Context, tokenHash string) error
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)

	CreateReset(ctx context.Context, reset domain.PasswordReset) error
}

// ProfileRepository defines the interface for profile operations
type ProfileRepository interface {
	Get(ctx context.Context, id uuid.UUID) (domain.Profile, error)
	GetTier(ctx context.Context, id uuid.UUID) (domain.Tier, error)
	Update(ctx context.Context, profile domain.Profile) (domain.Profile, error)
}

// PetRepository defines the interface for pet operations
type PetRepository interface {
	Create(ctx context.Context, pet domain.Pet) (domain.Pet, error)
	// CreateWithinLimit inserts pet only while the owner has fewer than limit
	// pets, returning ErrLimitReached otherwise. Concurrent calls for the
	// same owner are serialised so the limit cannot be overrun.
	CreateWithinLimit(ctx context.Context, pet domain.Pet, limit int) (domain.Pet, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.Pet, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]domain.Pet, error)
	CountOwned(ctx context.Context, ownerID uuid.UUID) (int, error)
	Update(ctx context.Context, pet domain.Pet) (domain.Pet, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// HealthRecordRepository defines the interface for timeline records
type HealthRecordRepository interface {
	Create(ctx context.Context, record domain.HealthRecord) (domain.HealthRecord, error)
	CreateBatch(ctx context.Context, records []domain.HealthRecord) (int, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.HealthRecord, error)
	// ListByPet returns records newest first.
	ListByPet(ctx context.Context, petID uuid.UUID) ([]domain.HealthRecord, error)
	Update(ctx context.Context, record domain.HealthRecord) (domain.HealthRecord, error)
	Delete(ctx context.Context, id uuid.UUID) error
	// CountByPets returns per-type record counts keyed by pet id.
	CountByPets(ctx context.Context, petIDs []uuid.UUID) (map[uuid.UUID]map[domain.RecordType]int, error)
}
