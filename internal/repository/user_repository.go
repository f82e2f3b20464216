package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/rpattn/pawlog/internal/db"
	"github.com/rpattn/pawlog/internal/domain"
)

// userRepository implements UserRepository interface
type userRepository struct {
	db db.Querier
}

// NewUserRepository creates a new user repository
func NewUserRepository(q db.Querier) UserRepository {
	return &userRepository{db: q}
}

func (r *userRepository) CreateWithProfile(ctx context.Context, user domain.User, profile domain.Profile) error {
	return db.WithTx(ctx, r.db, nil, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO users (id, email, password_hash, created_at) VALUES ($1, $2, $3, $4)`,
			user.ID, domain.NormalizeEmail(user.Email), user.PasswordHash, user.CreatedAt)
		if err != nil {
			return mapError("create user", err)
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO profiles (id, email, display_name, tier, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			profile.ID, profile.Email, profile.DisplayName, string(profile.Tier), profile.CreatedAt, profile.UpdatedAt)
		if err != nil {
			return mapError("create profile", err)
		}
		return nil
	})
}

const userColumns = `id, email, password_hash, created_at`

func scanUser(row pgx.Row) (domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt)
	return u, err
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	user, err := scanUser(r.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`, domain.NormalizeEmail(email)))
	if err != nil {
		return domain.User{}, mapError("get user by email", err)
	}
	return user, nil
}

func (r *userRepository) ResetPassword(ctx context.Context, tokenHash, passwordHash string, now time.Time) (uuid.UUID, error) {
	var userID uuid.UUID
	err := db.WithTx(ctx, r.db, nil, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`UPDATE password_resets SET used_at = $2
			 WHERE token_hash = $1 AND used_at IS NULL AND expires_at > $2
			 RETURNING user_id`, tokenHash, now).Scan(&userID)
		if err != nil {
			return mapError("consume password reset", err)
		}
		tag, err := tx.Exec(ctx, `UPDATE users SET password_hash = $2 WHERE id = $1`, userID, passwordHash)
		if err != nil {
			return mapError("update password", err)
		}
		if tag.RowsAffected() == 0 {
			return mapError("update password", pgx.ErrNoRows)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID); err != nil {
			return mapError("revoke sessions", err)
		}
		return nil
	})
	if err != nil {
		return uuid.Nil, err
	}
	return userID, nil
}
