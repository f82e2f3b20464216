package repository

import (
	"context"
	"time"

	"github.com/rpattn/pawlog/internal/db"
	"github.com/rpattn/pawlog/internal/domain"
)

type sessionRepository struct {
	db db.DBTX
}

// NewSessionRepository creates a repository for login sessions and reset tokens
func NewSessionRepository(exec db.DBTX) SessionRepository {
	return &sessionRepository{db: exec}
}

func (r *sessionRepository) Create(ctx context.Context, session domain.Session) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO sessions (token_hash, user_id, created_at, expires_at) VALUES ($1, $2, $3, $4)`,
		session.TokenHash, session.UserID, session.CreatedAt, session.ExpiresAt)
	return mapError("create session", err)
}

func (r *sessionRepository) Get(ctx context.Context, tokenHash string) (domain.Session, error) {
	var s domain.Session
	err := r.db.QueryRow(ctx,
		`SELECT token_hash, user_id, created_at, expires_at FROM sessions WHERE token_hash = $1`, tokenHash,
	).Scan(&s.TokenHash, &s.UserID, &s.CreatedAt, &s.ExpiresAt)
	if err != nil {
		return domain.Session{}, mapError("get session", err)
	}
	return s, nil
}

func (r *sessionRepository) Delete(ctx context.Context, tokenHash string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM sessions WHERE token_hash = $1`, tokenHash)
	return mapError("delete session", err)
}

func (r *sessionRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, before)
	if err != nil {
		return 0, mapError("delete expired sessions", err)
	}
	return tag.RowsAffected(), nil
}

func (r *sessionRepository) CreateReset(ctx context.Context, reset domain.PasswordReset) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO password_resets (token_hash, user_id, expires_at) VALUES ($1, $2, $3)`,
		reset.TokenHash, reset.UserID, reset.ExpiresAt)
	return mapError("create password reset", err)
}
