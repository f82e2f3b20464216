package repository

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rpattn/pawlog/internal/domain"
)

var (
	// ErrNotFound is domain.ErrNotFound so callers need only one sentinel.
	ErrNotFound = domain.ErrNotFound
	// ErrDuplicate is returned on unique constraint violations.
	ErrDuplicate = errors.New("already exists")
	// ErrLimitReached is returned by conditional inserts when the owner is at the limit.
	ErrLimitReached = errors.New("resource limit reached")
)

const uniqueViolation = "23505"

// mapError translates pgx errors into repository sentinels.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%s: %w", op, ErrDuplicate)
	}
	return fmt.Errorf("%s: %w", op, err)
}
