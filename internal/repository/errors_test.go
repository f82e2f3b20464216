package repository

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rpattn/pawlog/internal/domain"
)

func TestMapError(t *testing.T) {
	if err := mapError("noop", nil); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}

	err := mapError("get pet", pgx.ErrNoRows)
	if !errors.Is(err, ErrNotFound) || !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	err = mapError("create user", &pgconn.PgError{Code: "23505", ConstraintName: "users_email_key"})
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected duplicate, got %v", err)
	}

	upstream := errors.New("conn closed")
	err = mapError("list pets", upstream)
	if !errors.Is(err, upstream) {
		t.Fatalf("expected upstream error to be wrapped, got %v", err)
	}
	if err.Error() != "list pets: conn closed" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}
