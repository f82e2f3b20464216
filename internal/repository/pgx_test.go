package repository

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpattn/pawlog/internal/domain"
)

func newMockPool(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func anyArgs(n int) []any {
	args := make([]any, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

func testPet(owner uuid.UUID) domain.Pet {
	now := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	return domain.Pet{ID: uuid.New(), OwnerID: owner, Name: "Rex", Species: "dog", CreatedAt: now, UpdatedAt: now}
}

func petRow(p domain.Pet) *pgxmock.Rows {
	return pgxmock.NewRows(strings.Split(strings.ReplaceAll(petColumns, " ", ""), ",")).
		AddRow(p.ID, p.OwnerID, p.Name, p.Species, p.Breed, nil, nil, p.PhotoURL, p.Notes, p.CreatedAt, p.UpdatedAt)
}

func TestCreateWithinLimitRejectsAtLimit(t *testing.T) {
	mock := newMockPool(t)
	owner := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec(`pg_advisory_xact_lock`).
		WithArgs("pets:" + owner.String()).
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectQuery(`SELECT count\(\*\) FROM pets WHERE owner_id = \$1`).
		WithArgs(owner).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectRollback()

	_, err := NewPetRepository(mock).CreateWithinLimit(context.Background(), testPet(owner), 1)
	require.ErrorIs(t, err, ErrLimitReached)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateWithinLimitInsertsUnderLock(t *testing.T) {
	mock := newMockPool(t)
	owner := uuid.New()
	pet := testPet(owner)

	mock.ExpectBegin()
	mock.ExpectExec(`pg_advisory_xact_lock`).
		WithArgs("pets:" + owner.String()).
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectQuery(`SELECT count\(\*\) FROM pets`).
		WithArgs(owner).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(`INSERT INTO pets`).
		WithArgs(anyArgs(11)...).
		WillReturnRows(petRow(pet))
	mock.ExpectCommit()

	created, err := NewPetRepository(mock).CreateWithinLimit(context.Background(), pet, 1)
	require.NoError(t, err)
	assert.Equal(t, pet.ID, created.ID)
	assert.Equal(t, owner, created.OwnerID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateWithinLimitUnlimitedSkipsLock(t *testing.T) {
	mock := newMockPool(t)
	pet := testPet(uuid.New())

	mock.ExpectQuery(`INSERT INTO pets`).
		WithArgs(anyArgs(11)...).
		WillReturnRows(petRow(pet))

	_, err := NewPetRepository(mock).CreateWithinLimit(context.Background(), pet, -1)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResetPasswordCommitsAllWrites(t *testing.T) {
	mock := newMockPool(t)
	userID := uuid.New()
	now := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE password_resets SET used_at`).
		WithArgs("token-hash", now).
		WillReturnRows(pgxmock.NewRows([]string{"user_id"}).AddRow(userID))
	mock.ExpectExec(`UPDATE users SET password_hash`).
		WithArgs(userID, "new-hash").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`DELETE FROM sessions WHERE user_id`).
		WithArgs(userID).
		WillReturnResult(pgxmock.NewResult("DELETE", 2))
	mock.ExpectCommit()

	got, err := NewUserRepository(mock).ResetPassword(context.Background(), "token-hash", "new-hash", now)
	require.NoError(t, err)
	assert.Equal(t, userID, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResetPasswordRollsBackOnFailure(t *testing.T) {
	mock := newMockPool(t)
	userID := uuid.New()
	now := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	blip := errors.New("connection reset")

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE password_resets SET used_at`).
		WithArgs("token-hash", now).
		WillReturnRows(pgxmock.NewRows([]string{"user_id"}).AddRow(userID))
	mock.ExpectExec(`UPDATE users SET password_hash`).
		WithArgs(userID, "new-hash").
		WillReturnError(blip)
	mock.ExpectRollback()

	_, err := NewUserRepository(mock).ResetPassword(context.Background(), "token-hash", "new-hash", now)
	require.ErrorIs(t, err, blip)
	assert.NoError(t, mock.ExpectationsWereMet(), "token consumption must be rolled back")
}

func TestResetPasswordUnknownToken(t *testing.T) {
	mock := newMockPool(t)
	now := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE password_resets SET used_at`).
		WithArgs("spent", now).
		WillReturnRows(pgxmock.NewRows([]string{"user_id"}))
	mock.ExpectRollback()

	_, err := NewUserRepository(mock).ResetPassword(context.Background(), "spent", "new-hash", now)
	require.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
