package domain

import (
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MinPasswordLength is the shortest password accepted at sign-up and reset.
const MinPasswordLength = 8

// User holds login credentials. The password is only ever stored hashed.
type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Session is an authenticated login. Only the hash of the bearer token is persisted.
type Session struct {
	TokenHash string
	UserID    uuid.UUID
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the session is no longer usable at now.
func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// PasswordReset is a one-time token allowing a user to choose a new password.
type PasswordReset struct {
	TokenHash string
	UserID    uuid.UUID
	ExpiresAt time.Time
	UsedAt    *time.Time
}

// Usable reports whether the reset token can still be redeemed.
func (p PasswordReset) Usable(now time.Time) bool {
	return p.UsedAt == nil && now.Before(p.ExpiresAt)
}

// NormalizeEmail lower-cases and trims an address for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateCredentials checks sign-up input.
func ValidateCredentials(email, password string) error {
	normalized := NormalizeEmail(email)
	if normalized == "" {
		return invalidf("email is required")
	}
	if _, err := mail.ParseAddress(normalized); err != nil {
		return invalidf("email %q is not a valid address", email)
	}
	return ValidatePassword(password)
}

// ValidatePassword enforces the minimum password length.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return invalidf("password must be at least %d characters", MinPasswordLength)
	}
	return nil
}
