package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Tier is a subscription plan level.
type Tier string

const (
	TierFree    Tier = "free"
	TierPremium Tier = "premium"
)

// ParseTier normalises a tier name. Unknown names are rejected.
func ParseTier(value string) (Tier, error) {
	switch Tier(strings.ToLower(strings.TrimSpace(value))) {
	case TierFree:
		return TierFree, nil
	case TierPremium:
		return TierPremium, nil
	default:
		return "", invalidf("unknown tier %q", value)
	}
}

// Profile represents the account-facing data of a user
type Profile struct {
	ID          uuid.UUID `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	Tier        Tier      `json:"tier"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewProfile creates a free-tier profile for a freshly registered user
func NewProfile(userID uuid.UUID, email, displayName string) Profile {
	now := time.Now()
	return Profile{
		ID:          userID,
		Email:       NormalizeEmail(email),
		DisplayName: strings.TrimSpace(displayName),
		Tier:        TierFree,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// WithDisplayName returns a new profile with updated display name
func (p Profile) WithDisplayName(name string) Profile {
	p.DisplayName = strings.TrimSpace(name)
	p.UpdatedAt = time.Now()
	return p
}

// WithTier returns a new profile on the given plan
func (p Profile) WithTier(tier Tier) Profile {
	p.Tier = tier
	p.UpdatedAt = time.Now()
	return p
}
