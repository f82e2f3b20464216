// Package auth implements password accounts, opaque bearer sessions and
// password reset tokens.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/rpattn/pawlog/internal/domain"
	"github.com/rpattn/pawlog/internal/repository"
)

var (
	// ErrInvalidCredentials is returned when the email or password is wrong.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrEmailTaken is returned when signing up with a registered email.
	ErrEmailTaken = errors.New("email already registered")
	// ErrUnauthenticated is returned when no principal is present.
	ErrUnauthenticated = errors.New("authentication required")
	// ErrSessionNotFound is returned for unknown bearer tokens.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExpired is returned for expired bearer tokens.
	ErrSessionExpired = errors.New("session expired")
	// ErrResetTokenInvalid is returned for unknown, used or expired reset tokens.
	ErrResetTokenInvalid = errors.New("password reset token is invalid or expired")
)

const tokenBytes = 32

// Service provides account and session operations.
type Service struct {
	users    repository.UserRepository
	sessions repository.SessionRepository

	sessionTTL time.Duration
	resetTTL   time.Duration
	hashCost   int
	logger     *zap.Logger
	now        func() time.Time
}

type Option func(*Service)

func WithSessionTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.sessionTTL = ttl
		}
	}
}

func WithResetTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.resetTTL = ttl
		}
	}
}

// WithHashCost overrides the bcrypt cost. Tests use bcrypt.MinCost.
func WithHashCost(cost int) Option {
	return func(s *Service) { s.hashCost = cost }
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewService(users repository.UserRepository, sessions repository.SessionRepository, opts ...Option) *Service {
	s := &Service{
		users:      users,
		sessions:   sessions,
		sessionTTL: 30 * 24 * time.Hour,
		resetTTL:   time.Hour,
		hashCost:   bcrypt.DefaultCost,
		logger:     zap.NewNop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SignUpRequest is the registration input.
type SignUpRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

// Token is an issued bearer session.
type Token struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
	UserID      uuid.UUID `json:"user_id"`
}

// SignUp registers a user on the free tier and signs them in.
func (s *Service) SignUp(ctx context.Context, req SignUpRequest) (Token, error) {
	if err := domain.ValidateCredentials(req.Email, req.Password); err != nil {
		return Token{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.hashCost)
	if err != nil {
		return Token{}, fmt.Errorf("hash password: %w", err)
	}

	user := domain.User{
		ID:           uuid.New(),
		Email:        domain.NormalizeEmail(req.Email),
		PasswordHash: string(hash),
		CreatedAt:    s.now(),
	}
	profile := domain.NewProfile(user.ID, user.Email, req.DisplayName)

	if err := s.users.CreateWithProfile(ctx, user, profile); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return Token{}, ErrEmailTaken
		}
		return Token{}, fmt.Errorf("create account: %w", err)
	}
	s.logger.Info("account created", zap.Stringer("user", user.ID))

	return s.issueSession(ctx, user.ID)
}

// SignIn checks credentials and issues a session.
func (s *Service) SignIn(ctx context.Context, email, password string) (Token, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return Token{}, ErrInvalidCredentials
		}
		return Token{}, fmt.Errorf("load user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return Token{}, ErrInvalidCredentials
	}
	return s.issueSession(ctx, user.ID)
}

// SignOut revokes the session behind token.
func (s *Service) SignOut(ctx context.Context, token string) error {
	if err := s.sessions.Delete(ctx, HashToken(token)); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

// Authenticate resolves a bearer token to the user it belongs to.
func (s *Service) Authenticate(ctx context.Context, token string) (uuid.UUID, error) {
	if token == "" {
		return uuid.Nil, ErrUnauthenticated
	}
	session, err := s.sessions.Get(ctx, HashToken(token))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return uuid.Nil, ErrSessionNotFound
		}
		return uuid.Nil, fmt.Errorf("load session: %w", err)
	}
	if session.Expired(s.now()) {
		return uuid.Nil, ErrSessionExpired
	}
	return session.UserID, nil
}

// RequestPasswordReset issues a reset token for email. The token is
// returned for delivery by the caller; unknown emails yield an empty
// token and no error so account existence is not revealed.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("load user: %w", err)
	}

	token, err := newToken()
	if err != nil {
		return "", err
	}
	reset := domain.PasswordReset{
		TokenHash: HashToken(token),
		UserID:    user.ID,
		ExpiresAt: s.now().Add(s.resetTTL),
	}
	if err := s.sessions.CreateReset(ctx, reset); err != nil {
		return "", fmt.Errorf("store reset token: %w", err)
	}
	s.logger.Info("password reset requested", zap.Stringer("user", user.ID))
	return token, nil
}

// ResetPassword redeems a reset token, sets the new password and revokes
// every session of the user. The three writes commit together, so a
// failure leaves the token usable for a retry.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	if err := domain.ValidatePassword(newPassword); err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.hashCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	userID, err := s.users.ResetPassword(ctx, HashToken(token), string(hash), s.now())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrResetTokenInvalid
		}
		return fmt.Errorf("reset password: %w", err)
	}
	s.logger.Info("password reset completed", zap.Stringer("user", userID))
	return nil
}

// PurgeExpiredSessions deletes sessions that expired before now.
func (s *Service) PurgeExpiredSessions(ctx context.Context) (int64, error) {
	return s.sessions.DeleteExpired(ctx, s.now())
}

func (s *Service) issueSession(ctx context.Context, userID uuid.UUID) (Token, error) {
	token, err := newToken()
	if err != nil {
		return Token{}, err
	}
	now := s.now()
	session := domain.Session{
		TokenHash: HashToken(token),
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.sessionTTL),
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return Token{}, fmt.Errorf("store session: %w", err)
	}
	return Token{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   session.ExpiresAt,
		UserID:      userID,
	}, nil
}

func newToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashToken is the storage form of a bearer or reset token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
