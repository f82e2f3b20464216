package auth

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const principalIDKey contextKey = "principalID"

// ContextWithPrincipal returns a new context that carries the authenticated user.
func ContextWithPrincipal(ctx context.Context, id uuid.UUID) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, principalIDKey, id)
}

// PrincipalFromContext retrieves the authenticated user from the context, if any.
func PrincipalFromContext(ctx context.Context) (uuid.UUID, bool) {
	if ctx == nil {
		return uuid.Nil, false
	}
	id, ok := ctx.Value(principalIDKey).(uuid.UUID)
	if !ok || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}
