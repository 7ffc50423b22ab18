package signin

import (
	"context"
	"errors"
)

type contextKey struct{}

// ErrNoUserInContext is returned when no user is found in context
var ErrNoUserInContext = errors.New("no authenticated user in context")

// WithUserID returns a copy of ctx carrying the authenticated user id.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, contextKey{}, userID)
}

// GetUserIDFromContext extracts the authenticated user id set by AuthRequired.
func GetUserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(contextKey{}).(string)
	if !ok || userID == "" {
		return "", ErrNoUserInContext
	}
	return userID, nil
}
