package rbac

import (
	"context"
	"log/slog"
)

type userCtxKey struct{}

// WithUser stores the identifier of the acting user in the context.
func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userCtxKey{}, userID)
}

// UserFromContext retrieves the user stored by WithUser.
func UserFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	userID, ok := ctx.Value(userCtxKey{}).(string)
	return userID, ok && userID != ""
}

// LoggerExtractor adds the acting user to log records, for use with logger.WithContextExtractors.
func LoggerExtractor() func(ctx context.Context) (slog.Attr, bool) {
	return func(ctx context.Context) (slog.Attr, bool) {
		if userID, ok := UserFromContext(ctx); ok {
			return slog.String("actor_id", userID), true
		}
		return slog.Attr{}, false
	}
}
