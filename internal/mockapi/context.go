package mockapi

import (
	"context"
	"log/slog"

	"github.com/airqa/qaportal/internal/apiclient"
)

type contextKey struct {
	name string
}

var (
	userKey          = contextKey{"user"}
	requestLoggerKey = contextKey{"request_logger"}
)

func ContextWithUser(ctx context.Context, user apiclient.UserProfile) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// ContextUser returns the user authenticated by RequireValidAccessToken
func ContextUser(ctx context.Context) (apiclient.UserProfile, bool) {
	user, ok := ctx.Value(userKey).(apiclient.UserProfile)
	return user, ok
}

// ContextRequestLogger returns the request scoped logger set by RequestLogging,
// falling back to the default logger
func ContextRequestLogger(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(requestLoggerKey).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}
