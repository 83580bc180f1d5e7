package mockapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// RequestLogging logs one line per request with the chi request id and the response status
func RequestLogging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			requestID := middleware.GetReqID(r.Context())

			requestLogger := logger.With(slog.String("request_id", requestID))
			ctx := context.WithValue(r.Context(), requestLoggerKey, requestLogger)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			logAttrs := []slog.Attr{
				slog.String("type", "HTTP"),
				slog.Int("status", ww.Status()),
				slog.String("request_id", requestID),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("client_request_id", r.Header.Get("X-Request-ID")),
				slog.Duration("duration", time.Since(start)),
				slog.Int("bytes", ww.BytesWritten()),
			}

			switch {
			case ww.Status() >= 500:
				logger.LogAttrs(r.Context(), slog.LevelError, "request completed", logAttrs...)
			case ww.Status() >= 400:
				logger.LogAttrs(r.Context(), slog.LevelWarn, "request completed", logAttrs...)
			default:
				logger.LogAttrs(r.Context(), slog.LevelInfo, "request completed", logAttrs...)
			}
		})
	}
}

// RequireValidAccessToken rejects requests without a valid, unrevoked bearer token for a known user.
// Every rejection is a 401 with a {"detail": ...} body.
func (s *Server) RequireValidAccessToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		bearerToken, err := BearerTokenFromHeader(r.Header)
		if err != nil {
			RespondWithError(w, r, http.StatusUnauthorized, "Not authenticated")
			return
		}

		claims, err := s.auth.ValidateAccessToken(bearerToken)
		if err != nil {
			if errors.Is(err, errTokenExpired) {
				RespondWithError(w, r, http.StatusUnauthorized, "Token has expired")
				return
			}
			RespondWithError(w, r, http.StatusUnauthorized, "Invalid or expired token")
			return
		}

		if !s.store.SessionActive(claims.ID) {
			RespondWithError(w, r, http.StatusUnauthorized, "Session has been revoked")
			return
		}

		user, ok := s.store.User(claims.Subject)
		if !ok {
			RespondWithError(w, r, http.StatusUnauthorized, "User not found")
			return
		}

		ctx := ContextWithUser(r.Context(), user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole allows only users whose role matches one of roles, case-insensitively
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := ContextUser(r.Context())
			if !ok {
				RespondWithError(w, r, http.StatusUnauthorized, "Not authenticated")
				return
			}
			if !slices.Contains(roles, strings.ToLower(user.Role)) {
				RespondWithError(w, r, http.StatusForbidden, "Insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
