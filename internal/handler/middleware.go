package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"pics-backend/internal/models"
	"pics-backend/internal/token"
	"pics-backend/internal/util"
)

type contextKey string

const userContextKey contextKey = "current_user"

// CurrentUser returns the authenticated identity attached by
// Authenticate, or false when the request never passed through it.
func CurrentUser(ctx context.Context) (models.UserPayload, bool) {
	user, ok := ctx.Value(userContextKey).(models.UserPayload)
	return user, ok
}

// Authenticate verifies the access-token cookie and attaches the
// identity to the request context. Requests without a valid token never
// reach the wrapped handler.
func Authenticate(tokens *token.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(accessCookieName)
			if err != nil || cookie.Value == "" {
				respondJSON(w, http.StatusUnauthorized, map[string]string{"message": "authentication required"})
				return
			}

			claims, err := tokens.VerifyAccess(cookie.Value)
			if err != nil {
				respondJSON(w, http.StatusUnauthorized, map[string]string{"message": "session invalid or expired"})
				return
			}

			user := models.UserPayload{Email: claims.Email, Role: claims.Role}
			ctx := context.WithValue(r.Context(), userContextKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole rejects authenticated requests whose role is not in the
// allowed set. Composes after Authenticate.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := CurrentUser(r.Context())
			if !ok {
				respondJSON(w, http.StatusUnauthorized, map[string]string{"message": "authentication required"})
				return
			}
			if _, ok := allowed[user.Role]; !ok {
				respondJSON(w, http.StatusForbidden, map[string]string{"message": "insufficient permissions"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequestLogger logs one structured line per request.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		defer func() {
			util.Info("http request",
				util.String("method", r.Method),
				util.String("path", r.URL.Path),
				util.String("remote_addr", r.RemoteAddr),
				util.Int("status", ww.Status()),
				util.Duration("duration", time.Since(start)),
				util.String("request_id", middleware.GetReqID(r.Context())))
		}()
		next.ServeHTTP(ww, r)
	})
}
