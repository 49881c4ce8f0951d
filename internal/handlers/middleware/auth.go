package middleware

import (
	"errors"
	"net/http"

	"github.com/nkiryanov/posauth/internal/apperrors"
	"github.com/nkiryanov/posauth/internal/handlers/render"
	"github.com/nkiryanov/posauth/internal/handlers/userctx"
	"github.com/nkiryanov/posauth/internal/models"
	"github.com/nkiryanov/posauth/internal/service/auth"
)

type errorLogger interface {
	Error(msg string, args ...any)
}

// Authenticate runs guard and stores claims in request context
func Authenticate(guard func(*http.Request) (models.Claims, error), l errorLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := guard(r)
			switch {
			case errors.Is(err, apperrors.ErrUnauthorized):
				render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
				return
			case err != nil:
				l.Error("auth guard failed", "path", r.URL.Path, "error", err.Error())
				render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
				return
			}

			ctx := userctx.New(r.Context(), claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRoles has to be used after Authenticate
func RequireRoles(roles ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := userctx.FromContext(r.Context())
			if !ok {
				render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			if err := auth.RequireRole(claims, roles...); err != nil {
				render.ServiceError(w, "Forbidden", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
