package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/vidtube/accounts/internal/db"
	apperrors "github.com/vidtube/accounts/internal/errors"
)

type contextKey string

const userContextKey contextKey = "user"

// WithUser attaches the authenticated user to ctx.
func WithUser(ctx context.Context, user *db.PublicUser) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// UserFromContext returns the user attached by Gate, or nil.
func UserFromContext(ctx context.Context) *db.PublicUser {
	user, ok := ctx.Value(userContextKey).(*db.PublicUser)
	if !ok {
		return nil
	}
	return user
}

// Gate authenticates requests by access token before they reach next. The
// token is read from the accessToken cookie, then from an
// "Authorization: Bearer" header.
func Gate(svc *Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := apperrors.GetRequestID(r.Context())

			raw := accessTokenFrom(r)
			if raw == "" {
				apperrors.WriteError(w, requestID, apperrors.Unauthorized("unauthorized request"))
				return
			}

			user, err := svc.Authenticate(r.Context(), raw)
			if err != nil {
				if errors.Is(err, ErrInvalidToken) {
					apperrors.WriteError(w, requestID, apperrors.Unauthorized("invalid access token"))
					return
				}
				svc.log.Error(r.Context(), "failed to authenticate request", err)
				apperrors.WriteError(w, requestID, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

func accessTokenFrom(r *http.Request) string {
	if c, err := r.Cookie(AccessTokenCookie); err == nil && c.Value != "" {
		return c.Value
	}

	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}
