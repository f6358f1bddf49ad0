package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/vlourenco/atalho/internal/constants"
	"github.com/vlourenco/atalho/internal/infrastructure/logger"
	"github.com/vlourenco/atalho/internal/processing/links"
	"github.com/vlourenco/atalho/pkg/httputils"
	"go.uber.org/zap"
)

type contextKey string

const userContextKey contextKey = "user"

// Identity resolves the X-API-Key header to a stored user and attaches it to
// the request context. Requests without the header pass through anonymous;
// an unknown key or a banned user is rejected outright.
func Identity(users links.UserRepository) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey := strings.TrimSpace(r.Header.Get(APIKeyHeader))
			if apiKey == "" {
				next.ServeHTTP(w, r)
				return
			}

			user, err := users.FindByAPIKey(r.Context(), apiKey)
			if err != nil {
				if errors.Is(err, links.ErrNotFound) {
					httputils.WriteAPIError(w, r, constants.ErrUnauthorized)
					return
				}
				logger.Error("failed to resolve api key", zap.Error(err))
				httputils.WriteAPIError(w, r, constants.ErrInternalError)
				return
			}
			if user.Banned {
				httputils.WriteAPIError(w, r, constants.ErrBanned)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

func WithUser(ctx context.Context, user *links.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// UserFrom returns the authenticated user attached by Identity, if any.
func UserFrom(ctx context.Context) (*links.User, bool) {
	user, ok := ctx.Value(userContextKey).(*links.User)
	return user, ok && user != nil
}
