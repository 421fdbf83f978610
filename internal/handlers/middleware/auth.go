package middleware

import (
	"context"
	"net/http"

	"github.com/leetbase/leetbase/internal/handlers/accountctx"
	"github.com/leetbase/leetbase/internal/handlers/render"
	"github.com/leetbase/leetbase/internal/models"
)

type authService interface {
	Authenticate(ctx context.Context, r *http.Request) (models.Account, error)
}

// AuthMiddleware resolves the bearer access token and puts the account into
// the request context. No token or a bad one is a plain 401
func AuthMiddleware(as authService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			account, err := as.Authenticate(r.Context(), r)
			if err != nil {
				render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			ctx := accountctx.New(r.Context(), account)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
