package integration

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stretchr/testify/require"

	"github.com/leetbase/leetbase/internal/handlers"
	"github.com/leetbase/leetbase/internal/handlers/middleware"
	"github.com/leetbase/leetbase/internal/logger"
	"github.com/leetbase/leetbase/internal/models"
	"github.com/leetbase/leetbase/internal/repository/postgres"
	"github.com/leetbase/leetbase/internal/service/auth"
	"github.com/leetbase/leetbase/internal/service/auth/csrf"
	"github.com/leetbase/leetbase/internal/service/auth/tokenmanager"
	"github.com/leetbase/leetbase/internal/testutil"
)

type Services struct {
	AuthService *auth.AuthService

	// Verification tokens captured by username instead of being mailed
	SentTokens map[string]string
}

// Create db transaction and run the full router on top of it (one connection
// cause one transaction). Rollback when the test stops
func RunTx(dbpool *pgxpool.Pool, t *testing.T, fn func(srvURL string, s Services)) {
	testutil.WithTx(dbpool, t, func(tx pgx.Tx) {
		accountRepo := postgres.NewStorage(tx).Account()

		tokenManager, err := tokenmanager.New(tokenmanager.Config{SecretKey: "test-secret"})
		require.NoError(t, err, "token manager should be created without errors")

		as, err := auth.NewService(auth.Config{}, tokenManager, accountRepo)
		require.NoError(t, err, "auth service should be created without errors")

		sent := map[string]string{}
		send := func(ctx context.Context, account models.Account, token string) error {
			sent[account.Username] = token
			return nil
		}

		guard := csrf.NewGuard()
		router := handlers.NewRouter(
			handlers.NewAuth(as, guard, send),
			middleware.AuthMiddleware(as),
			middleware.CSRFMiddleware(guard),
			logger.NewNoOpLogger(),
		)

		srv := httptest.NewServer(router)
		defer srv.Close()

		fn(srv.URL, Services{AuthService: as, SentTokens: sent})
	})
}

// AddCSRF puts a matching double-submit pair on the request so it passes the
// csrf middleware. Scenario tests that exercise the real /csrf-token endpoint
// build the pair themselves
func AddCSRF(req *http.Request) *http.Request {
	req.AddCookie(&http.Cookie{Name: csrf.DefaultCookieName, Value: "integration-csrf-token"})
	req.Header.Set(csrf.DefaultHeaderName, "integration-csrf-token")
	return req
}
