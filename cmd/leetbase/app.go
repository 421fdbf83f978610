package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/leetbase/leetbase/internal/db"
	"github.com/leetbase/leetbase/internal/handlers"
	"github.com/leetbase/leetbase/internal/handlers/middleware"
	"github.com/leetbase/leetbase/internal/logger"
	"github.com/leetbase/leetbase/internal/models"
	"github.com/leetbase/leetbase/internal/repository/postgres"
	"github.com/leetbase/leetbase/internal/service/auth"
	"github.com/leetbase/leetbase/internal/service/auth/csrf"
	"github.com/leetbase/leetbase/internal/service/auth/tokenmanager"
)

type ServerApp struct {
	ListenAddr string
	Handler    http.Handler
}

func NewServerApp(ctx context.Context, c *Config) (*ServerApp, error) {
	// The signing secret is process-wide state; refusing to start beats
	// failing on every request later
	if c.SecretKey == "" {
		return nil, errors.New("config error: SECRET_KEY must be set")
	}

	// Initialize logger
	l, err := logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger: %w", err)
	}

	// Connect to the database and run migrations
	pool, err := db.ConnectAndMigrate(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("error while connecting to db. Err: %w", err)
	}

	// Initialize repositories
	storage := postgres.NewStorage(pool)

	// Initialize services
	tokenManager, err := tokenmanager.New(tokenmanager.Config{
		SecretKey:  c.SecretKey,
		AccessTTL:  c.AccessTokenTTL,
		RefreshTTL: c.RefreshTokenTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("error while creating token manager. Err: %w", err)
	}

	authService, err := auth.NewService(
		auth.Config{Production: c.Environment == logger.EnvProduction},
		tokenManager,
		storage.Account(),
	)
	if err != nil {
		return nil, fmt.Errorf("error while creating auth service. Err: %w", err)
	}

	guard := csrf.NewGuard()

	// The mailer is an external collaborator; until it is wired the token
	// is only acknowledged in the log, never printed
	sendVerification := func(ctx context.Context, account models.Account, token string) error {
		l.Debug("verification token issued", "account_id", account.ID)
		return nil
	}

	// Initialize handlers
	authHandler := handlers.NewAuth(authService, guard, sendVerification)
	authMiddleware := middleware.AuthMiddleware(authService)
	csrfMiddleware := middleware.CSRFMiddleware(guard)

	mux := handlers.NewRouter(
		authHandler,
		authMiddleware,
		csrfMiddleware,
		l,
	)

	return &ServerApp{
		ListenAddr: c.ListenAddr,
		Handler:    mux,
	}, nil
}

// Run starts http server and closes gracefully on context cancellation
func (s *ServerApp) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:    s.ListenAddr,
		Handler: s.Handler,
	}

	idleConnsClosed := make(chan struct{})
	srvCtx, srvCtxCancel := context.WithCancel(ctx)
	defer srvCtxCancel()

	go func() {
		<-srvCtx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); err == context.DeadlineExceeded {
			slog.Error("HTTP server shutdown timeout exceeded, forcing shutdown...")
		}
		slog.Info("HTTP server stopped")
		close(idleConnsClosed)
	}()

	// Listen and serve until context is cancelled; then close gracefully connections
	slog.Info("Starting server", "addr", s.ListenAddr)
	err := httpServer.ListenAndServe()
	srvCtxCancel()
	<-idleConnsClosed

	return err
}
