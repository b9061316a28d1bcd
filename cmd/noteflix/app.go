package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nkiryanov/noteflix/internal/db"
	"github.com/nkiryanov/noteflix/internal/handlers"
	"github.com/nkiryanov/noteflix/internal/logger"
	"github.com/nkiryanov/noteflix/internal/metrics"
	"github.com/nkiryanov/noteflix/internal/repository/postgres"
	"github.com/nkiryanov/noteflix/internal/service/auth"
	"github.com/nkiryanov/noteflix/internal/service/auth/accesstoken"
	"github.com/nkiryanov/noteflix/internal/service/auth/tokenmanager"
	"github.com/nkiryanov/noteflix/internal/service/user"
)

// Time given to in-flight requests on shutdown
const shutdownTimeout = 5 * time.Second

type ServerApp struct {
	ListenAddr string
	Handler    http.Handler

	logger logger.Logger
	pool   *pgxpool.Pool
}

func NewServerApp(ctx context.Context, c *Config) (*ServerApp, error) {
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

	storage := postgres.NewStorage(pool)
	registry := metrics.NewRegistry()
	mtr := metrics.New(registry)

	// Initialize services
	codec, err := accesstoken.New(accesstoken.Config{
		SecretKey: c.SecretKey,
		Issuer:    c.Issuer,
		Audience:  c.Audience,
		TTL:       c.AccessTokenTTL,
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("error while creating access token codec. Err: %w", err)
	}

	tokenManager, err := tokenmanager.New(tokenmanager.Config{
		RefreshTTL: c.RefreshTokenTTL,
		Logger:     l,
		Metrics:    mtr,
	}, codec, storage)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("error while creating token manager. Err: %w", err)
	}

	userService := user.NewService(auth.DefaultHasher, storage, l)
	authService, err := auth.NewService(auth.Config{
		StoreTimeout: c.StoreTimeout,
		Logger:       l,
		Metrics:      mtr,
	}, codec, tokenManager, userService)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("error while creating auth service. Err: %w", err)
	}

	mux := handlers.NewRouter(
		handlers.Config{
			Debug:          c.Environment == logger.EnvDevelopment,
			AllowedOrigins: c.AllowedOrigins,
		},
		authService,
		l,
		metrics.Handler(registry),
	)

	return &ServerApp{
		ListenAddr: c.ListenAddr,
		Handler:    mux,
		logger:     l,
		pool:       pool,
	}, nil
}

// Run starts http server and closes gracefully on context cancellation
func (s *ServerApp) Run(ctx context.Context) error {
	defer s.pool.Close()

	httpServer := &http.Server{
		Addr:              s.ListenAddr,
		Handler:           s.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	idleConnsClosed := make(chan struct{})
	srvCtx, srvCtxCancel := context.WithCancel(ctx)
	defer srvCtxCancel()

	go func() {
		<-srvCtx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); errors.Is(err, context.DeadlineExceeded) {
			s.logger.Error("HTTP server shutdown timeout exceeded, forcing shutdown...")
		}
		s.logger.Info("HTTP server stopped")
		close(idleConnsClosed)
	}()

	// Listen and serve until context is cancelled; then close gracefully connections
	s.logger.Info("Starting server", "address", s.ListenAddr)
	err := httpServer.ListenAndServe()
	srvCtxCancel()
	<-idleConnsClosed

	return err
}
