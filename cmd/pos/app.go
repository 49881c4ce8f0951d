package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nkiryanov/posauth/internal/audit"
	"github.com/nkiryanov/posauth/internal/db"
	"github.com/nkiryanov/posauth/internal/handlers"
	"github.com/nkiryanov/posauth/internal/logger"
	"github.com/nkiryanov/posauth/internal/metrics"
	"github.com/nkiryanov/posauth/internal/repository/postgres"
	"github.com/nkiryanov/posauth/internal/service/account"
	"github.com/nkiryanov/posauth/internal/service/auth"
	"github.com/nkiryanov/posauth/internal/service/auth/tokenmanager"
)

const (
	shutdownTimeout = 5 * time.Second
	auditBuffer     = 1024
)

type ServerApp struct {
	ListenAddr string
	Handler    http.Handler

	logger  logger.Logger
	closers []func()
}

func NewServerApp(ctx context.Context, c *Config) (*ServerApp, error) {
	// Initialize logger
	l, err := logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger: %w", err)
	}

	app := &ServerApp{ListenAddr: c.ListenAddr, logger: l}

	// Connect to the database and run migrations
	pool, err := db.ConnectAndMigrate(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("error while connecting to db. Err: %w", err)
	}
	app.closers = append(app.closers, pool.Close)

	publisher, err := app.auditPublisher(c)
	if err != nil {
		app.Close()
		return nil, err
	}

	tokens, err := tokenmanager.New(tokenmanager.Config{
		AccessSecret:  c.AccessSecret,
		RefreshSecret: c.RefreshSecret,
		AccessTTL:     c.AccessTTL,
		RefreshTTL:    c.RefreshTTL,
	})
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("error while creating token manager. Err: %w", err)
	}

	accounts := postgres.NewAccountRepo(pool)
	m := metrics.New()

	authService, err := auth.NewService(
		auth.Config{BcryptCost: c.BcryptCost},
		tokens,
		accounts,
		auth.WithLogger(l.With("service", "auth")),
		auth.WithAudit(publisher),
		auth.WithRecorder(m),
	)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("error while creating auth service. Err: %w", err)
	}

	app.Handler = handlers.NewRouter(handlers.RouterConfig{
		Auth:         authService,
		Accounts:     account.NewService(accounts, publisher, l.With("service", "account")),
		AccessGuard:  auth.AccessGuard(tokens, accounts),
		RefreshGuard: auth.RefreshGuard(tokens, accounts),
		Health:       pool.Ping,
		Metrics:      m,
		Logger:       l,
	})

	return app, nil
}

// RabbitMQ if configured, structured log otherwise. Both behind async buffer
func (s *ServerApp) auditPublisher(c *Config) (audit.Publisher, error) {
	var next audit.Publisher = audit.NewLogPublisher(s.logger)

	if c.AMQPURL != "" {
		p, err := audit.NewAMQPPublisher(c.AMQPURL, audit.DefaultQueue)
		if err != nil {
			return nil, fmt.Errorf("error while connecting to rabbitmq. Err: %w", err)
		}
		s.closers = append(s.closers, func() { _ = p.Close() })
		next = p
	}

	async := audit.NewAsync(next, auditBuffer, s.logger)
	s.closers = append(s.closers, async.Close)

	return async, nil
}

// Close releases resources in reverse order: audit drains before its transport and pool are closed
func (s *ServerApp) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

// Run starts http server and closes gracefully on context cancellation
func (s *ServerApp) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.ListenAddr,
		Handler:           s.Handler,
		ReadHeaderTimeout: 5 * time.Second,
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
	s.logger.Info("Starting server", "addr", s.ListenAddr)
	err := httpServer.ListenAndServe()
	srvCtxCancel()
	<-idleConnsClosed

	return err
}
