// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/mia-platform/ledgersync/internal/info"
	"github.com/mia-platform/ledgersync/internal/ledger"
	"github.com/mia-platform/ledgersync/internal/logger"
	"github.com/mia-platform/ledgersync/internal/version"
	"github.com/mia-platform/ledgersync/internal/sink"
	"github.com/mia-platform/ledgersync/internal/status"
)

const (
	loggerName = "ledgersync:server"
)

var (
	ErrServerListen   = errors.New("server listen error")
	ErrServerShutdown = errors.New("server shutdown error")
)

// Accounts is the read side of the account synchronizer.
type Accounts interface {
	Balance(ctx context.Context, account ledger.AccountKey) (sink.Entry[ledger.Balance], bool, error)
	History(ctx context.Context, account ledger.AccountKey) (sink.Entry[[]ledger.Transaction], bool, error)
	SyncStatus() (status.Status, map[string]status.Status)
}

// Server is the HTTP status server.
type Server struct {
	config

	app *fiber.App
}

// NewServer returns a Server configured from the environment and serving accounts.
func NewServer(ctx context.Context, accounts Accounts) (*Server, error) {
	cfg, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: cfg.DisableStartupMessage,
		ErrorHandler:          errorHandler,
		// route params are stored as account keys past the request lifecycle
		Immutable: true,
	})
	log := logger.FromContext(ctx)
	log.WithName(loggerName).Debug("creating status server", "version", version.ServiceVersionInformation())
	app.Use(logger.RequestMiddlewareLogger(log, []string{"/-/"}))

	statusRoutes(app, info.AppName, info.Version, accounts)
	accountRoutes(app, accounts)

	return &Server{
		app:    app,
		config: *cfg,
	}, nil
}

// Start listens on the configured address, blocking until the server is stopped.
func (s *Server) Start() error {
	if err := s.app.Listen(fmt.Sprintf("%s:%d", s.HTTPHost, s.HTTPPort)); err != nil {
		return fmt.Errorf("%w: %w", ErrServerListen, err)
	}
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop() error {
	if err := s.app.Shutdown(); err != nil {
		return fmt.Errorf("%w: %w", ErrServerShutdown, err)
	}
	return nil
}

// StartAsync starts the server in background and stops it when ctx is done.
func (s *Server) StartAsync(ctx context.Context) {
	log := logger.FromContext(ctx).WithName(loggerName)
	go func() {
		if err := s.Start(); err != nil {
			log.Error(err.Error())
		}
	}()

	go func() {
		<-ctx.Done()
		if err := s.Stop(); err != nil {
			log.Error(err.Error())
		}
	}()
}
