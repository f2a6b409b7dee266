// Package server wires the auth server together: configuration, logging,
// database and migrations, services and the HTTP API, plus signal handling
// and graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/server/auth"
	"github.com/dmitrijs2005/gophauth/internal/server/config"
	"github.com/dmitrijs2005/gophauth/internal/server/httpapi"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/gophauth/internal/server/services"
)

type App struct {
	config      *config.Config
	logger      logging.Logger
	db          *sql.DB
	authService *services.AuthService
	userService *services.UserService
}

// NewApp opens the database, applies migrations and builds the services.
// The returned cleanup closes the database.
func NewApp(ctx context.Context, c *config.Config, logger logging.Logger) (*App, func(), error) {
	db, err := repomanager.OpenDB(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("db init error: %w", err)
	}
	cleanup := func() { _ = db.Close() }

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("migrations: %w", err)
	}

	codec, err := auth.NewCodecFromConfig(c)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	hasher := auth.NewBcryptHasher(0)

	sessions := services.NewSessionPolicy(db, rm, codec, c, logger)
	as := services.NewAuthService(db, rm, sessions, codec, hasher, c, logger)
	us := services.NewUserService(db, rm, hasher, c, logger)

	return &App{config: c, logger: logger, db: db, authService: as, userService: us}, cleanup, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	router := httpapi.NewRouter(httpapi.Deps{
		Auth:   app.authService,
		Users:  app.userService,
		Health: app.db.PingContext,
		Logger: app.logger,
	}, app.config.DevMode())

	s := httpapi.NewServer(app.config.EndpointAddrHTTP, router, app.logger, app.config.ShutdownTimeout)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, "http server stopped", "error", err)
		cancelFunc()
	}
}

// Run serves until SIGINT/SIGTERM/SIGQUIT or until ctx is cancelled.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...", "environment", app.config.Environment)

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()
	app.logger.Info(context.Background(), "App stopped")
}
