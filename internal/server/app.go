// Package server initializes and runs the chat backend: it opens the
// database, applies migrations, wires the services, and serves the HTTP API
// and the websocket hub until the process is signalled to stop.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/dmitrijs2005/chatkeeper/internal/logging"
	"github.com/dmitrijs2005/chatkeeper/internal/server/config"
	"github.com/dmitrijs2005/chatkeeper/internal/server/httpapi"
	"github.com/dmitrijs2005/chatkeeper/internal/server/presence"
	"github.com/dmitrijs2005/chatkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/chatkeeper/internal/server/services"
	"github.com/dmitrijs2005/chatkeeper/internal/server/ws"
)

type App struct {
	config *config.Config
	logger logging.Logger
	db     *sql.DB
	hub    *ws.Hub
	server *httpapi.Server
}

func NewApp(cfg *config.Config) (*App, error) {

	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	mgr := repomanager.NewPostgresRepositoryManager()
	if err := mgr.RunMigrations(context.Background(), db); err != nil {
		return nil, fmt.Errorf("migration error: %w", err)
	}

	registry := presence.NewRegistry()
	hub := ws.NewHub(registry, logger)

	handler := httpapi.NewHandler(
		services.NewSessionService(db, mgr, registry, cfg),
		services.NewMessageService(db, mgr, cfg),
		services.NewAttachmentService(cfg),
		hub,
		[]byte(cfg.SecretKey),
		logger,
	)

	return &App{
		config: cfg,
		logger: logger,
		db:     db,
		hub:    hub,
		server: httpapi.NewServer(cfg.EndpointAddrHTTP, handler, logger),
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.hub.Run()
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := app.server.Run(ctx); err != nil {
			app.logger.Error(ctx, err.Error())
			cancelFunc()
		}
	}()

	<-ctx.Done()

	if err := app.hub.Shutdown(5 * time.Second); err != nil {
		app.logger.Error(ctx, "hub shutdown", "error", err)
	}

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "closing db", "error", err)
	}

	app.logger.Info(ctx, "App stopped")
}
