// Package app initializes and runs the service: it loads configuration,
// sets up logging, picks a storage backend, starts the click recorder, and
// serves the HTTP API with graceful shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/linkcutapp/linkcut/internal/auth"
	"github.com/linkcutapp/linkcut/internal/clicks"
	"github.com/linkcutapp/linkcut/internal/config"
	"github.com/linkcutapp/linkcut/internal/db/memorystorage"
	"github.com/linkcutapp/linkcut/internal/db/postgresdb"
	"github.com/linkcutapp/linkcut/internal/db/sqlitedb"
	"github.com/linkcutapp/linkcut/internal/db/storage"
	"github.com/linkcutapp/linkcut/internal/ipchecker"
	"github.com/linkcutapp/linkcut/internal/logger"
	"github.com/linkcutapp/linkcut/internal/models"
	"github.com/linkcutapp/linkcut/internal/router"
	"github.com/linkcutapp/linkcut/internal/service"
	"github.com/linkcutapp/linkcut/internal/shortcode"
)

// App bundles the configuration, storage backend, background click recorder,
// and HTTP handler needed to run the service.
type App struct {
	cfg               *config.Config
	db                storage.Storage
	clicksRecorder    *clicks.Recorder
	stopClickRecorder context.CancelFunc
	clickRecorderDone <-chan struct{}
	httpHandler       http.Handler
}

// New wires the whole service together.
func New() (*App, error) {
	var err error
	app := &App{}

	app.cfg, err = config.New()
	if err != nil {
		return nil, err
	}

	err = logger.Init(app.cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	app.db, err = getStorageByType(app.cfg)
	if err != nil {
		return nil, err
	}

	app.clicksRecorder = clicks.New(
		app.db,
		app.cfg.ClickQueueCapacity,
		app.cfg.ClickFlushInterval,
	)
	clickRecorderCtx, stopClickRecorder := context.WithCancel(context.Background())
	app.stopClickRecorder = stopClickRecorder

	app.clickRecorderDone = app.clicksRecorder.Run(clickRecorderCtx)
	app.clicksRecorder.ListenErrors(func(err error) {
		logger.Log.Warnw("flushing click counters", zap.Error(err))
	})

	checker, err := ipchecker.New(app.cfg.TrustedSubnet)
	if err != nil {
		return nil, err
	}

	urls := service.New(
		app.db,
		shortcode.New(app.cfg.ShortCodeLength),
		app.clicksRecorder,
		app.cfg.ShortURLBase,
	)
	accounts := auth.New(
		app.db,
		[]byte(app.cfg.JWTSecret),
		app.cfg.AccessTokenTTL,
		app.cfg.RefreshTokenTTL,
	)

	app.httpHandler = router.New(urls, accounts, checker)

	return app, nil
}

// Run starts the HTTP server and blocks until a shutdown signal arrives.
// On shutdown it stops the click recorder so pending counters get flushed,
// drains the server, and closes the storage.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Log.Infow("server running", "RunAddr", a.cfg.RunAddr)

	server := &http.Server{
		Addr:    a.cfg.RunAddr,
		Handler: a.httpHandler,
	}

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Log.Infoln("Received shutdown signal. Flushing clicks and exiting...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}

		// The final flush must complete before the storage goes away.
		a.stopClickRecorder()
		<-a.clickRecorderDone

		return a.db.Close()

	case err := <-serverErrCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// Close finalizes resources used by App such as logging.
func (a *App) Close() {
	if err := logger.Sync(); err != nil {
		fmt.Println("Logger sync error:", err)
	}
}

func getAvailableStorageType(cfg *config.Config) int {
	if cfg.DatabaseDSN != "" {
		return models.StorageTypePostgresql
	}

	if cfg.SQLiteDBPath != "" {
		return models.StorageTypeSQLite
	}

	return models.StorageTypeMemory
}

func getStorageByType(cfg *config.Config) (storage.Storage, error) {
	switch getAvailableStorageType(cfg) {
	case models.StorageTypeUnknown:
		return nil, errors.New("unknown storage type")

	case models.StorageTypePostgresql:
		return postgresdb.New(
			context.Background(),
			cfg.DatabaseDSN,
			cfg.DBConnectionTimeout,
		)

	case models.StorageTypeSQLite:
		return sqlitedb.New(context.Background(), cfg.SQLiteDBPath)
	}

	return memorystorage.New()
}
