package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrSnakeDoc/vsdesk/internal/config"
	"github.com/MrSnakeDoc/vsdesk/internal/httpserver"
	"github.com/MrSnakeDoc/vsdesk/internal/httpserver/deps"
	"github.com/MrSnakeDoc/vsdesk/internal/logger"
	"github.com/MrSnakeDoc/vsdesk/internal/recordstore"
	"github.com/MrSnakeDoc/vsdesk/internal/version"
)

type App struct {
	cfg     *config.Config
	logger  logger.Logger
	opener  *recordstore.Opener
	core    *Core
	storage deps.Storage
}

func New() (*App, error) {
	cfg := config.Load()

	loggerClient := logger.New(cfg.LogLevel, cfg.PrettyLog)

	// Open the store early - fail fast on a schema we cannot read
	opener, s, storage, err := OpenStore(context.Background(), cfg, loggerClient)
	if err != nil {
		return nil, err
	}
	loggerClient.Info("store ready",
		logger.String("engine", storage.Engine),
		logger.Int("schema_version", storage.SchemaVersion),
		logger.Bool("degraded", storage.Degraded))

	core, err := NewCore(s, cfg, loggerClient)
	if err != nil {
		_ = opener.Close()
		return nil, err
	}

	return &App{
		cfg:     cfg,
		logger:  loggerClient,
		opener:  opener,
		core:    core,
		storage: storage,
	}, nil
}

// Deps returns the dependencies passed to routes.
func (a *App) Deps() deps.Deps {
	build := version.Get()
	return deps.Deps{
		Logger:       a.logger,
		StartTime:    time.Now(),
		Version:      build.Version,
		Commit:       build.Commit,
		BuildDate:    build.BuildDate,
		GoVersion:    build.GoVersion,
		TimeNow:      time.Now,
		AllowedHosts: a.cfg.AllowedHosts,
		AllowedCIDRS: a.cfg.AllowedCIDRS,
		TrustProxy:   a.cfg.TrustProxy,
		Storage:      a.storage,
		Bookmarks:    a.core.Bookmarks,
		Account:      a.core.Account,
		Themes:       a.core.Themes,
		Backup:       a.core.Backup,
		Flush:        a.core.Flush,
		AfterImport:  a.core.AfterImport,
	}
}

func (a *App) Run() error {
	a.logger.Infof("🚀 Starting vsdesk %s on %s", version.Version, a.cfg.ListenPort)
	a.logger.Info(version.Get().String())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Queues outlive the signal context so the last requests still persist.
	if err := a.core.Start(context.Background()); err != nil {
		a.core.Stop()
		a.closeStore()
		return fmt.Errorf("failed to start: %w", err)
	}
	a.logger.Info("orchestrators started")

	server := httpserver.New(a.cfg, a.logger, a.Deps())

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("⏳ Shutting down gracefully...")
	case runErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil && runErr == nil {
		runErr = fmt.Errorf("failed to stop server: %w", err)
	}

	// Drain pending writes before the engine goes away
	a.core.Stop()
	a.closeStore()

	if runErr != nil {
		return runErr
	}
	a.logger.Info("✅ vsdesk stopped cleanly")
	return nil
}

func (a *App) closeStore() {
	if err := a.opener.Close(); err != nil {
		a.logger.Warnf("failed to close store: %v", err)
	} else {
		a.logger.Info("✅ Store closed cleanly")
	}
}
