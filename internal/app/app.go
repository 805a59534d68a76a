package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/casekit/exposer/internal/config"
	"github.com/casekit/exposer/internal/db"
	"github.com/casekit/exposer/internal/dialect"
	adminapi "github.com/casekit/exposer/internal/http/api/admin"
	"github.com/casekit/exposer/internal/metadata"
	"github.com/casekit/exposer/internal/reindex"
	"github.com/casekit/exposer/internal/schema"
	"github.com/casekit/exposer/internal/settings"
)

const shutdownTimeout = 10 * time.Second

// Run boots the service: database, metadata, background poller and admin API.
// It blocks until ctx is cancelled, then shuts the HTTP server down.
func Run(ctx context.Context, configPath string) error {
	cfg, errLoad := config.Load(configPath)
	if errLoad != nil {
		return errLoad
	}
	setupLogging(cfg.Logging)

	conn, errOpen := db.Open(cfg.Database.DSN)
	if errOpen != nil {
		return fmt.Errorf("app: open database: %w", errOpen)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return fmt.Errorf("app: migrate: %w", errMigrate)
	}
	if errSettings := settings.RefreshDBConfigSnapshot(ctx, conn); errSettings != nil {
		log.WithError(errSettings).Warn("app: settings snapshot refresh failed")
	}

	files, errResources := metadata.LoadResources(cfg.Metadata.Dir)
	if errResources != nil {
		return fmt.Errorf("app: load metadata: %w", errResources)
	}
	indexes, errIndexes := metadata.LoadIndexes(cfg.Metadata.Dir)
	if errIndexes != nil {
		return fmt.Errorf("app: load index definitions: %w", errIndexes)
	}

	engine := metadata.NewEngine(metadata.NewOverrideStore(conn), files)
	resolver := metadata.NewResolver(engine)
	annotator := metadata.NewAnnotator(engine)

	adapter := dialect.New(conn)
	throttle := settings.IntValue(settings.SchemaCatalogThrottleKey, settings.DefaultSchemaCatalogThrottle)
	schemaManager := schema.NewManager(conn, adapter, throttle)
	persister := reindex.NewPersister(conn, adapter, schemaManager)
	service := reindex.NewService(conn, resolver, annotator, indexes, persister)
	if service == nil {
		return errors.New("app: service wiring failed")
	}

	if cfg.Worker.PollEnabled() {
		if poller := reindex.NewPoller(conn, service); poller != nil {
			poller.Start(ctx)
		}
	} else {
		log.Info("app: request poller disabled by config")
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	adminapi.RegisterAdminRoutes(router, conn, cfg.Auth, resolver, service)

	server := &http.Server{Addr: cfg.Server.Addr, Handler: router}
	errCh := make(chan error, 1)
	go func() {
		log.Infof("app: listening on %s", cfg.Server.Addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if errShutdown := server.Shutdown(shutdownCtx); errShutdown != nil {
			log.WithError(errShutdown).Warn("app: shutdown failed")
		}
		return nil
	case errServe := <-errCh:
		if errors.Is(errServe, http.ErrServerClosed) {
			return nil
		}
		return errServe
	}
}

// setupLogging configures logrus level and, when a file is configured,
// rotation via lumberjack alongside stderr.
func setupLogging(cfg config.LoggingConfig) {
	level, errParse := log.ParseLevel(strings.TrimSpace(cfg.Level))
	if errParse != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	if strings.TrimSpace(cfg.File) != "" {
		rotated := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     30,
			Compress:   true,
		}
		log.SetOutput(io.MultiWriter(os.Stderr, rotated))
	}
}
