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
	"github.com/opticore-app/opticore/internal/config"
	"github.com/opticore-app/opticore/internal/db"
	internalhttp "github.com/opticore-app/opticore/internal/http"
	"github.com/opticore-app/opticore/internal/http/api/admin"
	"github.com/opticore-app/opticore/internal/http/api/front"
	"github.com/opticore-app/opticore/internal/revocation"
	"github.com/opticore-app/opticore/internal/store"
	"github.com/opticore-app/opticore/internal/tenant"
	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
	"gorm.io/gorm"
)

// shutdownTimeout bounds the HTTP server drain during shutdown.
const shutdownTimeout = 10 * time.Second

// Option customizes server assembly.
type Option func(*options)

type options struct {
	domainRoutes func(*gin.RouterGroup)
}

// WithDomainRoutes mounts domain controllers under the tenant-scoped API
// group. Controllers read their connection via http.TenantDB and never open
// their own.
func WithDomainRoutes(register func(*gin.RouterGroup)) Option {
	return func(o *options) { o.domainRoutes = register }
}

// Migrate opens the control-plane database and runs migrations.
func Migrate(ctx context.Context, configPath string) error {
	cfg, errLoad := config.Load(config.ResolveConfigPath(configPath))
	if errLoad != nil {
		return errLoad
	}
	conn, errOpen := db.Open(cfg.MasterDSN)
	if errOpen != nil {
		return errOpen
	}
	defer func() { _ = db.Close(conn) }()
	return db.Migrate(conn)
}

// RunServer boots the API server and blocks until the context is cancelled.
func RunServer(ctx context.Context, configPath string, opts ...Option) error {
	var assembled options
	for _, opt := range opts {
		opt(&assembled)
	}

	cfg, errLoad := config.Load(config.ResolveConfigPath(configPath))
	if errLoad != nil {
		return errLoad
	}
	setupLogging(cfg.Log)

	conn, errOpen := db.Open(cfg.MasterDSN)
	if errOpen != nil {
		return fmt.Errorf("open control-plane db: %w", errOpen)
	}
	defer func() { _ = db.Close(conn) }()
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return fmt.Errorf("migrate control-plane db: %w", errMigrate)
	}

	st := store.NewGormStore(conn)
	registry := tenant.NewRegistry(cfg.TenantDB)
	defer registry.ShutdownAll()
	provisioner := tenant.NewPostgresProvisioner(cfg.TenantDB)

	var revocations *revocation.Store
	if strings.TrimSpace(cfg.RedisAddr) != "" {
		revocations = revocation.NewStore(cfg.RedisAddr, cfg.JWT.Expiry)
		defer func() { _ = revocations.Close() }()
	} else {
		log.Warn("no redis configured, token revocation disabled")
	}

	engine := buildEngine(cfg, conn, st, registry, provisioner, revocations, assembled)

	server := &http.Server{
		Addr:    cfg.Listen,
		Handler: engine,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("listening on %s", cfg.Listen)
		if errServe := server.ListenAndServe(); errServe != nil && !errors.Is(errServe, http.ErrServerClosed) {
			errCh <- errServe
		}
	}()

	select {
	case errServe := <-errCh:
		return errServe
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if errShutdown := server.Shutdown(shutdownCtx); errShutdown != nil {
		log.WithError(errShutdown).Warn("server shutdown")
	}
	return nil
}

// buildEngine assembles the gin engine: recovery and request logging, token
// verification, the auth/control-plane routes, and the tenant-scoped mount
// point for domain controllers.
func buildEngine(cfg config.AppConfig, conn *gorm.DB, st *store.GormStore, registry *tenant.Registry, provisioner tenant.Provisioner, revocations *revocation.Store, assembled options) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger())
	engine.Use(internalhttp.AuthMiddleware(cfg.JWT.Secret, revocations))

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	front.RegisterFrontRoutes(engine, st, cfg, revocations)
	admin.RegisterAdminRoutes(engine, conn, registry, provisioner)

	api := engine.Group("/v0/api")
	api.Use(internalhttp.SelectDatabaseMiddleware(registry, st))
	if assembled.domainRoutes != nil {
		assembled.domainRoutes(api)
	}

	return engine
}

// setupLogging configures logrus output, level and rotation.
func setupLogging(cfg config.LogConfig) {
	level, errParse := log.ParseLevel(strings.TrimSpace(cfg.Level))
	if errParse != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	if strings.TrimSpace(cfg.File) == "" {
		return
	}
	rotated := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		Compress:   true,
	}
	log.SetOutput(io.MultiWriter(os.Stdout, rotated))
}

// requestLogger logs one line per request with status and latency.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(log.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
			"client":  c.ClientIP(),
		}).Info("request")
	}
}
