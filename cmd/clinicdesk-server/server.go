package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/clinicdesk/clinicdesk/internal/config"
	"github.com/clinicdesk/clinicdesk/internal/domain/catalog"
	"github.com/clinicdesk/clinicdesk/internal/domain/dashboard"
	"github.com/clinicdesk/clinicdesk/internal/domain/record"
	"github.com/clinicdesk/clinicdesk/internal/domain/staff"
	"github.com/clinicdesk/clinicdesk/internal/platform/apierr"
	"github.com/clinicdesk/clinicdesk/internal/platform/auth"
	"github.com/clinicdesk/clinicdesk/internal/platform/db"
	"github.com/clinicdesk/clinicdesk/internal/platform/docstore"
	"github.com/clinicdesk/clinicdesk/internal/platform/metrics"
	"github.com/clinicdesk/clinicdesk/internal/platform/middleware"
)

const tokenIssuer = "clinicdesk"

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return logger.Level(level)
}

// openedStore is the document store plus whatever answers /health/db.
type openedStore struct {
	store  docstore.Store
	pinger db.Pinger
	close  func(ctx context.Context)
}

func openStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*openedStore, error) {
	switch cfg.StoreDriver {
	case config.DriverMongo:
		ms, err := docstore.OpenMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		if err := ms.EnsureIndexes(ctx); err != nil {
			ms.Close(ctx)
			return nil, err
		}
		logger.Info().Str("database", cfg.MongoDatabase).Msg("connected to mongodb")
		return &openedStore{store: ms, pinger: ms, close: func(ctx context.Context) { ms.Close(ctx) }}, nil

	case config.DriverPostgres:
		pool, err := db.NewPool(ctx, db.PoolConfig{
			URL:      cfg.DatabaseURL,
			MaxConns: cfg.DBMaxConns,
			MinConns: cfg.DBMinConns,
		})
		if err != nil {
			return nil, err
		}
		logger.Info().Msg("connected to postgres")
		ps := docstore.NewPostgresStore(pool)
		return &openedStore{store: ps, pinger: pool, close: func(context.Context) { pool.Close() }}, nil

	case config.DriverMemory:
		logger.Warn().Msg("using in-memory store; data is lost on restart")
		ms := docstore.NewMemoryStore()
		return &openedStore{store: ms, pinger: ms, close: func(context.Context) {}}, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}

// openRevoker returns the Redis revoker when REDIS_URL is set and the
// in-memory store otherwise.
func openRevoker(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (auth.Revoker, func(), error) {
	if cfg.RedisURL == "" {
		mem := auth.NewTokenRevocationStore()
		return mem, mem.Close, nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("connect to redis: %w", err)
	}
	logger.Info().Str("addr", opts.Addr).Msg("connected to redis")
	return auth.NewRedisRevoker(client), func() { client.Close() }, nil
}

// deps are the collaborators newServer wires together.
type deps struct {
	cfg     *config.Config
	logger  zerolog.Logger
	store   *openedStore
	revoker auth.Revoker
	metrics *metrics.Metrics
}

func newServer(d deps) *echo.Echo {
	cfg, logger := d.cfg, d.logger

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = apierr.HTTPErrorHandler(logger)

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	e.Use(d.metrics.Middleware())

	// Infra endpoints
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/health/db", db.HealthHandler(cfg.StoreDriver, d.store.pinger))
	e.GET("/metrics", d.metrics.Handler())

	// API group
	apiV1 := e.Group("/api/v1")
	rateLimitCfg := middleware.DefaultRateLimitConfig()
	if cfg.RateLimitRPS > 0 {
		rateLimitCfg.RequestsPerSecond = cfg.RateLimitRPS
	}
	if cfg.RateLimitBurst > 0 {
		rateLimitCfg.BurstSize = cfg.RateLimitBurst
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))

	issuer := auth.NewIssuer([]byte(cfg.JWTSecret), tokenIssuer, cfg.SessionTTL)
	apiV1.Use(auth.JWTMiddleware(auth.JWTConfig{
		Issuer:  issuer,
		Revoker: d.revoker,
		Skipper: auth.AuthSkipper,
	}))
	apiV1.Use(middleware.Audit(logger))

	// Domain services
	loc := cfg.Location()
	store := d.store.store

	recordSvc := record.NewService(record.NewDocRepo(store), loc, d.metrics)
	record.NewHandler(recordSvc).RegisterRoutes(apiV1)

	catalogSvc := catalog.NewService(catalog.NewDocRepo(store))
	catalog.NewHandler(catalogSvc).RegisterRoutes(apiV1)

	staffSvc := staff.NewService(staff.NewDocRepo(store), issuer, d.revoker, d.metrics)
	staff.NewHandler(staffSvc).RegisterRoutes(apiV1)

	dashboardSvc := dashboard.NewService(recordSvc, staffSvc, catalogSvc, loc)
	dashboard.NewHandler(dashboardSvc).RegisterRoutes(apiV1)

	return e
}

func runServer() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	if cfg.UsesDevSecret() {
		logger.Warn().Str("env", cfg.Env).Msg("signing sessions with the development JWT secret; set JWT_SECRET before exposing this server")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Str("driver", cfg.StoreDriver).Msg("failed to open store")
		return err
	}
	defer st.close(context.Background())

	revoker, closeRevoker, err := openRevoker(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to open session revocation store")
		return err
	}
	defer closeRevoker()

	e := newServer(deps{
		cfg:     cfg,
		logger:  logger,
		store:   st,
		revoker: revoker,
		metrics: metrics.New(nil),
	})

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("driver", cfg.StoreDriver).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		logger.Error().Err(err).Msg("server error")
		return err
	}

	logger.Info().Msg("shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
