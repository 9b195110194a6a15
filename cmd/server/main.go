package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/pileworks/bom-service/config"
	"github.com/pileworks/bom-service/internal/database"
	"github.com/pileworks/bom-service/internal/handlers"
	"github.com/pileworks/bom-service/internal/kvstore"
	"github.com/pileworks/bom-service/internal/metrics"
	"github.com/pileworks/bom-service/internal/middleware"
	"github.com/pileworks/bom-service/internal/session"
	"github.com/pileworks/bom-service/internal/storage"
	"github.com/pileworks/bom-service/internal/sweepers"
	"github.com/pileworks/bom-service/internal/telemetry"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := initLogger(cfg.Logging)

	logger.Info().Msg("Starting BOM service")

	ctx := context.Background()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.GetConfigFromEnv())
	if err != nil {
		logger.Warn().Err(err).Msg("Telemetry disabled")
		shutdownTelemetry = func(context.Context) error { return nil }
	}

	store, err := buildStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize session store")
	}
	defer database.Close()

	blobs, err := storage.NewLocal(cfg.Storage.BasePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize upload storage")
	}

	gateway := session.NewGateway(store, *logger)
	recorder := metrics.NewRecorder()
	handlers.Init(cfg, gateway, blobs, recorder)

	sweeper := sweepers.NewSessionSweeper(store, gateway, blobs, recorder, logger,
		cfg.Session.TTL, cfg.Session.SweepInterval)
	go sweeper.Start(ctx)

	if cfg.Logging.Level == "info" || cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	setupMiddleware(router, logger)

	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	api.Use(middleware.RateLimitMiddleware(middleware.RateLimiterConfig{
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		BurstSize:         cfg.RateLimit.BurstSize,
	}))
	{
		bom := api.Group("/bom")
		{
			bom.POST("/upload", handlers.Upload)
			bom.POST("/remap", handlers.Remap)
			bom.GET("/points", handlers.Points)
			bom.GET("/session", handlers.GetSession)
		}

		grading := api.Group("/grading")
		{
			grading.POST("/fill", handlers.FillGrading)
		}
	}

	internal := router.Group("/internal")
	internal.Use(middleware.InternalAuthMiddleware())
	internal.Use(middleware.ServiceRateLimitMiddleware(50, 100))
	{
		internal.GET("/health", handlers.HealthCheck)

		admin := internal.Group("/admin")
		{
			admin.DELETE("/sessions/:id", handlers.DeleteSession)
		}
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info().Str("addr", addr).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down server...")
	sweeper.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
	}
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Telemetry shutdown failed")
	}

	logger.Info().Msg("Server exited")
}

// buildStore selects the session store backend. A postgres selection without
// a database URL falls back to the file store so the service still comes up.
func buildStore(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (kvstore.Store, error) {
	switch cfg.Session.Store {
	case "memory":
		logger.Info().Msg("Using in-memory session store")
		return kvstore.NewMemory(cfg.Session.MemoryMaxKB * 1024), nil

	case "postgres":
		dbURL := config.GetDatabaseURL()
		if dbURL == "" {
			logger.Warn().Msg("DATABASE_URL not set, falling back to file session store")
			return kvstore.NewFile(cfg.Session.FilePath)
		}
		if err := database.Connect(
			ctx,
			dbURL,
			cfg.Database.MaxConnections,
			cfg.Database.MinConnections,
			cfg.Database.MaxConnLifetime,
			cfg.Database.MaxConnIdleTime,
		); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		pg := kvstore.NewPostgres(database.Pool())
		if err := pg.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("failed to ensure session schema: %w", err)
		}
		logger.Info().Msg("Using postgres session store")
		return pg, nil

	default:
		logger.Info().Str("path", cfg.Session.FilePath).Msg("Using file session store")
		return kvstore.NewFile(cfg.Session.FilePath)
	}
}

func initLogger(cfg config.LoggingConfig) *zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var output io.Writer
	if cfg.Format == "json" {
		output = os.Stdout
	} else {
		output = zerolog.ConsoleWriter{Out: os.Stdout, NoColor: cfg.NoColor}
	}

	logger := zerolog.New(output).Level(level).With().Timestamp().Str("service", "bom-service").Logger()
	return &logger
}

func setupMiddleware(router *gin.Engine, logger *zerolog.Logger) {
	router.Use(func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		end := time.Now()
		latency := end.Sub(start)

		logger.Info().
			Str("method", c.Request.Method).
			Str("path", path).
			Str("query", query).
			Int("status", c.Writer.Status()).
			Dur("latency", latency).
			Str("ip", c.ClientIP()).
			Msg("HTTP request")
	})
}
