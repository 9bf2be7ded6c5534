package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/merchantpulse/attribution/internal/api"
	"github.com/merchantpulse/attribution/internal/config"
	"github.com/merchantpulse/attribution/internal/database"
	"github.com/merchantpulse/attribution/internal/logger"
	"github.com/merchantpulse/attribution/internal/processor"
	"github.com/merchantpulse/attribution/internal/storage"
	"github.com/merchantpulse/attribution/internal/telemetry"
)

const shutdownGrace = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "attribution: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting attribution service",
		logger.String("version", cfg.Service.Version),
		logger.Int("port", cfg.Service.Port),
	)

	tel := telemetry.NewProvider()

	db, err := database.NewPostgresConnection(cfg.Database.DSN(), cfg.Database.MaxConnections)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()
	log.Info("database connection established")

	settingsRepo := database.NewSettingsRepository(db)
	sessionRepo := database.NewSessionRepository(db)

	limiter := processor.NewRateLimiter(cfg.Diagnostics.ScanRPS, cfg.Diagnostics.ScanRPS, log)
	diagnostics := processor.NewDiagnostics(sessionRepo, limiter, cfg.Diagnostics.ScanPageSize, log, tel)
	suggester := processor.NewSuggester(cfg.Diagnostics.SuggestionLimit, log)

	readiness := map[string]func() error{
		"database": db.Ping,
	}

	var cache api.ReportCache
	redisClient, err := newRedisClient(cfg, log)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		cache = storage.NewReportCache(redisClient, cfg.Redis.ReportTTL)
		readiness["redis"] = func() error {
			return redisClient.Ping(context.Background()).Err()
		}
	}

	handler := api.NewHandler(api.HandlerOptions{
		Settings:    settingsRepo,
		Diagnostics: diagnostics,
		Cache:       cache,
		Suggester:   suggester,
		SettingsKey: cfg.Service.SettingsKey,
		Concurrency: cfg.Service.Concurrency,
		Window:      cfg.Diagnostics.Window,
		Telemetry:   tel,
		Logger:      log,
	})

	server := api.NewServer(api.ServerConfig{
		Port:  cfg.Service.Port,
		Debug: cfg.Service.Debug,
	}, log, func(router *gin.Engine) {
		api.SetupRoutes(router, handler, cfg.Auth.JWTSecret, tel.Handler(), readiness)
	})

	errCh := server.StartAsync()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case sig := <-sigCh:
		log.Info("received signal", logger.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return err
	}

	log.Info("attribution service stopped")
	return nil
}

// newRedisClient builds the report-cache client, or nil when no Redis
// address is configured.
func newRedisClient(cfg *config.Config, log logger.Logger) (*redis.Client, error) {
	if cfg.Redis.Addr == "" {
		log.Info("report cache disabled, no redis address configured")
		return nil, nil
	}

	client, err := storage.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.Database)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	log.Info("report cache enabled", logger.String("addr", cfg.Redis.Addr))
	return client, nil
}
