// Command processor is the attribution export daemon: it periodically
// re-evaluates recent sessions against the current rule config and bulk
// indexes the attributed results for dashboard reporting.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	es "github.com/elastic/go-elasticsearch/v8"

	"github.com/merchantpulse/attribution/internal/attribution"
	"github.com/merchantpulse/attribution/internal/config"
	"github.com/merchantpulse/attribution/internal/database"
	"github.com/merchantpulse/attribution/internal/logger"
	"github.com/merchantpulse/attribution/internal/processor"
	"github.com/merchantpulse/attribution/internal/storage"
	"github.com/merchantpulse/attribution/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "attribution-processor: %v\n", err)
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

	if !cfg.Elasticsearch.Enabled {
		log.Info("session export disabled, nothing to do")
		return nil
	}

	tel := telemetry.NewProvider()

	db, err := database.NewPostgresConnection(cfg.Database.DSN(), cfg.Database.MaxConnections)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	esClient, err := es.NewClient(es.Config{
		Addresses:  []string{cfg.Elasticsearch.URL},
		Username:   cfg.Elasticsearch.Username,
		Password:   cfg.Elasticsearch.Password,
		MaxRetries: cfg.Elasticsearch.MaxRetries,
	})
	if err != nil {
		return fmt.Errorf("create elasticsearch client: %w", err)
	}

	exporter := &exporter{
		settings:  database.NewSettingsRepository(db),
		sessions:  database.NewSessionRepository(db),
		indexer:   storage.NewSessionIndexer(esClient, cfg.Elasticsearch.IndexPrefix),
		limiter:   processor.NewRateLimiter(cfg.Diagnostics.ScanRPS, cfg.Diagnostics.ScanRPS, log),
		cfg:       cfg,
		logger:    log,
		telemetry: tel,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("starting export daemon",
		logger.Duration("interval", cfg.Elasticsearch.ExportInterval),
		logger.String("index_prefix", cfg.Elasticsearch.IndexPrefix),
	)

	ticker := time.NewTicker(cfg.Elasticsearch.ExportInterval)
	defer ticker.Stop()

	if err := exporter.exportOnce(ctx); err != nil {
		log.Error("export failed", logger.Error(err))
	}

	for {
		select {
		case <-ctx.Done():
			log.Info("export daemon stopped")
			return nil
		case <-ticker.C:
			if err := exporter.exportOnce(ctx); err != nil {
				log.Error("export failed", logger.Error(err))
			}
		}
	}
}

type exporter struct {
	settings  *database.SettingsRepository
	sessions  *database.SessionRepository
	indexer   *storage.SessionIndexer
	limiter   *processor.RateLimiter
	cfg       *config.Config
	logger    logger.Logger
	telemetry *telemetry.Provider
}

// exportOnce evaluates every session in the diagnostics window against
// the current config and bulk indexes the outcomes, one page at a time.
func (e *exporter) exportOnce(ctx context.Context) error {
	if err := e.indexer.EnsureIndex(ctx, time.Now()); err != nil {
		return fmt.Errorf("ensure index: %w", err)
	}

	raw, err := e.settings.Get(ctx, e.cfg.Service.SettingsKey)
	if err != nil {
		e.logger.Warn("config read failed, exporting with defaults", logger.Error(err))
	}
	ruleCfg := attribution.NormalizeConfig(raw)

	evaluator := processor.NewBatchEvaluator(ruleCfg, e.cfg.Service.Concurrency, e.logger, e.telemetry)
	since := time.Now().Add(-e.cfg.Diagnostics.Window)

	start := time.Now()
	exported := 0
	afterID := ""
	for {
		if err := e.limiter.Wait(ctx); err != nil {
			return err
		}

		page, err := e.sessions.ScanPage(ctx, since, afterID, e.cfg.Diagnostics.ScanPageSize)
		if err != nil {
			return fmt.Errorf("scan sessions: %w", err)
		}
		if len(page) == 0 {
			break
		}

		results := evaluator.Evaluate(ctx, page)
		if err := e.indexer.BulkIndex(ctx, results); err != nil {
			return fmt.Errorf("index sessions: %w", err)
		}

		exported += len(page)
		afterID = page[len(page)-1].Session.SessionID

		if len(page) < e.cfg.Diagnostics.ScanPageSize {
			break
		}
	}

	e.logger.Info("export complete",
		logger.String("config_id", attribution.StableID(ruleCfg)),
		logger.Int("sessions", exported),
		logger.Int64("duration_ms", time.Since(start).Milliseconds()),
	)

	return nil
}
