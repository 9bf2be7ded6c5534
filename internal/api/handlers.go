package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/merchantpulse/attribution/internal/attribution"
	"github.com/merchantpulse/attribution/internal/domain"
	"github.com/merchantpulse/attribution/internal/logger"
	"github.com/merchantpulse/attribution/internal/processor"
	"github.com/merchantpulse/attribution/internal/telemetry"
)

// SettingsStore persists the opaque rule config blob.
type SettingsStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// ReportBuilder produces diagnostics reports over a session window.
type ReportBuilder interface {
	BuildReport(ctx context.Context, cfg *domain.Config, since time.Time) (*processor.Report, error)
}

// ReportCache caches diagnostics reports keyed by config identity.
type ReportCache interface {
	Get(ctx context.Context, configID, window string) (*processor.Report, bool, error)
	Set(ctx context.Context, configID, window string, report *processor.Report) error
}

// RuleSuggester proposes draft sources for unmatched traffic.
type RuleSuggester interface {
	Suggest(groups []processor.UnmatchedGroup) []processor.Suggestion
}

// Handler handles HTTP requests for the attribution API.
type Handler struct {
	settings    SettingsStore
	diagnostics ReportBuilder
	cache       ReportCache
	suggester   RuleSuggester
	settingsKey string
	concurrency int
	window      time.Duration
	telemetry   *telemetry.Provider
	logger      logger.Logger
}

// HandlerOptions collects the handler's collaborators. Cache and
// suggester are optional.
type HandlerOptions struct {
	Settings    SettingsStore
	Diagnostics ReportBuilder
	Cache       ReportCache
	Suggester   RuleSuggester
	SettingsKey string
	Concurrency int
	Window      time.Duration
	Telemetry   *telemetry.Provider
	Logger      logger.Logger
}

// NewHandler creates a new API handler.
func NewHandler(opts HandlerOptions) *Handler {
	if opts.SettingsKey == "" {
		opts.SettingsKey = "traffic_source_rules"
	}
	if opts.Window <= 0 {
		opts.Window = 30 * 24 * time.Hour
	}

	return &Handler{
		settings:    opts.Settings,
		diagnostics: opts.Diagnostics,
		cache:       opts.Cache,
		suggester:   opts.Suggester,
		settingsKey: opts.SettingsKey,
		concurrency: opts.Concurrency,
		window:      opts.Window,
		telemetry:   opts.Telemetry,
		logger:      opts.Logger,
	}
}

// loadConfig loads and normalizes the stored rule config. The read path
// never fails: any storage error or malformed payload falls back to the
// built-in defaults.
func (h *Handler) loadConfig(ctx context.Context) (*domain.Config, bool) {
	raw, err := h.settings.Get(ctx, h.settingsKey)
	if err != nil {
		h.logger.Warn("config read failed, using defaults", logger.Error(err))
		if h.telemetry != nil {
			h.telemetry.RecordConfigFallback(ctx)
		}
		return domain.DefaultConfig(), true
	}
	if raw == nil {
		return domain.DefaultConfig(), false
	}

	return attribution.NormalizeConfig(raw), false
}

// Attribute handles POST /api/v1/attribute
func (h *Handler) Attribute(c *gin.Context) {
	var req AttributeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid attribute request", logger.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cfg, _ := h.loadConfig(c.Request.Context())

	start := time.Now()
	matchCtx := attribution.BuildContext(req.Session, req.Evidence)
	result := attribution.Match(matchCtx, cfg)

	if h.telemetry != nil {
		h.telemetry.RecordMatch(c.Request.Context(), result.SourceKey, result.WasAmbiguous, time.Since(start))
	}

	c.JSON(http.StatusOK, AttributeResponse{
		SessionID: req.Session.SessionID,
		Result:    result,
		ConfigID:  attribution.StableID(cfg),
	})
}

// AttributeBatch handles POST /api/v1/attribute/batch
func (h *Handler) AttributeBatch(c *gin.Context) {
	var req BatchAttributeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid batch attribute request", logger.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cfg, _ := h.loadConfig(c.Request.Context())

	evaluator := processor.NewBatchEvaluator(cfg, h.concurrency, h.logger, h.telemetry)
	results := evaluator.Evaluate(c.Request.Context(), req.Sessions)

	c.JSON(http.StatusOK, toBatchResponse(results, attribution.StableID(cfg)))
}

// GetConfig handles GET /api/v1/config
func (h *Handler) GetConfig(c *gin.Context) {
	cfg, fallback := h.loadConfig(c.Request.Context())

	c.JSON(http.StatusOK, ConfigResponse{
		Config:   cfg,
		ConfigID: attribution.StableID(cfg),
		Fallback: fallback,
	})
}

// PutConfig handles PUT /api/v1/config. The save path is fail-closed:
// a structurally broken document is refused with every problem found,
// and nothing is persisted.
func (h *Handler) PutConfig(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	if result := attribution.ValidateConfigBytes(raw); !result.OK {
		h.logger.Warn("config save rejected",
			logger.Int("error_count", len(result.Errors)),
		)
		if h.telemetry != nil {
			h.telemetry.RecordConfigSave(c.Request.Context(), false)
		}
		c.JSON(http.StatusUnprocessableEntity, ValidationErrorResponse{
			Error:  "config validation failed",
			Errors: result.Errors,
		})
		return
	}

	cfg, err := attribution.NormalizeConfigForSave(raw)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, ValidationErrorResponse{
			Error:  "config validation failed",
			Errors: []attribution.ValidationError{{Path: "config", Message: err.Error()}},
		})
		return
	}

	canonical, err := attribution.MarshalConfig(cfg)
	if err != nil {
		h.logger.Error("config marshal failed", logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to encode config"})
		return
	}

	if err := h.settings.Set(c.Request.Context(), h.settingsKey, canonical); err != nil {
		h.logger.Error("config save failed", logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save config"})
		return
	}

	configID := attribution.StableID(cfg)
	if h.telemetry != nil {
		h.telemetry.RecordConfigSave(c.Request.Context(), true)
	}
	h.logger.Info("config saved",
		logger.String("config_id", configID),
		logger.Int("sources", len(cfg.Sources)),
	)

	c.JSON(http.StatusOK, ConfigResponse{Config: cfg, ConfigID: configID})
}

// report builds (or fetches) the diagnostics report for the current
// config and the requested window.
func (h *Handler) report(c *gin.Context) (*processor.Report, string, bool, error) {
	window, label := parseWindow(c.Query("window"), h.window)
	cfg, _ := h.loadConfig(c.Request.Context())
	configID := attribution.StableID(cfg)

	if h.cache != nil {
		cached, hit, err := h.cache.Get(c.Request.Context(), configID, label)
		if err != nil {
			h.logger.Warn("report cache lookup failed", logger.Error(err))
		}
		if h.telemetry != nil {
			h.telemetry.RecordCacheLookup(c.Request.Context(), hit)
		}
		if hit {
			return cached, label, true, nil
		}
	}

	report, err := h.diagnostics.BuildReport(c.Request.Context(), cfg, time.Now().Add(-window))
	if err != nil {
		return nil, label, false, err
	}

	if h.cache != nil {
		if err := h.cache.Set(c.Request.Context(), configID, label, report); err != nil {
			h.logger.Warn("report cache store failed", logger.Error(err))
		}
	}

	return report, label, false, nil
}

// Diagnostics handles GET /api/v1/diagnostics
func (h *Handler) Diagnostics(c *gin.Context) {
	report, window, cached, err := h.report(c)
	if err != nil {
		h.logger.Error("diagnostics failed", logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build diagnostics report"})
		return
	}

	c.JSON(http.StatusOK, DiagnosticsResponse{Window: window, Report: report, Cached: cached})
}

// DiagnosticsUnmatched handles GET /api/v1/diagnostics/unmatched
func (h *Handler) DiagnosticsUnmatched(c *gin.Context) {
	report, window, _, err := h.report(c)
	if err != nil {
		h.logger.Error("unmatched diagnostics failed", logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build diagnostics report"})
		return
	}

	c.JSON(http.StatusOK, UnmatchedResponse{
		ConfigID:     report.ConfigID,
		Window:       window,
		TopUnmatched: report.TopUnmatched,
	})
}

// DiagnosticsSuggestions handles GET /api/v1/diagnostics/suggestions
func (h *Handler) DiagnosticsSuggestions(c *gin.Context) {
	if h.suggester == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "suggestions not enabled"})
		return
	}

	report, window, _, err := h.report(c)
	if err != nil {
		h.logger.Error("suggestions failed", logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build diagnostics report"})
		return
	}

	c.JSON(http.StatusOK, SuggestionsResponse{
		ConfigID:    report.ConfigID,
		Window:      window,
		Suggestions: h.suggester.Suggest(report.TopUnmatched),
	})
}
