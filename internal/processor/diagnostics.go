package processor

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/merchantpulse/attribution/internal/attribution"
	"github.com/merchantpulse/attribution/internal/domain"
	"github.com/merchantpulse/attribution/internal/logger"
	"github.com/merchantpulse/attribution/internal/telemetry"
)

const (
	defaultScanPageSize = 1000
	maxUnmatchedGroups  = 50
)

// SessionScanner pages through session rows in a reporting window.
// Implementations return an empty slice when the window is exhausted;
// cursor is the session id to resume after.
type SessionScanner interface {
	ScanPage(ctx context.Context, since time.Time, afterID string, limit int) ([]domain.SessionWithEvidence, error)
}

// SourceStat aggregates attribution outcomes for one source.
type SourceStat struct {
	SourceKey   string `json:"source_key"`
	SourceLabel string `json:"source_label"`
	Sessions    int    `json:"sessions"`
	Conversions int    `json:"conversions"`
	Ambiguous   int    `json:"ambiguous"`
}

// UnmatchedGroup is a cluster of unmatched sessions sharing the same
// signal signature, ranked by size.
type UnmatchedGroup struct {
	Signature string `json:"signature"`
	Sessions  int    `json:"sessions"`
	ExampleID string `json:"example_session_id"`
}

// Report is the outcome of one diagnostics scan over a session window.
type Report struct {
	ConfigID     string           `json:"config_id"`
	Since        time.Time        `json:"since"`
	GeneratedAt  time.Time        `json:"generated_at"`
	Total        int              `json:"total"`
	Matched      int              `json:"matched"`
	Unmatched    int              `json:"unmatched"`
	Ambiguous    int              `json:"ambiguous"`
	Sources      []SourceStat     `json:"sources"`
	TopUnmatched []UnmatchedGroup `json:"top_unmatched"`
}

// Diagnostics scans attributed sessions and builds aggregate reports
// merchants use to audit their rule config.
type Diagnostics struct {
	scanner   SessionScanner
	limiter   *RateLimiter
	pageSize  int
	logger    logger.Logger
	telemetry *telemetry.Provider
}

// NewDiagnostics creates a diagnostics report builder.
func NewDiagnostics(scanner SessionScanner, limiter *RateLimiter, pageSize int, log logger.Logger, tel *telemetry.Provider) *Diagnostics {
	if pageSize <= 0 {
		pageSize = defaultScanPageSize
	}

	return &Diagnostics{
		scanner:   scanner,
		limiter:   limiter,
		pageSize:  pageSize,
		logger:    log,
		telemetry: tel,
	}
}

// BuildReport scans every session since the window start and evaluates
// each one against a snapshot of cfg. The scan is paced by the rate
// limiter one page at a time.
func (d *Diagnostics) BuildReport(ctx context.Context, cfg *domain.Config, since time.Time) (*Report, error) {
	engine := attribution.NewEngine(cfg)
	start := time.Now()

	report := &Report{
		ConfigID:    attribution.StableID(engine.Config()),
		Since:       since,
		GeneratedAt: start.UTC(),
	}

	stats := make(map[string]*SourceStat)
	unmatched := make(map[string]*UnmatchedGroup)

	afterID := ""
	for {
		if d.limiter != nil {
			if !d.limiter.Allow() {
				if d.telemetry != nil {
					d.telemetry.IncrementScanThrottle()
				}
				if err := d.limiter.Wait(ctx); err != nil {
					return nil, fmt.Errorf("scan throttled: %w", err)
				}
			}
		}

		page, err := d.scanner.ScanPage(ctx, since, afterID, d.pageSize)
		if err != nil {
			return nil, fmt.Errorf("scan sessions: %w", err)
		}
		if len(page) == 0 {
			break
		}

		for i := range page {
			d.tally(report, stats, unmatched, page[i], engine)
		}
		afterID = page[len(page)-1].Session.SessionID

		if len(page) < d.pageSize {
			break
		}
	}

	report.Sources = rankSources(stats)
	report.TopUnmatched = rankUnmatched(unmatched)

	if d.telemetry != nil {
		d.telemetry.RecordScan(ctx, time.Since(start))
	}

	d.logger.Info("diagnostics report built",
		logger.String("config_id", report.ConfigID),
		logger.Int("total", report.Total),
		logger.Int("unmatched", report.Unmatched),
		logger.Int64("duration_ms", time.Since(start).Milliseconds()),
	)

	return report, nil
}

func (d *Diagnostics) tally(
	report *Report,
	stats map[string]*SourceStat,
	unmatched map[string]*UnmatchedGroup,
	input domain.SessionWithEvidence,
	engine *attribution.Engine,
) {
	report.Total++

	matchCtx := attribution.BuildContext(input.Session, input.Evidence)
	result := engine.Match(matchCtx)

	if !result.Matched {
		report.Unmatched++
		sig := Signature(matchCtx)
		group, ok := unmatched[sig]
		if !ok {
			group = &UnmatchedGroup{Signature: sig, ExampleID: input.Session.SessionID}
			unmatched[sig] = group
		}
		group.Sessions++
		return
	}

	report.Matched++
	if result.WasAmbiguous {
		report.Ambiguous++
	}

	stat, ok := stats[result.SourceKey]
	if !ok {
		stat = &SourceStat{SourceKey: result.SourceKey, SourceLabel: result.SourceLabel}
		stats[result.SourceKey] = stat
	}
	stat.Sessions++
	if input.Session.Converted {
		stat.Conversions++
	}
	if result.WasAmbiguous {
		stat.Ambiguous++
	}
}

// Signature collapses a match context into a stable grouping key built
// from its non-empty scalar signals and sorted param names.
func Signature(ctx domain.MatchContext) string {
	parts := make([]string, 0, 8)
	appendPart := func(field, value string) {
		if value != "" {
			parts = append(parts, field+"="+value)
		}
	}

	appendPart(domain.FieldUTMSource, ctx.UTMSource)
	appendPart(domain.FieldUTMMedium, ctx.UTMMedium)
	appendPart(domain.FieldUTMCampaign, ctx.UTMCampaign)
	appendPart(domain.FieldReferrerHost, ctx.ReferrerHost)
	appendPart(domain.FieldSourceKind, ctx.SourceKind)
	appendPart(domain.FieldAffiliateNetwork, ctx.AffiliateNetwork)

	if len(ctx.ParamNames) > 0 {
		names := make([]string, 0, len(ctx.ParamNames))
		for name := range ctx.ParamNames {
			names = append(names, name)
		}
		sort.Strings(names)
		parts = append(parts, "params="+strings.Join(names, ","))
	}

	if len(parts) == 0 {
		return "(no signals)"
	}
	return strings.Join(parts, " ")
}

func rankSources(stats map[string]*SourceStat) []SourceStat {
	out := make([]SourceStat, 0, len(stats))
	for _, stat := range stats {
		out = append(out, *stat)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Sessions != out[j].Sessions {
			return out[i].Sessions > out[j].Sessions
		}
		return out[i].SourceKey < out[j].SourceKey
	})
	return out
}

func rankUnmatched(groups map[string]*UnmatchedGroup) []UnmatchedGroup {
	out := make([]UnmatchedGroup, 0, len(groups))
	for _, group := range groups {
		out = append(out, *group)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Sessions != out[j].Sessions {
			return out[i].Sessions > out[j].Sessions
		}
		return out[i].Signature < out[j].Signature
	})
	if len(out) > maxUnmatchedGroups {
		out = out[:maxUnmatchedGroups]
	}
	return out
}
