package api

import (
	"strconv"
	"time"

	"github.com/merchantpulse/attribution/internal/attribution"
	"github.com/merchantpulse/attribution/internal/domain"
	"github.com/merchantpulse/attribution/internal/processor"
)

// AttributeRequest represents a single session evaluation request.
type AttributeRequest struct {
	Session  domain.SessionRecord      `json:"session" binding:"required"`
	Evidence *domain.AffiliateEvidence `json:"evidence"`
}

// AttributeResponse carries one session's attribution outcome.
type AttributeResponse struct {
	SessionID string             `json:"session_id"`
	Result    domain.MatchResult `json:"result"`
	ConfigID  string             `json:"config_id"`
}

// BatchAttributeRequest represents a batch evaluation request.
type BatchAttributeRequest struct {
	Sessions []domain.SessionWithEvidence `json:"sessions" binding:"required,min=1,max=500"`
}

// BatchAttributeResponse carries batch evaluation outcomes in input
// order.
type BatchAttributeResponse struct {
	Results   []AttributeResponse `json:"results"`
	Total     int                 `json:"total"`
	Matched   int                 `json:"matched"`
	Unmatched int                 `json:"unmatched"`
	ConfigID  string              `json:"config_id"`
}

// ConfigResponse is the normalized rule config plus its stable identity.
type ConfigResponse struct {
	Config   *domain.Config `json:"config"`
	ConfigID string         `json:"config_id"`
	Fallback bool           `json:"fallback,omitempty"`
}

// ValidationErrorResponse is the fail-closed save refusal: every
// structural problem found, not just the first.
type ValidationErrorResponse struct {
	Error  string                        `json:"error"`
	Errors []attribution.ValidationError `json:"errors"`
}

// DiagnosticsResponse wraps a diagnostics report with its window.
type DiagnosticsResponse struct {
	Window string            `json:"window"`
	Report *processor.Report `json:"report"`
	Cached bool              `json:"cached"`
}

// UnmatchedResponse lists ranked unmatched signature groups.
type UnmatchedResponse struct {
	ConfigID     string                     `json:"config_id"`
	Window       string                     `json:"window"`
	TopUnmatched []processor.UnmatchedGroup `json:"top_unmatched"`
}

// SuggestionsResponse lists draft sources for unmatched traffic.
type SuggestionsResponse struct {
	ConfigID    string                 `json:"config_id"`
	Window      string                 `json:"window"`
	Suggestions []processor.Suggestion `json:"suggestions"`
}

func toBatchResponse(results []processor.EvalResult, configID string) BatchAttributeResponse {
	out := BatchAttributeResponse{
		Results:  make([]AttributeResponse, 0, len(results)),
		Total:    len(results),
		ConfigID: configID,
	}

	for i := range results {
		if results[i].Result.Matched {
			out.Matched++
		} else {
			out.Unmatched++
		}
		out.Results = append(out.Results, AttributeResponse{
			SessionID: results[i].Input.Session.SessionID,
			Result:    results[i].Result,
			ConfigID:  configID,
		})
	}

	return out
}

// parseWindow parses a reporting window like "30d", "24h" or a Go
// duration string, falling back to def for anything unparsable.
func parseWindow(raw string, def time.Duration) (time.Duration, string) {
	if raw == "" {
		return def, formatWindow(def)
	}

	if n := len(raw); n > 1 && raw[n-1] == 'd' {
		days := 0
		for _, r := range raw[:n-1] {
			if r < '0' || r > '9' {
				days = -1
				break
			}
			days = days*10 + int(r-'0')
		}
		if days > 0 {
			d := time.Duration(days) * 24 * time.Hour
			return d, raw
		}
	}

	if d, err := time.ParseDuration(raw); err == nil && d > 0 {
		return d, raw
	}

	return def, formatWindow(def)
}

func formatWindow(d time.Duration) string {
	if d >= 24*time.Hour && d%(24*time.Hour) == 0 {
		return strconv.Itoa(int(d/(24*time.Hour))) + "d"
	}
	return d.String()
}
