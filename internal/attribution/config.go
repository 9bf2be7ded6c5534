package attribution

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/merchantpulse/attribution/internal/domain"
)

// MaxConfigBytes caps the serialized size of a configuration accepted on
// the save path. Oversized payloads are a save-time error, never a silent
// truncation.
const MaxConfigBytes = 200 * 1024

// Loose document shapes for the read path. Persisted blobs are not
// trusted: every field is coerced individually so one corrupt value never
// takes down the whole document.
type rawConfig struct {
	Version json.RawMessage   `json:"version"`
	Sources []json.RawMessage `json:"sources"`
}

type rawSource struct {
	Key     any             `json:"key"`
	Label   any             `json:"label"`
	Enabled any             `json:"enabled"`
	Order   any             `json:"order"`
	Icon    any             `json:"icon"`
	Rules   json.RawMessage `json:"rules"`
}

type rawRule struct {
	ID      any                     `json:"id"`
	Label   any                     `json:"label"`
	Enabled any                     `json:"enabled"`
	When    map[string]rawCondition `json:"when"`
}

type rawCondition struct {
	Any  []any `json:"any"`
	None []any `json:"none"`
}

// NormalizeConfig turns a raw persisted blob into a fully normalized
// configuration. It never fails and never returns a structurally invalid
// value: unparsable input, a non-object document, or an unsupported
// version all yield the built-in default configuration. This is the
// fail-open boundary between storage and the matching hot path.
func NormalizeConfig(raw []byte) *domain.Config {
	parsed, ok := parseRawConfig(raw)
	if !ok {
		return NormalizeConfigValue(domain.DefaultConfig())
	}
	return NormalizeConfigValue(parsed)
}

// MarshalConfig encodes the normalized form of cfg as canonical JSON.
// This is the byte shape persisted by the save path and hashed by
// StableID.
func MarshalConfig(cfg *domain.Config) ([]byte, error) {
	return json.Marshal(NormalizeConfigValue(cfg))
}

// NormalizeConfigForSave is the looser save-path entry: it accepts either
// a bare configuration document or a {"config": {...}} wrapper, and
// reports parse failures instead of defaulting, so the admin sees what
// went wrong. The result is normalized but not yet validated.
func NormalizeConfigForSave(raw []byte) (*domain.Config, error) {
	var wrapper struct {
		Config json.RawMessage `json:"config"`
	}
	body := raw
	if err := json.Unmarshal(raw, &wrapper); err == nil && len(wrapper.Config) > 0 {
		body = wrapper.Config
	}

	parsed, ok := parseRawConfig(body)
	if !ok {
		return nil, fmt.Errorf("configuration is not a supported version-%d document", domain.ConfigVersion)
	}
	return NormalizeConfigValue(parsed), nil
}

// NormalizeConfigValue normalizes an in-memory configuration value. It is
// idempotent: normalizing an already-normalized configuration produces a
// structurally equal result. The input is not mutated.
func NormalizeConfigValue(cfg *domain.Config) *domain.Config {
	// Sources starts non-nil so the canonical JSON always carries an
	// array, even when every source is dropped.
	out := &domain.Config{Version: domain.ConfigVersion, Sources: []domain.Source{}}
	if cfg == nil {
		cfg = domain.DefaultConfig()
	}

	seenKeys := make(map[string]struct{}, len(cfg.Sources))
	for _, src := range cfg.Sources {
		normalized, ok := normalizeSource(src)
		if !ok {
			continue
		}
		if _, dup := seenKeys[normalized.Key]; dup {
			// First occurrence wins; deterministic given input order.
			continue
		}
		seenKeys[normalized.Key] = struct{}{}
		out.Sources = append(out.Sources, normalized)
	}

	// Display ordering only. Match priority never depends on this sort.
	sort.SliceStable(out.Sources, func(i, j int) bool {
		a, b := out.Sources[i], out.Sources[j]
		if a.Order != b.Order {
			return a.Order < b.Order
		}
		return strings.ToLower(a.Label) < strings.ToLower(b.Label)
	})

	return out
}

func normalizeSource(src domain.Source) (domain.Source, bool) {
	label := normalizeLabel(src.Label)
	key := Slugify(src.Key, "")
	if key == "" {
		key = Slugify(label, "")
	}
	if key == "" {
		return domain.Source{}, false
	}

	order := src.Order
	if order < 0 {
		order = 0
	}

	out := domain.Source{
		Key:     key,
		Label:   label,
		Enabled: src.Enabled,
		Order:   order,
		Icon:    NormalizeIconSpec(src.Icon.Value),
	}
	if out.Label == "" {
		out.Label = key
	}

	seenIDs := make(map[string]struct{}, len(src.Rules))
	for _, rule := range src.Rules {
		normalized, ok := normalizeRule(rule, len(out.Rules)+1)
		if !ok {
			continue
		}
		if _, dup := seenIDs[normalized.ID]; dup {
			continue
		}
		seenIDs[normalized.ID] = struct{}{}
		out.Rules = append(out.Rules, normalized)
	}

	return out, true
}

func normalizeRule(rule domain.Rule, position int) (domain.Rule, bool) {
	label := normalizeLabel(rule.Label)
	if label == "" {
		label = fmt.Sprintf("Rule %d", position)
	}

	id := Slugify(rule.ID, "")
	if id == "" {
		id = Slugify(label, fmt.Sprintf("rule_%d", position))
	}

	out := domain.Rule{
		ID:      id,
		Label:   label,
		Enabled: rule.Enabled,
	}

	for field, cond := range rule.When {
		if !domain.IsContextField(field) {
			continue
		}
		normalized := NormalizeCondition(cond)
		if normalized.IsEmpty() {
			continue
		}
		if out.When == nil {
			out.When = make(map[string]domain.Condition, len(rule.When))
		}
		out.When[field] = normalized
	}

	return out, true
}

// parseRawConfig coerces a loose JSON document into a candidate
// configuration. Returns false when the document is not an object or
// does not carry the supported version.
func parseRawConfig(raw []byte) (*domain.Config, bool) {
	var doc rawConfig
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, false
	}

	version, ok := coerceInt(doc.Version)
	if !ok || version != domain.ConfigVersion {
		return nil, false
	}

	cfg := &domain.Config{Version: domain.ConfigVersion}
	for _, rawSrc := range doc.Sources {
		var src rawSource
		if err := json.Unmarshal(rawSrc, &src); err != nil {
			continue
		}
		cfg.Sources = append(cfg.Sources, coerceSource(src))
	}
	return cfg, true
}

func coerceSource(src rawSource) domain.Source {
	out := domain.Source{
		Key:     asString(src.Key),
		Label:   asString(src.Label),
		Enabled: asBool(src.Enabled, true),
		Order:   asInt(src.Order),
		Icon:    domain.IconSpec{Value: coerceIconValue(src.Icon)},
	}

	var rules []rawRule
	if len(src.Rules) > 0 {
		// A non-array rules value just yields zero rules here; the
		// save-path validator reports it.
		_ = json.Unmarshal(src.Rules, &rules)
	}
	for _, r := range rules {
		out.Rules = append(out.Rules, coerceRule(r))
	}
	return out
}

func coerceRule(r rawRule) domain.Rule {
	out := domain.Rule{
		ID:      asString(r.ID),
		Label:   asString(r.Label),
		Enabled: asBool(r.Enabled, true),
	}
	for field, cond := range r.When {
		if out.When == nil {
			out.When = make(map[string]domain.Condition, len(r.When))
		}
		out.When[field] = domain.Condition{
			Any:  asStrings(cond.Any),
			None: asStrings(cond.None),
		}
	}
	return out
}

// coerceIconValue accepts either a plain string or an already-tagged
// {"kind": ..., "value": ...} object written by a previous normalization.
func coerceIconValue(v any) string {
	switch icon := v.(type) {
	case string:
		return icon
	case map[string]any:
		return asString(icon["value"])
	}
	return ""
}

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	}
	return ""
}

func asStrings(v []any) []string {
	if len(v) == 0 {
		return nil
	}
	out := make([]string, 0, len(v))
	for _, item := range v {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func asBool(v any, fallback bool) bool {
	if b, ok := v.(bool); ok {
		return b
	}
	return fallback
}

func asInt(v any) int {
	if f, ok := v.(float64); ok && f > 0 {
		return int(f)
	}
	return 0
}

func coerceInt(raw json.RawMessage) (int, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var n int
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, false
	}
	return n, true
}
