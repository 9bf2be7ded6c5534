package attribution

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/merchantpulse/attribution/internal/domain"
)

// ValidationError is one structural problem found on the save path. Path
// locates the offending source or rule so the admin UI can highlight it.
type ValidationError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return e.Path + ": " + e.Message
}

// ValidationResult is the outcome of validating a configuration document.
type ValidationResult struct {
	OK     bool              `json:"ok"`
	Errors []ValidationError `json:"errors"`
}

// ValidateConfigBytes applies the strict admin-save checks to a raw
// configuration document. Unlike the normalizer it reports every problem
// it finds instead of silently repairing; callers must refuse to persist
// when OK is false.
func ValidateConfigBytes(raw []byte) ValidationResult {
	var errs []ValidationError
	add := func(path, format string, args ...any) {
		errs = append(errs, ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
	}

	if len(raw) > MaxConfigBytes {
		add("", "configuration exceeds the %d byte limit", MaxConfigBytes)
		return ValidationResult{Errors: errs}
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		add("", "configuration is not a JSON object")
		return ValidationResult{Errors: errs}
	}

	// A version mismatch rejects outright; partial checks against an
	// unknown document shape would only mislead.
	if version, ok := coerceInt(doc["version"]); !ok || version != domain.ConfigVersion {
		add("version", "unsupported configuration version (want %d)", domain.ConfigVersion)
		return ValidationResult{Errors: errs}
	}

	sourcesRaw, ok := doc["sources"]
	if !ok || !startsWith(sourcesRaw, '[') {
		add("sources", "sources must be an array")
		return ValidationResult{OK: len(errs) == 0, Errors: errs}
	}

	var sources []json.RawMessage
	if err := json.Unmarshal(sourcesRaw, &sources); err != nil {
		add("sources", "sources must be an array")
		return ValidationResult{OK: len(errs) == 0, Errors: errs}
	}

	seenKeys := make(map[string]string, len(sources))
	for i, rawSrc := range sources {
		validateSource(i, rawSrc, seenKeys, add)
	}

	return ValidationResult{OK: len(errs) == 0, Errors: errs}
}

// ValidateConfig serializes and validates an in-memory configuration.
// Convenience for callers that already hold a parsed value.
func ValidateConfig(cfg *domain.Config) ValidationResult {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return ValidationResult{Errors: []ValidationError{{Message: "configuration is not serializable"}}}
	}
	return ValidateConfigBytes(raw)
}

type validatedSource struct {
	Key   any             `json:"key"`
	Label any             `json:"label"`
	Rules json.RawMessage `json:"rules"`
}

type validatedRule struct {
	ID   any             `json:"id"`
	When json.RawMessage `json:"when"`
}

func validateSource(index int, raw json.RawMessage, seenKeys map[string]string, add func(string, string, ...any)) {
	path := fmt.Sprintf("sources[%d]", index)

	var src validatedSource
	if err := json.Unmarshal(raw, &src); err != nil {
		add(path, "source must be an object")
		return
	}

	key := Slugify(asString(src.Key), "")
	switch {
	case key == "":
		add(path+".key", "source key is missing or empty")
	default:
		if prev, dup := seenKeys[key]; dup {
			add(path+".key", "duplicate source key %q (also used by %s)", key, prev)
		} else {
			seenKeys[key] = path
		}
		path = path + "(" + key + ")"
	}

	if normalizeLabel(asString(src.Label)) == "" {
		add(path+".label", "source label is missing or empty")
	}

	if len(src.Rules) == 0 {
		return
	}
	if !startsWith(src.Rules, '[') {
		add(path+".rules", "rules must be an array")
		return
	}

	var rules []json.RawMessage
	if err := json.Unmarshal(src.Rules, &rules); err != nil {
		add(path+".rules", "rules must be an array")
		return
	}

	seenIDs := make(map[string]struct{}, len(rules))
	for i, rawRule := range rules {
		validateRule(path, i, rawRule, seenIDs, add)
	}
}

func validateRule(sourcePath string, index int, raw json.RawMessage, seenIDs map[string]struct{}, add func(string, string, ...any)) {
	path := fmt.Sprintf("%s.rules[%d]", sourcePath, index)

	var rule validatedRule
	if err := json.Unmarshal(raw, &rule); err != nil {
		add(path, "rule must be an object")
		return
	}

	id := Slugify(asString(rule.ID), "")
	if id == "" {
		add(path+".id", "rule id is missing or empty")
	} else {
		if _, dup := seenIDs[id]; dup {
			add(path+".id", "duplicate rule id %q", id)
		}
		seenIDs[id] = struct{}{}
	}

	// A null when is the same as an absent one: a rule with every
	// condition dropped still round-trips through the save path.
	if len(rule.When) > 0 && !isJSONNull(rule.When) && !startsWith(rule.When, '{') {
		add(path+".when", "when must be an object of field conditions")
	}
}

// startsWith reports whether the first non-space byte of raw is c.
func startsWith(raw json.RawMessage, c byte) bool {
	trimmed := bytes.TrimLeft(raw, " \t\r\n")
	return len(trimmed) > 0 && trimmed[0] == c
}

func isJSONNull(raw json.RawMessage) bool {
	return string(bytes.TrimSpace(raw)) == "null"
}
