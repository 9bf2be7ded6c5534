// Package attribution implements the traffic source attribution rule
// engine: configuration normalization, validation, context building, and
// the rule matcher with specificity resolution.
package attribution

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/merchantpulse/attribution/internal/domain"
)

// Normalization bounds. Lists and strings are capped so a pathological
// configuration cannot degrade match performance.
const (
	maxTokenLen      = 256
	maxTokensPerList = 64
	maxKeyLen        = 80
	maxLabelLen      = 120
	maxSVGLen        = 8192
	maxIconURLLen    = 512
	maxIconClassLen  = 128
)

var (
	whitespaceRegex   = regexp.MustCompile(`\s+`)
	nonSlugRegex      = regexp.MustCompile(`[^a-z0-9]+`)
	svgEventAttrRegex = regexp.MustCompile(`(?i)\bon[a-z]+\s*=`)
	iconClassRegex    = regexp.MustCompile(`^[a-zA-Z0-9 _-]+$`)
	iconURLCharRegex  = regexp.MustCompile(`^[a-zA-Z0-9:/?#@!$&'()*+,;=._~%-]+$`)
)

// foldTransform strips combining marks so accented input compares equal
// to its ASCII form ("Référence" -> "Reference").
var foldTransform = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// truncate caps s at max bytes, backing up to a rune boundary so a
// multi-byte character is never split into invalid UTF-8.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// foldDiacritics removes diacritical marks from s. Returns s unchanged if
// the transform fails.
func foldDiacritics(s string) string {
	out, _, err := transform.String(foldTransform, s)
	if err != nil {
		return s
	}
	return out
}

// NormalizeToken canonicalizes one free-text match token: diacritics
// folded, lowercased, inner whitespace collapsed, trimmed, capped at
// maxTokenLen. Empty input yields empty output; callers treat empty
// tokens as absent. The eq:/= exact-match prefixes survive untouched.
func NormalizeToken(raw string) string {
	t := foldDiacritics(raw)
	t = strings.ToLower(t)
	t = whitespaceRegex.ReplaceAllString(t, " ")
	t = strings.TrimSpace(t)
	return truncate(t, maxTokenLen)
}

// NormalizeTokenList normalizes every element, drops empties,
// de-duplicates preserving first-seen order, and caps the list length.
func NormalizeTokenList(raw []string) []string {
	if len(raw) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		t := NormalizeToken(r)
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
		if len(out) == maxTokensPerList {
			break
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// NormalizeCondition normalizes both token lists independently. Missing
// lists become empty, never nil surprises downstream.
func NormalizeCondition(raw domain.Condition) domain.Condition {
	return domain.Condition{
		Any:  NormalizeTokenList(raw.Any),
		None: NormalizeTokenList(raw.None),
	}
}

// Slugify turns free text into a stable machine key: lowercase, non-
// alphanumeric runs collapsed to a single underscore, trimmed, capped at
// maxKeyLen. Returns fallback when nothing survives.
func Slugify(raw, fallback string) string {
	s := strings.ToLower(foldDiacritics(raw))
	s = nonSlugRegex.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	if len(s) > maxKeyLen {
		s = strings.Trim(truncate(s, maxKeyLen), "_")
	}
	if s == "" {
		return fallback
	}
	return s
}

// normalizeLabel collapses whitespace and caps display text.
func normalizeLabel(raw string) string {
	l := whitespaceRegex.ReplaceAllString(raw, " ")
	l = strings.TrimSpace(l)
	if len(l) > maxLabelLen {
		l = strings.TrimSpace(truncate(l, maxLabelLen))
	}
	return l
}

// NormalizeIconSpec classifies raw icon input into one of the accepted
// shapes (inline SVG, image URL, icon-class token) and validates it.
// Anything unsafe or malformed becomes the empty spec; this function
// never fails.
func NormalizeIconSpec(raw string) domain.IconSpec {
	v := strings.TrimSpace(raw)
	if v == "" {
		return domain.IconSpec{}
	}

	if strings.HasPrefix(strings.ToLower(v), "<svg") {
		if validSVG(v) {
			return domain.IconSpec{Kind: domain.IconSVG, Value: v}
		}
		return domain.IconSpec{}
	}

	if strings.HasPrefix(v, "http://") || strings.HasPrefix(v, "https://") ||
		strings.HasPrefix(v, "/") || strings.HasPrefix(v, "./") {
		if len(v) <= maxIconURLLen && iconURLCharRegex.MatchString(v) {
			return domain.IconSpec{Kind: domain.IconURL, Value: v}
		}
		return domain.IconSpec{}
	}

	if len(v) <= maxIconClassLen && iconClassRegex.MatchString(v) {
		return domain.IconSpec{Kind: domain.IconClass, Value: v}
	}
	return domain.IconSpec{}
}

// validSVG applies the safety checks for inline vector markup: bounded
// size, proper closing tag, no script elements or event handlers.
func validSVG(v string) bool {
	if len(v) > maxSVGLen {
		return false
	}
	lower := strings.ToLower(v)
	if !strings.HasSuffix(strings.TrimSpace(lower), "</svg>") {
		return false
	}
	if strings.Contains(lower, "<script") || strings.Contains(lower, "javascript:") {
		return false
	}
	return !svgEventAttrRegex.MatchString(v)
}
