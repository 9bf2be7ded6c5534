package attribution

import (
	"encoding/json"
	"net/url"
	"strings"

	"github.com/merchantpulse/attribution/internal/domain"
)

// Context field bounds.
const (
	maxContextText  = 2048
	maxParamPairLen = 256
)

// BuildContext projects one session's raw fields, plus optional affiliate
// evidence, into the fixed-shape matching context. Pure and total: it
// never fails and every context field is always present, defaulting to
// empty text or an empty set. A malformed URL on one session must not
// break reporting for the rest of the batch.
func BuildContext(session domain.SessionRecord, evidence *domain.AffiliateEvidence) domain.MatchContext {
	ctx := domain.MatchContext{
		UTMSource:          contextText(session.UTMSource),
		UTMMedium:          contextText(session.UTMMedium),
		UTMCampaign:        contextText(session.UTMCampaign),
		UTMContent:         contextText(session.UTMContent),
		UTMTerm:            contextText(session.UTMTerm),
		ReferrerHost:       referrerHost(session.ReferrerURL),
		ParamNames:         make(map[string]struct{}),
		ParamPairs:         make(map[string]struct{}),
		TrafficSourceKeyV1: contextText(session.TrafficSourceKeyV1),
	}

	collectEntryParams(session.EntryURL, ctx.ParamNames, ctx.ParamPairs)

	if evidence != nil {
		ctx.SourceKind = contextText(evidence.SourceKind)
		ctx.AffiliateNetwork = contextText(evidence.Network)
		ctx.AffiliateID = contextText(evidence.AffiliateID)
		// Click-identifier keys recovered by the affiliate pipeline are
		// first-class matchable signals, same as entry-URL query keys.
		for _, key := range clickParamKeys(evidence.ClickParams) {
			ctx.ParamNames[key] = struct{}{}
		}
	}

	return ctx
}

// contextText normalizes free text the way the matcher assumes:
// diacritics folded, lowercased, whitespace collapsed, length capped.
func contextText(raw string) string {
	t := foldDiacritics(raw)
	t = strings.ToLower(t)
	t = whitespaceRegex.ReplaceAllString(t, " ")
	t = strings.TrimSpace(t)
	return truncate(t, maxContextText)
}

// parseLenient parses a URL, retrying with an assumed scheme when the
// input looks scheme-less. Returns nil for anything unparsable.
func parseLenient(raw string) *url.URL {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err == nil && u.Host != "" {
		return u
	}
	u, err = url.Parse("https://" + raw)
	if err != nil || u.Host == "" {
		return nil
	}
	return u
}

// referrerHost extracts the lowercase hostname from a referrer URL, or
// empty when the referrer is absent or unparsable.
func referrerHost(raw string) string {
	u := parseLenient(raw)
	if u == nil {
		return ""
	}
	return contextText(u.Hostname())
}

// collectEntryParams adds the entry URL's query-string key names and
// key=value pairs to the given sets.
func collectEntryParams(raw string, names, pairs map[string]struct{}) {
	u := parseLenient(raw)
	if u == nil {
		return
	}
	for key, values := range u.Query() {
		name := contextText(key)
		if name == "" {
			continue
		}
		names[name] = struct{}{}
		for _, value := range values {
			pair := truncate(name+"="+contextText(value), maxParamPairLen)
			pairs[pair] = struct{}{}
		}
	}
}

// clickParamKeys extracts the key names from an affiliate-evidence click
// parameter blob. A malformed blob yields no keys, never an error.
func clickParamKeys(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var params map[string]any
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil
	}
	keys := make([]string, 0, len(params))
	for key := range params {
		if name := contextText(key); name != "" {
			keys = append(keys, name)
		}
	}
	return keys
}
