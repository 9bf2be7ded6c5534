package processor

import (
	"sort"
	"strings"

	ahocorasick "github.com/cloudflare/ahocorasick"
	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/merchantpulse/attribution/internal/attribution"
	"github.com/merchantpulse/attribution/internal/domain"
	"github.com/merchantpulse/attribution/internal/logger"
)

const (
	defaultSuggestionLimit = 20
	suggestedSourceOrder   = 900
)

// networkSignatures maps affiliate networks to the keywords that betray
// them in unmatched session signatures (utm values, click param names,
// referrer fragments).
var networkSignatures = map[string][]string{
	"awin":         {"awin", "awc", "zanox"},
	"cj_affiliate": {"cjevent", "cjdata", "commission-junction", "anrdoezrs"},
	"impact":       {"irclickid", "impactradius", "impact-affiliate"},
	"rakuten":      {"ranmid", "ransiteid", "linkshare", "linksynergy"},
	"shareasale":   {"sscid", "shareasale", "sas_click"},
	"partnerstack": {"ps_xid", "partnerstack", "growsumo"},
}

// networkParamKeywords are the subset of signature keywords that are
// click-identifier query params rather than free-text signals.
var networkParamKeywords = map[string]struct{}{
	"awc":       {},
	"cjevent":   {},
	"cjdata":    {},
	"irclickid": {},
	"ranmid":    {},
	"ransiteid": {},
	"sscid":     {},
	"ps_xid":    {},
}

var titleCaser = cases.Title(language.English)

// Suggestion is a draft source a merchant can adopt to cover a cluster
// of unmatched sessions. Draft sources ship disabled.
type Suggestion struct {
	Source   domain.Source `json:"source"`
	Sessions int           `json:"sessions"`
	Evidence []string      `json:"evidence"`
}

// Suggester proposes draft rules for unmatched traffic by scanning
// unmatched signatures for known affiliate network keywords in a single
// automaton pass.
type Suggester struct {
	matcher  *ahocorasick.Matcher
	keywords []string
	networks []string
	limit    int
	logger   logger.Logger
}

// NewSuggester builds the keyword automaton once; the dictionary is
// static, so the matcher is shared across calls.
func NewSuggester(limit int, log logger.Logger) *Suggester {
	if limit <= 0 {
		limit = defaultSuggestionLimit
	}

	names := make([]string, 0, len(networkSignatures))
	for name := range networkSignatures {
		names = append(names, name)
	}
	sort.Strings(names)

	var keywords []string
	var networks []string
	for _, name := range names {
		for _, kw := range networkSignatures[name] {
			keywords = append(keywords, kw)
			networks = append(networks, name)
		}
	}

	return &Suggester{
		matcher:  ahocorasick.NewStringMatcher(keywords),
		keywords: keywords,
		networks: networks,
		limit:    limit,
		logger:   log,
	}
}

// Suggest scans the report's unmatched groups and returns ranked draft
// sources, at most one per detected network.
func (s *Suggester) Suggest(groups []UnmatchedGroup) []Suggestion {
	type tally struct {
		sessions int
		keywords map[string]struct{}
	}
	found := make(map[string]*tally)

	for _, group := range groups {
		hits := s.matcher.Match([]byte(strings.ToLower(group.Signature)))
		seen := make(map[string]struct{}, len(hits))
		for _, hit := range hits {
			network := s.networks[hit]
			if _, dup := seen[network]; dup {
				continue
			}
			seen[network] = struct{}{}

			t, ok := found[network]
			if !ok {
				t = &tally{keywords: make(map[string]struct{})}
				found[network] = t
			}
			t.sessions += group.Sessions
			t.keywords[s.keywords[hit]] = struct{}{}
		}
	}

	suggestions := make([]Suggestion, 0, len(found))
	for network, t := range found {
		evidence := make([]string, 0, len(t.keywords))
		for kw := range t.keywords {
			evidence = append(evidence, kw)
		}
		sort.Strings(evidence)

		suggestions = append(suggestions, Suggestion{
			Source:   s.draftSource(network, evidence),
			Sessions: t.sessions,
			Evidence: evidence,
		})
	}

	sort.Slice(suggestions, func(i, j int) bool {
		if suggestions[i].Sessions != suggestions[j].Sessions {
			return suggestions[i].Sessions > suggestions[j].Sessions
		}
		return suggestions[i].Source.Key < suggestions[j].Source.Key
	})
	if len(suggestions) > s.limit {
		suggestions = suggestions[:s.limit]
	}

	s.logger.Debug("suggestions built",
		logger.Int("unmatched_groups", len(groups)),
		logger.Int("suggestions", len(suggestions)),
	)

	return suggestions
}

// draftSource builds a disabled source with one rule keyed on the
// keywords that fired: click params go into a param_names condition,
// everything else into utm_source.
func (s *Suggester) draftSource(network string, evidence []string) domain.Source {
	var paramTokens []string
	var textTokens []string
	for _, kw := range evidence {
		if _, ok := networkParamKeywords[kw]; ok {
			paramTokens = append(paramTokens, kw)
		} else {
			textTokens = append(textTokens, kw)
		}
	}

	when := make(map[string]domain.Condition, 2)
	if len(paramTokens) > 0 {
		when[domain.FieldParamNames] = domain.Condition{Any: paramTokens}
	}
	if len(textTokens) > 0 {
		when[domain.FieldUTMSource] = domain.Condition{Any: textTokens}
	}

	label := titleCaser.String(strings.ReplaceAll(network, "_", " "))

	return domain.Source{
		Key:     attribution.Slugify("affiliate "+network, "affiliate_"+network),
		Label:   label + " (suggested)",
		Enabled: false,
		Order:   suggestedSourceOrder,
		// The disabled source gates the draft; the rule itself must be
		// enabled so flipping the source on makes it match immediately.
		Rules: []domain.Rule{{
			ID:      uuid.NewString(),
			Label:   label + " signature",
			Enabled: true,
			When:    when,
		}},
	}
}
