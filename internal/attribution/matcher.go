package attribution

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/merchantpulse/attribution/internal/domain"
)

// Specificity weighting. Constraint count dominates matched token length;
// the stride keeps rule tie-break indexes stable across configuration
// edits that disable or enable sources.
const (
	constraintWeight  = 1000
	sourceIndexStride = 1000
)

// Engine evaluates matching contexts against one immutable normalized
// configuration snapshot. It holds no mutable state, so a single Engine
// is safe for arbitrarily many concurrent callers; per-batch callers
// should construct it once, not once per session.
type Engine struct {
	cfg *domain.Config
}

// NewEngine normalizes the configuration defensively (idempotent when
// already normalized) and returns an engine bound to that snapshot.
func NewEngine(cfg *domain.Config) *Engine {
	return &Engine{cfg: NormalizeConfigValue(cfg)}
}

// Config returns the engine's normalized configuration snapshot. Callers
// must not mutate it.
func (e *Engine) Config() *domain.Config {
	return e.cfg
}

// Match returns the single winning attribution for a context, or the
// unmatched result. The same (context, config) pair always produces the
// identical result: every enabled rule of every enabled source is
// evaluated, all matches are scored, and ties are broken by the stable
// global rule index.
func (e *Engine) Match(ctx domain.MatchContext) domain.MatchResult {
	type candidate struct {
		source      *domain.Source
		rule        *domain.Rule
		globalIndex int
		specificity int
	}

	var candidates []candidate
	globalIndex := 0
	for si := range e.cfg.Sources {
		src := &e.cfg.Sources[si]
		base := globalIndex
		// Advance the stride even for skipped sources.
		globalIndex += sourceIndexStride
		if !src.Enabled {
			continue
		}
		for ri := range src.Rules {
			rule := &src.Rules[ri]
			if !rule.Enabled {
				continue
			}
			specificity, ok := evaluateRule(ctx, rule)
			if !ok {
				continue
			}
			candidates = append(candidates, candidate{
				source:      src,
				rule:        rule,
				globalIndex: base + ri,
				specificity: specificity,
			})
		}
	}

	if len(candidates) == 0 {
		return domain.Unmatched
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].specificity != candidates[j].specificity {
			return candidates[i].specificity > candidates[j].specificity
		}
		return candidates[i].globalIndex < candidates[j].globalIndex
	})

	winner := candidates[0]
	return domain.MatchResult{
		Matched:      true,
		SourceKey:    winner.source.Key,
		SourceLabel:  winner.source.Label,
		Icon:         winner.source.Icon,
		RuleID:       winner.rule.ID,
		WasAmbiguous: len(candidates) > 1,
		Specificity:  winner.specificity,
	}
}

// Match is the package-level convenience for one-off evaluations. Batch
// callers should build an Engine once instead.
func Match(ctx domain.MatchContext, cfg *domain.Config) domain.MatchResult {
	return NewEngine(cfg).Match(ctx)
}

// evaluateRule checks every field condition of the rule against the
// context (conjunction across fields) and computes the specificity score:
// constraintCount*1000 + summed best matched token lengths. Missing
// context fields read as empty text or empty sets, which fail any
// positive constraint and pass any exclusion vacuously.
func evaluateRule(ctx domain.MatchContext, rule *domain.Rule) (int, bool) {
	constraints := 0
	tokenScore := 0

	for field, cond := range rule.When {
		if cond.IsEmpty() {
			continue
		}

		var matched func(token string) bool
		if domain.IsSetField(field) {
			set := ctx.Set(field)
			matched = func(token string) bool { return tokenMatchesSet(token, set) }
		} else {
			text := ctx.Scalar(field)
			matched = func(token string) bool { return tokenMatchesScalar(token, text) }
		}

		for _, token := range cond.None {
			if matched(token) {
				return 0, false
			}
		}
		if len(cond.None) > 0 {
			constraints++
		}

		if len(cond.Any) > 0 {
			constraints++
			best := -1
			for _, token := range cond.Any {
				if !matched(token) {
					continue
				}
				if score := tokenLength(token); score > best {
					best = score
				}
			}
			if best < 0 {
				return 0, false
			}
			tokenScore += best
		}
	}

	return constraints*constraintWeight + tokenScore, true
}

// parseToken splits off the exact-match marker. Both the eq: prefix and
// a leading = request exact equality instead of substring matching.
func parseToken(token string) (literal string, exact bool) {
	if rest, ok := strings.CutPrefix(token, "eq:"); ok {
		return rest, true
	}
	if rest, ok := strings.CutPrefix(token, "="); ok {
		return rest, true
	}
	return token, false
}

// tokenMatchesScalar matches one token against scalar context text:
// exact equality for eq:/= tokens, word-boundary-aware substring matching
// for plain alphanumeric tokens, raw substring for anything else.
func tokenMatchesScalar(token, text string) bool {
	literal, exact := parseToken(token)
	if literal == "" {
		return false
	}
	if exact {
		return text == literal
	}
	if isWordToken(literal) {
		return containsWord(text, literal)
	}
	return strings.Contains(text, literal)
}

// tokenMatchesSet matches by membership. Set members are discrete query
// keys, so substring semantics are not meaningful here; exact-match
// markers are accepted but change nothing.
func tokenMatchesSet(token string, set map[string]struct{}) bool {
	literal, _ := parseToken(token)
	if literal == "" {
		return false
	}
	_, ok := set[literal]
	return ok
}

// tokenLength is the specificity contribution of a matched token: the
// literal's length with whitespace stripped.
func tokenLength(token string) int {
	literal, _ := parseToken(token)
	n := 0
	for _, r := range literal {
		if !unicode.IsSpace(r) {
			n++
		}
	}
	return n
}

// isWordToken reports whether the literal consists only of letters,
// digits, and spaces, and therefore must match on word boundaries rather
// than as an arbitrary substring of an unrelated word.
func isWordToken(literal string) bool {
	for _, r := range literal {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != ' ' {
			return false
		}
	}
	return true
}

// containsWord reports whether literal occurs in text with non-
// alphanumeric characters (or the text edges) on both sides.
func containsWord(text, literal string) bool {
	for start := 0; ; {
		idx := strings.Index(text[start:], literal)
		if idx < 0 {
			return false
		}
		idx += start
		end := idx + len(literal)
		if boundaryBefore(text, idx) && boundaryAfter(text, end) {
			return true
		}
		start = idx + 1
	}
}

func boundaryBefore(text string, i int) bool {
	if i <= 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(text[:i])
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

func boundaryAfter(text string, i int) bool {
	if i >= len(text) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(text[i:])
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}
