package attribution_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/merchantpulse/attribution/internal/attribution"
	"github.com/merchantpulse/attribution/internal/domain"
)

func setOf(members ...string) map[string]struct{} {
	s := make(map[string]struct{}, len(members))
	for _, m := range members {
		s[m] = struct{}{}
	}
	return s
}

func TestMatch_DefaultConfigScenarios(t *testing.T) {
	engine := attribution.NewEngine(domain.DefaultConfig())

	t.Run("google click id via affiliate", func(t *testing.T) {
		ctx := domain.MatchContext{
			UTMSource:  "google",
			UTMMedium:  "cpc",
			ParamNames: setOf("gclid"),
			SourceKind: "affiliate",
		}

		result := engine.Match(ctx)
		require.True(t, result.Matched)
		assert.Equal(t, "google_ads_affiliate", result.SourceKey)
	})

	t.Run("google click id without affiliate evidence", func(t *testing.T) {
		ctx := domain.MatchContext{
			UTMSource:  "google",
			UTMMedium:  "cpc",
			ParamNames: setOf("gclid"),
		}

		result := engine.Match(ctx)
		require.True(t, result.Matched)
		assert.Equal(t, "google_ads_house", result.SourceKey, "none [affiliate] passes vacuously")
	})

	t.Run("no recognized tokens anywhere", func(t *testing.T) {
		ctx := domain.MatchContext{UTMSource: "mysteryapp"}

		result := engine.Match(ctx)
		assert.False(t, result.Matched)
		assert.Equal(t, domain.Unmatched, result)
	})
}

func TestMatch_Deterministic(t *testing.T) {
	engine := attribution.NewEngine(domain.DefaultConfig())
	ctx := domain.MatchContext{
		UTMSource:  "google",
		UTMMedium:  "cpc",
		ParamNames: setOf("gclid", "fbclid"),
	}

	first := engine.Match(ctx)
	for i := 0; i < 50; i++ {
		assert.Equal(t, first, engine.Match(ctx))
	}
}

func TestMatch_SpecificityPrefersMoreConstrainedRule(t *testing.T) {
	// Rule X: one field, a 10-char exact token. Rule Y: two fields with
	// 3-char tokens each. Y wins: 2*1000+6 beats 1*1000+10.
	cfg := &domain.Config{
		Version: domain.ConfigVersion,
		Sources: []domain.Source{
			{
				Key: "x", Label: "X", Enabled: true, Order: 1,
				Rules: []domain.Rule{{
					ID: "rx", Enabled: true,
					When: map[string]domain.Condition{
						domain.FieldUTMCampaign: {Any: []string{"eq:spring2026"}},
					},
				}},
			},
			{
				Key: "y", Label: "Y", Enabled: true, Order: 2,
				Rules: []domain.Rule{{
					ID: "ry", Enabled: true,
					When: map[string]domain.Condition{
						domain.FieldUTMSource: {Any: []string{"abc"}},
						domain.FieldUTMMedium: {Any: []string{"cpc"}},
					},
				}},
			},
		},
	}

	ctx := domain.MatchContext{
		UTMSource:   "abc",
		UTMMedium:   "cpc",
		UTMCampaign: "spring2026",
	}

	result := attribution.Match(ctx, cfg)
	require.True(t, result.Matched)
	assert.Equal(t, "y", result.SourceKey)
	assert.Equal(t, 2006, result.Specificity)
	assert.True(t, result.WasAmbiguous)
}

func TestMatch_LongerMatchedTokenBreaksEqualConstraints(t *testing.T) {
	cfg := &domain.Config{
		Version: domain.ConfigVersion,
		Sources: []domain.Source{
			{
				Key: "generic", Label: "Generic", Enabled: true, Order: 1,
				Rules: []domain.Rule{{
					ID: "g", Enabled: true,
					When: map[string]domain.Condition{
						domain.FieldUTMCampaign: {Any: []string{"sale"}},
					},
				}},
			},
			{
				Key: "specific", Label: "Specific", Enabled: true, Order: 2,
				Rules: []domain.Rule{{
					ID: "s", Enabled: true,
					When: map[string]domain.Condition{
						domain.FieldUTMCampaign: {Any: []string{"summer sale"}},
					},
				}},
			},
		},
	}

	result := attribution.Match(domain.MatchContext{UTMCampaign: "big summer sale"}, cfg)
	require.True(t, result.Matched)
	assert.Equal(t, "specific", result.SourceKey, "10 non-space chars beat 4")
}

func TestMatch_TieBrokenByGlobalIndex(t *testing.T) {
	rule := domain.Rule{
		ID: "r", Enabled: true,
		When: map[string]domain.Condition{
			domain.FieldUTMSource: {Any: []string{"news"}},
		},
	}
	cfg := &domain.Config{
		Version: domain.ConfigVersion,
		Sources: []domain.Source{
			{Key: "first", Label: "First", Enabled: true, Order: 1, Rules: []domain.Rule{rule}},
			{Key: "second", Label: "Second", Enabled: true, Order: 2, Rules: []domain.Rule{rule}},
		},
	}

	result := attribution.Match(domain.MatchContext{UTMSource: "news"}, cfg)
	require.True(t, result.Matched)
	assert.Equal(t, "first", result.SourceKey)
	assert.True(t, result.WasAmbiguous)
}

func TestMatch_DisabledSourceExcludesItsRules(t *testing.T) {
	cfg := &domain.Config{
		Version: domain.ConfigVersion,
		Sources: []domain.Source{
			{
				Key: "off", Label: "Off", Enabled: false, Order: 1,
				Rules: []domain.Rule{{
					ID: "r", Enabled: true,
					When: map[string]domain.Condition{
						domain.FieldUTMSource: {Any: []string{"news"}},
					},
				}},
			},
		},
	}

	result := attribution.Match(domain.MatchContext{UTMSource: "news"}, cfg)
	assert.False(t, result.Matched, "enabled rules inside a disabled source never match")
}

func TestMatch_DisabledRuleSkipped(t *testing.T) {
	cfg := &domain.Config{
		Version: domain.ConfigVersion,
		Sources: []domain.Source{
			{
				Key: "s", Label: "S", Enabled: true, Order: 1,
				Rules: []domain.Rule{{
					ID: "r", Enabled: false,
					When: map[string]domain.Condition{
						domain.FieldUTMSource: {Any: []string{"news"}},
					},
				}},
			},
		},
	}

	result := attribution.Match(domain.MatchContext{UTMSource: "news"}, cfg)
	assert.False(t, result.Matched)
}

func TestMatch_WordBoundarySemantics(t *testing.T) {
	testCases := []struct {
		name    string
		token   string
		text    string
		matched bool
	}{
		{name: "whole word matches", token: "cpc", text: "cpc", matched: true},
		{name: "word inside phrase", token: "cpc", text: "paid cpc retarget", matched: true},
		{name: "word bounded by punctuation", token: "cpc", text: "brand-cpc", matched: true},
		{name: "substring of longer word rejected", token: "cpc", text: "cpcx", matched: false},
		{name: "prefix inside word rejected", token: "google", text: "googlemail", matched: false},
		{name: "punctuated token uses raw substring", token: "google.", text: "www.googlemail.com", matched: false},
		{name: "punctuated token matches host", token: "google.", text: "www.google.com", matched: true},
		{name: "exact token needs equality", token: "eq:google", text: "google ads", matched: false},
		{name: "exact token equality", token: "eq:google", text: "google", matched: true},
		{name: "equals prefix form", token: "=google", text: "google", matched: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := &domain.Config{
				Version: domain.ConfigVersion,
				Sources: []domain.Source{{
					Key: "s", Label: "S", Enabled: true,
					Rules: []domain.Rule{{
						ID: "r", Enabled: true,
						When: map[string]domain.Condition{
							domain.FieldUTMSource: {Any: []string{tc.token}},
						},
					}},
				}},
			}

			result := attribution.Match(domain.MatchContext{UTMSource: tc.text}, cfg)
			assert.Equal(t, tc.matched, result.Matched)
		})
	}
}

func TestMatch_SetFieldMembership(t *testing.T) {
	cfg := &domain.Config{
		Version: domain.ConfigVersion,
		Sources: []domain.Source{{
			Key: "s", Label: "S", Enabled: true,
			Rules: []domain.Rule{{
				ID: "r", Enabled: true,
				When: map[string]domain.Condition{
					domain.FieldParamNames: {Any: []string{"gclid"}},
				},
			}},
		}},
	}

	t.Run("member matches", func(t *testing.T) {
		result := attribution.Match(domain.MatchContext{ParamNames: setOf("gclid", "page")}, cfg)
		assert.True(t, result.Matched)
	})

	t.Run("substring of a member does not match", func(t *testing.T) {
		result := attribution.Match(domain.MatchContext{ParamNames: setOf("gclid_extra")}, cfg)
		assert.False(t, result.Matched)
	})

	t.Run("empty set fails the positive constraint", func(t *testing.T) {
		result := attribution.Match(domain.MatchContext{}, cfg)
		assert.False(t, result.Matched)
	})
}

func TestMatch_NoneVetoesAcrossFields(t *testing.T) {
	cfg := &domain.Config{
		Version: domain.ConfigVersion,
		Sources: []domain.Source{{
			Key: "s", Label: "S", Enabled: true,
			Rules: []domain.Rule{{
				ID: "r", Enabled: true,
				When: map[string]domain.Condition{
					domain.FieldUTMSource:  {Any: []string{"google"}},
					domain.FieldSourceKind: {None: []string{"affiliate"}},
				},
			}},
		}},
	}

	t.Run("veto applies", func(t *testing.T) {
		result := attribution.Match(domain.MatchContext{UTMSource: "google", SourceKind: "affiliate"}, cfg)
		assert.False(t, result.Matched)
	})

	t.Run("missing field passes the exclusion vacuously", func(t *testing.T) {
		result := attribution.Match(domain.MatchContext{UTMSource: "google"}, cfg)
		assert.True(t, result.Matched)
	})
}

func TestMatch_SpecificityMonotonicity(t *testing.T) {
	// A's constraints are a strict superset of B's; when both match the
	// same context, A never scores below B.
	cfg := &domain.Config{
		Version: domain.ConfigVersion,
		Sources: []domain.Source{
			{
				Key: "a", Label: "A", Enabled: true, Order: 1,
				Rules: []domain.Rule{{
					ID: "ra", Enabled: true,
					When: map[string]domain.Condition{
						domain.FieldUTMSource: {Any: []string{"google"}},
						domain.FieldUTMMedium: {Any: []string{"cpc"}},
					},
				}},
			},
			{
				Key: "b", Label: "B", Enabled: true, Order: 2,
				Rules: []domain.Rule{{
					ID: "rb", Enabled: true,
					When: map[string]domain.Condition{
						domain.FieldUTMSource: {Any: []string{"google"}},
					},
				}},
			},
		},
	}

	ctx := domain.MatchContext{UTMSource: "google", UTMMedium: "cpc"}
	result := attribution.Match(ctx, cfg)
	require.True(t, result.Matched)
	assert.Equal(t, "a", result.SourceKey)
	assert.True(t, result.WasAmbiguous)
	assert.GreaterOrEqual(t, result.Specificity, 2000)
}

func TestMatch_NilConfigFallsBackToDefaults(t *testing.T) {
	ctx := domain.MatchContext{ParamNames: setOf("msclkid")}
	result := attribution.Match(ctx, nil)
	require.True(t, result.Matched)
	assert.Equal(t, "microsoft_ads", result.SourceKey)
}

func BenchmarkEngineMatch(b *testing.B) {
	engine := attribution.NewEngine(domain.DefaultConfig())
	ctx := domain.MatchContext{
		UTMSource:    "google",
		UTMMedium:    "cpc",
		UTMCampaign:  "summer sale 2026",
		ReferrerHost: "www.google.com",
		ParamNames:   setOf("gclid", "utm_source", "utm_medium", "page"),
		ParamPairs:   setOf("gclid=abc", "page=2"),
	}

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		engine.Match(ctx)
	}
}
