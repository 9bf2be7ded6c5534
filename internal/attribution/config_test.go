package attribution_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/merchantpulse/attribution/internal/attribution"
	"github.com/merchantpulse/attribution/internal/domain"
)

func TestNormalizeConfig_FailOpenTotality(t *testing.T) {
	defaults := attribution.NormalizeConfigValue(domain.DefaultConfig())

	testCases := []struct {
		name string
		raw  string
	}{
		{name: "not json", raw: "not json"},
		{name: "empty input", raw: ""},
		{name: "json null", raw: "null"},
		{name: "json array", raw: "[1,2,3]"},
		{name: "object without version", raw: `{"sources": []}`},
		{name: "unsupported version", raw: `{"version": 99, "sources": []}`},
		{name: "string version", raw: `{"version": "1", "sources": []}`},
		{name: "deeply malformed nesting", raw: `{"version": 1, "sources": [{"rules": {"a": {"b": [[[null]]]}}}]}`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := attribution.NormalizeConfig([]byte(tc.raw))
			require.NotNil(t, got)
			assert.Equal(t, domain.ConfigVersion, got.Version)
			if tc.name != "deeply malformed nesting" {
				assert.Equal(t, defaults, got)
			}
		})
	}
}

func TestNormalizeConfig_WrongTypedFieldsAreCoerced(t *testing.T) {
	raw := `{
		"version": 1,
		"sources": [
			{"key": "Paid Search!", "label": "  Paid   Search ", "enabled": "yes", "order": -3,
			 "rules": [{"id": 7, "label": "", "when": {"utm_medium": {"any": ["CPC", 42, "cpc"]}}}]}
		]
	}`

	cfg := attribution.NormalizeConfig([]byte(raw))
	require.Len(t, cfg.Sources, 1)

	src := cfg.Sources[0]
	assert.Equal(t, "paid_search", src.Key)
	assert.Equal(t, "Paid Search", src.Label)
	assert.True(t, src.Enabled, "non-bool enabled defaults to true")
	assert.Equal(t, 0, src.Order)

	require.Len(t, src.Rules, 1)
	rule := src.Rules[0]
	assert.Equal(t, "7", rule.ID)
	assert.Equal(t, "Rule 1", rule.Label)
	assert.Equal(t, []string{"cpc"}, rule.When[domain.FieldUTMMedium].Any)
}

func TestNormalizeConfig_DuplicateSourceKeysFirstWins(t *testing.T) {
	raw := `{
		"version": 1,
		"sources": [
			{"key": "My Source!!", "label": "First", "rules": []},
			{"key": "my_source", "label": "Second", "rules": []}
		]
	}`

	cfg := attribution.NormalizeConfig([]byte(raw))
	require.Len(t, cfg.Sources, 1)
	assert.Equal(t, "my_source", cfg.Sources[0].Key)
	assert.Equal(t, "First", cfg.Sources[0].Label)
}

func TestNormalizeConfig_DuplicateRuleIDsFirstWins(t *testing.T) {
	raw := `{
		"version": 1,
		"sources": [
			{"key": "s", "label": "S", "rules": [
				{"id": "r1", "label": "keep", "when": {"utm_source": {"any": ["a"]}}},
				{"id": "r1", "label": "drop", "when": {"utm_source": {"any": ["b"]}}}
			]}
		]
	}`

	cfg := attribution.NormalizeConfig([]byte(raw))
	require.Len(t, cfg.Sources, 1)
	require.Len(t, cfg.Sources[0].Rules, 1)
	assert.Equal(t, "keep", cfg.Sources[0].Rules[0].Label)
}

func TestNormalizeConfig_UnrecognizedWhenFieldsDropped(t *testing.T) {
	raw := `{
		"version": 1,
		"sources": [
			{"key": "s", "label": "S", "rules": [
				{"id": "r1", "when": {
					"utm_source": {"any": ["google"]},
					"not_a_field": {"any": ["x"]},
					"utm_term": {"any": [], "none": []}
				}}
			]}
		]
	}`

	cfg := attribution.NormalizeConfig([]byte(raw))
	rule := cfg.Sources[0].Rules[0]
	assert.Len(t, rule.When, 1)
	assert.Contains(t, rule.When, domain.FieldUTMSource)
}

func TestNormalizeConfig_SortsForDisplay(t *testing.T) {
	raw := `{
		"version": 1,
		"sources": [
			{"key": "c", "label": "zeta", "order": 5},
			{"key": "a", "label": "Alpha", "order": 5},
			{"key": "b", "label": "beta", "order": 1}
		]
	}`

	cfg := attribution.NormalizeConfig([]byte(raw))
	require.Len(t, cfg.Sources, 3)
	assert.Equal(t, "b", cfg.Sources[0].Key)
	assert.Equal(t, "a", cfg.Sources[1].Key, "label sort is case-insensitive")
	assert.Equal(t, "c", cfg.Sources[2].Key)
}

func TestNormalizeConfigValue_Idempotent(t *testing.T) {
	once := attribution.NormalizeConfigValue(domain.DefaultConfig())
	twice := attribution.NormalizeConfigValue(once)
	assert.Equal(t, once, twice)
}

func TestNormalizeConfigForSave(t *testing.T) {
	t.Run("accepts bare document", func(t *testing.T) {
		cfg, err := attribution.NormalizeConfigForSave([]byte(`{"version": 1, "sources": []}`))
		require.NoError(t, err)
		assert.Empty(t, cfg.Sources)
	})

	t.Run("accepts wrapper", func(t *testing.T) {
		cfg, err := attribution.NormalizeConfigForSave([]byte(`{"config": {"version": 1, "sources": [{"key": "s", "label": "S"}]}}`))
		require.NoError(t, err)
		require.Len(t, cfg.Sources, 1)
	})

	t.Run("reports parse failure", func(t *testing.T) {
		_, err := attribution.NormalizeConfigForSave([]byte("not json"))
		assert.Error(t, err)
	})

	t.Run("reports version mismatch", func(t *testing.T) {
		_, err := attribution.NormalizeConfigForSave([]byte(`{"version": 2, "sources": []}`))
		assert.Error(t, err)
	})
}
